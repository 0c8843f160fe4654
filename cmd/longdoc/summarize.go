package main

import (
	"github.com/spf13/cobra"

	"github.com/bbiangul/longdoc"
)

var (
	sumFile    string
	sumTitle   string
	sumNoCache bool
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize a long text",
	Example: `  longdoc summarize --file report.pdf --title "Annual report"
  cat notes.txt | longdoc summarize`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, err := openEngine(withConcurrency(concurrency))
		if err != nil {
			return err
		}
		defer engine.Close()

		var opts []longdoc.CallOption
		if sumNoCache {
			opts = append(opts, longdoc.WithNoCache())
		}

		var sum *longdoc.Summary
		if sumFile != "" {
			sum, err = engine.SummarizeFile(ctx, sumFile, sumTitle, opts...)
		} else {
			var text string
			if text, err = readStdin(cmd.InOrStdin()); err != nil {
				return err
			}
			sum, err = engine.Summarize(ctx, text, sumTitle, opts...)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			return printJSON(out, sum)
		}
		printFields(out, sum.Fields)
		return nil
	},
}

func init() {
	summarizeCmd.Flags().StringVarP(&sumFile, "file", "f", "", "document to read instead of stdin")
	summarizeCmd.Flags().StringVarP(&sumTitle, "title", "t", "", "title of the text (default: the document title, else \"Untitled\")")
	summarizeCmd.Flags().BoolVar(&sumNoCache, "no-cache", false, "ignore cached results")
	summarizeCmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel generation calls (default from config)")
}
