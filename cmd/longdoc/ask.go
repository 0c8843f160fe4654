package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bbiangul/longdoc"
)

var (
	askFile     string
	askNoCache  bool
	concurrency int
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from a long text",
	Example: `  longdoc ask --file report.pdf "Who signed the contract?"
  cat notes.txt | longdoc ask "When was the plant opened?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, err := openEngine(withConcurrency(concurrency))
		if err != nil {
			return err
		}
		defer engine.Close()

		var opts []longdoc.CallOption
		if askNoCache {
			opts = append(opts, longdoc.WithNoCache())
		}

		var ans *longdoc.Answer
		if askFile != "" {
			ans, err = engine.AskFile(ctx, askFile, args[0], opts...)
		} else {
			var text string
			if text, err = readStdin(cmd.InOrStdin()); err != nil {
				return err
			}
			ans, err = engine.Ask(ctx, text, args[0], opts...)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if outputFormat == "json" {
			return printJSON(out, ans)
		}
		if ans.Status == longdoc.StatusNoAnswer {
			fmt.Fprintln(out, longdoc.NoAnswerMessage)
			return nil
		}
		printFields(out, ans.Fields)
		return nil
	},
}

func withConcurrency(n int) func(*longdoc.Config) {
	return func(c *longdoc.Config) {
		if n > 0 {
			c.Concurrency = n
		}
	}
}

func init() {
	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "document to read instead of stdin")
	askCmd.Flags().BoolVar(&askNoCache, "no-cache", false, "ignore cached results")
	askCmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel generation calls (default from config)")
}
