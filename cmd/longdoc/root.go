package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bbiangul/longdoc"
)

var (
	cfgFile      string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "longdoc",
	Short: "Question answering and summarization over texts larger than the model window",
	Long: `longdoc splits a long text into chunks that fit the model's context
window, asks each chunk, and recursively merges the partial results until
one answer or one summary remains.

Input is a document file (txt, md, html, pdf, docx, xlsx, pptx) given with
--file, or plain text on stdin.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./longdoc.yaml or ~/.longdoc/longdoc.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "text", "output format: text or json",
	)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log recursion steps")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		if outputFormat != "text" && outputFormat != "json" {
			return fmt.Errorf("unknown output format %q", outputFormat)
		}
		return nil
	}

	rootCmd.AddCommand(askCmd, summarizeCmd, jobsCmd)
}

// openEngine loads the config and builds the engine. Overrides adjust the
// loaded config before construction.
func openEngine(overrides ...func(*longdoc.Config)) (longdoc.Engine, error) {
	cfg, err := longdoc.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	return longdoc.New(cfg)
}

// readStdin returns piped input, or an error when stdin is a terminal.
func readStdin(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			return "", errors.New("no input: pass --file or pipe text on stdin")
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printFields(w io.Writer, s fmt.Stringer) {
	fmt.Fprint(w, strings.TrimRight(s.String(), "\n")+"\n")
}
