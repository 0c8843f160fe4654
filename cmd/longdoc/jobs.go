package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	jobsKind  string
	jobsLimit int

	pruneOlderThan time.Duration
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [id]",
	Short: "List recorded jobs, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		out := cmd.OutOrStdout()
		if len(args) == 1 {
			job, err := engine.Job(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(out, job)
		}

		jobs, err := engine.Jobs(ctx, jobsKind, jobsLimit)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(out, jobs)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tCALLS\tDEPTH\tMS\tCREATED\tPROMPT")
		for _, j := range jobs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
				j.ID, j.Kind, j.Status, j.Calls, j.Depth, j.ElapsedMs, j.CreatedAt, truncate(j.Prompt, 40))
		}
		return tw.Flush()
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete jobs, and the cached results they hold, older than --older-than",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pruneOlderThan <= 0 {
			return fmt.Errorf("--older-than must be positive, got %s", pruneOlderThan)
		}
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		n, err := engine.PruneJobs(cmd.Context(), time.Now().Add(-pruneOlderThan))
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(cmd.OutOrStdout(), map[string]int64{"removed": n})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d jobs\n", n)
		return nil
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	jobsCmd.Flags().StringVar(&jobsKind, "kind", "", "filter by kind: ask or summarize")
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "number of jobs to list")

	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "age of the oldest job to keep")
	jobsCmd.AddCommand(pruneCmd)
}
