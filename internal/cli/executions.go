package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/watzon/alyx-worker/internal/database"
	"github.com/watzon/alyx-worker/internal/executions"
)

var (
	executionsFunction string
	executionsStatus   string
	executionsLimit    int
	executionsOlder    time.Duration
)

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "Inspect the invocation journal",
	Long: `Inspect the invocations recorded by a worker started with the journal
enabled (journal.enabled or start --journal).

Examples:
  alyx-worker executions list --function hello --status failed
  alyx-worker executions prune --older-than 24h`,
}

var executionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent invocations",
	Args:  cobra.NoArgs,
	RunE:  runExecutionsList,
}

var executionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete finished invocations older than the retention period",
	Args:  cobra.NoArgs,
	RunE:  runExecutionsPrune,
}

func init() {
	executionsListCmd.Flags().StringVarP(&executionsFunction, "function", "f", "", "Only show invocations of this function name")
	executionsListCmd.Flags().StringVarP(&executionsStatus, "status", "s", "", "Only show invocations with this status (running, success, failed)")
	executionsListCmd.Flags().IntVarP(&executionsLimit, "limit", "n", 20, "Maximum number of invocations to show")

	executionsPruneCmd.Flags().DurationVar(&executionsOlder, "older-than", 0, "Age cutoff (default: journal.retention)")

	executionsCmd.AddCommand(executionsListCmd)
	executionsCmd.AddCommand(executionsPruneCmd)

	rootCmd.AddCommand(executionsCmd)
}

func openJournalStore() (*executions.Store, *database.DB, error) {
	cfg := currentConfig()

	db, err := database.Open(&cfg.Journal)
	if err != nil {
		return nil, nil, fmt.Errorf("opening journal: %w", err)
	}
	return executions.NewStore(db), db, nil
}

func runExecutionsList(cmd *cobra.Command, args []string) error {
	store, db, err := openJournalStore()
	if err != nil {
		return err
	}
	defer db.Close()

	logs, err := store.List(cmd.Context(), executions.ListFilter{
		FunctionName: executionsFunction,
		Status:       executions.ExecutionStatus(executionsStatus),
	}, executionsLimit, 0)
	if err != nil {
		return err
	}

	printExecutions(cmd.OutOrStdout(), logs)
	return nil
}

func printExecutions(out io.Writer, logs []*executions.ExecutionLog) {
	if len(logs) == 0 {
		fmt.Fprintln(out, "No invocations recorded.")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INVOCATION\tFUNCTION\tMODE\tSTATUS\tSTARTED\tDURATION\tLOGS\tERROR")
	for _, l := range logs {
		duration := "-"
		if l.CompletedAt != nil {
			duration = (time.Duration(l.DurationMs) * time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			l.ID,
			l.FunctionName,
			l.Mode,
			l.Status,
			l.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
			l.LogCount,
			truncate(l.Error, 60),
		)
	}
	_ = tw.Flush()
}

func runExecutionsPrune(cmd *cobra.Command, args []string) error {
	store, db, err := openJournalStore()
	if err != nil {
		return err
	}
	defer db.Close()

	older := executionsOlder
	if older <= 0 {
		older = currentConfig().Journal.Retention
	}
	if older <= 0 {
		older = executions.DefaultRetention
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	n, err := store.DeleteOlderThan(ctx, older)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d invocation(s) older than %s\n", n, older)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
