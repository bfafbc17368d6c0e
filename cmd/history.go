package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-e2e/internal/config"
	"github.com/xkilldash9x/scalpel-e2e/internal/store"
)

// runLister is the part of store.Store the history command reads.
type runLister interface {
	RecentRuns(ctx context.Context, limit int) ([]store.RunSummary, error)
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Lists recent runs recorded in the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := a.cfg.Report().DatabaseURL
			if dsn == "" {
				return fmt.Errorf("%s is not configured", config.KeyReportDatabase)
			}
			history, err := openHistory(cmd.Context(), dsn, a.logger)
			if err != nil {
				return err
			}
			defer history.Close()
			return printHistory(cmd.Context(), history, cmd.OutOrStdout(), limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func printHistory(ctx context.Context, runs runLister, w io.Writer, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", limit)
	}
	rows, err := runs.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Started", "Environment", "Browser", "Passed", "Failed", "Skipped", "Duration"})
	for _, r := range rows {
		t.AppendRow(table.Row{
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Environment,
			r.Browser,
			r.Passed,
			r.Failed,
			r.Skipped,
			r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	t.Render()
	return nil
}
