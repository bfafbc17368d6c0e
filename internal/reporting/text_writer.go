package reporting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
)

// TextWriter writes summary.txt.
type TextWriter struct{}

func (*TextWriter) Name() string { return "text" }

func (*TextWriter) Write(ctx context.Context, report *schemas.RunReport) error {
	var buf bytes.Buffer
	if err := RenderSummary(&buf, report); err != nil {
		return err
	}
	return writeFile(report.Dir, SummaryFileName, buf.Bytes())
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

func verdictText(v schemas.Verdict) string {
	switch v {
	case schemas.VerdictPassed:
		return "PASS"
	case schemas.VerdictFailed:
		return "FAIL"
	case schemas.VerdictSkipped:
		return "SKIP"
	default:
		return "INCOMPLETE"
	}
}

// RenderSummary writes a plain table of every entry followed by the totals.
func RenderSummary(w io.Writer, report *schemas.RunReport) error {
	if report == nil {
		return fmt.Errorf("no report to render")
	}

	if _, err := fmt.Fprintf(w, "Run %s | Environment: %s | Browser: %s\n", report.RunID, report.Environment, report.Browser); err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	style := table.StyleLight
	style.Format.Footer = text.FormatDefault
	t.SetStyle(style)
	t.AppendHeader(table.Row{"#", "Test", "Attempt", "Worker", "Result", "Steps", "Duration"})
	for i, e := range report.Entries {
		t.AppendRow(table.Row{
			i + 1,
			e.Name,
			e.Attempt,
			e.Worker,
			verdictText(e.Verdict),
			len(e.Steps),
			formatDuration(e.EndedAt.Sub(e.StartedAt)),
		})
	}

	passed, failed, skipped := report.Counts()
	t.AppendFooter(table.Row{"", "Total", "", "", fmt.Sprintf("%d passed, %d failed, %d skipped", passed, failed, skipped), "", formatDuration(report.EndedAt.Sub(report.StartedAt))})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	t.Render()
	return nil
}
