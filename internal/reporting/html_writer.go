package reporting

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// HTMLWriter writes TestReport.html.
type HTMLWriter struct {
	tmpl *template.Template
}

// NewHTMLWriter parses the embedded report template.
func NewHTMLWriter() (*HTMLWriter, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML template: %w", err)
	}
	return &HTMLWriter{tmpl: tmpl}, nil
}

func (*HTMLWriter) Name() string { return "html" }

type htmlStep struct {
	Time    string
	Class   string
	Message string
	Image   template.URL
}

type htmlEntry struct {
	Name    string
	Attempt int
	Worker  int
	Class   string
	Result  string
	Steps   []htmlStep
}

type htmlReport struct {
	Title       string
	Environment string
	Author      string
	Browser     string
	Started     string
	Duration    string
	Passed      int
	Failed      int
	Skipped     int
	Entries     []htmlEntry
}

func newHTMLReport(r *schemas.RunReport) htmlReport {
	passed, failed, skipped := r.Counts()
	view := htmlReport{
		Title:       "Automation Test Report",
		Environment: r.Environment,
		Author:      r.Author,
		Browser:     r.Browser,
		Started:     r.StartedAt.Format("2006-01-02 15:04:05"),
		Duration:    formatDuration(r.EndedAt.Sub(r.StartedAt)),
		Passed:      passed,
		Failed:      failed,
		Skipped:     skipped,
	}
	for _, e := range r.Entries {
		he := htmlEntry{
			Name:    e.Name,
			Attempt: e.Attempt,
			Worker:  e.Worker,
			Class:   string(e.Verdict),
			Result:  verdictText(e.Verdict),
		}
		for _, s := range e.Steps {
			hs := htmlStep{
				Time:    s.Time.Format("15:04:05.000"),
				Class:   string(s.Status),
				Message: s.Message,
			}
			if a := s.Screenshot; a != nil {
				switch {
				case a.Base64 != "":
					// Trusted: the payload is our own base64 encoding.
					hs.Image = template.URL("data:image/png;base64," + a.Base64)
				case a.Path != "":
					hs.Image = template.URL(a.Path)
				}
			}
			he.Steps = append(he.Steps, hs)
		}
		view.Entries = append(view.Entries, he)
	}
	return view
}

func (w *HTMLWriter) Write(ctx context.Context, report *schemas.RunReport) error {
	var buf bytes.Buffer
	if err := w.tmpl.Execute(&buf, newHTMLReport(report)); err != nil {
		return fmt.Errorf("failed to render HTML report: %w", err)
	}
	return writeFile(report.Dir, ReportFileName, buf.Bytes())
}
