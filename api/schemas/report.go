package schemas

import "time"

// -- Report Schemas --

// StepStatus is the status of a single report step.
type StepStatus string

const (
	StatusPass StepStatus = "pass"
	StatusFail StepStatus = "fail"
	StatusSkip StepStatus = "skip"
	StatusInfo StepStatus = "info"
)

// Verdict is the terminal outcome of one test attempt.
type Verdict string

const (
	VerdictPending Verdict = ""
	VerdictPassed  Verdict = "passed"
	VerdictFailed  Verdict = "failed"
	VerdictSkipped Verdict = "skipped"
)

// Attachment is a screenshot attached to a step. Exactly one of Base64 or Path is set.
type Attachment struct {
	Base64 string `json:"base64,omitempty"`
	Path   string `json:"path,omitempty"`
}

// StepRecord is one immutable line in a report entry.
type StepRecord struct {
	Time       time.Time   `json:"time"`
	Status     StepStatus  `json:"status"`
	Message    string      `json:"message"`
	Screenshot *Attachment `json:"screenshot,omitempty"`
}

// EntryReport is the flushed form of a single test attempt.
type EntryReport struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Worker    int          `json:"worker"`
	Attempt   int          `json:"attempt"`
	Verdict   Verdict      `json:"verdict"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at"`
	Steps     []StepRecord `json:"steps"`
}

// RunReport is the snapshot handed to report writers when the sink is flushed.
type RunReport struct {
	RunID       string        `json:"run_id"`
	Dir         string        `json:"dir"`
	Environment string        `json:"environment"`
	Author      string        `json:"author,omitempty"`
	Browser     string        `json:"browser"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
	Entries     []EntryReport `json:"entries"`
}

// Counts tallies the entry verdicts of the run.
func (r *RunReport) Counts() (passed, failed, skipped int) {
	for _, e := range r.Entries {
		switch e.Verdict {
		case VerdictPassed:
			passed++
		case VerdictFailed:
			failed++
		case VerdictSkipped:
			skipped++
		}
	}
	return passed, failed, skipped
}
