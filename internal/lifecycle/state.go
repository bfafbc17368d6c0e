package lifecycle

import "fmt"

// State is a step in the life of one test attempt.
type State int

const (
	NotStarted State = iota
	ContextAcquired
	ReportBound
	Running
	Passed
	Failed
	Skipped
	Released
)

var stateNames = [...]string{
	NotStarted:      "not_started",
	ContextAcquired: "context_acquired",
	ReportBound:     "report_bound",
	Running:         "running",
	Passed:          "passed",
	Failed:          "failed",
	Skipped:         "skipped",
	Released:        "released",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// transitions lists the legal successors of each state. An attempt whose
// session could not be acquired goes straight from NotStarted to Failed.
var transitions = map[State][]State{
	NotStarted:      {ContextAcquired, Failed},
	ContextAcquired: {ReportBound, Released},
	ReportBound:     {Running},
	Running:         {Passed, Failed, Skipped},
	Passed:          {Released},
	Failed:          {Released},
	Skipped:         {Released},
}

// attemptState tracks one attempt through its states.
type attemptState struct {
	current State
}

// advance moves to next, rejecting transitions the lifecycle does not allow.
func (a *attemptState) advance(next State) error {
	for _, allowed := range transitions[a.current] {
		if allowed == next {
			a.current = next
			return nil
		}
	}
	return fmt.Errorf("illegal lifecycle transition %s -> %s", a.current, next)
}
