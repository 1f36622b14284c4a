package pgetl

// RunState is the coarse state of one pipeline run.
//
//	PENDING -> EXTRACTING -> LOADING -> DONE
//
// Any state except DONE may move to FAILED, which is terminal.
type RunState int

const (
	RunPending RunState = iota
	RunExtracting
	RunLoading
	RunDone
	RunFailed
)

func (s RunState) String() string {
	switch s {
	case RunPending:
		return "PENDING"
	case RunExtracting:
		return "EXTRACTING"
	case RunLoading:
		return "LOADING"
	case RunDone:
		return "DONE"
	case RunFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s RunState) IsTerminal() bool {
	return s == RunDone || s == RunFailed
}

// CanTransition reports whether moving from s to next is allowed.
func (s RunState) CanTransition(next RunState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == RunFailed {
		return true
	}
	return next == s+1
}
