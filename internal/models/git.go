package models

import "time"

// Outcome classifies a single git invocation.
type Outcome int

// Git invocation outcomes.
const (
	OutcomeSuccess      Outcome = iota
	OutcomeContention           // lock held by another process, or timeout
	OutcomeLocalChanges         // uncommitted local change blocks the merge
	OutcomeDivergence           // merge conflict or unrelated histories
	OutcomeRejected             // push rejected, remote has advanced
	OutcomeFailure              // anything else
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeContention:
		return "contention"
	case OutcomeLocalChanges:
		return "local_changes"
	case OutcomeDivergence:
		return "divergence"
	case OutcomeRejected:
		return "rejected"
	default:
		return "failure"
	}
}

// GitResult holds the result of a git invocation.
type GitResult struct {
	Args     []string
	Outcome  Outcome
	Output   string
	Attempts int
	Duration time.Duration
	Error    error // nil on success
}

// OK reports whether the invocation succeeded.
func (r *GitResult) OK() bool {
	return r != nil && r.Outcome == OutcomeSuccess
}

// State is a step of the reconciliation protocol.
type State string

// Protocol states.
const (
	StateStart      State = "start"
	StateConfigured State = "configured"
	StateSynced     State = "synced"
	StateDegraded   State = "degraded"
	StateStaged     State = "staged"
	StateCommitted  State = "committed"
	StateSkipped    State = "skipped"
	StatePublished  State = "published"
	StateFailed     State = "failed"
)

// RunSummary is the outcome of one agent run.
type RunSummary struct {
	RunID        string        `yaml:"run_id"`
	Kind         Kind          `yaml:"kind"`
	Date         string        `yaml:"date"`
	SourceFile   string        `yaml:"source_file"`
	ArchivedFile string        `yaml:"archived_file,omitempty"`
	Branch       string        `yaml:"branch,omitempty"`
	SyncState    State         `yaml:"sync_state,omitempty"`
	CommitState  State         `yaml:"commit_state,omitempty"`
	Status       State         `yaml:"status"`
	Commit       string        `yaml:"commit,omitempty"`
	FailedStep   string        `yaml:"failed_step,omitempty"`
	Error        string        `yaml:"error,omitempty"`
	StartTime    time.Time     `yaml:"start_time"`
	Duration     time.Duration `yaml:"duration"`
}

// Success reports whether the run reached a successful end state.
func (s *RunSummary) Success() bool {
	return s.Status == StatePublished || s.Status == StateSkipped
}
