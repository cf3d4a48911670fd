package radar

// Status classifies how a pipeline run ended.
type Status int

// Run statuses. A skip is an intentional no-op, not a failure.
const (
	StatusPublished Status = iota
	StatusSkipped
	StatusFailed
)

// String implements fmt.Stringer for log fields.
func (s Status) String() string {
	switch s {
	case StatusPublished:
		return "published"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the tri-state result of a single pipeline run.
type Outcome struct {
	Status   Status
	Reason   string // set for StatusSkipped
	Err      error  // set for StatusFailed
	Source   string
	Channels map[string]bool // per-channel success flags when published
}

// Skipped builds a skip outcome with a human-readable reason.
func Skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

// Failed builds a failure outcome.
func Failed(err error) Outcome {
	return Outcome{Status: StatusFailed, Err: err}
}
