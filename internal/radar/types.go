// Package radar defines core types shared across the capture-and-publish
// pipeline and implements the run orchestrator.
package radar

import "time"

// SelectionPolicy decides how a schedule slot picks among its candidates.
type SelectionPolicy string

// Selection policies understood by the schedule resolver.
const (
	PolicyFixed       SelectionPolicy = "fixed"
	PolicyRandom      SelectionPolicy = "random"
	PolicyConditional SelectionPolicy = "conditional"
)

// CropInsets are fixed pixel insets removed from each edge of a capture.
type CropInsets struct {
	Top    int
	Right  int
	Bottom int
	Left   int
}

// SourceDescriptor is the immutable per-source capture configuration.
// It is built once from config at startup and never mutated afterwards.
type SourceDescriptor struct {
	ID       string
	Name     string
	URL      string
	Selector string // empty = full viewport
	WaitFor  string // optional readiness selector

	ExtraDelay   time.Duration
	Crop         *CropInsets
	ScalePercent int // optional CSS transform scale applied to the target element
	PadToWidth   int // 0 disables the minimum-width pad
	HidePatterns []string
	FullPage     bool

	Enabled        bool
	TelegramTitle  string
	Hashtags       string
	SkipCommentary bool
}

// ScheduleSlot is a half-open [Start, End) time window in fractional hours
// of the reference timezone, with candidate sources and a selection policy.
// Slots are evaluated in declaration order; the first hit wins.
type ScheduleSlot struct {
	Name       string
	Start      float64
	End        float64
	Candidates []string
	Policy     SelectionPolicy
}

// CaptureResult is a normalized screenshot ready for publication. The
// backing file is owned by the orchestrator and removed once every publish
// attempt has completed.
type CaptureResult struct {
	SourceID   string
	SourceName string
	Path       string
	CapturedAt time.Time
}

// Commentary is the parsed AI enrichment attached to a caption.
type Commentary struct {
	AlphaTake  string
	ContextTag string
	Hashtags   string
}

// Publication records a completed publish attempt for history tracking.
type Publication struct {
	Source      string          `json:"source"`
	Name        string          `json:"name"`
	PublishedAt time.Time       `json:"published_at"`
	Channels    map[string]bool `json:"channels"`
}
