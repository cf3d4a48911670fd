package radar

import (
	"context"
	"time"
)

// Resolver maps wall-clock time to zero-or-one eligible source.
type Resolver interface {
	Resolve(now time.Time) (sourceID string, ok bool)
}

// Capturer produces a normalized screenshot artifact for a source.
type Capturer interface {
	Capture(ctx context.Context, src SourceDescriptor) (CaptureResult, error)
}

// Publisher pushes an artifact plus caption to one destination channel.
// Channels are independent: one failing must not stop the others.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, artifactPath, caption string) error
}

// HistoryStore persists the last-successful-publish timestamp per source.
type HistoryStore interface {
	LastPublished(ctx context.Context, sourceID string) (time.Time, bool, error)
	Record(ctx context.Context, pub Publication) error
}

// Commentator generates optional AI commentary for a captured image.
type Commentator interface {
	Commentary(ctx context.Context, src SourceDescriptor, imagePath string) (*Commentary, error)
}

// Composer assembles the outbound caption text.
type Composer interface {
	Compose(title, fallbackHashtags string, c *Commentary) string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
