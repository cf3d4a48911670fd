package commentary

import (
	"strings"

	"github.com/cryptoradar/radarshot/internal/radar"
)

// Line-prefix markers the model is instructed to emit.
const (
	markerAlphaTake  = "ALPHA_TAKE:"
	markerContextTag = "CONTEXT_TAG:"
	markerHashtags   = "HASHTAGS:"
)

// Parse extracts the structured fields from a model response. When the
// ALPHA_TAKE marker is absent the entire response becomes the take, so a
// model that ignores the format still produces a usable caption.
func Parse(content string) radar.Commentary {
	var c radar.Commentary
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, markerAlphaTake):
			c.AlphaTake = strings.TrimSpace(strings.TrimPrefix(line, markerAlphaTake))
		case strings.HasPrefix(line, markerContextTag):
			c.ContextTag = strings.TrimSpace(strings.TrimPrefix(line, markerContextTag))
		case strings.HasPrefix(line, markerHashtags):
			c.Hashtags = strings.TrimSpace(strings.TrimPrefix(line, markerHashtags))
		}
	}
	if c.AlphaTake == "" {
		c.AlphaTake = strings.TrimSpace(content)
	}
	return c
}
