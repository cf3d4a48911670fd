// Package caption assembles the outbound post text from the source
// template and optional AI commentary.
package caption

import (
	"fmt"
	"html"
	"strings"

	"github.com/cryptoradar/radarshot/internal/radar"
)

const (
	// DefaultMaxLen matches the Telegram photo caption limit.
	DefaultMaxLen = 1024
	ellipsis      = "..."
)

// Composer renders HTML-formatted captions clamped to a maximum length.
type Composer struct {
	maxLen int
}

// New creates a Composer. maxLen <= 0 selects DefaultMaxLen.
func New(maxLen int) *Composer {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Composer{maxLen: maxLen}
}

// Compose renders the caption: bold title, optional Alpha Take block,
// optional context tag, then hashtags (AI-supplied when present, else the
// fallback template). Every externally sourced string is HTML-escaped
// before embedding. The result is clamped to the configured maximum with
// a trailing ellipsis.
func (c *Composer) Compose(title, fallbackHashtags string, comm *radar.Commentary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>", html.EscapeString(title))

	hashtags := fallbackHashtags
	if comm != nil {
		if take := strings.TrimSpace(comm.AlphaTake); take != "" {
			b.WriteString("\n\n<b>Alpha Take</b>\n")
			b.WriteString(html.EscapeString(take))
		}
		if tag := strings.TrimSpace(comm.ContextTag); tag != "" {
			fmt.Fprintf(&b, "\n\n<i>Context: %s</i>", html.EscapeString(tag))
		}
		if ai := strings.TrimSpace(comm.Hashtags); ai != "" {
			hashtags = ai
		}
	}

	if hashtags != "" {
		b.WriteString("\n\n")
		b.WriteString(html.EscapeString(hashtags))
	}

	return Clamp(b.String(), c.maxLen)
}

// Clamp truncates text to max runes, ending in an ellipsis when cut.
// Channels with tighter limits apply their own independent clamp.
func Clamp(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := max - len(ellipsis)
	if cut < 0 {
		cut = 0
	}
	return string(runes[:cut]) + ellipsis
}
