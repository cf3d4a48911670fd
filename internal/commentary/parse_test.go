package commentary

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStructuredResponse(t *testing.T) {
	t.Parallel()

	content := `ALPHA_TAKE: Prolonged fear readings typically coincide with reduced leverage.
CONTEXT_TAG: Defensive positioning
HASHTAGS: #CapitalPreservation #LowLeverage #FearZone`

	c := Parse(content)
	require.Equal(t, "Prolonged fear readings typically coincide with reduced leverage.", c.AlphaTake)
	require.Equal(t, "Defensive positioning", c.ContextTag)
	require.Equal(t, "#CapitalPreservation #LowLeverage #FearZone", c.Hashtags)
}

func TestParseToleratesLeadingWhitespaceAndExtraLines(t *testing.T) {
	t.Parallel()

	content := `Here is the analysis you asked for.

  ALPHA_TAKE: Flows remain mixed.
  CONTEXT_TAG: Short-term cautious`

	c := Parse(content)
	require.Equal(t, "Flows remain mixed.", c.AlphaTake)
	require.Equal(t, "Short-term cautious", c.ContextTag)
	require.Empty(t, c.Hashtags)
}

func TestParseMissingMarkerFallsBackToWholeResponse(t *testing.T) {
	t.Parallel()

	content := "The market looks range-bound with thin participation."
	c := Parse(content)
	require.Equal(t, content, c.AlphaTake)
	require.Empty(t, c.ContextTag)
	require.Empty(t, c.Hashtags)
}

func TestParseEmptyResponse(t *testing.T) {
	t.Parallel()

	c := Parse("   \n  ")
	require.Empty(t, c.AlphaTake)
}
