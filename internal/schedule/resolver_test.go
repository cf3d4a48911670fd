package schedule

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cryptoradar/radarshot/internal/radar"
)

func mskTime(t *testing.T, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	return time.Date(2024, time.March, 12, hour, minute, 0, 0, loc)
}

func newResolver(t *testing.T, slots []radar.ScheduleSlot, signal SignalFunc) *Resolver {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	r, err := New(slots, loc, rand.New(rand.NewSource(42)), signal, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestResolveFixedSlot(t *testing.T) {
	t.Parallel()

	r := newResolver(t, []radar.ScheduleSlot{
		{Name: "morning", Start: 9, End: 10, Candidates: []string{"fear_greed"}, Policy: radar.PolicyFixed},
	}, nil)

	id, ok := r.Resolve(mskTime(t, 9, 30))
	require.True(t, ok)
	require.Equal(t, "fear_greed", id)

	_, ok = r.Resolve(mskTime(t, 11, 0))
	require.False(t, ok)
}

func TestResolveHalfOpenWindow(t *testing.T) {
	t.Parallel()

	r := newResolver(t, []radar.ScheduleSlot{
		{Name: "daily", Start: 16.5, End: 17.0, Candidates: []string{"a"}, Policy: radar.PolicyFixed},
	}, nil)

	// 16:30 is inside [16.5, 17.0).
	id, ok := r.Resolve(mskTime(t, 16, 30))
	require.True(t, ok)
	require.Equal(t, "a", id)

	// 17:00 is outside the half-open interval.
	_, ok = r.Resolve(mskTime(t, 17, 0))
	require.False(t, ok)

	// 16:29 is before the window opens.
	_, ok = r.Resolve(mskTime(t, 16, 29))
	require.False(t, ok)
}

func TestResolveOverlappingSlotsDeclarationOrderWins(t *testing.T) {
	t.Parallel()

	slots := []radar.ScheduleSlot{
		{Name: "first", Start: 10, End: 12, Candidates: []string{"first_source"}, Policy: radar.PolicyFixed},
		{Name: "second", Start: 10, End: 12, Candidates: []string{"second_source"}, Policy: radar.PolicyFixed},
	}
	r := newResolver(t, slots, nil)

	for minute := 0; minute < 60; minute += 7 {
		id, ok := r.Resolve(mskTime(t, 11, minute))
		require.True(t, ok)
		require.Equal(t, "first_source", id, "overlap must resolve to the first declared slot")
	}
}

func TestResolveRandomPicksAmongCandidates(t *testing.T) {
	t.Parallel()

	candidates := []string{"a", "b", "c"}
	r := newResolver(t, []radar.ScheduleSlot{
		{Name: "daily", Start: 16.5, End: 17.0, Candidates: candidates, Policy: radar.PolicyRandom},
	}, nil)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, ok := r.Resolve(mskTime(t, 16, 45))
		require.True(t, ok)
		require.Contains(t, candidates, id)
		seen[id] = true
	}
	// A seeded source over 100 draws reaches every candidate.
	require.Len(t, seen, 3)
}

func TestResolveConditionalWithoutSignalIsInert(t *testing.T) {
	t.Parallel()

	r := newResolver(t, []radar.ScheduleSlot{
		{Name: "anomaly", Start: 0, End: 24, Candidates: []string{"heatmap"}, Policy: radar.PolicyConditional},
	}, nil)

	_, ok := r.Resolve(mskTime(t, 12, 0))
	require.False(t, ok)
}

func TestResolveConditionalDefersToSignal(t *testing.T) {
	t.Parallel()

	signal := func(candidates []string) (string, bool) {
		require.Equal(t, []string{"heatmap"}, candidates)
		return "heatmap", true
	}
	r := newResolver(t, []radar.ScheduleSlot{
		{Name: "anomaly", Start: 0, End: 24, Candidates: []string{"heatmap"}, Policy: radar.PolicyConditional},
	}, signal)

	id, ok := r.Resolve(mskTime(t, 12, 0))
	require.True(t, ok)
	require.Equal(t, "heatmap", id)
}

func TestResolveConvertsToReferenceTimezone(t *testing.T) {
	t.Parallel()

	r := newResolver(t, []radar.ScheduleSlot{
		{Name: "evening", Start: 19, End: 20, Candidates: []string{"unlocks"}, Policy: radar.PolicyFixed},
	}, nil)

	// 16:30 UTC is 19:30 MSK.
	id, ok := r.Resolve(time.Date(2024, time.March, 12, 16, 30, 0, 0, time.UTC))
	require.True(t, ok)
	require.Equal(t, "unlocks", id)
}
