// Package schedule maps wall-clock time to the source eligible for
// publication, if any.
package schedule

import (
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/cryptoradar/radarshot/internal/radar"
)

// SignalFunc is an external predicate consulted by conditional slots, for
// example an anomaly detector. It returns the source to publish and whether
// the signal fired.
type SignalFunc func(candidates []string) (string, bool)

// Resolver scans configured slots in declaration order and returns the
// first whose [start, end) window contains the current fractional hour in
// the reference timezone. Overlapping windows resolve by declaration order.
type Resolver struct {
	slots  []radar.ScheduleSlot
	loc    *time.Location
	rng    *rand.Rand
	signal SignalFunc
	logger *zap.Logger
}

// New constructs a Resolver. rng must be non-nil so tests can inject a
// seeded source; signal may be nil, which leaves conditional slots inert.
func New(slots []radar.ScheduleSlot, loc *time.Location, rng *rand.Rand, signal SignalFunc, logger *zap.Logger) (*Resolver, error) {
	if loc == nil {
		return nil, fmt.Errorf("reference timezone is required")
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		slots:  slots,
		loc:    loc,
		rng:    rng,
		signal: signal,
		logger: logger,
	}, nil
}

// Resolve returns the source scheduled for now, or ok=false when nothing
// is due. "Nothing due" is a normal outcome, not an error.
func (r *Resolver) Resolve(now time.Time) (string, bool) {
	local := now.In(r.loc)
	frac := fractionalHour(local)

	for _, slot := range r.slots {
		if frac < slot.Start || frac >= slot.End {
			continue
		}
		return r.pick(slot)
	}
	return "", false
}

func (r *Resolver) pick(slot radar.ScheduleSlot) (string, bool) {
	switch slot.Policy {
	case radar.PolicyFixed:
		if len(slot.Candidates) == 0 {
			return "", false
		}
		return slot.Candidates[0], true
	case radar.PolicyRandom:
		if len(slot.Candidates) == 0 {
			return "", false
		}
		return slot.Candidates[r.rng.Intn(len(slot.Candidates))], true
	case radar.PolicyConditional:
		// Without an external signal a conditional slot never selects.
		// This is a deliberate no-op, not an error.
		if r.signal == nil {
			r.logger.Debug("conditional slot has no signal configured",
				zap.String("slot", slot.Name))
			return "", false
		}
		return r.signal(slot.Candidates)
	default:
		r.logger.Warn("unknown selection policy",
			zap.String("slot", slot.Name),
			zap.String("policy", string(slot.Policy)))
		return "", false
	}
}

func fractionalHour(t time.Time) float64 {
	return float64(t.Hour()) +
		float64(t.Minute())/60 +
		float64(t.Second())/3600
}
