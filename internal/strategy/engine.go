package strategy

import (
	"errors"
	"fmt"

	"YieldKeeper/internal/model"
)

// ErrNoStrategiesConfigured means the snapshot is empty, which can only come
// from an empty configured strategy set.
var ErrNoStrategiesConfigured = errors.New("no strategies configured")

// UnknownRecommendationError is returned when the advisory service names a
// strategy that is not in the snapshot.
type UnknownRecommendationError struct {
	Name string
}

func (e *UnknownRecommendationError) Error() string {
	return fmt.Sprintf("advisory recommended unknown strategy %q", e.Name)
}

// Decision is the validated choice for one cycle.
type Decision struct {
	Strategy model.Strategy
	Source   model.Source
	// Reason is the advisory reason when Source is SourceAdvisory.
	Reason string
	// Err explains why the advisory choice was not used, or why there is no
	// choice at all. Nil when Source is SourceAdvisory.
	Err error
}

// HasChoice reports whether the decision names a strategy to execute.
func (d Decision) HasChoice() bool {
	return d.Source != model.SourceNone
}

// Resolve reconciles the advisory result with the snapshot. An advisory
// error or an unknown name falls back to the highest APY; the first strategy
// in configuration order wins ties. A valid name is accepted as given.
func Resolve(snap *model.Snapshot, rec *model.Recommendation, advisoryErr error) Decision {
	if snap.Len() == 0 {
		return Decision{Source: model.SourceNone, Err: ErrNoStrategiesConfigured}
	}

	if advisoryErr == nil && rec == nil {
		advisoryErr = errors.New("advisory returned no recommendation")
	}
	if advisoryErr != nil {
		return fallback(snap, advisoryErr)
	}

	chosen, ok := snap.Find(rec.Strategy)
	if !ok {
		return fallback(snap, &UnknownRecommendationError{Name: rec.Strategy})
	}
	return Decision{Strategy: chosen, Source: model.SourceAdvisory, Reason: rec.Reason}
}

// HighestAPY returns the strategy with the largest APY, first one on ties.
// ok is false for an empty snapshot.
func HighestAPY(snap *model.Snapshot) (best model.Strategy, ok bool) {
	if snap.Len() == 0 {
		return model.Strategy{}, false
	}
	for i, st := range snap.Strategies {
		if i == 0 || st.APY.GreaterThan(best.APY) {
			best = st
		}
	}
	return best, true
}

func fallback(snap *model.Snapshot, cause error) Decision {
	best, _ := HighestAPY(snap)
	return Decision{Strategy: best, Source: model.SourceFallback, Err: cause}
}
