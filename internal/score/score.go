// Package score implements the time-decayed popularity ranking used to
// order events and stories.
package score

import (
	"math"
	"time"
)

// DefaultDecaySeconds controls how fast recency dominates magnitude: one
// order of magnitude of raw score buys 45000 seconds (12.5 hours) of age.
// It is a tuning parameter, configurable alongside the reference epoch.
const DefaultDecaySeconds = 45000

// Model computes the logarithmic hot-ranking score. Epoch is the fixed
// reference instant scores decay against; DecaySeconds the decay rate.
type Model struct {
	Epoch        time.Time
	DecaySeconds float64
}

// NewModel creates a scoring model. A zero decay falls back to the
// default rate.
func NewModel(epoch time.Time, decaySeconds float64) Model {
	if decaySeconds == 0 {
		decaySeconds = DefaultDecaySeconds
	}
	return Model{Epoch: epoch, DecaySeconds: decaySeconds}
}

// Score ranks a cluster from its raw member-score sum and last update
// time: log10 of the magnitude plus a signed recency term, rounded to 7
// decimals. For a fixed positive raw score, later updates always score
// higher; for a fixed update time, larger raw scores always score higher.
func (m Model) Score(rawScore float64, updatedAt time.Time) float64 {
	order := math.Log10(math.Max(math.Abs(rawScore), 1))

	var sign float64
	switch {
	case rawScore > 0:
		sign = 1
	case rawScore < 0:
		sign = -1
	}

	seconds := updatedAt.Sub(m.Epoch).Seconds()
	return round7(order + sign*seconds/m.DecaySeconds)
}

func round7(x float64) float64 {
	return math.Round(x*1e7) / 1e7
}
