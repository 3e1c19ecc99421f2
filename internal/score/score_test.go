package score

import (
	"math"
	"testing"
	"time"
)

var epoch = time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)

func TestScoreMonotoneInTime(t *testing.T) {
	m := NewModel(epoch, DefaultDecaySeconds)

	at := epoch.Add(1000 * time.Hour)
	for _, raw := range []float64{0.5, 1, 10, 12345} {
		earlier := m.Score(raw, at)
		later := m.Score(raw, at.Add(time.Hour))
		if later <= earlier {
			t.Errorf("raw=%v: later update %v should rank above earlier %v", raw, later, earlier)
		}
	}
}

func TestScoreMonotoneInRawScore(t *testing.T) {
	m := NewModel(epoch, DefaultDecaySeconds)

	at := epoch.Add(500 * time.Hour)
	prev := m.Score(1, at)
	for _, raw := range []float64{10, 100, 5000} {
		cur := m.Score(raw, at)
		if cur <= prev {
			t.Errorf("raw=%v score %v should rank above %v", raw, cur, prev)
		}
		prev = cur
	}
}

// One order of magnitude of raw score buys exactly DecaySeconds of age.
func TestScoreDecayTradeoff(t *testing.T) {
	m := NewModel(epoch, DefaultDecaySeconds)

	at := epoch.Add(2000 * time.Hour)
	older := m.Score(100, at)
	newer := m.Score(10, at.Add(DefaultDecaySeconds*time.Second))
	if math.Abs(older-newer) > 2e-7 {
		t.Errorf("tenfold raw score should equal one decay period: %v vs %v", older, newer)
	}
}

func TestScoreSmallMagnitudes(t *testing.T) {
	m := NewModel(epoch, DefaultDecaySeconds)
	at := epoch.Add(100 * time.Hour)

	// |raw| below 1 clamps the magnitude term to log10(1) = 0.
	if a, b := m.Score(0.2, at), m.Score(1, at); a != b {
		t.Errorf("sub-unit raw scores should share the magnitude term: %v vs %v", a, b)
	}

	// Zero raw score has no recency sign, so it ranks below any positive
	// raw score at the same instant.
	if z, p := m.Score(0, at), m.Score(1, at); z >= p {
		t.Errorf("zero raw %v should rank below positive raw %v", z, p)
	}
}

func TestScoreRoundedToSevenDecimals(t *testing.T) {
	m := NewModel(epoch, DefaultDecaySeconds)
	got := m.Score(3, epoch.Add(12345*time.Second))

	scaled := got * 1e7
	if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
		t.Errorf("score %v not rounded to 7 decimals", got)
	}
}

func TestNewModelDefaultDecay(t *testing.T) {
	m := NewModel(epoch, 0)
	if m.DecaySeconds != DefaultDecaySeconds {
		t.Errorf("DecaySeconds = %v, want default %v", m.DecaySeconds, DefaultDecaySeconds)
	}
}
