package domain

import "github.com/jonboulle/clockwork"

// clock is a package-level time source so tests can freeze time via SetClock.
// Production code uses the real clock; tests inject a fake for deterministic output.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for build timestamps. Pass nil to reset
// to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// NewCleanDataset assembles a dataset and stamps it with the injected clock.
func NewCleanDataset(records []ChargePoint, fingerprint string, stats Stats) *CleanDataset {
	return &CleanDataset{
		Records:     records,
		Fingerprint: fingerprint,
		BuiltAt:     clock.Now().UTC(),
		Stats:       stats,
	}
}
