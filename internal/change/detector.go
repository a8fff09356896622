// Package change decides whether the watched region differs from the baseline.
package change

import "github.com/JakeFAU/pagewatch/internal/state"

// Decision is the outcome of comparing a fingerprint with the baseline.
type Decision struct {
	Changed  bool
	Current  string
	Previous string
}

// FirstRun reports whether there was no baseline to compare against.
func (d Decision) FirstRun() bool {
	return d.Previous == ""
}

// Detect compares current with the baseline fingerprint. A nil baseline never
// equals anything. Only the region fingerprint takes part; the stored message
// hash is ignored.
func Detect(current string, baseline *state.Record) Decision {
	d := Decision{Current: current}
	if baseline == nil {
		d.Changed = true
		return d
	}
	d.Previous = baseline.Fingerprint
	d.Changed = baseline.Fingerprint != current
	return d
}
