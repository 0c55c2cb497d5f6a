// Package policy implements the total priority→threshold function of
// spec section 4.6: higher urgency means fewer peers are required to
// reconstruct the record key, trading compromise resistance for a faster
// emergency read path.
package policy

import (
	"fmt"
	"strings"
)

// Priority is a qualitative urgency label driving the reconstruction
// threshold.
type Priority string

const (
	High   Priority = "HIGH"
	Medium Priority = "MEDIUM"
	Low    Priority = "LOW"
)

// Rank orders priorities for the monotonic-non-decrease invariant (spec
// section 3, invariant 5): HIGH=3 > MEDIUM=2 > LOW=1. An unrecognized
// priority ranks 0, so it never displaces a known one.
func Rank(p Priority) int {
	switch p {
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	default:
		return 0
	}
}

// Threshold returns the reconstruction threshold k for a priority. Any
// value outside {HIGH, MEDIUM, LOW} is a programmer error.
func Threshold(p Priority) (int, error) {
	switch p {
	case High:
		return 2, nil
	case Medium:
		return 3, nil
	case Low:
		return 4, nil
	default:
		return 0, fmt.Errorf("policy: invalid priority %q", p)
	}
}

// Clamp returns the higher-ranked of candidate and previous, implementing
// spec section 3 invariant 5 (priority is monotonic-non-decreasing across
// successive versions of one patient's record). A zero-value previous
// (no prior version) always yields candidate.
func Clamp(candidate, previous Priority) Priority {
	if previous == "" {
		return candidate
	}
	if Rank(candidate) < Rank(previous) {
		return previous
	}
	return candidate
}

// Normalize upper-cases and validates a raw priority string as produced
// by an external classifier, mapping anything unrecognized to Medium per
// spec section 6 ("unknown outputs map to MEDIUM").
func Normalize(raw string) Priority {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(raw))); p {
	case High, Medium, Low:
		return p
	default:
		return Medium
	}
}
