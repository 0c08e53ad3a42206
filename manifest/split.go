package manifest

import (
	"strings"

	"github.com/sugarme/myops/dataerr"
)

// TrainRatio is the fraction of manifest rows, in original order, that form
// the train subset when splitting.
const TrainRatio = 0.85

// Phase tags a dataset as serving the train or the validation subset.
type Phase string

const (
	Train Phase = "train"
	Valid Phase = "valid"
)

// ParsePhase parses "train" or "valid" (case insensitive).
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

// Validate returns an ErrConfig error for an unknown phase.
func (p Phase) Validate() error {
	switch p {
	case Train, Valid:
		return nil
	default:
		return dataerr.Configf("unknown phase %q, expected %q or %q", string(p), Train, Valid)
	}
}

// SplitIndex returns the first validation row of a manifest of n rows:
// floor(0.85 * n).
func SplitIndex(n int) int {
	return int(TrainRatio * float64(n))
}

// Split returns the records a dataset of the given phase serves.
//
// The cut point is computed once from the length of the full manifest, so
// the train and valid subsets of the same manifest are disjoint and, in
// order, concatenate back to it. Without split every record is returned
// whatever the phase. The result never aliases records.
func Split(records []Record, split bool, phase Phase) []Record {
	n := len(records)
	start, end := 0, n
	if split {
		cut := SplitIndex(n)
		switch phase {
		case Train:
			end = cut
		case Valid:
			start = cut
		}
	}

	out := make([]Record, end-start)
	copy(out, records[start:end])
	return out
}
