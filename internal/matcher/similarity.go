package matcher

import (
	"strings"
	"unicode/utf8"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// DescriptionMeasure names one of the fixed description similarity measures
type DescriptionMeasure int

const (
	// MeasureSequence is an edit-distance ratio over the whole strings
	MeasureSequence DescriptionMeasure = iota
	// MeasureJaccard is token set intersection over union
	MeasureJaccard
	// MeasureContainment scores one string containing the other, penalized by length
	MeasureContainment
	// MeasureWordOverlap is the share of the shorter token set found in the longer one
	MeasureWordOverlap
)

// String returns the string representation of DescriptionMeasure
func (m DescriptionMeasure) String() string {
	switch m {
	case MeasureSequence:
		return "sequence"
	case MeasureJaccard:
		return "jaccard"
	case MeasureContainment:
		return "containment"
	case MeasureWordOverlap:
		return "word_overlap"
	default:
		return "unknown"
	}
}

// descriptionMeasures is reduced by max in DescriptionScore. The order is
// the tie-break when two measures give the same score.
var descriptionMeasures = [...]struct {
	measure DescriptionMeasure
	fn      func(a, b string) float64
}{
	{MeasureSequence, SequenceRatio},
	{MeasureJaccard, TokenJaccard},
	{MeasureContainment, Containment},
	{MeasureWordOverlap, WordOverlap},
}

// DescriptionScore compares two normalized descriptions with every measure
// and returns the best score, clipped to [0,1], and the measure that gave it.
// Two empty descriptions carry no evidence and score zero.
func DescriptionScore(a, b string) (float64, DescriptionMeasure) {
	if a == "" && b == "" {
		return 0, MeasureSequence
	}

	best, bestMeasure := 0.0, MeasureSequence
	for _, m := range descriptionMeasures {
		if score := m.fn(a, b); score > best {
			best, bestMeasure = score, m.measure
		}
	}
	return clip01(best), bestMeasure
}

// SequenceRatio is (len(a)+len(b)-distance)/(len(a)+len(b)) where distance
// counts a substitution as a deletion plus an insertion
func SequenceRatio(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	sum := len(ra) + len(rb)
	distance := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions)
	return float64(sum-distance) / float64(sum)
}

// TokenJaccard is |tokens(a) ∩ tokens(b)| / |tokens(a) ∪ tokens(b)| over
// whitespace-separated tokens
func TokenJaccard(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

// Containment is min(len)/max(len) when one string contains the other, else 0
func Containment(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	short, long := a, b
	if la > lb {
		short, long = b, a
		la, lb = lb, la
	}
	if !strings.Contains(long, short) {
		return 0
	}
	return float64(la) / float64(lb)
}

// WordOverlap is the fraction of the shorter description's tokens that also
// appear in the longer description
func WordOverlap(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	short, long := ta, tb
	if len(ta) > len(tb) {
		short, long = tb, ta
	}

	found := 0
	for tok := range short {
		if _, ok := long[tok]; ok {
			found++
		}
	}
	return float64(found) / float64(len(short))
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func clip01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
