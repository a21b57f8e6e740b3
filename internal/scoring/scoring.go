// Package scoring holds the score and similarity functions shared by every
// aggregation path. All functions return a neutral value instead of failing
// on empty or degenerate input.
package scoring

import (
	"math"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pavelanni/tutorstats/internal/model"
)

// Clamp01 limits v to the range [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(v, 1))
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Mean returns the arithmetic mean of vs, or 0 when vs is empty.
func Mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// Ratio returns num/den, or def when den is not positive.
func Ratio(num, den, def float64) float64 {
	if den <= 0 {
		return def
	}
	return num / den
}

// EngagementParams holds the normalization constants for engagement scoring.
type EngagementParams struct {
	MessageLengthNorm          float64 `mapstructure:"message_length_norm"`
	InteractionsPerSessionNorm float64 `mapstructure:"interactions_per_session_norm"`
	ConceptNorm                float64 `mapstructure:"concept_norm"`
}

// DefaultEngagement returns the reference normalization constants.
func DefaultEngagement() EngagementParams {
	return EngagementParams{
		MessageLengthNorm:          50,
		InteractionsPerSessionNorm: 10,
		ConceptNorm:                5,
	}
}

// EngagementInputs are the raw counts an engagement score is computed from.
type EngagementInputs struct {
	Interactions       int
	Sessions           int
	TotalMessageLength int
	UniqueConcepts     int
	ConceptMentions    int
}

// Engagement is the mean of three clamped components: average message length,
// interactions per session and concept breadth. The concept component is 0
// when no concepts were recorded.
func Engagement(in EngagementInputs, p EngagementParams) float64 {
	if in.Interactions == 0 {
		return 0
	}
	avgMessage := float64(in.TotalMessageLength) / float64(in.Interactions)
	perSession := Ratio(float64(in.Interactions), float64(in.Sessions), 0)

	message := Clamp01(Ratio(avgMessage, p.MessageLengthNorm, 0))
	frequency := Clamp01(Ratio(perSession, p.InteractionsPerSessionNorm, 0))
	var diversity float64
	if in.ConceptMentions > 0 {
		diversity = Clamp01(Ratio(float64(in.UniqueConcepts), p.ConceptNorm, 0))
	}
	return Clamp01(Mean([]float64{message, frequency, diversity}))
}

// InputsOf collects engagement inputs from a slice of events.
func InputsOf(events []model.InteractionEvent) EngagementInputs {
	in := EngagementInputs{Interactions: len(events)}
	sessions := make(map[string]struct{})
	concepts := make(map[string]struct{})
	for _, e := range events {
		in.TotalMessageLength += e.MessageLength
		sessions[e.SessionID] = struct{}{}
		for _, c := range e.Concepts {
			concepts[c] = struct{}{}
			in.ConceptMentions++
		}
	}
	in.Sessions = len(sessions)
	in.UniqueConcepts = len(concepts)
	return in
}

// EngagementOf scores a slice of events.
func EngagementOf(events []model.InteractionEvent, p EngagementParams) float64 {
	return Engagement(InputsOf(events), p)
}

// Trend compares the mean of the last three values with the mean of the
// earlier ones. With exactly three values the first value is the baseline.
func Trend(values []float64) model.Trend {
	if len(values) < 3 {
		return model.TrendInsufficientData
	}
	recent := Mean(values[len(values)-3:])
	earlier := values[0]
	if len(values) > 3 {
		earlier = Mean(values[:len(values)-3])
	}
	switch {
	case recent > earlier*1.1:
		return model.TrendAdvancing
	case recent < earlier*0.9:
		return model.TrendReviewing
	default:
		return model.TrendStable
	}
}

// Consistency scores how regular the gaps between timestamps are, as
// 1/(1+variance/mean²) over the gaps in hours. Fewer than two timestamps, or
// a zero mean gap, score 0.
func Consistency(timestamps []time.Time) float64 {
	if len(timestamps) < 2 {
		return 0
	}
	sorted := slices.Clone(timestamps)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })

	intervals := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		intervals = append(intervals, sorted[i].Sub(sorted[i-1]).Hours())
	}
	mean := Mean(intervals)
	if mean <= 0 {
		return 0
	}
	var variance float64
	if len(intervals) > 1 {
		for _, v := range intervals {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(intervals) - 1)
	}
	return Clamp01(1 / (1 + variance/(mean*mean)))
}

// WordOverlap returns the number of distinct words shared by candidate and
// existing divided by the total word count of candidate. Words are split on
// whitespace and compared ignoring case. Empty candidates score 0.
func WordOverlap(candidate, existing string) float64 {
	words := strings.Fields(strings.ToLower(candidate))
	if len(words) == 0 {
		return 0
	}
	other := wordSet(existing)
	var shared int
	for w := range wordSet(candidate) {
		if _, ok := other[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(words))
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

// Jaccard returns |a∩b|/|a∪b| over the distinct members of a and b, or 0
// when both are empty.
func Jaccard(a, b []string) float64 {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	inter := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, v := range b {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		if _, ok := set[v]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

var (
	tokenRe   = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	stopWords = map[string]struct{}{
		"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
		"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	}
)

// KeyTerms extracts up to limit distinct lowercase terms longer than three
// characters, skipping stop words, in order of first appearance.
func KeyTerms(text string, limit int) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		if len(out) >= limit {
			break
		}
		if utf8.RuneCountInString(tok) <= 3 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// MostCommon returns every item that ties for the highest count, in order of
// first appearance.
func MostCommon[T comparable](items []T) []T {
	counts := make(map[T]int)
	var order []T
	best := 0
	for _, it := range items {
		if counts[it] == 0 {
			order = append(order, it)
		}
		counts[it]++
		best = max(best, counts[it])
	}
	var out []T
	for _, it := range order {
		if counts[it] == best {
			out = append(out, it)
		}
	}
	return out
}
