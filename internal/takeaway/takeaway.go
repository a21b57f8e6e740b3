// Package takeaway analyzes completed session transcripts into effectiveness
// scores, breakthroughs, successful methods and reusable insight candidates.
package takeaway

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pavelanni/tutorstats/internal/config"
	"github.com/pavelanni/tutorstats/internal/model"
	"github.com/pavelanni/tutorstats/internal/scoring"
	"github.com/pavelanni/tutorstats/internal/signal"
)

// Translator localizes insight and recommendation texts.
type Translator interface {
	T(msgID string) string
	Td(msgID string, data map[string]any) string
}

// Breakthrough triggers inferred from the preceding agent response.
const (
	TriggerInitial    = "initial_explanation"
	TriggerStepByStep = "step_by_step_explanation"
	TriggerExample    = "concrete_example"
	TriggerVisual     = "visual_content"
	TriggerDetailed   = "detailed_explanation"
)

// Extractor turns transcripts into session takeaways.
type Extractor struct {
	detector signal.Detector
	cfg      config.TakeawayConfig
	now      func() time.Time
}

// New creates an extractor.
func New(d signal.Detector, cfg config.TakeawayConfig, now func() time.Time) *Extractor {
	if now == nil {
		now = time.Now
	}
	return &Extractor{detector: d, cfg: cfg, now: now}
}

// Extract analyzes one transcript. An empty transcript yields a zero score
// and empty breakthroughs, methods and texts. The takeaway is dated by the
// transcript's SubmittedAt, or by the clock when that is unset.
func (x *Extractor) Extract(t model.Transcript, tr Translator) model.SessionTakeaway {
	created := t.SubmittedAt.UTC()
	if t.SubmittedAt.IsZero() {
		created = x.now().UTC()
	}
	out := model.SessionTakeaway{
		SessionID:         t.SessionID,
		StudentID:         t.StudentID,
		Breakthroughs:     []model.Breakthrough{},
		SuccessfulMethods: []model.SuccessfulMethod{},
		Insights:          []string{},
		Recommendations:   []string{},
		Concepts:          t.Concepts(),
		TurnCount:         len(t.Turns),
		DurationMinutes:   t.DurationMinutes,
		CreatedAt:         created,
	}
	if out.Concepts == nil {
		out.Concepts = []string{}
	}
	if len(t.Turns) == 0 {
		return out
	}

	out.Indicators = x.Effectiveness(t.Turns)
	out.EffectivenessScore = scoring.Round2(scoring.Clamp01(out.Indicators.Mean()))
	out.Breakthroughs = x.Breakthroughs(t.Turns)
	if out.EffectivenessScore >= x.cfg.MethodsThreshold {
		out.SuccessfulMethods = x.SuccessfulMethods(t.Turns, out.EffectivenessScore)
	}
	out.Insights = insights(out, tr)
	out.Recommendations = x.recommendations(out, tr)
	out.Entries = entries(out)
	return out
}

// Effectiveness computes the four indicators of a session. Each lies in [0, 1].
func (x *Extractor) Effectiveness(turns []model.Turn) model.EffectivenessIndicators {
	n := len(turns)
	if n == 0 {
		return model.EffectivenessIndicators{}
	}
	var flags, understanding, questions int
	for _, t := range turns {
		msg := t.StudentMessage
		if x.detector.Has(msg, signal.Question) {
			flags++
			questions++
		}
		if len(strings.Fields(msg)) > 10 {
			flags++
		}
		if x.detector.Has(msg, signal.HelpSeeking) {
			flags++
		}
		switch {
		case x.detector.Has(msg, signal.StrongUnderstanding):
			understanding += 2
		case x.detector.Has(msg, signal.SoftUnderstanding):
			understanding++
		}
	}

	ind := model.EffectivenessIndicators{
		Engagement:           scoring.Clamp01(float64(flags) / float64(3*n)),
		ConceptUnderstanding: scoring.Clamp01(float64(understanding) / float64(2*n)),
		QuestionResolution:   1,
		LearningProgression:  progression(turns),
	}
	if questions > 0 {
		ind.QuestionResolution = scoring.Clamp01(float64(n) / float64(2*questions))
	}
	return ind
}

func progression(turns []model.Turn) float64 {
	if len(turns) < 2 {
		return 0.5
	}
	half := len(turns) / 2
	var early, later int
	for _, t := range turns[:half] {
		early += len(t.Concepts)
	}
	for _, t := range turns[half:] {
		later += len(t.Concepts)
	}
	switch {
	case later > early:
		return 0.8
	case later == early:
		return 0.6
	default:
		return 0.4
	}
}

// Breakthroughs finds the turns where the student expressed understanding or
// named a method that worked for them.
func (x *Extractor) Breakthroughs(turns []model.Turn) []model.Breakthrough {
	out := []model.Breakthrough{}
	for i, t := range turns {
		if x.detector.Has(t.StudentMessage, signal.Breakthrough) {
			out = append(out, model.Breakthrough{
				Type:             model.BreakthroughUnderstanding,
				InteractionIndex: i,
				Trigger:          x.trigger(turns, i),
				Concepts:         conceptsOf(t),
			})
		}
		if x.detector.Has(t.StudentMessage, signal.MethodMention) {
			out = append(out, model.Breakthrough{
				Type:             model.BreakthroughMethod,
				InteractionIndex: i,
				Trigger:          method(turns[max(0, i-2) : i+1]),
				Concepts:         conceptsOf(t),
			})
		}
	}
	return out
}

func (x *Extractor) trigger(turns []model.Turn, i int) string {
	if i == 0 {
		return TriggerInitial
	}
	prev := turns[i-1].AgentResponse
	switch {
	case x.detector.Has(prev, signal.StepCue):
		return TriggerStepByStep
	case x.detector.Has(prev, signal.ExampleCue):
		return TriggerExample
	case x.detector.Has(prev, signal.VideoCue):
		return TriggerVisual
	default:
		return TriggerDetailed
	}
}

// method names the teaching method behind a run of turns by the most vivid
// response format among them.
func method(turns []model.Turn) string {
	formats := make([]string, len(turns))
	for i, t := range turns {
		formats[i] = format(t)
	}
	switch {
	case slices.Contains(formats, "video"):
		return "video_explanation"
	case slices.Contains(formats, "step_by_step"):
		return "step_by_step_method"
	case slices.Contains(formats, "interactive"):
		return "interactive_practice"
	default:
		return "text_explanation"
	}
}

func format(t model.Turn) string {
	if t.ResponseFormat == "" {
		return "text"
	}
	return t.ResponseFormat
}

func conceptsOf(t model.Turn) []string {
	if len(t.Concepts) == 0 {
		return []string{}
	}
	return slices.Clone(t.Concepts)
}

// SuccessfulMethods credits each turn whose response was followed, within the
// lookahead, by a student success signal. Methods are deduplicated by name,
// keeping the best-scoring instance, and ranked by score.
func (x *Extractor) SuccessfulMethods(turns []model.Turn, score float64) []model.SuccessfulMethod {
	var found []model.SuccessfulMethod
	for i, t := range turns {
		if !x.ledToSuccess(turns, i) {
			continue
		}
		found = append(found, model.SuccessfulMethod{
			Method:     format(t) + "_explanation",
			Concepts:   conceptsOf(t),
			Score:      score,
			Indicators: x.successIndicators(t),
		})
	}

	best := make(map[string]int)
	out := []model.SuccessfulMethod{}
	for _, m := range found {
		if j, ok := best[m.Method]; ok {
			if m.Score > out[j].Score {
				out[j] = m
			}
			continue
		}
		best[m.Method] = len(out)
		out = append(out, m)
	}
	slices.SortStableFunc(out, func(a, b model.SuccessfulMethod) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return out
}

func (x *Extractor) ledToSuccess(turns []model.Turn, i int) bool {
	end := min(len(turns), i+1+x.cfg.SuccessLookahead)
	for _, next := range turns[i+1 : end] {
		if x.detector.Has(next.StudentMessage, signal.Success) {
			return true
		}
	}
	return false
}

func (x *Extractor) successIndicators(t model.Turn) []string {
	var out []string
	if x.detector.Has(t.AgentResponse, signal.StepCue) {
		out = append(out, "structured_approach")
	}
	if x.detector.Has(t.AgentResponse, signal.ExampleCue) {
		out = append(out, "concrete_examples")
	}
	if len(t.AgentResponse) > 200 {
		out = append(out, "detailed_explanation")
	}
	return out
}

func insights(s model.SessionTakeaway, tr Translator) []string {
	out := []string{}
	switch score := s.EffectivenessScore; {
	case score > 0.8:
		out = append(out, tr.T("InsightHighlyEffective"))
	case score > 0.6:
		out = append(out, tr.T("InsightGood"))
	case score > 0.4:
		out = append(out, tr.T("InsightModerate"))
	default:
		out = append(out, tr.T("InsightLow"))
	}
	if s.TurnCount > 8 {
		out = append(out, tr.T("InsightPersistence"))
	}
	switch {
	case len(s.Concepts) > 3:
		out = append(out, tr.T("InsightMultipleConcepts"))
	case len(s.Concepts) == 1:
		out = append(out, tr.T("InsightSingleConcept"))
	}
	return out
}

func (x *Extractor) recommendations(s model.SessionTakeaway, tr Translator) []string {
	out := []string{}
	limit := x.cfg.IndicatorThreshold
	if s.Indicators.Engagement < limit {
		out = append(out, tr.T("RecEngagement"))
	}
	if s.Indicators.ConceptUnderstanding < limit {
		out = append(out, tr.T("RecUnderstanding"))
	}
	if s.Indicators.QuestionResolution < limit {
		out = append(out, tr.T("RecResolution"))
	}
	if s.Indicators.LearningProgression < limit {
		out = append(out, tr.T("RecProgression"))
	}
	if len(s.SuccessfulMethods) > 0 {
		out = append(out, tr.Td("RecContinueMethod", map[string]any{"Method": s.SuccessfulMethods[0].Method}))
	}
	return out
}

// PeriodRecommendations suggests follow-ups for a session report.
func (x *Extractor) PeriodRecommendations(r model.SessionReport, tr Translator) []string {
	out := []string{}
	if r.TotalSessions == 0 {
		return append(out, tr.T("ReportRecNoSessions"))
	}
	if r.AvgEffectiveness < x.cfg.IndicatorThreshold {
		out = append(out, tr.T("ReportRecLowEffectiveness"))
	}
	if r.LearningTrend == model.TrendReviewing {
		out = append(out, tr.T("ReportRecDeclining"))
	}
	if r.TotalBreakthroughs == 0 {
		out = append(out, tr.T("ReportRecNoBreakthroughs"))
	}
	if len(r.TopMethods) > 0 {
		out = append(out, tr.Td("ReportRecTopMethod", map[string]any{"Method": r.TopMethods[0].Method}))
	}
	return out
}

// entries builds insight candidates from a takeaway's methods and breakthroughs.
// Breakthrough candidates carry the session effectiveness as their success rate.
func entries(s model.SessionTakeaway) []model.InsightEntry {
	var out []model.InsightEntry
	for _, m := range s.SuccessfulMethods {
		out = append(out, model.InsightEntry{
			Type:           model.InsightSuccessfulMethod,
			Content:        fmt.Sprintf("Method '%s' was effective for concepts: %s", m.Method, strings.Join(m.Concepts, ", ")),
			Concepts:       slices.Clone(m.Concepts),
			SuccessRate:    m.Score,
			SourceSessions: []string{s.SessionID},
			CreatedAt:      s.CreatedAt,
		})
	}
	for _, b := range s.Breakthroughs {
		out = append(out, model.InsightEntry{
			Type:           model.InsightBreakthroughPattern,
			Content:        fmt.Sprintf("Breakthrough of type '%s' occurred when working on: %s", b.Type, strings.Join(b.Concepts, ", ")),
			Concepts:       slices.Clone(b.Concepts),
			SuccessRate:    s.EffectivenessScore,
			SourceSessions: []string{s.SessionID},
			CreatedAt:      s.CreatedAt,
		})
	}
	return out
}
