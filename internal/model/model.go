package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrValidation is returned when a submission is missing required identifiers.
var ErrValidation = errors.New("validation failed")

// Difficulty represents the difficulty level of an exchange.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Level maps a difficulty to its numeric rank. Unknown levels count as medium.
func (d Difficulty) Level() float64 {
	switch d {
	case DifficultyEasy:
		return 1
	case DifficultyHard:
		return 3
	default:
		return 2
	}
}

// Engagement indicator flags attached to interaction events.
const (
	IndicatorPoliteness         = "politeness"
	IndicatorAsksQuestions      = "asks_questions"
	IndicatorSeeksUnderstanding = "seeks_understanding"
	IndicatorDetailedResponse   = "detailed_response"
)

// InteractionEvent is one recorded student/agent exchange.
type InteractionEvent struct {
	Timestamp            time.Time      `json:"timestamp"`
	StudentID            string         `json:"student_id"`
	SessionID            string         `json:"session_id"`
	Message              string         `json:"message,omitempty"`
	MessageLength        int            `json:"message_length"`
	ResponseLength       int            `json:"response_length"`
	Concepts             []string       `json:"concepts"`
	Difficulty           Difficulty     `json:"difficulty_level"`
	ResponseType         string         `json:"response_type"`
	EngagementIndicators []string       `json:"engagement_indicators"`
	LearningIndicators   map[string]any `json:"learning_indicators,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}

// Validate reports a wrapped ErrValidation when an identifier is missing.
func (e InteractionEvent) Validate() error {
	if strings.TrimSpace(e.StudentID) == "" {
		return fmt.Errorf("%w: student_id is required", ErrValidation)
	}
	if strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("%w: session_id is required", ErrValidation)
	}
	return nil
}

// Clone returns a copy that shares no slices or maps with e.
func (e InteractionEvent) Clone() InteractionEvent {
	e.Concepts = slices.Clone(e.Concepts)
	e.EngagementIndicators = slices.Clone(e.EngagementIndicators)
	e.LearningIndicators = cloneMap(e.LearningIndicators)
	e.Metadata = cloneMap(e.Metadata)
	return e
}

// HasError reports whether the event metadata flags an error.
func (e InteractionEvent) HasError() bool {
	v, ok := e.Metadata["errors"]
	if !ok || v == nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != "" && !strings.EqualFold(x, "false") && x != "0"
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Turn is one student/agent exchange inside a session transcript.
type Turn struct {
	StudentMessage string   `json:"student_message"`
	AgentResponse  string   `json:"agent_response"`
	Concepts       []string `json:"concepts"`
	ResponseFormat string   `json:"response_format"`
}

// Transcript is the ordered record of a completed tutoring session.
// SubmittedAt is stamped when the transcript is accepted and dates every
// record derived from it.
type Transcript struct {
	SessionID       string    `json:"session_id"`
	StudentID       string    `json:"student_id"`
	Turns           []Turn    `json:"turns"`
	DurationMinutes int       `json:"duration_minutes"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

// Validate reports a wrapped ErrValidation when an identifier is missing.
func (t Transcript) Validate() error {
	if strings.TrimSpace(t.StudentID) == "" {
		return fmt.Errorf("%w: student_id is required", ErrValidation)
	}
	if strings.TrimSpace(t.SessionID) == "" {
		return fmt.Errorf("%w: session_id is required", ErrValidation)
	}
	return nil
}

// Concepts returns the distinct concepts mentioned across all turns, in first-seen order.
func (t Transcript) Concepts() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, turn := range t.Turns {
		for _, c := range turn.Concepts {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// BreakthroughType classifies a detected comprehension shift.
type BreakthroughType string

const (
	BreakthroughUnderstanding BreakthroughType = "understanding_breakthrough"
	BreakthroughMethod        BreakthroughType = "method_breakthrough"
)

// Breakthrough is a moment of comprehension shift within a session.
type Breakthrough struct {
	Type             BreakthroughType `json:"type"`
	InteractionIndex int              `json:"interaction_index"`
	Trigger          string           `json:"trigger"`
	Concepts         []string         `json:"concepts"`
}

// SuccessfulMethod is a teaching method credited with a positive student response.
type SuccessfulMethod struct {
	Method     string   `json:"method"`
	Concepts   []string `json:"concepts"`
	Score      float64  `json:"score"`
	Indicators []string `json:"indicators,omitempty"`
}

// EffectivenessIndicators holds the four components of a session effectiveness score.
type EffectivenessIndicators struct {
	Engagement           float64 `json:"student_engagement"`
	ConceptUnderstanding float64 `json:"concept_understanding"`
	QuestionResolution   float64 `json:"question_resolution"`
	LearningProgression  float64 `json:"learning_progression"`
}

// Mean returns the average of the four indicators.
func (ind EffectivenessIndicators) Mean() float64 {
	return (ind.Engagement + ind.ConceptUnderstanding + ind.QuestionResolution + ind.LearningProgression) / 4
}

// SessionTakeaway is the immutable analysis of one completed session.
type SessionTakeaway struct {
	SessionID          string                  `json:"session_id"`
	StudentID          string                  `json:"student_id"`
	EffectivenessScore float64                 `json:"effectiveness_score"`
	Indicators         EffectivenessIndicators `json:"indicators"`
	Breakthroughs      []Breakthrough          `json:"breakthroughs"`
	SuccessfulMethods  []SuccessfulMethod      `json:"successful_methods"`
	Insights           []string                `json:"insights"`
	Recommendations    []string                `json:"recommendations"`
	Concepts           []string                `json:"concepts"`
	TurnCount          int                     `json:"turn_count"`
	DurationMinutes    int                     `json:"duration_minutes"`
	Entries            []InsightEntry          `json:"insight_entries,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
}

// InsightType classifies a reusable insight.
type InsightType string

const (
	InsightSuccessfulMethod    InsightType = "successful_method"
	InsightBreakthroughPattern InsightType = "breakthrough_pattern"
)

// InsightEntry is a reusable, deduplicated insight derived from session takeaways.
type InsightEntry struct {
	ID             string      `json:"id"`
	Type           InsightType `json:"type"`
	Content        string      `json:"content"`
	Concepts       []string    `json:"concepts"`
	SuccessRate    float64     `json:"success_rate"`
	SourceSessions []string    `json:"source_sessions"`
	CreatedAt      time.Time   `json:"created_at"`
	LastMerged     *time.Time  `json:"last_merged,omitempty"`
}

// Clone returns a copy that shares no slices with e.
func (e InsightEntry) Clone() InsightEntry {
	e.Concepts = slices.Clone(e.Concepts)
	e.SourceSessions = slices.Clone(e.SourceSessions)
	if e.LastMerged != nil {
		t := *e.LastMerged
		e.LastMerged = &t
	}
	return e
}

// ScoredInsight is an insight with its relevance to a query.
type ScoredInsight struct {
	InsightEntry
	Relevance float64 `json:"relevance_score"`
}

// StudentContext describes the student an insight query is made for.
type StudentContext struct {
	StudentID string   `json:"student_id"`
	Concepts  []string `json:"concepts"`
}
