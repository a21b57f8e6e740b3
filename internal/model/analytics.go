package model

import (
	"strings"
	"time"
)

// Period is a reporting window for student and class analytics.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod returns the named period, defaulting to a week for unknown values.
func ParsePeriod(s string) Period {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case PeriodDay:
		return PeriodDay
	case PeriodMonth:
		return PeriodMonth
	default:
		return PeriodWeek
	}
}

// Duration returns the length of the window.
func (p Period) Duration() time.Duration {
	switch p {
	case PeriodDay:
		return 24 * time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Trend describes the direction of a series of scores.
type Trend string

const (
	TrendAdvancing        Trend = "advancing"
	TrendReviewing        Trend = "reviewing"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// EngagementMetrics summarizes how actively a student took part in a window.
type EngagementMetrics struct {
	TotalInteractions         int     `json:"total_interactions"`
	UniqueSessions            int     `json:"unique_sessions"`
	AvgInteractionsPerSession float64 `json:"avg_interactions_per_session"`
	AvgMessageLength          float64 `json:"avg_message_length"`
	AvgResponseLength         float64 `json:"avg_response_length"`
	ConceptsExplored          int     `json:"concepts_explored"`
	ConceptDiversity          float64 `json:"concept_diversity"`
	EngagementScore           float64 `json:"engagement_score"`
}

// LearningProgress tracks difficulty and concept coverage over time.
type LearningProgress struct {
	ProgressTrend         Trend          `json:"progress_trend"`
	DifficultyProgression []float64      `json:"difficulty_progression"`
	AvgDifficulty         float64        `json:"avg_difficulty"`
	ConceptMastery        map[string]int `json:"concept_mastery"`
	LearningVelocity      float64        `json:"learning_velocity"`
}

// SessionPatterns buckets sessions by length.
type SessionPatterns struct {
	AvgSessionLength float64 `json:"avg_session_length"`
	TotalSessions    int     `json:"total_sessions"`
	Short            int     `json:"short"`
	Medium           int     `json:"medium"`
	Long             int     `json:"long"`
}

// InteractionPatterns describes when and how a student prefers to study.
type InteractionPatterns struct {
	PreferredHours          []int           `json:"preferred_hours"`
	PreferredDays           []string        `json:"preferred_days"`
	ResponseTypePreferences map[string]int  `json:"response_type_preferences"`
	Sessions                SessionPatterns `json:"session_patterns"`
	ConsistencyScore        float64         `json:"consistency_score"`
}

// StudentAggregate is the lifetime running summary for a student.
type StudentAggregate struct {
	StudentID         string    `json:"student_id"`
	TotalInteractions int       `json:"total_interactions"`
	ConceptsSeen      []string  `json:"concepts_seen"`
	SessionIDs        []string  `json:"session_ids"`
	FirstSeen         time.Time `json:"first_seen"`
	LastSeen          time.Time `json:"last_seen"`
}

// StudentAnalytics is the per-student report for a period.
// Engagement, Progress and Patterns are nil when the window holds no interactions.
type StudentAnalytics struct {
	StudentID       string               `json:"student_id"`
	Period          Period               `json:"time_period"`
	Engagement      *EngagementMetrics   `json:"engagement,omitempty"`
	Progress        *LearningProgress    `json:"learning_progress,omitempty"`
	Patterns        *InteractionPatterns `json:"interaction_patterns,omitempty"`
	Recommendations []string             `json:"recommendations"`
	Lifetime        *StudentAggregate    `json:"lifetime,omitempty"`
	GeneratedAt     time.Time            `json:"generated_at"`
}

// ConceptCount pairs a concept with how often it was seen.
type ConceptCount struct {
	Concept string `json:"concept"`
	Count   int    `json:"count"`
}

// ClassEngagement summarizes engagement across a group of students.
type ClassEngagement struct {
	TotalStudents             int     `json:"total_students"`
	TotalSessions             int     `json:"total_sessions"`
	TotalInteractions         int     `json:"total_interactions"`
	AvgInteractionsPerStudent float64 `json:"avg_interactions_per_student"`
	AvgSessionsPerStudent     float64 `json:"avg_sessions_per_student"`
	ClassEngagementScore      float64 `json:"class_engagement_score"`
}

// ConceptDistribution counts concept mentions across a class.
type ConceptDistribution struct {
	TotalInstances int            `json:"total_concept_instances"`
	UniqueConcepts int            `json:"unique_concepts"`
	Counts         map[string]int `json:"concept_distribution"`
	Top            []ConceptCount `json:"top_concepts"`
}

// DifficultyDistribution counts interactions per difficulty level.
type DifficultyDistribution struct {
	Counts      map[Difficulty]int     `json:"distribution"`
	Percentages map[Difficulty]float64 `json:"percentages"`
}

// ClassPatterns holds patterns shared across a class.
type ClassPatterns struct {
	PeakHours              []int      `json:"peak_learning_hours"`
	PreferredResponseTypes []string   `json:"preferred_response_types"`
	CommonConceptSequences [][]string `json:"common_concepts"`
}

// ClassAnalytics is the report for a group of students over a period.
type ClassAnalytics struct {
	StudentIDs        []string                    `json:"student_ids"`
	Period            Period                      `json:"time_period"`
	TotalStudents     int                         `json:"total_students"`
	TotalInteractions int                         `json:"total_interactions"`
	Engagement        *ClassEngagement            `json:"engagement_overview,omitempty"`
	Concepts          *ConceptDistribution        `json:"concept_distribution,omitempty"`
	Difficulty        *DifficultyDistribution     `json:"difficulty_analysis,omitempty"`
	Patterns          *ClassPatterns              `json:"common_patterns,omitempty"`
	Individual        map[string]StudentAnalytics `json:"individual_analytics"`
	GeneratedAt       time.Time                   `json:"generated_at"`
}

// SystemPeriod is a reporting window for system-wide metrics.
type SystemPeriod string

const (
	SystemLastHour SystemPeriod = "last_hour"
	SystemLastDay  SystemPeriod = "last_day"
	SystemLastWeek SystemPeriod = "last_week"
)

// SystemPeriods lists the reported system windows, shortest first.
var SystemPeriods = []SystemPeriod{SystemLastHour, SystemLastDay, SystemLastWeek}

// Duration returns the length of the window.
func (p SystemPeriod) Duration() time.Duration {
	switch p {
	case SystemLastHour:
		return time.Hour
	case SystemLastDay:
		return 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// PeriodMetrics summarizes system activity over one window. Totals are kept
// per hour, so the window starts at WindowStart, the hour boundary at or
// before the nominal start.
type PeriodMetrics struct {
	WindowStart       time.Time `json:"window_start"`
	TotalInteractions int       `json:"total_interactions"`
	UniqueStudents    int       `json:"unique_students"`
	UniqueSessions    int       `json:"unique_sessions"`
	AvgResponseLength float64   `json:"avg_response_length"`
	ConceptCoverage   int       `json:"concept_coverage"`
	Errors            int       `json:"errors"`
	EngagementScore   float64   `json:"engagement_score"`
}

// HealthStatus is the coarse state of the system.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// SystemHealth is the result of a health assessment.
type SystemHealth struct {
	Status                 HealthStatus `json:"status"`
	Issues                 []string     `json:"issues"`
	RecentInteractionCount int          `json:"recent_interaction_count"`
	ErrorRate              float64      `json:"error_rate"`
	CheckedAt              time.Time    `json:"checked_at"`
}

// SystemMetrics bundles per-window metrics with a health assessment.
type SystemMetrics struct {
	Periods     map[SystemPeriod]PeriodMetrics `json:"performance_metrics"`
	Health      SystemHealth                   `json:"system_health"`
	GeneratedAt time.Time                      `json:"generated_at"`
}

// FAQ is one group of recurring questions.
type FAQ struct {
	Signature              []string  `json:"signature"`
	RepresentativeQuestion string    `json:"representative_question"`
	Frequency              int       `json:"frequency"`
	Concepts               []string  `json:"concepts"`
	FirstAsked             time.Time `json:"first_asked"`
	LastAsked              time.Time `json:"last_asked"`
	UniqueStudents         int       `json:"unique_students"`
	Questions              []string  `json:"questions"`
}

// Question is a raw question asked by a student.
type Question struct {
	Text      string    `json:"text"`
	Concepts  []string  `json:"concepts"`
	StudentID string    `json:"student_id"`
	AskedAt   time.Time `json:"asked_at"`
}

// LearningPatternEntry is one point in a student's learning-pattern history.
type LearningPatternEntry struct {
	Timestamp  time.Time  `json:"timestamp"`
	Concepts   []string   `json:"concepts"`
	Difficulty Difficulty `json:"difficulty"`
	Engagement []string   `json:"engagement"`
}

// SuccessPatternRecord is one takeaway remembered in a student's pattern history.
type SuccessPatternRecord struct {
	SessionID          string             `json:"session_id"`
	StudentID          string             `json:"student_id"`
	EffectivenessScore float64            `json:"effectiveness_score"`
	Methods            []SuccessfulMethod `json:"successful_methods"`
	Breakthroughs      []Breakthrough     `json:"breakthroughs"`
	Concepts           []string           `json:"concepts"`
	Timestamp          time.Time          `json:"timestamp"`
}

// MethodCount is a method with how often it succeeded.
type MethodCount struct {
	Method   string  `json:"method"`
	Count    int     `json:"count"`
	AvgScore float64 `json:"avg_score"`
}

// BreakthroughCount is a breakthrough type with how often it occurred.
type BreakthroughCount struct {
	Type  BreakthroughType `json:"type"`
	Count int              `json:"count"`
}

// SuccessPatterns aggregates pattern records for a student, a concept, or everyone.
type SuccessPatterns struct {
	StudentID           string                 `json:"student_id,omitempty"`
	Concept             string                 `json:"concept,omitempty"`
	TotalPatterns       int                    `json:"total_patterns"`
	AvgEffectiveness    float64                `json:"avg_effectiveness"`
	TopMethods          []MethodCount          `json:"top_methods"`
	CommonBreakthroughs []BreakthroughCount    `json:"common_breakthroughs"`
	EffectivenessTrend  Trend                  `json:"effectiveness_trend"`
	Patterns            []SuccessPatternRecord `json:"patterns"`
}

// SessionReport summarizes the takeaways recorded in a period.
type SessionReport struct {
	Period             Period              `json:"time_period"`
	TotalSessions      int                 `json:"total_sessions"`
	AvgEffectiveness   float64             `json:"avg_effectiveness"`
	TotalBreakthroughs int                 `json:"total_breakthroughs"`
	ConceptsCovered    []string            `json:"concepts_covered"`
	TopMethods         []MethodCount       `json:"top_successful_methods"`
	BreakthroughTypes  []BreakthroughCount `json:"breakthrough_analysis"`
	LearningTrend      Trend               `json:"learning_trend"`
	Recommendations    []string            `json:"recommendations"`
	GeneratedAt        time.Time           `json:"generated_at"`
}
