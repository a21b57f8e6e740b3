package model

import "time"

// Snapshot is the top-level JSON structure written by the replay command.
type Snapshot struct {
	GeneratedAt  time.Time          `json:"generated_at"`
	Replayed     ReplayStats        `json:"replayed"`
	Students     []StudentAnalytics `json:"students"`
	System       SystemMetrics      `json:"system"`
	FAQs         []FAQ              `json:"faqs"`
	Insights     []InsightEntry     `json:"insights"`
	Patterns     SuccessPatterns    `json:"success_patterns"`
	SessionsSeen SessionReport      `json:"session_report"`
}

// ReplayStats counts submissions applied from a journal.
type ReplayStats struct {
	Interactions int `json:"interactions"`
	Transcripts  int `json:"transcripts"`
	Rejected     int `json:"rejected"`
}

// SubmissionKind tags a journaled or streamed submission.
type SubmissionKind string

const (
	KindInteraction SubmissionKind = "interaction"
	KindTranscript  SubmissionKind = "transcript"
)
