// Package engine wires the ingestion, aggregation, takeaway, insight and
// pattern components into one explicitly constructed analytics engine.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pavelanni/tutorstats/internal/analytics"
	"github.com/pavelanni/tutorstats/internal/config"
	"github.com/pavelanni/tutorstats/internal/faq"
	"github.com/pavelanni/tutorstats/internal/i18n"
	"github.com/pavelanni/tutorstats/internal/insight"
	"github.com/pavelanni/tutorstats/internal/model"
	"github.com/pavelanni/tutorstats/internal/pattern"
	"github.com/pavelanni/tutorstats/internal/signal"
	"github.com/pavelanni/tutorstats/internal/store"
	"github.com/pavelanni/tutorstats/internal/takeaway"
)

// ErrClosed is returned by submissions made after Close.
var ErrClosed = errors.New("engine closed")

// Translator localizes the texts the engine produces.
type Translator interface {
	T(msgID string) string
	Td(msgID string, data map[string]any) string
}

// Journal records accepted submissions.
type Journal interface {
	RecordInteraction(ctx context.Context, e model.InteractionEvent) (int64, error)
	RecordTranscript(ctx context.Context, t model.Transcript) (int64, error)
}

// Source yields journaled submissions in order.
type Source interface {
	Replay(ctx context.Context, fn func(store.Submission) error) error
}

// Engine is the analytics engine. All methods are safe for concurrent use.
type Engine struct {
	cfg      config.Config
	now      func() time.Time
	detector signal.Detector
	journal  Journal
	tr       Translator
	closed   atomic.Bool

	ingestor  *analytics.Ingestor
	students  *analytics.Students
	system    *analytics.System
	analyzer  *analytics.Analyzer
	faqs      *faq.Clusterer
	extractor *takeaway.Extractor
	insights  *insight.Store
	patterns  *pattern.Tracker
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDetector replaces the keyword signal detector.
func WithDetector(d signal.Detector) Option {
	return func(e *Engine) { e.detector = d }
}

// WithJournal records every accepted submission in j.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithTranslator sets the translator used when a request carries none.
func WithTranslator(tr Translator) Option {
	return func(e *Engine) { e.tr = tr }
}

// New validates cfg and builds an engine.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	e := &Engine{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.detector == nil {
		e.detector = signal.NewKeyword()
	}
	if e.tr == nil {
		bundle, err := i18n.New("en")
		if err != nil {
			return nil, fmt.Errorf("load translations: %w", err)
		}
		e.tr = bundle.Translator()
	}

	lim := cfg.Limits
	e.students = analytics.NewStudents(lim.LearningHistory)
	e.system = analytics.NewSystem(lim.BucketRetention, e.now)
	e.faqs = faq.New(lim.FAQMembers, lim.FAQGroups)
	e.ingestor = analytics.NewIngestor(lim.RawLog, e.detector, e.now, e.students, e.system, e.faqs)
	e.analyzer = analytics.NewAnalyzer(e.ingestor, e.students, e.system, cfg.Engagement, cfg.Health)
	e.extractor = takeaway.New(e.detector, cfg.Takeaway, e.now)
	e.insights = insight.New(lim.Insights, cfg.Similarity, cfg.Relevance, e.now)
	e.patterns = pattern.New(lim.PatternHistory, lim.Sessions, e.now)
	return e, nil
}

// Close stops the engine from accepting submissions. Queries keep working on
// the state built so far. The journal is owned by the caller.
func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() config.Config { return e.cfg }

func (e *Engine) translator(ctx context.Context) Translator {
	if t := i18n.FromContext(ctx); t != nil {
		return t
	}
	return e.tr
}

// SubmitInteraction records one completed exchange. Events without a student
// or session ID are rejected with a wrapped model.ErrValidation.
func (e *Engine) SubmitInteraction(ctx context.Context, ev model.InteractionEvent) (model.InteractionEvent, error) {
	return e.submitInteraction(ctx, ev, true)
}

func (e *Engine) submitInteraction(ctx context.Context, ev model.InteractionEvent, record bool) (model.InteractionEvent, error) {
	if e.closed.Load() {
		return model.InteractionEvent{}, ErrClosed
	}
	stored, err := e.ingestor.Ingest(ev)
	if err != nil {
		slog.Debug("interaction rejected", "student", ev.StudentID, "session", ev.SessionID, "error", err)
		return model.InteractionEvent{}, err
	}
	if record && e.journal != nil {
		if _, err := e.journal.RecordInteraction(ctx, stored); err != nil {
			slog.Warn("journal interaction", "session", stored.SessionID, "error", err)
		}
	}
	return stored, nil
}

// SubmitSessionTranscript analyzes a completed session, folds its insights
// into the insight store and its outcome into the student's success patterns.
func (e *Engine) SubmitSessionTranscript(ctx context.Context, sessionID, studentID string, turns []model.Turn, durationMinutes int) (model.SessionTakeaway, error) {
	return e.submitTranscript(ctx, model.Transcript{
		SessionID:       sessionID,
		StudentID:       studentID,
		Turns:           turns,
		DurationMinutes: durationMinutes,
	}, true)
}

func (e *Engine) submitTranscript(ctx context.Context, t model.Transcript, record bool) (model.SessionTakeaway, error) {
	if e.closed.Load() {
		return model.SessionTakeaway{}, ErrClosed
	}
	if err := t.Validate(); err != nil {
		slog.Debug("transcript rejected", "student", t.StudentID, "session", t.SessionID, "error", err)
		return model.SessionTakeaway{}, err
	}
	if t.SubmittedAt.IsZero() {
		t.SubmittedAt = e.now().UTC()
	}
	s := e.extractor.Extract(t, e.translator(ctx))
	added, merged := e.insights.Upsert(s.Entries)
	e.patterns.Append(s)
	slog.Debug("session analyzed",
		"session", s.SessionID, "student", s.StudentID,
		"score", s.EffectivenessScore, "insights_added", added, "insights_merged", merged)

	if record && e.journal != nil {
		if _, err := e.journal.RecordTranscript(ctx, t); err != nil {
			slog.Warn("journal transcript", "session", t.SessionID, "error", err)
		}
	}
	return s, nil
}

// Apply decodes and submits one tagged submission, journaling it when accepted.
func (e *Engine) Apply(ctx context.Context, kind model.SubmissionKind, payload json.RawMessage) error {
	return e.apply(ctx, kind, payload, true)
}

func (e *Engine) apply(ctx context.Context, kind model.SubmissionKind, payload json.RawMessage, record bool) error {
	switch kind {
	case model.KindInteraction:
		var ev model.InteractionEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("%w: decode interaction: %v", model.ErrValidation, err)
		}
		_, err := e.submitInteraction(ctx, ev, record)
		return err
	case model.KindTranscript:
		var t model.Transcript
		if err := json.Unmarshal(payload, &t); err != nil {
			return fmt.Errorf("%w: decode transcript: %v", model.ErrValidation, err)
		}
		_, err := e.submitTranscript(ctx, t, record)
		return err
	default:
		return fmt.Errorf("%w: unknown submission kind %q", model.ErrValidation, kind)
	}
}

// Replay rebuilds state from src without journaling again. Submissions that
// fail validation are counted and skipped.
func (e *Engine) Replay(ctx context.Context, src Source) (model.ReplayStats, error) {
	var stats model.ReplayStats
	err := src.Replay(ctx, func(sub store.Submission) error {
		err := e.apply(ctx, sub.Kind, sub.Payload, false)
		switch {
		case err == nil && sub.Kind == model.KindInteraction:
			stats.Interactions++
		case err == nil:
			stats.Transcripts++
		case errors.Is(err, model.ErrValidation):
			slog.Warn("replay skipped submission", "id", sub.ID, "kind", sub.Kind, "error", err)
			stats.Rejected++
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("replay journal: %w", err)
	}
	slog.Info("journal replayed",
		"interactions", stats.Interactions, "transcripts", stats.Transcripts, "rejected", stats.Rejected)
	return stats, nil
}

// GetStudentAnalytics reports on one student over a period.
func (e *Engine) GetStudentAnalytics(ctx context.Context, studentID string, period model.Period) model.StudentAnalytics {
	return e.analyzer.Student(studentID, period, e.translator(ctx))
}

// GetClassAnalytics reports on a group of students over a period.
func (e *Engine) GetClassAnalytics(ctx context.Context, studentIDs []string, period model.Period) model.ClassAnalytics {
	return e.analyzer.Class(studentIDs, period, e.translator(ctx))
}

// GetFAQs returns up to limit recurring question groups, optionally narrowed
// to a concept category.
func (e *Engine) GetFAQs(limit int, category string) []model.FAQ {
	return e.faqs.Top(limit, category)
}

// GetSystemHealth assesses the last hour of activity.
func (e *Engine) GetSystemHealth(ctx context.Context) model.SystemHealth {
	return e.analyzer.Health(e.translator(ctx))
}

// GetSystemMetrics reports activity per system window along with health.
func (e *Engine) GetSystemMetrics(ctx context.Context) model.SystemMetrics {
	return e.analyzer.SystemMetrics(e.translator(ctx))
}

// GetRelevantInsights ranks stored insights for a student's current question.
func (e *Engine) GetRelevantInsights(sc model.StudentContext, question string, limit int) []model.ScoredInsight {
	return e.insights.Retrieve(sc, question, limit)
}

// GetSuccessPatterns aggregates success patterns, optionally for one student
// or one concept.
func (e *Engine) GetSuccessPatterns(studentID, concept string) model.SuccessPatterns {
	return e.patterns.Patterns(studentID, concept)
}

// GetSessionReport summarizes the sessions analyzed within a period, with a
// learning trend and localized recommendations.
func (e *Engine) GetSessionReport(ctx context.Context, period model.Period) model.SessionReport {
	r := e.patterns.Report(period)
	r.Recommendations = e.extractor.PeriodRecommendations(r, e.translator(ctx))
	return r
}

// LearningHistory returns a student's recent learning-pattern entries, oldest first.
func (e *Engine) LearningHistory(studentID string) []model.LearningPatternEntry {
	return e.students.LearningHistory(studentID)
}

// Snapshot reports on every known student and the system as a whole.
func (e *Engine) Snapshot(ctx context.Context, period model.Period) model.Snapshot {
	snap := model.Snapshot{
		GeneratedAt:  e.now().UTC(),
		Students:     []model.StudentAnalytics{},
		System:       e.GetSystemMetrics(ctx),
		FAQs:         e.GetFAQs(0, ""),
		Insights:     e.insights.Entries(),
		Patterns:     e.GetSuccessPatterns("", ""),
		SessionsSeen: e.GetSessionReport(ctx, period),
	}
	for _, id := range e.students.StudentIDs() {
		snap.Students = append(snap.Students, e.GetStudentAnalytics(ctx, id, period))
	}
	return snap
}
