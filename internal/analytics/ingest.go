// Package analytics ingests interaction events and derives per-student,
// per-class and system-wide metrics from them.
package analytics

import (
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pavelanni/tutorstats/internal/bounded"
	"github.com/pavelanni/tutorstats/internal/model"
	"github.com/pavelanni/tutorstats/internal/signal"
)

// Observer receives every accepted event, in ingestion order.
type Observer interface {
	Observe(e model.InteractionEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(e model.InteractionEvent)

// Observe calls f(e).
func (f ObserverFunc) Observe(e model.InteractionEvent) { f(e) }

// Ingestor validates interaction events, keeps a bounded raw log of them and
// fans each accepted event out to its observers.
type Ingestor struct {
	// mu serializes ingestion so observers see events in log order.
	mu sync.Mutex

	logMu sync.RWMutex
	log   *bounded.Ring[model.InteractionEvent]

	detector  signal.Detector
	observers []Observer
	now       func() time.Time
}

// NewIngestor creates an ingestor whose raw log holds at most capacity events.
func NewIngestor(capacity int, d signal.Detector, now func() time.Time, observers ...Observer) *Ingestor {
	if now == nil {
		now = time.Now
	}
	return &Ingestor{
		log:       bounded.New[model.InteractionEvent](capacity),
		detector:  d,
		observers: observers,
		now:       now,
	}
}

// Ingest validates e, fills in defaults and records it. The stored copy is
// returned. A missing student or session ID yields a wrapped model.ErrValidation.
func (in *Ingestor) Ingest(e model.InteractionEvent) (model.InteractionEvent, error) {
	if err := e.Validate(); err != nil {
		return model.InteractionEvent{}, err
	}
	e = in.normalize(e.Clone())

	in.mu.Lock()
	defer in.mu.Unlock()

	in.logMu.Lock()
	_, old, evicted := in.log.Push(e)
	in.logMu.Unlock()
	if evicted {
		slog.Debug("evicted interaction from raw log", "student_id", old.StudentID, "session_id", old.SessionID)
	}

	for _, o := range in.observers {
		o.Observe(e)
	}
	return e, nil
}

func (in *Ingestor) normalize(e model.InteractionEvent) model.InteractionEvent {
	if e.Timestamp.IsZero() {
		e.Timestamp = in.now()
	}
	e.Timestamp = e.Timestamp.UTC()
	if e.MessageLength == 0 && e.Message != "" {
		e.MessageLength = utf8.RuneCountInString(e.Message)
	}
	if e.Difficulty == "" {
		e.Difficulty = model.DifficultyMedium
	}
	if e.ResponseType == "" {
		e.ResponseType = "text"
	}
	if len(e.EngagementIndicators) == 0 {
		e.EngagementIndicators = in.indicators(e)
	}
	return e
}

func (in *Ingestor) indicators(e model.InteractionEvent) []string {
	var out []string
	if in.detector != nil && e.Message != "" {
		if in.detector.Has(e.Message, signal.Politeness) {
			out = append(out, model.IndicatorPoliteness)
		}
		if in.detector.Has(e.Message, signal.Question) {
			out = append(out, model.IndicatorAsksQuestions)
		}
		if in.detector.Has(e.Message, signal.SeeksUnderstanding) {
			out = append(out, model.IndicatorSeeksUnderstanding)
		}
	}
	if e.ResponseLength > 100 {
		out = append(out, model.IndicatorDetailedResponse)
	}
	return out
}

// Events returns the logged events accepted by keep, oldest first. A nil keep
// returns every event. The returned events must not be modified.
func (in *Ingestor) Events(keep func(e model.InteractionEvent) bool) []model.InteractionEvent {
	in.logMu.RLock()
	defer in.logMu.RUnlock()

	var out []model.InteractionEvent
	in.log.Each(func(_ uint64, e model.InteractionEvent) bool {
		if keep == nil || keep(e) {
			out = append(out, e)
		}
		return true
	})
	return out
}

// Since returns the logged events with a timestamp at or after t.
func (in *Ingestor) Since(t time.Time) []model.InteractionEvent {
	return in.Events(func(e model.InteractionEvent) bool { return !e.Timestamp.Before(t) })
}

// Len returns the number of events in the raw log.
func (in *Ingestor) Len() int {
	in.logMu.RLock()
	defer in.logMu.RUnlock()
	return in.log.Len()
}

// Now returns the ingestor's current time.
func (in *Ingestor) Now() time.Time {
	return in.now()
}
