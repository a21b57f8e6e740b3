package analytics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/tutorstats/internal/model"
)

type bucket struct {
	count         int
	responseTotal int
	errors        int
	concepts      map[string]struct{}
	students      map[string]struct{}
	sessions      map[string]struct{}
}

// System rolls interaction counts into hourly buckets. Buckets older than the
// retention window are pruned as new hours arrive.
type System struct {
	mu        sync.RWMutex
	buckets   map[time.Time]*bucket
	retention time.Duration
	now       func() time.Time
}

// NewSystem creates a system aggregator.
func NewSystem(retention time.Duration, now func() time.Time) *System {
	if now == nil {
		now = time.Now
	}
	return &System{
		buckets:   make(map[time.Time]*bucket),
		retention: retention,
		now:       now,
	}
}

// Observe adds an accepted event to the bucket for its hour.
func (s *System) Observe(e model.InteractionEvent) {
	hour := e.Timestamp.UTC().Truncate(time.Hour)

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[hour]
	if !ok {
		b = &bucket{
			concepts: make(map[string]struct{}),
			students: make(map[string]struct{}),
			sessions: make(map[string]struct{}),
		}
		s.buckets[hour] = b
		s.prune()
	}
	b.count++
	b.responseTotal += e.ResponseLength
	if e.HasError() {
		b.errors++
	}
	for _, c := range e.Concepts {
		b.concepts[c] = struct{}{}
	}
	b.students[e.StudentID] = struct{}{}
	b.sessions[e.SessionID] = struct{}{}
}

func (s *System) prune() {
	cutoff := s.now().UTC().Add(-s.retention).Truncate(time.Hour)
	for hour := range s.buckets {
		if hour.Before(cutoff) {
			delete(s.buckets, hour)
			slog.Debug("pruned system metrics bucket", "hour", hour)
		}
	}
}

// Period reports the totals of every bucket from the hour holding the window
// start up to now. EngagementScore is left for the caller, which owns the raw
// events.
func (s *System) Period(p model.SystemPeriod) model.PeriodMetrics {
	now := s.now().UTC()
	start := now.Add(-p.Duration()).Truncate(time.Hour)

	s.mu.RLock()
	defer s.mu.RUnlock()

	m := model.PeriodMetrics{WindowStart: start}
	var responseTotal int
	concepts := make(map[string]struct{})
	students := make(map[string]struct{})
	sessions := make(map[string]struct{})
	for hour, b := range s.buckets {
		if hour.Before(start) || hour.After(now) {
			continue
		}
		m.TotalInteractions += b.count
		m.Errors += b.errors
		responseTotal += b.responseTotal
		union(concepts, b.concepts)
		union(students, b.students)
		union(sessions, b.sessions)
	}
	m.UniqueStudents = len(students)
	m.UniqueSessions = len(sessions)
	m.ConceptCoverage = len(concepts)
	if m.TotalInteractions > 0 {
		m.AvgResponseLength = float64(responseTotal) / float64(m.TotalInteractions)
	}
	return m
}

// Buckets returns the number of hourly buckets held.
func (s *System) Buckets() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}

func union(dst, src map[string]struct{}) {
	for k := range src {
		dst[k] = struct{}{}
	}
}
