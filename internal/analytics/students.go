package analytics

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/pavelanni/tutorstats/internal/bounded"
	"github.com/pavelanni/tutorstats/internal/model"
)

type aggregate struct {
	total     int
	concepts  map[string]struct{}
	sessions  map[string]struct{}
	firstSeen time.Time
	lastSeen  time.Time
}

// Students keeps running per-student aggregates and a bounded learning-pattern
// history for each student. Aggregates survive raw log eviction.
type Students struct {
	mu         sync.RWMutex
	aggregates map[string]*aggregate
	history    map[string]*bounded.Ring[model.LearningPatternEntry]
	historyCap int
}

// NewStudents creates an aggregator keeping historyCap learning-pattern entries per student.
func NewStudents(historyCap int) *Students {
	return &Students{
		aggregates: make(map[string]*aggregate),
		history:    make(map[string]*bounded.Ring[model.LearningPatternEntry]),
		historyCap: historyCap,
	}
}

// Observe folds an accepted event into the student's aggregate and history.
func (s *Students) Observe(e model.InteractionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.aggregates[e.StudentID]
	if !ok {
		agg = &aggregate{
			concepts:  make(map[string]struct{}),
			sessions:  make(map[string]struct{}),
			firstSeen: e.Timestamp,
			lastSeen:  e.Timestamp,
		}
		s.aggregates[e.StudentID] = agg
	}
	agg.total++
	for _, c := range e.Concepts {
		agg.concepts[c] = struct{}{}
	}
	agg.sessions[e.SessionID] = struct{}{}
	if e.Timestamp.Before(agg.firstSeen) {
		agg.firstSeen = e.Timestamp
	}
	if e.Timestamp.After(agg.lastSeen) {
		agg.lastSeen = e.Timestamp
	}

	h, ok := s.history[e.StudentID]
	if !ok {
		h = bounded.New[model.LearningPatternEntry](s.historyCap)
		s.history[e.StudentID] = h
	}
	h.Push(model.LearningPatternEntry{
		Timestamp:  e.Timestamp,
		Concepts:   e.Concepts,
		Difficulty: e.Difficulty,
		Engagement: e.EngagementIndicators,
	})
}

// Aggregate returns the lifetime aggregate for a student.
func (s *Students) Aggregate(studentID string) (model.StudentAggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, ok := s.aggregates[studentID]
	if !ok {
		return model.StudentAggregate{}, false
	}
	return model.StudentAggregate{
		StudentID:         studentID,
		TotalInteractions: agg.total,
		ConceptsSeen:      sortedKeys(agg.concepts),
		SessionIDs:        sortedKeys(agg.sessions),
		FirstSeen:         agg.firstSeen,
		LastSeen:          agg.lastSeen,
	}, true
}

// LearningHistory returns a copy of the student's learning-pattern history, oldest first.
func (s *Students) LearningHistory(studentID string) []model.LearningPatternEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.history[studentID]
	if !ok {
		return nil
	}
	items := h.Items()
	for i := range items {
		items[i].Concepts = slices.Clone(items[i].Concepts)
		items[i].Engagement = slices.Clone(items[i].Engagement)
	}
	return items
}

// StudentIDs returns every student seen so far, sorted.
func (s *Students) StudentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.aggregates))
	for id := range s.aggregates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
