// Package insight keeps a bounded, deduplicated store of reusable teaching
// insights and ranks them against a student's current question.
package insight

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/tutorstats/internal/bounded"
	"github.com/pavelanni/tutorstats/internal/config"
	"github.com/pavelanni/tutorstats/internal/model"
	"github.com/pavelanni/tutorstats/internal/scoring"
)

// Store holds at most a fixed number of insight entries, oldest evicted first.
type Store struct {
	mu        sync.RWMutex
	entries   *bounded.Ring[model.InsightEntry]
	ids       map[string]uint64
	sim       config.SimilarityConfig
	relevance config.RelevanceConfig
	now       func() time.Time
}

// New creates a store bounded to capacity entries.
func New(capacity int, sim config.SimilarityConfig, rel config.RelevanceConfig, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		entries:   bounded.New[model.InsightEntry](capacity),
		ids:       make(map[string]uint64),
		sim:       sim,
		relevance: rel,
		now:       now,
	}
}

// Upsert merges each candidate into the first similar stored entry, or
// appends it as a new entry. Candidates are applied in order, so a later
// candidate may merge into one appended earlier in the same call.
func (s *Store) Upsert(candidates []model.InsightEntry) (added, merged int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range candidates {
		if seq, ok := s.similar(c); ok {
			existing, _ := s.entries.At(seq)
			s.entries.Set(seq, s.merge(existing, c))
			merged++
			continue
		}
		e := c.Clone()
		if _, taken := s.ids[e.ID]; taken || e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = s.now().UTC()
		}
		e.SuccessRate = scoring.Clamp01(e.SuccessRate)
		if e.SourceSessions == nil {
			e.SourceSessions = []string{}
		}
		if e.Concepts == nil {
			e.Concepts = []string{}
		}
		seq, evictedEntry, evicted := s.entries.Push(e)
		if evicted {
			delete(s.ids, evictedEntry.ID)
			slog.Debug("insight evicted", "id", evictedEntry.ID)
		}
		s.ids[e.ID] = seq
		added++
	}
	return added, merged
}

func (s *Store) similar(c model.InsightEntry) (uint64, bool) {
	var found uint64
	var ok bool
	s.entries.Each(func(seq uint64, e model.InsightEntry) bool {
		if scoring.WordOverlap(c.Content, e.Content) > s.sim.TextOverlap ||
			scoring.Jaccard(c.Concepts, e.Concepts) > s.sim.ConceptJaccard {
			found, ok = seq, true
			return false
		}
		return true
	})
	return found, ok
}

func (s *Store) merge(existing, c model.InsightEntry) model.InsightEntry {
	out := existing.Clone()
	for _, id := range c.SourceSessions {
		if !slices.Contains(out.SourceSessions, id) {
			out.SourceSessions = append(out.SourceSessions, id)
		}
	}
	out.SuccessRate = scoring.Clamp01((out.SuccessRate + scoring.Clamp01(c.SuccessRate)) / 2)
	// Stamped with the candidate's session time when it has one.
	at := c.CreatedAt.UTC()
	if c.CreatedAt.IsZero() {
		at = s.now().UTC()
	}
	out.LastMerged = &at
	return out
}

// Get returns a copy of the entry with the given ID.
func (s *Store) Get(id string) (model.InsightEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.ids[id]
	if !ok {
		return model.InsightEntry{}, false
	}
	e, ok := s.entries.At(seq)
	if !ok {
		return model.InsightEntry{}, false
	}
	return e.Clone(), true
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Len()
}

// Entries returns copies of all entries, oldest first.
func (s *Store) Entries() []model.InsightEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.InsightEntry, 0, s.entries.Len())
	s.entries.Each(func(_ uint64, e model.InsightEntry) bool {
		out = append(out, e.Clone())
		return true
	})
	return out
}

// Retrieve ranks stored entries against a question and the student's recent
// concepts, returning at most limit entries whose relevance passes the threshold.
func (s *Store) Retrieve(sc model.StudentContext, question string, limit int) []model.ScoredInsight {
	out := []model.ScoredInsight{}
	if limit <= 0 {
		return out
	}
	terms := scoring.KeyTerms(question, s.relevance.MaxTerms)
	concepts := distinct(sc.Concepts)

	s.mu.RLock()
	s.entries.Each(func(_ uint64, e model.InsightEntry) bool {
		r := s.score(e, terms, concepts)
		if r > s.relevance.Threshold {
			out = append(out, model.ScoredInsight{InsightEntry: e.Clone(), Relevance: r})
		}
		return true
	})
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b model.ScoredInsight) int {
		switch {
		case a.Relevance > b.Relevance:
			return -1
		case a.Relevance < b.Relevance:
			return 1
		default:
			return 0
		}
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Relevance scores one entry against a question and concepts with the
// store's weights. The result lies in [0, 1].
func (s *Store) Relevance(e model.InsightEntry, question string, concepts []string) float64 {
	return s.score(e, scoring.KeyTerms(question, s.relevance.MaxTerms), distinct(concepts))
}

func (s *Store) score(e model.InsightEntry, terms, concepts []string) float64 {
	content := strings.ToLower(e.Content)
	var termHits int
	for _, t := range terms {
		if strings.Contains(content, t) {
			termHits++
		}
	}
	var conceptHits int
	for _, c := range concepts {
		if slices.Contains(e.Concepts, c) {
			conceptHits++
		}
	}
	w := s.relevance
	r := w.TermWeight*scoring.Ratio(float64(termHits), float64(len(terms)), 0) +
		w.ConceptWeight*float64(conceptHits)/float64(max(len(concepts), 1)) +
		w.SuccessWeight*scoring.Clamp01(e.SuccessRate)
	return scoring.Clamp01(r)
}

func distinct(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
