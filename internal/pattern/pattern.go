// Package pattern tracks which teaching methods and breakthroughs recur in a
// student's most effective sessions.
package pattern

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/pavelanni/tutorstats/internal/bounded"
	"github.com/pavelanni/tutorstats/internal/model"
	"github.com/pavelanni/tutorstats/internal/scoring"
)

const topMethods = 5

// Tracker keeps a bounded pattern history per student plus a bounded list of
// recent sessions across all students for period reports.
type Tracker struct {
	mu         sync.RWMutex
	history    map[string]*bounded.Ring[model.SuccessPatternRecord]
	historyCap int
	sessions   *bounded.Ring[model.SuccessPatternRecord]
	now        func() time.Time
}

// New creates a tracker keeping historyCap records per student and
// sessionCap records overall.
func New(historyCap, sessionCap int, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		history:    make(map[string]*bounded.Ring[model.SuccessPatternRecord]),
		historyCap: historyCap,
		sessions:   bounded.New[model.SuccessPatternRecord](sessionCap),
		now:        now,
	}
}

// Append records a takeaway in its student's history.
func (t *Tracker) Append(s model.SessionTakeaway) model.SuccessPatternRecord {
	rec := model.SuccessPatternRecord{
		SessionID:          s.SessionID,
		StudentID:          s.StudentID,
		EffectivenessScore: s.EffectivenessScore,
		Methods:            slices.Clone(s.SuccessfulMethods),
		Breakthroughs:      slices.Clone(s.Breakthroughs),
		Concepts:           slices.Clone(s.Concepts),
		Timestamp:          s.CreatedAt,
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = t.now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.history[s.StudentID]
	if !ok {
		h = bounded.New[model.SuccessPatternRecord](t.historyCap)
		t.history[s.StudentID] = h
	}
	h.Push(rec)
	t.sessions.Push(rec)
	return rec
}

// HistoryLen returns the number of records held for a student.
func (t *Tracker) HistoryLen(studentID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if h, ok := t.history[studentID]; ok {
		return h.Len()
	}
	return 0
}

// Patterns aggregates the records of one student, or of every student when
// studentID is empty, optionally narrowed to records touching concept.
func (t *Tracker) Patterns(studentID, concept string) model.SuccessPatterns {
	t.mu.RLock()
	var records []model.SuccessPatternRecord
	if studentID != "" {
		if h, ok := t.history[studentID]; ok {
			records = h.Items()
		}
	} else {
		for _, h := range t.history {
			records = append(records, h.Items()...)
		}
	}
	t.mu.RUnlock()

	if concept != "" {
		records = slices.DeleteFunc(records, func(r model.SuccessPatternRecord) bool {
			return !slices.Contains(r.Concepts, concept)
		})
	}
	slices.SortStableFunc(records, func(a, b model.SuccessPatternRecord) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(a.StudentID, b.StudentID); c != 0 {
			return c
		}
		return cmp.Compare(a.SessionID, b.SessionID)
	})

	scores := make([]float64, len(records))
	for i, r := range records {
		scores[i] = r.EffectivenessScore
	}
	if records == nil {
		records = []model.SuccessPatternRecord{}
	}
	return model.SuccessPatterns{
		StudentID:           studentID,
		Concept:             concept,
		TotalPatterns:       len(records),
		AvgEffectiveness:    scoring.Round2(scoring.Mean(scores)),
		TopMethods:          methodCounts(records),
		CommonBreakthroughs: breakthroughCounts(records),
		EffectivenessTrend:  scoring.Trend(scores),
		Patterns:            records,
	}
}

// Report summarizes the sessions recorded within the period ending now.
func (t *Tracker) Report(period model.Period) model.SessionReport {
	now := t.now().UTC()
	start := now.Add(-period.Duration())

	t.mu.RLock()
	var records []model.SuccessPatternRecord
	t.sessions.Each(func(_ uint64, r model.SuccessPatternRecord) bool {
		if !r.Timestamp.Before(start) {
			records = append(records, r)
		}
		return true
	})
	t.mu.RUnlock()
	slices.SortStableFunc(records, func(a, b model.SuccessPatternRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	report := model.SessionReport{
		Period:            period,
		TotalSessions:     len(records),
		ConceptsCovered:   []string{},
		TopMethods:        methodCounts(records),
		BreakthroughTypes: breakthroughCounts(records),
		Recommendations:   []string{},
		GeneratedAt:       now,
	}
	seen := make(map[string]struct{})
	scores := make([]float64, len(records))
	for i, r := range records {
		scores[i] = r.EffectivenessScore
		report.TotalBreakthroughs += len(r.Breakthroughs)
		for _, c := range r.Concepts {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				report.ConceptsCovered = append(report.ConceptsCovered, c)
			}
		}
	}
	slices.Sort(report.ConceptsCovered)
	report.AvgEffectiveness = scoring.Round2(scoring.Mean(scores))
	report.LearningTrend = scoring.Trend(scores)
	return report
}

func methodCounts(records []model.SuccessPatternRecord) []model.MethodCount {
	type acc struct {
		count int
		total float64
	}
	byMethod := make(map[string]*acc)
	for _, r := range records {
		for _, m := range r.Methods {
			a, ok := byMethod[m.Method]
			if !ok {
				a = &acc{}
				byMethod[m.Method] = a
			}
			a.count++
			a.total += m.Score
		}
	}
	out := make([]model.MethodCount, 0, len(byMethod))
	for name, a := range byMethod {
		out = append(out, model.MethodCount{
			Method:   name,
			Count:    a.count,
			AvgScore: scoring.Round2(a.total / float64(a.count)),
		})
	}
	slices.SortFunc(out, func(a, b model.MethodCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		if c := cmp.Compare(b.AvgScore, a.AvgScore); c != 0 {
			return c
		}
		return cmp.Compare(a.Method, b.Method)
	})
	if len(out) > topMethods {
		out = out[:topMethods]
	}
	return out
}

func breakthroughCounts(records []model.SuccessPatternRecord) []model.BreakthroughCount {
	counts := make(map[model.BreakthroughType]int)
	for _, r := range records {
		for _, b := range r.Breakthroughs {
			counts[b.Type]++
		}
	}
	out := make([]model.BreakthroughCount, 0, len(counts))
	for typ, n := range counts {
		out = append(out, model.BreakthroughCount{Type: typ, Count: n})
	}
	slices.SortFunc(out, func(a, b model.BreakthroughCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Type, b.Type)
	})
	return out
}
