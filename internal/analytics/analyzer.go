package analytics

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/pavelanni/tutorstats/internal/config"
	"github.com/pavelanni/tutorstats/internal/model"
	"github.com/pavelanni/tutorstats/internal/scoring"
)

// Translator localizes message IDs.
type Translator interface {
	T(msgID string) string
}

// Analyzer answers read-only analytics queries over the ingested data.
type Analyzer struct {
	ingestor   *Ingestor
	students   *Students
	system     *System
	engagement scoring.EngagementParams
	health     config.HealthConfig
}

// NewAnalyzer creates an analyzer over the given ingestor and aggregators.
func NewAnalyzer(in *Ingestor, st *Students, sys *System, engagement scoring.EngagementParams, health config.HealthConfig) *Analyzer {
	return &Analyzer{
		ingestor:   in,
		students:   st,
		system:     sys,
		engagement: engagement,
		health:     health,
	}
}

// Interactions returns a student's logged events within the period, oldest first.
func (a *Analyzer) Interactions(studentID string, period model.Period) []model.InteractionEvent {
	since := a.ingestor.Now().Add(-period.Duration())
	return a.ingestor.Events(func(e model.InteractionEvent) bool {
		return e.StudentID == studentID && !e.Timestamp.Before(since)
	})
}

// Student builds the analytics report for one student.
func (a *Analyzer) Student(studentID string, period model.Period, tr Translator) model.StudentAnalytics {
	return a.student(studentID, period, a.Interactions(studentID, period), tr)
}

func (a *Analyzer) student(studentID string, period model.Period, events []model.InteractionEvent, tr Translator) model.StudentAnalytics {
	out := model.StudentAnalytics{
		StudentID:       studentID,
		Period:          period,
		Recommendations: []string{},
		GeneratedAt:     a.ingestor.Now().UTC(),
	}
	if agg, ok := a.students.Aggregate(studentID); ok {
		out.Lifetime = &agg
	}
	if len(events) == 0 {
		return out
	}

	sorted := byTime(events)
	eng := a.engagementMetrics(sorted)
	out.Engagement = &eng
	if len(sorted) >= 2 {
		prog := progress(sorted)
		out.Progress = &prog
	}
	pat := patterns(sorted)
	out.Patterns = &pat
	out.Recommendations = studentRecommendations(eng, out.Progress, tr)
	return out
}

func byTime(events []model.InteractionEvent) []model.InteractionEvent {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(x, y model.InteractionEvent) int {
		return x.Timestamp.Compare(y.Timestamp)
	})
	return sorted
}

func (a *Analyzer) engagementMetrics(events []model.InteractionEvent) model.EngagementMetrics {
	in := scoring.InputsOf(events)
	var responseTotal int
	for _, e := range events {
		responseTotal += e.ResponseLength
	}
	n := float64(len(events))
	return model.EngagementMetrics{
		TotalInteractions:         in.Interactions,
		UniqueSessions:            in.Sessions,
		AvgInteractionsPerSession: scoring.Round2(scoring.Ratio(n, float64(in.Sessions), 0)),
		AvgMessageLength:          scoring.Round2(float64(in.TotalMessageLength) / n),
		AvgResponseLength:         scoring.Round2(float64(responseTotal) / n),
		ConceptsExplored:          in.UniqueConcepts,
		ConceptDiversity:          scoring.Round2(scoring.Ratio(float64(in.UniqueConcepts), float64(in.ConceptMentions), 0)),
		EngagementScore:           scoring.Round2(scoring.Engagement(in, a.engagement)),
	}
}

func progress(events []model.InteractionEvent) model.LearningProgress {
	levels := make([]float64, len(events))
	mastery := make(map[string]int)
	for i, e := range events {
		levels[i] = e.Difficulty.Level()
		for _, c := range e.Concepts {
			mastery[c]++
		}
	}
	return model.LearningProgress{
		ProgressTrend:         scoring.Trend(levels),
		DifficultyProgression: levels,
		AvgDifficulty:         scoring.Round2(scoring.Mean(levels)),
		ConceptMastery:        mastery,
		LearningVelocity:      scoring.Round2(float64(len(mastery)) / float64(len(events))),
	}
}

func patterns(events []model.InteractionEvent) model.InteractionPatterns {
	hours := make([]int, len(events))
	days := make([]string, len(events))
	timestamps := make([]time.Time, len(events))
	types := make(map[string]int)
	for i, e := range events {
		hours[i] = e.Timestamp.Hour()
		days[i] = e.Timestamp.Weekday().String()
		timestamps[i] = e.Timestamp
		types[e.ResponseType]++
	}
	return model.InteractionPatterns{
		PreferredHours:          scoring.MostCommon(hours),
		PreferredDays:           scoring.MostCommon(days),
		ResponseTypePreferences: types,
		Sessions:                sessionPatterns(events),
		ConsistencyScore:        scoring.Round2(scoring.Consistency(timestamps)),
	}
}

func sessionPatterns(events []model.InteractionEvent) model.SessionPatterns {
	lengths := make(map[string]int)
	for _, e := range events {
		lengths[e.SessionID]++
	}
	var sp model.SessionPatterns
	var total int
	for _, n := range lengths {
		total += n
		switch {
		case n <= 3:
			sp.Short++
		case n <= 7:
			sp.Medium++
		default:
			sp.Long++
		}
	}
	sp.TotalSessions = len(lengths)
	if sp.TotalSessions > 0 {
		sp.AvgSessionLength = scoring.Round2(float64(total) / float64(sp.TotalSessions))
	}
	return sp
}

func studentRecommendations(eng model.EngagementMetrics, prog *model.LearningProgress, tr Translator) []string {
	recs := []string{}
	if eng.AvgInteractionsPerSession < 3 {
		recs = append(recs, tr.T("StudentRecLongerSessions"))
	}
	if eng.ConceptDiversity < 0.3 {
		recs = append(recs, tr.T("StudentRecWiderConcepts"))
	}
	if prog != nil {
		switch prog.ProgressTrend {
		case model.TrendReviewing:
			recs = append(recs, tr.T("StudentRecFundamentals"))
		case model.TrendAdvancing:
			recs = append(recs, tr.T("StudentRecAdvanced"))
		}
	}
	if eng.AvgMessageLength < 20 {
		recs = append(recs, tr.T("StudentRecDetailedQuestions"))
	}
	if len(recs) > 5 {
		recs = recs[:5]
	}
	return recs
}

// Class builds the analytics report for a group of students.
func (a *Analyzer) Class(studentIDs []string, period model.Period, tr Translator) model.ClassAnalytics {
	ids := dedupe(studentIDs)
	out := model.ClassAnalytics{
		StudentIDs:    ids,
		Period:        period,
		TotalStudents: len(ids),
		Individual:    make(map[string]model.StudentAnalytics, len(ids)),
		GeneratedAt:   a.ingestor.Now().UTC(),
	}

	var all []model.InteractionEvent
	for _, id := range ids {
		events := a.Interactions(id, period)
		out.Individual[id] = a.student(id, period, events, tr)
		all = append(all, events...)
	}
	out.TotalInteractions = len(all)
	if len(all) == 0 {
		return out
	}

	sorted := byTime(all)
	eng := a.classEngagement(sorted)
	concepts := conceptDistribution(sorted)
	difficulty := difficultyDistribution(sorted)
	pat := classPatterns(sorted)
	out.Engagement = &eng
	out.Concepts = &concepts
	out.Difficulty = &difficulty
	out.Patterns = &pat
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (a *Analyzer) classEngagement(events []model.InteractionEvent) model.ClassEngagement {
	students := make(map[string]struct{})
	sessions := make(map[string]struct{})
	for _, e := range events {
		students[e.StudentID] = struct{}{}
		sessions[e.SessionID] = struct{}{}
	}
	n := float64(len(students))
	return model.ClassEngagement{
		TotalStudents:             len(students),
		TotalSessions:             len(sessions),
		TotalInteractions:         len(events),
		AvgInteractionsPerStudent: scoring.Round2(float64(len(events)) / n),
		AvgSessionsPerStudent:     scoring.Round2(float64(len(sessions)) / n),
		ClassEngagementScore:      scoring.Round2(scoring.EngagementOf(events, a.engagement)),
	}
}

func conceptDistribution(events []model.InteractionEvent) model.ConceptDistribution {
	counts := make(map[string]int)
	var total int
	for _, e := range events {
		for _, c := range e.Concepts {
			counts[c]++
			total++
		}
	}
	top := make([]model.ConceptCount, 0, len(counts))
	for c, n := range counts {
		top = append(top, model.ConceptCount{Concept: c, Count: n})
	}
	slices.SortFunc(top, func(x, y model.ConceptCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Concept, y.Concept)
	})
	if len(top) > 5 {
		top = top[:5]
	}
	return model.ConceptDistribution{
		TotalInstances: total,
		UniqueConcepts: len(counts),
		Counts:         counts,
		Top:            top,
	}
}

func difficultyDistribution(events []model.InteractionEvent) model.DifficultyDistribution {
	counts := make(map[model.Difficulty]int)
	for _, e := range events {
		counts[e.Difficulty]++
	}
	pct := make(map[model.Difficulty]float64, len(counts))
	for d, n := range counts {
		pct[d] = float64(int(float64(n)/float64(len(events))*1000+0.5)) / 10
	}
	return model.DifficultyDistribution{Counts: counts, Percentages: pct}
}

func classPatterns(events []model.InteractionEvent) model.ClassPatterns {
	hours := make([]int, len(events))
	types := make([]string, len(events))
	for i, e := range events {
		hours[i] = e.Timestamp.Hour()
		types[i] = e.ResponseType
	}
	return model.ClassPatterns{
		PeakHours:              scoring.MostCommon(hours),
		PreferredResponseTypes: scoring.MostCommon(types),
		CommonConceptSequences: conceptSequences(events, 5),
	}
}

// conceptSequences finds concept runs of length two and three that occur more
// than once across the sessions' concept streams.
func conceptSequences(events []model.InteractionEvent, limit int) [][]string {
	var order []string
	streams := make(map[string][]string)
	for _, e := range events {
		if len(e.Concepts) == 0 {
			continue
		}
		if _, ok := streams[e.SessionID]; !ok {
			order = append(order, e.SessionID)
		}
		streams[e.SessionID] = append(streams[e.SessionID], e.Concepts...)
	}

	type seqCount struct {
		seq   []string
		count int
		first int
	}
	var found []seqCount
	for _, n := range []int{2, 3} {
		counts := make(map[string]*seqCount)
		for _, sid := range order {
			stream := streams[sid]
			for i := 0; i+n <= len(stream); i++ {
				seq := stream[i : i+n]
				key := strings.Join(seq, "\x00")
				sc, ok := counts[key]
				if !ok {
					sc = &seqCount{seq: slices.Clone(seq), first: len(found) + len(counts)}
					counts[key] = sc
				}
				sc.count++
			}
		}
		var batch []seqCount
		for _, sc := range counts {
			if sc.count > 1 {
				batch = append(batch, *sc)
			}
		}
		slices.SortFunc(batch, func(x, y seqCount) int { return cmp.Compare(x.first, y.first) })
		found = append(found, batch...)
	}

	slices.SortStableFunc(found, func(x, y seqCount) int { return cmp.Compare(y.count, x.count) })
	out := [][]string{}
	for _, sc := range found {
		if len(out) >= limit {
			break
		}
		out = append(out, sc.seq)
	}
	return out
}

// SystemMetrics reports every system window with a health assessment.
func (a *Analyzer) SystemMetrics(tr Translator) model.SystemMetrics {
	now := a.ingestor.Now().UTC()
	out := model.SystemMetrics{
		Periods:     make(map[model.SystemPeriod]model.PeriodMetrics, len(model.SystemPeriods)),
		Health:      a.Health(tr),
		GeneratedAt: now,
	}
	for _, p := range model.SystemPeriods {
		m := a.system.Period(p)
		m.AvgResponseLength = scoring.Round2(m.AvgResponseLength)
		m.EngagementScore = scoring.Round2(scoring.EngagementOf(a.ingestor.Since(m.WindowStart), a.engagement))
		out.Periods[p] = m
	}
	return out
}

// Health assesses the last hour of traffic. The status is healthy unless the
// hour was silent or unusually busy (warning) or more than the configured
// share of interactions flagged an error (critical).
func (a *Analyzer) Health(tr Translator) model.SystemHealth {
	now := a.ingestor.Now().UTC()
	recent := a.ingestor.Since(now.Add(-time.Hour))

	h := model.SystemHealth{
		Status:                 model.HealthHealthy,
		Issues:                 []string{},
		RecentInteractionCount: len(recent),
		CheckedAt:              now,
	}
	switch {
	case len(recent) == 0:
		h.Status = model.HealthWarning
		h.Issues = append(h.Issues, tr.T("HealthNoRecent"))
	case len(recent) > a.health.HighVolume:
		h.Status = model.HealthWarning
		h.Issues = append(h.Issues, tr.T("HealthHighVolume"))
	}

	var errs int
	for _, e := range recent {
		if e.HasError() {
			errs++
		}
	}
	if len(recent) > 0 {
		h.ErrorRate = scoring.Round2(float64(errs) / float64(len(recent)))
	}
	if float64(errs) > float64(len(recent))*a.health.ErrorRate {
		h.Status = model.HealthCritical
		h.Issues = append(h.Issues, tr.T("HealthHighErrorRate"))
	}
	return h
}
