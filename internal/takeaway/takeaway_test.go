package takeaway

import (
	"fmt"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/pavelanni/tutorstats/internal/config"
	"github.com/pavelanni/tutorstats/internal/model"
	"github.com/pavelanni/tutorstats/internal/signal"
)

type idTranslator struct{}

func (idTranslator) T(msgID string) string { return msgID }

func (idTranslator) Td(msgID string, data map[string]any) string {
	return fmt.Sprintf("%s:%v", msgID, data["Method"])
}

var fixedNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	return New(signal.NewKeyword(), config.Default().Takeaway, func() time.Time { return fixedNow })
}

func productiveSession() model.Transcript {
	return model.Transcript{
		SessionID: "sess-1",
		StudentID: "s1",
		Turns: []model.Turn{
			{
				StudentMessage: "Can you help me understand how to solve this equation with two unknowns please?",
				AgentResponse:  "Step one: isolate x. Here is an example with numbers.",
				Concepts:       []string{"algebra"},
				ResponseFormat: "step_by_step",
			},
			{
				StudentMessage: "Oh I see, that makes sense now",
				AgentResponse:  "Great. Now watch this video about substitution",
				Concepts:       []string{"algebra", "substitution"},
				ResponseFormat: "video",
			},
			{
				StudentMessage: "I got it, this method is great",
				AgentResponse:  "Exactly.",
				Concepts:       []string{"substitution"},
				ResponseFormat: "text",
			},
		},
		DurationMinutes: 12,
	}
}

func TestEmptyTranscript(t *testing.T) {
	got := newExtractor(t).Extract(model.Transcript{SessionID: "sess", StudentID: "s1"}, idTranslator{})
	if got.EffectivenessScore != 0 {
		t.Errorf("EffectivenessScore = %v, want 0", got.EffectivenessScore)
	}
	if got.Breakthroughs == nil || len(got.Breakthroughs) != 0 {
		t.Errorf("Breakthroughs = %#v, want empty slice", got.Breakthroughs)
	}
	if got.SuccessfulMethods == nil || len(got.SuccessfulMethods) != 0 {
		t.Errorf("SuccessfulMethods = %#v, want empty slice", got.SuccessfulMethods)
	}
	if len(got.Entries) != 0 {
		t.Errorf("Entries = %d, want 0", len(got.Entries))
	}
	if !got.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, fixedNow)
	}
}

func TestProductiveSession(t *testing.T) {
	got := newExtractor(t).Extract(productiveSession(), idTranslator{})

	ind := got.Indicators
	if math.Abs(ind.Engagement-1.0/3) > 1e-9 {
		t.Errorf("Engagement = %v, want 1/3", ind.Engagement)
	}
	if ind.ConceptUnderstanding != 0.5 {
		t.Errorf("ConceptUnderstanding = %v, want 0.5", ind.ConceptUnderstanding)
	}
	if ind.QuestionResolution != 1 {
		t.Errorf("QuestionResolution = %v, want 1", ind.QuestionResolution)
	}
	if ind.LearningProgression != 0.8 {
		t.Errorf("LearningProgression = %v, want 0.8", ind.LearningProgression)
	}
	if got.EffectivenessScore != 0.66 {
		t.Errorf("EffectivenessScore = %v, want 0.66", got.EffectivenessScore)
	}

	wantBreak := []model.Breakthrough{
		{Type: model.BreakthroughUnderstanding, InteractionIndex: 1, Trigger: TriggerStepByStep, Concepts: []string{"algebra", "substitution"}},
		{Type: model.BreakthroughUnderstanding, InteractionIndex: 2, Trigger: TriggerVisual, Concepts: []string{"substitution"}},
		{Type: model.BreakthroughMethod, InteractionIndex: 2, Trigger: "video_explanation", Concepts: []string{"substitution"}},
	}
	if len(got.Breakthroughs) != len(wantBreak) {
		t.Fatalf("got %d breakthroughs, want %d: %+v", len(got.Breakthroughs), len(wantBreak), got.Breakthroughs)
	}
	for i, want := range wantBreak {
		b := got.Breakthroughs[i]
		if b.Type != want.Type || b.InteractionIndex != want.InteractionIndex || b.Trigger != want.Trigger || !slices.Equal(b.Concepts, want.Concepts) {
			t.Errorf("breakthrough %d = %+v, want %+v", i, b, want)
		}
	}

	var methods []string
	for _, m := range got.SuccessfulMethods {
		methods = append(methods, m.Method)
		if m.Score != 0.66 {
			t.Errorf("method %s score = %v, want 0.66", m.Method, m.Score)
		}
	}
	if !slices.Equal(methods, []string{"step_by_step_explanation", "video_explanation"}) {
		t.Errorf("methods = %v", methods)
	}
	if ind := got.SuccessfulMethods[0].Indicators; !slices.Equal(ind, []string{"structured_approach", "concrete_examples"}) {
		t.Errorf("success indicators = %v", ind)
	}

	if !slices.Equal(got.Insights, []string{"InsightGood"}) {
		t.Errorf("Insights = %v, want [InsightGood]", got.Insights)
	}
	wantRecs := []string{"RecEngagement", "RecUnderstanding", "RecContinueMethod:step_by_step_explanation"}
	if !slices.Equal(got.Recommendations, wantRecs) {
		t.Errorf("Recommendations = %v, want %v", got.Recommendations, wantRecs)
	}

	if len(got.Entries) != 5 {
		t.Fatalf("Entries = %d, want 5", len(got.Entries))
	}
	first := got.Entries[0]
	if first.Type != model.InsightSuccessfulMethod || first.Content != "Method 'step_by_step_explanation' was effective for concepts: algebra" {
		t.Errorf("first entry = %+v", first)
	}
	last := got.Entries[4]
	if last.Type != model.InsightBreakthroughPattern || last.Content != "Breakthrough of type 'method_breakthrough' occurred when working on: substitution" {
		t.Errorf("last entry = %+v", last)
	}
	if !slices.Equal(last.SourceSessions, []string{"sess-1"}) {
		t.Errorf("SourceSessions = %v", last.SourceSessions)
	}
}

func TestMethodsRequireEffectiveSession(t *testing.T) {
	tr := model.Transcript{
		SessionID: "sess",
		StudentID: "s1",
		Turns: []model.Turn{
			{StudentMessage: "ok", ResponseFormat: "video"},
			{StudentMessage: "got it"},
		},
	}
	got := newExtractor(t).Extract(tr, idTranslator{})
	if got.EffectivenessScore != 0.46 {
		t.Errorf("EffectivenessScore = %v, want 0.46", got.EffectivenessScore)
	}
	if len(got.SuccessfulMethods) != 0 {
		t.Errorf("SuccessfulMethods = %+v, want none below threshold", got.SuccessfulMethods)
	}
	if !slices.Equal(got.Insights, []string{"InsightModerate"}) {
		t.Errorf("Insights = %v, want [InsightModerate]", got.Insights)
	}
	if !slices.Equal(got.Recommendations, []string{"RecEngagement", "RecUnderstanding"}) {
		t.Errorf("Recommendations = %v", got.Recommendations)
	}
}

func TestBreakthroughTriggers(t *testing.T) {
	tests := []struct {
		name     string
		previous string
		want     string
	}{
		{"step", "Let's go step by step", TriggerStepByStep},
		{"example", "For example, 2x = 4", TriggerExample},
		{"video", "This video shows it", TriggerVisual},
		{"step wins over example", "Step 2 of the example", TriggerStepByStep},
		{"other", "The derivative measures change", TriggerDetailed},
	}
	x := newExtractor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := []model.Turn{
				{StudentMessage: "hmm", AgentResponse: tt.previous},
				{StudentMessage: "now I see"},
			}
			got := x.Breakthroughs(turns)
			if len(got) != 1 || got[0].Trigger != tt.want {
				t.Errorf("Breakthroughs() = %+v, want trigger %s", got, tt.want)
			}
		})
	}

	got := x.Breakthroughs([]model.Turn{{StudentMessage: "I get it"}})
	if len(got) != 1 || got[0].Trigger != TriggerInitial {
		t.Errorf("first-turn breakthrough = %+v, want trigger %s", got, TriggerInitial)
	}
}

func TestMethodBreakthroughPriority(t *testing.T) {
	tests := []struct {
		name    string
		formats []string
		want    string
	}{
		{"video first", []string{"interactive", "step_by_step", "video"}, "video_explanation"},
		{"step by step", []string{"text", "interactive", "step_by_step"}, "step_by_step_method"},
		{"interactive", []string{"text", "", "interactive"}, "interactive_practice"},
		{"text", []string{"", "text", "text"}, "text_explanation"},
		{"only last three count", []string{"video", "text", "text", "text"}, "text_explanation"},
	}
	x := newExtractor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := make([]model.Turn, len(tt.formats))
			for i, f := range tt.formats {
				turns[i] = model.Turn{StudentMessage: "hmm", ResponseFormat: f}
			}
			turns[len(turns)-1].StudentMessage = "I like this approach"
			got := x.Breakthroughs(turns)
			if len(got) != 1 || got[0].Type != model.BreakthroughMethod || got[0].Trigger != tt.want {
				t.Errorf("Breakthroughs() = %+v, want method %s", got, tt.want)
			}
		})
	}
}

func TestSuccessfulMethodsDeduplicate(t *testing.T) {
	turns := []model.Turn{
		{StudentMessage: "q", ResponseFormat: "visual"},
		{StudentMessage: "got it", ResponseFormat: "visual"},
		{StudentMessage: "makes sense", ResponseFormat: "text"},
		{StudentMessage: "I understand"},
	}
	got := newExtractor(t).SuccessfulMethods(turns, 0.9)
	var names []string
	for _, m := range got {
		names = append(names, m.Method)
	}
	if !slices.Equal(names, []string{"visual_explanation", "text_explanation"}) {
		t.Errorf("methods = %v, want [visual_explanation text_explanation]", names)
	}
}

func TestSuccessLookahead(t *testing.T) {
	turns := []model.Turn{
		{StudentMessage: "q", ResponseFormat: "video"},
		{StudentMessage: "hmm"},
		{StudentMessage: "hmm"},
		{StudentMessage: "got it"},
	}
	got := newExtractor(t).SuccessfulMethods(turns, 1)
	for _, m := range got {
		if m.Method == "video_explanation" {
			t.Error("turn credited beyond the two-turn lookahead")
		}
	}
}

func TestInsightsForLongBroadSession(t *testing.T) {
	turns := make([]model.Turn, 9)
	for i := range turns {
		turns[i] = model.Turn{StudentMessage: "hmm", Concepts: []string{fmt.Sprintf("c%d", i%4)}}
	}
	got := newExtractor(t).Extract(model.Transcript{SessionID: "s", StudentID: "st", Turns: turns}, idTranslator{})
	if !slices.Contains(got.Insights, "InsightPersistence") {
		t.Errorf("Insights = %v, want persistence", got.Insights)
	}
	if !slices.Contains(got.Insights, "InsightMultipleConcepts") {
		t.Errorf("Insights = %v, want multiple concepts", got.Insights)
	}
}

func TestSingleConceptInsight(t *testing.T) {
	turns := []model.Turn{{StudentMessage: "hmm", Concepts: []string{"algebra"}}}
	got := newExtractor(t).Extract(model.Transcript{SessionID: "s", StudentID: "st", Turns: turns}, idTranslator{})
	if !slices.Contains(got.Insights, "InsightSingleConcept") {
		t.Errorf("Insights = %v, want single concept", got.Insights)
	}
}

func TestScoresInRange(t *testing.T) {
	messages := []string{
		"?", "I understand, makes sense, got it, clear", "help explain understand?",
		"one two three four five six seven eight nine ten eleven twelve",
		"", "okay?", "this way works, i get it",
	}
	x := newExtractor(t)
	for n := 1; n <= len(messages); n++ {
		turns := make([]model.Turn, n)
		for i := range turns {
			turns[i] = model.Turn{StudentMessage: messages[(i*3+n)%len(messages)], Concepts: make([]string, i%3)}
		}
		got := x.Extract(model.Transcript{SessionID: "s", StudentID: "st", Turns: turns}, idTranslator{})
		ind := got.Indicators
		for name, v := range map[string]float64{
			"score":         got.EffectivenessScore,
			"engagement":    ind.Engagement,
			"understanding": ind.ConceptUnderstanding,
			"resolution":    ind.QuestionResolution,
			"progression":   ind.LearningProgression,
		} {
			if v < 0 || v > 1 {
				t.Errorf("%s = %v with %d turns, out of [0,1]", name, v, n)
			}
		}
	}
}

func TestTakeawayDatedBySubmission(t *testing.T) {
	submitted := fixedNow.Add(-48 * time.Hour)
	tests := []struct {
		name      string
		submitted time.Time
		want      time.Time
	}{
		{"stamped", submitted, submitted},
		{"unstamped", time.Time{}, fixedNow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := productiveSession()
			tr.SubmittedAt = tt.submitted
			got := newExtractor(t).Extract(tr, idTranslator{})
			if !got.CreatedAt.Equal(tt.want) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, tt.want)
			}
			for _, e := range got.Entries {
				if !e.CreatedAt.Equal(tt.want) {
					t.Errorf("entry CreatedAt = %v, want %v", e.CreatedAt, tt.want)
				}
			}
		})
	}
}

func TestPeriodRecommendations(t *testing.T) {
	video := []model.MethodCount{{Method: "video_explanation", Count: 2, AvgScore: 0.8}}
	tests := []struct {
		name   string
		report model.SessionReport
		want   []string
	}{
		{
			name:   "no sessions",
			report: model.SessionReport{},
			want:   []string{"ReportRecNoSessions"},
		},
		{
			name: "strong period",
			report: model.SessionReport{
				TotalSessions: 4, AvgEffectiveness: 0.8, TotalBreakthroughs: 3,
				TopMethods: video, LearningTrend: model.TrendAdvancing,
			},
			want: []string{"ReportRecTopMethod:video_explanation"},
		},
		{
			name: "weak declining period",
			report: model.SessionReport{
				TotalSessions: 5, AvgEffectiveness: 0.4, LearningTrend: model.TrendReviewing,
			},
			want: []string{"ReportRecLowEffectiveness", "ReportRecDeclining", "ReportRecNoBreakthroughs"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newExtractor(t).PeriodRecommendations(tt.report, idTranslator{})
			if !slices.Equal(got, tt.want) {
				t.Errorf("PeriodRecommendations() = %v, want %v", got, tt.want)
			}
		})
	}
}
