package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/tutorstats/internal/config"
	"github.com/pavelanni/tutorstats/internal/engine"
	"github.com/pavelanni/tutorstats/internal/i18n"
	"github.com/pavelanni/tutorstats/internal/model"
)

var t0 = time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, rps float64, burst int) (http.Handler, *engine.Engine) {
	t.Helper()
	bundle, err := i18n.New("en")
	if err != nil {
		t.Fatalf("i18n.New: %v", err)
	}
	e, err := engine.New(config.Default(),
		engine.WithClock(func() time.Time { return t0 }),
		engine.WithTranslator(bundle.Translator()),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { e.Close() })

	r := chi.NewRouter()
	r.Use(i18n.Middleware(bundle))
	New(e, rps, burst).Routes(r)
	return r, e
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

const interactionJSON = `{"student_id":"s1","session_id":"sess-1","message":"How do I solve for x?","concepts":["algebra"],"timestamp":"2026-03-02T12:00:00Z"}`

func TestSubmitInteraction(t *testing.T) {
	h, _ := newTestServer(t, 0, 0)

	rec := do(t, h, http.MethodPost, "/api/interactions", interactionJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got model.InteractionEvent
	decodeBody(t, rec, &got)
	if got.MessageLength != len("How do I solve for x?") {
		t.Errorf("message_length = %d", got.MessageLength)
	}
	if got.Difficulty != model.DifficultyMedium {
		t.Errorf("difficulty = %q, want medium", got.Difficulty)
	}
}

func TestSubmitInteractionErrors(t *testing.T) {
	h, _ := newTestServer(t, 0, 0)
	tests := []struct {
		name    string
		body    string
		want    int
		message string
	}{
		{"missing student", `{"session_id":"a"}`, http.StatusBadRequest, "student_id is required"},
		{"missing session", `{"student_id":"s1"}`, http.StatusBadRequest, "session_id is required"},
		{"broken json", `{"student_id":`, http.StatusBadRequest, "invalid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/interactions", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			var body map[string]string
			decodeBody(t, rec, &body)
			if !strings.Contains(body["error"], tt.message) {
				t.Errorf("error = %q, want it to mention %q", body["error"], tt.message)
			}
		})
	}
}

func TestSubmitTranscript(t *testing.T) {
	h, e := newTestServer(t, 0, 0)
	body := `{"student_id":"s1","duration_minutes":10,"turns":[
		{"student_message":"I get it now, this way is clear","agent_response":"Good","concepts":["fractions"],"response_format":"visual"}
	]}`
	rec := do(t, h, http.MethodPost, "/api/sessions/sess-9/transcript", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}
	var got model.SessionTakeaway
	decodeBody(t, rec, &got)
	if got.SessionID != "sess-9" || got.StudentID != "s1" || got.TurnCount != 1 {
		t.Errorf("takeaway = %+v", got)
	}
	if len(got.Breakthroughs) == 0 {
		t.Error("expected breakthroughs")
	}
	if p := e.GetSuccessPatterns("s1", ""); p.TotalPatterns != 1 {
		t.Errorf("TotalPatterns = %d, want 1", p.TotalPatterns)
	}

	rec = do(t, h, http.MethodPost, "/api/sessions/sess-9/transcript", `{"turns":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing student status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStudentAnalytics(t *testing.T) {
	h, _ := newTestServer(t, 0, 0)
	for range 3 {
		do(t, h, http.MethodPost, "/api/interactions", interactionJSON)
	}

	rec := do(t, h, http.MethodGet, "/api/students/s1/analytics?period=day", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got model.StudentAnalytics
	decodeBody(t, rec, &got)
	if got.Period != model.PeriodDay {
		t.Errorf("period = %q, want day", got.Period)
	}
	if got.Engagement == nil || got.Engagement.TotalInteractions != 3 || got.Engagement.ConceptsExplored != 1 {
		t.Errorf("engagement = %+v", got.Engagement)
	}

	rec = do(t, h, http.MethodGet, "/api/students/s1/history", "")
	var history []model.LearningPatternEntry
	decodeBody(t, rec, &history)
	if len(history) != 3 {
		t.Errorf("history = %d entries, want 3", len(history))
	}

	rec = do(t, h, http.MethodGet, "/api/students/nobody/history", "")
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("unknown student history = %s, want []", body)
	}
}

func TestClassAnalytics(t *testing.T) {
	h, _ := newTestServer(t, 0, 0)
	do(t, h, http.MethodPost, "/api/interactions", interactionJSON)

	if rec := do(t, h, http.MethodGet, "/api/class/analytics", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("no students status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec := do(t, h, http.MethodGet, "/api/class/analytics?students=s1,%20s2,,&period=week", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got model.ClassAnalytics
	decodeBody(t, rec, &got)
	if got.TotalStudents != 2 || got.TotalInteractions != 1 {
		t.Errorf("class = %d students, %d interactions, want 2 and 1", got.TotalStudents, got.TotalInteractions)
	}
}

func TestFAQs(t *testing.T) {
	h, _ := newTestServer(t, 0, 0)
	do(t, h, http.MethodPost, "/api/interactions", interactionJSON)
	do(t, h, http.MethodPost, "/api/interactions",
		`{"student_id":"s2","session_id":"sess-2","message":"How can I solve for x??","concepts":["algebra"]}`)

	tests := []struct {
		query  string
		status int
		groups int
	}{
		{"", http.StatusOK, 1},
		{"?limit=5&category=alg", http.StatusOK, 1},
		{"?category=geometry", http.StatusOK, 0},
		{"?limit=zero", http.StatusBadRequest, 0},
		{"?limit=-1", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/faqs"+tt.query, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			var got []model.FAQ
			decodeBody(t, rec, &got)
			if len(got) != tt.groups {
				t.Errorf("groups = %d, want %d", len(got), tt.groups)
			}
			if len(got) > 0 && got[0].Frequency != 2 {
				t.Errorf("frequency = %d, want 2", got[0].Frequency)
			}
		})
	}
}

func TestHealthLocalized(t *testing.T) {
	h, _ := newTestServer(t, 0, 0)
	tests := []struct {
		path string
		want string
	}{
		{"/api/health", "No recent interactions"},
		{"/api/health?lang=ru", "Нет недавних взаимодействий"},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodGet, tt.path, "")
		var got model.SystemHealth
		decodeBody(t, rec, &got)
		if got.Status != model.HealthWarning || len(got.Issues) != 1 || got.Issues[0] != tt.want {
			t.Errorf("GET %s = %+v, want warning %q", tt.path, got, tt.want)
		}
	}

	rec := do(t, h, http.MethodGet, "/api/metrics", "")
	var metrics model.SystemMetrics
	decodeBody(t, rec, &metrics)
	if len(metrics.Periods) != 3 {
		t.Errorf("metrics periods = %d, want 3", len(metrics.Periods))
	}
}

func TestInsightsPatternsAndReport(t *testing.T) {
	h, _ := newTestServer(t, 0, 0)
	body := `{"student_id":"s1","turns":[
		{"student_message":"Can you help me understand fractions please?","agent_response":"Step one: an example","concepts":["fractions"],"response_format":"step_by_step"},
		{"student_message":"I understand, makes sense","agent_response":"Great","concepts":["fractions","decimals"],"response_format":"text"}
	]}`
	if rec := do(t, h, http.MethodPost, "/api/sessions/sess-1/transcript", body); rec.Code != http.StatusCreated {
		t.Fatalf("transcript status = %d: %s", rec.Code, rec.Body)
	}

	rec := do(t, h, http.MethodPost, "/api/insights/search",
		`{"student_context":{"student_id":"s1","concepts":["fractions"]},"question":"explain fractions with an example"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	var insights []model.ScoredInsight
	decodeBody(t, rec, &insights)
	if len(insights) == 0 {
		t.Error("expected relevant insights")
	}

	rec = do(t, h, http.MethodGet, "/api/patterns?student=s1&concept=fractions", "")
	var patterns model.SuccessPatterns
	decodeBody(t, rec, &patterns)
	if patterns.TotalPatterns != 1 {
		t.Errorf("patterns = %d, want 1", patterns.TotalPatterns)
	}

	rec = do(t, h, http.MethodGet, "/api/sessions/report?period=day", "")
	var report model.SessionReport
	decodeBody(t, rec, &report)
	if report.TotalSessions != 1 || report.Period != model.PeriodDay {
		t.Errorf("report = %+v", report)
	}
	if len(report.Recommendations) == 0 {
		t.Error("report has no recommendations")
	}
}

func TestIngestionRateLimited(t *testing.T) {
	h, _ := newTestServer(t, 1, 2)
	for i := range 2 {
		if rec := do(t, h, http.MethodPost, "/api/interactions", interactionJSON); rec.Code != http.StatusCreated {
			t.Fatalf("request %d status = %d, want %d", i, rec.Code, http.StatusCreated)
		}
	}
	rec := do(t, h, http.MethodPost, "/api/interactions", interactionJSON)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if rec := do(t, h, http.MethodGet, "/api/health", ""); rec.Code != http.StatusOK {
		t.Errorf("queries limited: status = %d", rec.Code)
	}
}

func TestClosedEngine(t *testing.T) {
	h, e := newTestServer(t, 0, 0)
	e.Close()
	if rec := do(t, h, http.MethodPost, "/api/interactions", interactionJSON); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
