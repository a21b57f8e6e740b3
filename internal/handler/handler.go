package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/pavelanni/tutorstats/internal/engine"
	"github.com/pavelanni/tutorstats/internal/model"
)

const (
	maxBodyBytes       = 1 << 20
	defaultFAQLimit    = 10
	defaultInsightSize = 5
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	engine  *engine.Engine
	limiter *rate.Limiter
}

// New creates a new Handler. Ingestion is limited to rps requests per second
// with the given burst; a non-positive rps disables the limit.
func New(e *engine.Engine, rps float64, burst int) *Handler {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Handler{engine: e, limiter: rate.NewLimiter(limit, max(burst, 1))}
}

// Routes registers all HTTP routes under /api.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)
			r.Post("/interactions", h.handleSubmitInteraction)
			r.Post("/sessions/{sessionID}/transcript", h.handleSubmitTranscript)
		})
		r.Get("/students/{studentID}/analytics", h.handleStudentAnalytics)
		r.Get("/students/{studentID}/history", h.handleLearningHistory)
		r.Get("/class/analytics", h.handleClassAnalytics)
		r.Get("/faqs", h.handleFAQs)
		r.Get("/health", h.handleHealth)
		r.Get("/metrics", h.handleMetrics)
		r.Post("/insights/search", h.handleInsightSearch)
		r.Get("/patterns", h.handlePatterns)
		r.Get("/sessions/report", h.handleSessionReport)
	})
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow() {
			slog.Warn("ingestion rate limited", "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleSubmitInteraction(w http.ResponseWriter, r *http.Request) {
	var ev model.InteractionEvent
	if !decode(w, r, &ev) {
		return
	}
	stored, err := h.engine.SubmitInteraction(r.Context(), ev)
	if err != nil {
		writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

type transcriptRequest struct {
	StudentID       string       `json:"student_id"`
	Turns           []model.Turn `json:"turns"`
	DurationMinutes int          `json:"duration_minutes"`
}

func (h *Handler) handleSubmitTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if !decode(w, r, &req) {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	takeaway, err := h.engine.SubmitSessionTranscript(r.Context(), sessionID, req.StudentID, req.Turns, req.DurationMinutes)
	if err != nil {
		writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, takeaway)
}

func (h *Handler) handleStudentAnalytics(w http.ResponseWriter, r *http.Request) {
	period := model.ParsePeriod(r.URL.Query().Get("period"))
	writeJSON(w, http.StatusOK, h.engine.GetStudentAnalytics(r.Context(), chi.URLParam(r, "studentID"), period))
}

func (h *Handler) handleLearningHistory(w http.ResponseWriter, r *http.Request) {
	history := h.engine.LearningHistory(chi.URLParam(r, "studentID"))
	if history == nil {
		history = []model.LearningPatternEntry{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) handleClassAnalytics(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("students"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "students is required")
		return
	}
	period := model.ParsePeriod(r.URL.Query().Get("period"))
	writeJSON(w, http.StatusOK, h.engine.GetClassAnalytics(r.Context(), ids, period))
}

func (h *Handler) handleFAQs(w http.ResponseWriter, r *http.Request) {
	limit := defaultFAQLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.engine.GetFAQs(limit, r.URL.Query().Get("category")))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.GetSystemHealth(r.Context()))
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.GetSystemMetrics(r.Context()))
}

type insightSearchRequest struct {
	StudentContext model.StudentContext `json:"student_context"`
	Question       string               `json:"question"`
	Limit          int                  `json:"limit"`
}

func (h *Handler) handleInsightSearch(w http.ResponseWriter, r *http.Request) {
	var req insightSearchRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultInsightSize
	}
	writeJSON(w, http.StatusOK, h.engine.GetRelevantInsights(req.StudentContext, req.Question, req.Limit))
}

func (h *Handler) handlePatterns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, h.engine.GetSuccessPatterns(q.Get("student"), q.Get("concept")))
}

func (h *Handler) handleSessionReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.GetSessionReport(r.Context(), model.ParsePeriod(r.URL.Query().Get("period"))))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("submission failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
