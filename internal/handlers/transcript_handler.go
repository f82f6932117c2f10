package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/japanesestudent/listening-service/internal/middlewares"
	"github.com/japanesestudent/listening-service/internal/models"
	"go.uber.org/zap"
)

// TranscriptService defines the interface for on-demand transcription
type TranscriptService interface {
	// Method GenerateTranscript returns the stored transcript of a record or transcribes it now.
	//
	// If some error will occur during transcription, the error will be returned together with "nil" value.
	GenerateTranscript(ctx context.Context, audioID string) (*models.TranscriptResult, error)
}

// HealthChecker reports whether an external service answers
type HealthChecker interface {
	CheckHealth(ctx context.Context) bool
}

// TranscriptHandler handles transcript-related HTTP requests
type TranscriptHandler struct {
	BaseHandler
	transcriptService TranscriptService
	transcriber       HealthChecker
	requestTimeout    time.Duration
}

// NewTranscriptHandler creates a new transcript handler.
// requestTimeout bounds the synchronous transcription route instead of the server timeouts.
func NewTranscriptHandler(transcriptService TranscriptService, transcriber HealthChecker, requestTimeout time.Duration, logger *zap.Logger) *TranscriptHandler {
	return &TranscriptHandler{
		BaseHandler:       BaseHandler{Logger: logger},
		transcriptService: transcriptService,
		transcriber:       transcriber,
		requestTimeout:    requestTimeout,
	}
}

// RegisterRoutes registers all transcript handler routes
func (h *TranscriptHandler) RegisterRoutes(r chi.Router) {
	r.Get("/transcript/health", h.Health)
}

// RegisterAudioRoutes registers the transcript route nested under /audio/{id}
func (h *TranscriptHandler) RegisterAudioRoutes(r chi.Router) {
	r.With(middlewares.ExtendDeadlineMiddleware(h.requestTimeout, h.Logger)).Post("/transcript", h.Generate)
}

// Generate handles POST /audio/{id}/transcript.
// The transcription keeps running when the caller disconnects so the result is still saved.
func (h *TranscriptHandler) Generate(w http.ResponseWriter, r *http.Request) {
	audioID := chi.URLParam(r, "id")

	result, err := h.transcriptService.GenerateTranscript(context.WithoutCancel(r.Context()), audioID)
	if err != nil {
		h.RespondServiceError(w, err, "failed to generate transcript")
		return
	}

	h.RespondJSON(w, http.StatusOK, result)
}

// Health handles GET /transcript/health
func (h *TranscriptHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "unhealthy"
	if h.transcriber.CheckHealth(r.Context()) {
		status = "healthy"
	}

	h.RespondJSON(w, http.StatusOK, map[string]string{
		"status":    status,
		"service":   "whisper",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
