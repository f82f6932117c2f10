package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/japanesestudent/listening-service/internal/middlewares"
	"github.com/japanesestudent/listening-service/internal/models"
	"go.uber.org/zap"
)

// QuizService defines the interface for quiz management and answer checking
type QuizService interface {
	// Method ListByAudio retrieves the quizzes of an audio record in display order.
	//
	// "quizType" parameter filters by type, an empty value returns every type.
	ListByAudio(ctx context.Context, audioID string, quizType models.QuizType) ([]models.Quiz, error)
	// Method GetByID retrieves a quiz by its ID.
	GetByID(ctx context.Context, id string) (*models.Quiz, error)
	// Method Create adds a hand-written quiz.
	//
	// If some error will occur during validation or data insert, the error will be returned together with "nil" value.
	Create(ctx context.Context, req *models.CreateQuizRequest) (*models.Quiz, error)
	// Method Update applies a partial update to a quiz.
	Update(ctx context.Context, id string, req *models.UpdateQuizRequest) (*models.Quiz, error)
	// Method Delete removes a quiz.
	Delete(ctx context.Context, id string) error
	// Method DeleteByAudio removes every quiz of an audio record.
	DeleteByAudio(ctx context.Context, audioID string) (int64, error)
	// Method SubmitAnswer evaluates a learner answer.
	//
	// "answer" parameter is the raw JSON value sent by the learner.
	SubmitAnswer(ctx context.Context, quizID string, answer json.RawMessage) (*models.AnswerResult, error)
}

// GenerationService defines the interface for LLM quiz generation
type GenerationService interface {
	// Method GenerateOne appends one generated quiz to an audio record.
	GenerateOne(ctx context.Context, audioID string, kind models.QuizType) (*models.Quiz, error)
	// Method GenerateMultiple appends up to "count" generated quizzes, failed items are skipped.
	GenerateMultiple(ctx context.Context, audioID string, kind models.QuizType, count int) ([]models.Quiz, error)
	// Method GenerateBatch replaces every quiz of an audio record with generated ones.
	GenerateBatch(ctx context.Context, req *models.GenerateBatchRequest) (*models.BatchResult, error)
	// Method RegenerateAll replaces every quiz of an audio record using the default settings.
	//
	// Returns the number of stored quizzes, 0 for a record without transcript.
	RegenerateAll(ctx context.Context, audioID string) (int, error)
}

// QuizHandler handles quiz-related HTTP requests
type QuizHandler struct {
	BaseHandler
	quizService       QuizService
	generationService GenerationService
	generateTimeout   time.Duration
}

// NewQuizHandler creates a new quiz handler.
// generateTimeout bounds the routes that wait for LLM generation instead of the server timeouts.
func NewQuizHandler(quizService QuizService, generationService GenerationService, generateTimeout time.Duration, logger *zap.Logger) *QuizHandler {
	return &QuizHandler{
		BaseHandler:       BaseHandler{Logger: logger},
		quizService:       quizService,
		generationService: generationService,
		generateTimeout:   generateTimeout,
	}
}

// RegisterRoutes registers all quiz handler routes
func (h *QuizHandler) RegisterRoutes(r chi.Router) {
	long := middlewares.ExtendDeadlineMiddleware(h.generateTimeout, h.Logger)
	r.Route("/quiz", func(r chi.Router) {
		r.Post("/", h.Create)
		r.With(long).Post("/generate", h.Generate)
		r.With(long).Post("/generate-batch", h.GenerateBatch)
		r.Get("/{id}", h.GetByID)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/submit", h.Submit)
	})
}

// RegisterAudioRoutes registers the quiz routes nested under /audio/{id}
func (h *QuizHandler) RegisterAudioRoutes(r chi.Router) {
	r.Get("/quiz", h.ListByAudio)
	r.Delete("/quiz", h.DeleteByAudio)
	r.With(middlewares.ExtendDeadlineMiddleware(h.generateTimeout, h.Logger)).Post("/quiz/regenerate", h.Regenerate)
}

// ListByAudio handles GET /audio/{id}/quiz
func (h *QuizHandler) ListByAudio(w http.ResponseWriter, r *http.Request) {
	audioID := chi.URLParam(r, "id")
	quizType := models.QuizType(r.URL.Query().Get("type"))

	quizzes, err := h.quizService.ListByAudio(r.Context(), audioID, quizType)
	if err != nil {
		h.RespondServiceError(w, err, "failed to get quizzes")
		return
	}

	h.RespondJSON(w, http.StatusOK, quizzes)
}

// DeleteByAudio handles DELETE /audio/{id}/quiz
func (h *QuizHandler) DeleteByAudio(w http.ResponseWriter, r *http.Request) {
	audioID := chi.URLParam(r, "id")

	if _, err := h.quizService.DeleteByAudio(r.Context(), audioID); err != nil {
		h.RespondServiceError(w, err, "failed to delete quizzes")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Regenerate handles POST /audio/{id}/quiz/regenerate
func (h *QuizHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	audioID := chi.URLParam(r, "id")

	count, err := h.generationService.RegenerateAll(context.WithoutCancel(r.Context()), audioID)
	if err != nil {
		h.RespondServiceError(w, err, "failed to regenerate quizzes")
		return
	}

	h.RespondJSON(w, http.StatusOK, map[string]any{
		"message": "Quizzes regenerated successfully",
		"count":   count,
	})
}

// GetByID handles GET /quiz/{id}
func (h *QuizHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	quiz, err := h.quizService.GetByID(r.Context(), id)
	if err != nil {
		h.RespondServiceError(w, err, "failed to get quiz")
		return
	}

	h.RespondJSON(w, http.StatusOK, quiz)
}

// Create handles POST /quiz
func (h *QuizHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateQuizRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	quiz, err := h.quizService.Create(r.Context(), &req)
	if err != nil {
		h.RespondServiceError(w, err, "failed to create quiz")
		return
	}

	h.RespondJSON(w, http.StatusCreated, quiz)
}

// Generate handles POST /quiz/generate.
// A count above 1 answers with {quizzes, count}, otherwise with the single quiz.
func (h *QuizHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateQuizRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	if req.Count == 1 {
		quiz, err := h.generationService.GenerateOne(context.WithoutCancel(r.Context()), req.AudioID, req.Type)
		if err != nil {
			h.RespondServiceError(w, err, "failed to generate quiz")
			return
		}
		h.RespondJSON(w, http.StatusOK, quiz)
		return
	}

	quizzes, err := h.generationService.GenerateMultiple(context.WithoutCancel(r.Context()), req.AudioID, req.Type, req.Count)
	if err != nil {
		h.RespondServiceError(w, err, "failed to generate quizzes")
		return
	}

	h.RespondJSON(w, http.StatusOK, map[string]any{
		"quizzes": quizzes,
		"count":   len(quizzes),
	})
}

// GenerateBatch handles POST /quiz/generate-batch
func (h *QuizHandler) GenerateBatch(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.generationService.GenerateBatch(context.WithoutCancel(r.Context()), &req)
	if err != nil {
		h.RespondServiceError(w, err, "failed to generate quizzes")
		return
	}

	h.RespondJSON(w, http.StatusOK, result)
}

// Update handles PUT /quiz/{id}
func (h *QuizHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.UpdateQuizRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	quiz, err := h.quizService.Update(r.Context(), id, &req)
	if err != nil {
		h.RespondServiceError(w, err, "failed to update quiz")
		return
	}

	h.RespondJSON(w, http.StatusOK, quiz)
}

// Delete handles DELETE /quiz/{id}
func (h *QuizHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.quizService.Delete(r.Context(), id); err != nil {
		h.RespondServiceError(w, err, "failed to delete quiz")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Submit handles POST /quiz/{id}/submit
func (h *QuizHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.SubmitAnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.quizService.SubmitAnswer(r.Context(), id, req.Answer)
	if err != nil {
		h.RespondServiceError(w, err, "failed to submit answer")
		return
	}

	h.RespondJSON(w, http.StatusOK, result)
}
