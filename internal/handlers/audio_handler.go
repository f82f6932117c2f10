package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/japanesestudent/listening-service/internal/models"
	"github.com/japanesestudent/listening-service/internal/services"
	"go.uber.org/zap"
)

// Default page sizes of the catalogue endpoints
const (
	defaultPublicLimit = 10
	defaultAdminLimit  = 50
	defaultRunsLimit   = 20
)

// MaxRequestSize caps a whole request body. It leaves room for the multipart framing
// around an upload of exactly services.MaxUploadSize.
const MaxRequestSize = services.MaxUploadSize + 1<<20

// maxMultipartMemory is the part of an upload kept in memory, the rest is spooled to disk
const maxMultipartMemory = 32 << 20

// AudioService defines the interface for audio catalogue operations
type AudioService interface {
	// Method List retrieves a page of audio records.
	//
	// "filter" parameter holds topic, level, visibility and paging options.
	//
	// If some error will occur during data retrieve, the error will be returned together with "nil" value.
	List(ctx context.Context, filter models.AudioFilter) (*models.AudioPage, error)
	// Method GetDetail retrieves an audio record with its quizzes.
	//
	// If some error will occur during data retrieve, the error will be returned together with "nil" value.
	GetDetail(ctx context.Context, id string) (*models.AudioDetail, error)
	// Method TopicStats returns the number of published records per topic.
	TopicStats(ctx context.Context) ([]models.TopicStat, error)
	// Method Create registers a record for already stored media.
	Create(ctx context.Context, req *models.CreateAudioRequest) (*models.Audio, error)
	// Method Update applies a partial update to a record.
	Update(ctx context.Context, id string, req *models.UpdateAudioRequest) (*models.Audio, error)
	// Method SetPublished shows or hides a record and returns it.
	SetPublished(ctx context.Context, id string, published bool) (*models.Audio, error)
	// Method Delete removes a record, its quizzes and its stored media.
	Delete(ctx context.Context, id string) error
}

// IngestService defines the pipeline operations exposed by the audio routes
type IngestService interface {
	// Method Ingest stores an uploaded file and creates its record.
	//
	// "req" parameter holds the file bytes, its metadata and the autoProcess flag.
	//
	// If some error will occur during validation or storage, the error will be returned together with "nil" value.
	Ingest(ctx context.Context, req *models.UploadAudioRequest) (*models.Audio, error)
	// Method ListRuns retrieves the latest pipeline runs of a record.
	ListRuns(ctx context.Context, audioID string, limit int) ([]models.PipelineRun, error)
}

// AudioHandler handles audio-related HTTP requests
type AudioHandler struct {
	BaseHandler
	audioService  AudioService
	ingestService IngestService
}

// NewAudioHandler creates a new audio handler
func NewAudioHandler(audioService AudioService, ingestService IngestService, logger *zap.Logger) *AudioHandler {
	return &AudioHandler{
		BaseHandler:   BaseHandler{Logger: logger},
		audioService:  audioService,
		ingestService: ingestService,
	}
}

// RegisterRoutes registers all audio handler routes.
// "nested" functions register additional routes under /audio/{id}.
func (h *AudioHandler) RegisterRoutes(r chi.Router, nested ...func(chi.Router)) {
	r.Route("/audio", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/topics", h.Topics)
		r.Get("/admin", h.ListAdmin)
		r.Post("/", h.Create)
		r.Post("/upload", h.Upload)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetByID)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
			r.Put("/publish", h.Publish)
			r.Get("/runs", h.Runs)
			for _, register := range nested {
				register(r)
			}
		})
	})
}

// List handles GET /audio
func (h *AudioHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := parseAudioFilter(r, defaultPublicLimit)

	page, err := h.audioService.List(r.Context(), filter)
	if err != nil {
		h.RespondServiceError(w, err, "failed to get audio list")
		return
	}

	h.RespondJSON(w, http.StatusOK, page)
}

// ListAdmin handles GET /audio/admin, unpublished records are included unless includeUnpublished=false
func (h *AudioHandler) ListAdmin(w http.ResponseWriter, r *http.Request) {
	filter := parseAudioFilter(r, defaultAdminLimit)
	filter.IncludeUnpublished = r.URL.Query().Get("includeUnpublished") != "false"

	page, err := h.audioService.List(r.Context(), filter)
	if err != nil {
		h.RespondServiceError(w, err, "failed to get audio list")
		return
	}

	h.RespondJSON(w, http.StatusOK, page)
}

// Topics handles GET /audio/topics
func (h *AudioHandler) Topics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.audioService.TopicStats(r.Context())
	if err != nil {
		h.RespondServiceError(w, err, "failed to get topic statistics")
		return
	}

	h.RespondJSON(w, http.StatusOK, stats)
}

// GetByID handles GET /audio/{id}
func (h *AudioHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	detail, err := h.audioService.GetDetail(r.Context(), id)
	if err != nil {
		h.RespondServiceError(w, err, "failed to get audio")
		return
	}

	h.RespondJSON(w, http.StatusOK, detail)
}

// Runs handles GET /audio/{id}/runs
func (h *AudioHandler) Runs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := parsePositiveInt(r.URL.Query().Get("limit"), defaultRunsLimit)

	runs, err := h.ingestService.ListRuns(r.Context(), id, limit)
	if err != nil {
		h.RespondServiceError(w, err, "failed to get pipeline runs")
		return
	}

	h.RespondJSON(w, http.StatusOK, runs)
}

// Create handles POST /audio
func (h *AudioHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAudioRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	audio, err := h.audioService.Create(r.Context(), &req)
	if err != nil {
		h.RespondServiceError(w, err, "failed to create audio")
		return
	}

	h.RespondJSON(w, http.StatusCreated, audio)
}

// Upload handles POST /audio/upload
func (h *AudioHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		h.Logger.Info("failed to parse multipart form", zap.Error(err))
		h.RespondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			h.RespondError(w, http.StatusBadRequest, "file is required")
			return
		}
		h.Logger.Error("failed to get file from form", zap.Error(err))
		h.RespondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, services.MaxUploadSize+1))
	if err != nil {
		h.Logger.Error("failed to read uploaded file", zap.Error(err))
		h.RespondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	req := &models.UploadAudioRequest{
		Filename:       header.Filename,
		ContentType:    header.Header.Get("Content-Type"),
		Data:           data,
		Title:          r.FormValue("title"),
		Description:    r.FormValue("description"),
		Topic:          models.Topic(r.FormValue("topic")),
		JLPTLevel:      models.JLPTLevel(r.FormValue("jlptLevel")),
		ThumbnailColor: models.ThumbnailColor(r.FormValue("thumbnailColor")),
		AutoProcess:    r.FormValue("autoTranscribe") == "true",
	}

	audio, err := h.ingestService.Ingest(r.Context(), req)
	if err != nil {
		h.RespondServiceError(w, err, "failed to upload audio")
		return
	}

	h.RespondJSON(w, http.StatusCreated, audio)
}

// Update handles PUT /audio/{id}
func (h *AudioHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.UpdateAudioRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	audio, err := h.audioService.Update(r.Context(), id, &req)
	if err != nil {
		h.RespondServiceError(w, err, "failed to update audio")
		return
	}

	h.RespondJSON(w, http.StatusOK, audio)
}

// Publish handles PUT /audio/{id}/publish
func (h *AudioHandler) Publish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		IsPublished *bool `json:"isPublished"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.IsPublished == nil {
		h.RespondError(w, http.StatusBadRequest, "isPublished is required")
		return
	}

	audio, err := h.audioService.SetPublished(r.Context(), id, *req.IsPublished)
	if err != nil {
		h.RespondServiceError(w, err, "failed to update publish status")
		return
	}

	h.RespondJSON(w, http.StatusOK, audio)
}

// Delete handles DELETE /audio/{id}
func (h *AudioHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.audioService.Delete(r.Context(), id); err != nil {
		h.RespondServiceError(w, err, "failed to delete audio")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseAudioFilter(r *http.Request, defaultLimit int) models.AudioFilter {
	query := r.URL.Query()
	return models.AudioFilter{
		Topic:     models.Topic(query.Get("topic")),
		JLPTLevel: models.JLPTLevel(query.Get("jlptLevel")),
		Page:      parsePositiveInt(query.Get("page"), 1),
		Limit:     parsePositiveInt(query.Get("limit"), defaultLimit),
	}
}

// parsePositiveInt returns fallback for empty, malformed or non-positive values
func parsePositiveInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
