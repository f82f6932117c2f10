package services

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/japanesestudent/listening-service/internal/apperrors"
	"github.com/japanesestudent/listening-service/internal/cache"
	"github.com/japanesestudent/listening-service/internal/models"
	"github.com/japanesestudent/listening-service/internal/storage"
	"github.com/japanesestudent/listening-service/internal/tasks"
	"github.com/japanesestudent/listening-service/internal/transcription"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxUploadSize is the largest accepted audio upload in bytes
const MaxUploadSize = 50 << 20

// Generation limits of the on-demand endpoints
const (
	MaxGenerateCount = 5
	MaxCountEach     = 3
)

// allowedContentTypes maps accepted upload content types to the extension used when the filename has none
var allowedContentTypes = map[string]string{
	"audio/mpeg": ".mp3",
	"audio/mp3":  ".mp3",
	"audio/wav":  ".wav",
	"audio/m4a":  ".m4a",
	"audio/ogg":  ".ogg",
	"audio/webm": ".webm",
}

// PipelineRunRepository defines methods for recording pipeline runs
type PipelineRunRepository interface {
	// Method Create inserts a run in the running state.
	//
	// If some error will occur during data insert, the error will be returned.
	Create(ctx context.Context, run *models.PipelineRun) error
	// Method Finish stores the final status of a run.
	//
	// If some error will occur during data update, the error will be returned.
	Finish(ctx context.Context, run *models.PipelineRun) error
	// Method ListByAudio retrieves the latest runs of an audio record, newest first.
	//
	// "limit" parameter is the maximum number of runs returned.
	ListByAudio(ctx context.Context, audioID string, limit int) ([]models.PipelineRun, error)
}

// MediaStore defines the interface for audio blob storage
type MediaStore interface {
	// Method Put stores the data under key and returns its public URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Method Delete removes the object under key, a missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// DurationProber measures the duration of an audio file
type DurationProber interface {
	// Method Probe returns the duration in whole seconds, or the default duration if it cannot be measured.
	Probe(ctx context.Context, data []byte, filename string) int
}

// Transcriber converts stored audio into text
type Transcriber interface {
	// Method Transcribe sends the stored audio locator to the speech-to-text service.
	//
	// Failures are returned as *apperrors.UpstreamError.
	Transcribe(ctx context.Context, locator string) (*transcription.Result, error)
}

// QuizGenerator produces one quiz payload from a transcript
type QuizGenerator interface {
	// Method Generate asks the LLM for one item of the given kind.
	//
	// Failures are returned as *apperrors.UpstreamError, an unsupported kind as *apperrors.ValidationError.
	Generate(ctx context.Context, transcript string, kind models.QuizType) (models.QuizPayload, error)
}

// PipelineOptions configures quiz generation
type PipelineOptions struct {
	// CountEach is the number of items per kind generated by the automatic and regenerate runs
	CountEach int
	// ItemDelay is the pause between two generations of the same kind
	ItemDelay time.Duration
}

// pipelineService orchestrates ingest, transcription and quiz generation
type pipelineService struct {
	audioRepo   AudioRepository
	quizRepo    QuizRepository
	runRepo     PipelineRunRepository
	store       MediaStore
	prober      DurationProber
	transcriber Transcriber
	generator   QuizGenerator
	dispatcher  tasks.Dispatcher
	cache       cache.Cache
	opts        PipelineOptions
	logger      *zap.Logger
}

// NewPipelineService creates a new pipeline service.
// dispatcher may be nil in processes that only execute jobs.
func NewPipelineService(
	audioRepo AudioRepository,
	quizRepo QuizRepository,
	runRepo PipelineRunRepository,
	store MediaStore,
	prober DurationProber,
	transcriber Transcriber,
	generator QuizGenerator,
	dispatcher tasks.Dispatcher,
	c cache.Cache,
	opts PipelineOptions,
	logger *zap.Logger,
) *pipelineService {
	if opts.CountEach < 1 {
		opts.CountEach = 1
	}
	return &pipelineService{
		audioRepo:   audioRepo,
		quizRepo:    quizRepo,
		runRepo:     runRepo,
		store:       store,
		prober:      prober,
		transcriber: transcriber,
		generator:   generator,
		dispatcher:  dispatcher,
		cache:       c,
		opts:        opts,
		logger:      logger,
	}
}

// Ingest validates and stores an uploaded file, creates its published record and,
// if requested, dispatches background processing. It returns before transcription starts.
func (s *pipelineService) Ingest(ctx context.Context, req *models.UploadAudioRequest) (*models.Audio, error) {
	contentType, err := s.validateUpload(req)
	if err != nil {
		return nil, err
	}

	filename := req.Filename
	if path.Ext(filename) == "" {
		filename += allowedContentTypes[contentType]
	}
	key := storage.GenerateKey(filename)

	duration := s.prober.Probe(ctx, req.Data, filename)

	url, err := s.store.Put(ctx, key, req.Data, contentType)
	if err != nil {
		if !apperrors.IsStorage(err) {
			err = &apperrors.StorageError{Op: "put", Key: key, Err: err}
		}
		return nil, err
	}

	level := req.JLPTLevel
	if level == "" {
		level = models.DefaultLevel
	}
	color := req.ThumbnailColor
	if color == "" {
		color = req.Topic.DefaultColor()
	}

	now := time.Now().UTC()
	audio := &models.Audio{
		ID:             uuid.NewString(),
		Title:          strings.TrimSpace(req.Title),
		Description:    strings.TrimSpace(req.Description),
		Topic:          req.Topic,
		JLPTLevel:      level,
		AudioURL:       url,
		StorageKey:     key,
		Duration:       duration,
		ThumbnailColor: color,
		IsPublished:    true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.audioRepo.Create(ctx, audio); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Error("Failed to remove stored audio after record creation failed",
				zap.String("key", key), zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to create audio record: %w", err)
	}
	cache.InvalidateAudio(ctx, s.cache, s.logger, "")

	s.logger.Info("Audio ingested",
		zap.String("audio_id", audio.ID),
		zap.String("key", key),
		zap.Int("duration", duration),
		zap.Bool("auto_process", req.AutoProcess),
	)

	if req.AutoProcess {
		s.dispatchProcessing(ctx, audio.ID)
	}

	return audio, nil
}

func (s *pipelineService) validateUpload(req *models.UploadAudioRequest) (string, error) {
	if len(req.Data) == 0 {
		return "", apperrors.Validation("file is required")
	}
	if len(req.Data) > MaxUploadSize {
		return "", apperrors.Validation("file exceeds the %d MB limit", MaxUploadSize>>20)
	}

	contentType, _, err := mime.ParseMediaType(req.ContentType)
	if err != nil {
		return "", apperrors.Validation("invalid content type %q", req.ContentType)
	}
	if _, ok := allowedContentTypes[contentType]; !ok {
		return "", apperrors.Validation("unsupported content type %q", contentType)
	}

	if strings.TrimSpace(req.Title) == "" {
		return "", apperrors.Validation("title is required")
	}
	if req.Topic == "" {
		return "", apperrors.Validation("topic is required")
	}
	if !req.Topic.IsValid() {
		return "", apperrors.Validation("invalid topic %q", req.Topic)
	}
	if req.JLPTLevel != "" && !req.JLPTLevel.IsValid() {
		return "", apperrors.Validation("invalid jlptLevel %q", req.JLPTLevel)
	}
	if req.ThumbnailColor != "" && !req.ThumbnailColor.IsValid() {
		return "", apperrors.Validation("invalid thumbnailColor %q", req.ThumbnailColor)
	}

	return contentType, nil
}

// dispatchProcessing hands the record to the background runner, a failure only gets logged
func (s *pipelineService) dispatchProcessing(ctx context.Context, audioID string) {
	if s.dispatcher == nil {
		s.logger.Warn("No dispatcher configured, skipping background processing", zap.String("audio_id", audioID))
		return
	}
	job := tasks.Job{Type: tasks.TypeProcessAudio, AudioID: audioID}
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		s.logger.Error("Failed to dispatch background processing", zap.String("audio_id", audioID), zap.Error(err))
	}
}

// HandleProcessAudio is the job handler of tasks.TypeProcessAudio
func (s *pipelineService) HandleProcessAudio(ctx context.Context, job tasks.Job) error {
	return s.ProcessAudio(ctx, job.AudioID)
}

// ProcessAudio transcribes a record and, if the transcript is not empty, replaces its quizzes.
// A transcription failure ends the run and leaves the record without transcript.
// A generation failure leaves the saved transcript in place.
func (s *pipelineService) ProcessAudio(ctx context.Context, audioID string) error {
	run := s.startRun(ctx, audioID, models.PipelineRunAuto)
	logger := s.logger.With(zap.String("audio_id", audioID), zap.String("run_id", run.ID))

	audio, err := s.audioRepo.GetByID(ctx, audioID)
	if err != nil {
		s.finishRun(ctx, run, err)
		return fmt.Errorf("failed to load audio: %w", err)
	}

	logger.Info("Transcription started")
	result, err := s.transcriber.Transcribe(ctx, audio.AudioURL)
	if err != nil {
		logger.Warn("Transcription failed, skipping quiz generation", zap.Error(err))
		s.finishRun(ctx, run, err)
		return err
	}

	if err := s.audioRepo.UpdateTranscript(ctx, audioID, result.Transcript, result.Segments); err != nil {
		s.finishRun(ctx, run, err)
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	run.TranscriptSaved = true
	cache.InvalidateAudio(ctx, s.cache, s.logger, audioID)
	logger.Info("Transcript saved", zap.Int("length", len(result.Transcript)), zap.String("language", result.Language))

	if strings.TrimSpace(result.Transcript) == "" {
		logger.Info("Transcript is empty, skipping quiz generation")
		s.finishRun(ctx, run, nil)
		return nil
	}

	transcript := result.Transcript
	audio.Transcript = &transcript
	batch, err := s.generateBatch(ctx, audio, s.defaultBatchOptions())
	if err != nil {
		s.finishRun(ctx, run, err)
		return err
	}

	run.QuizzesGenerated = batch.Total
	s.finishRun(ctx, run, nil)
	logger.Info("Background processing finished", zap.Int("quizzes", batch.Total))
	return nil
}

type batchOptions struct {
	includeMCQ  bool
	includeFill bool
	countEach   int
}

func (s *pipelineService) defaultBatchOptions() batchOptions {
	return batchOptions{includeMCQ: true, includeFill: true, countEach: s.opts.CountEach}
}

// GenerateBatch replaces every quiz of a record with newly generated ones
func (s *pipelineService) GenerateBatch(ctx context.Context, req *models.GenerateBatchRequest) (*models.BatchResult, error) {
	opts := s.defaultBatchOptions()
	if req.IncludeMCQ != nil {
		opts.includeMCQ = *req.IncludeMCQ
	}
	if req.IncludeFill != nil {
		opts.includeFill = *req.IncludeFill
	}
	if req.CountEach != 0 {
		opts.countEach = req.CountEach
	}
	if req.AudioID == "" {
		return nil, apperrors.Validation("audioId is required")
	}
	if opts.countEach < 1 || opts.countEach > MaxCountEach {
		return nil, apperrors.Validation("countEach must be between 1 and %d", MaxCountEach)
	}
	if !opts.includeMCQ && !opts.includeFill {
		return nil, apperrors.Validation("at least one quiz type must be included")
	}

	audio, err := s.audioRepo.GetByID(ctx, req.AudioID)
	if err != nil {
		return nil, err
	}
	if !audio.HasTranscript() {
		return nil, apperrors.Precondition("audio %s has no transcript", audio.ID)
	}

	run := s.startRun(ctx, audio.ID, models.PipelineRunRegenerate)
	result, err := s.generateBatch(ctx, audio, opts)
	if err != nil {
		s.finishRun(ctx, run, err)
		return nil, err
	}
	run.QuizzesGenerated = result.Total
	s.finishRun(ctx, run, nil)
	return result, nil
}

// RegenerateAll replaces every quiz of a record using the default batch settings.
// A record without transcript is left untouched and 0 is returned.
func (s *pipelineService) RegenerateAll(ctx context.Context, audioID string) (int, error) {
	audio, err := s.audioRepo.GetByID(ctx, audioID)
	if err != nil {
		return 0, err
	}
	if !audio.HasTranscript() {
		s.logger.Info("Regenerate skipped, audio has no transcript", zap.String("audio_id", audioID))
		return 0, nil
	}

	run := s.startRun(ctx, audioID, models.PipelineRunRegenerate)
	result, err := s.generateBatch(ctx, audio, s.defaultBatchOptions())
	if err != nil {
		s.finishRun(ctx, run, err)
		return 0, err
	}
	run.QuizzesGenerated = result.Total
	s.finishRun(ctx, run, nil)
	return result.Total, nil
}

// generateBatch generates every requested kind concurrently, then deletes the existing quizzes
// and stores the survivors with mcq items first. Individual generation failures are skipped.
func (s *pipelineService) generateBatch(ctx context.Context, audio *models.Audio, opts batchOptions) (*models.BatchResult, error) {
	var kinds []models.QuizType
	if opts.includeMCQ {
		kinds = append(kinds, models.QuizTypeMCQ)
	}
	if opts.includeFill {
		kinds = append(kinds, models.QuizTypeFill)
	}

	generated := make([][]models.QuizPayload, len(kinds))
	var g errgroup.Group
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			payloads, err := s.generateKind(ctx, audio.ID, *audio.Transcript, kind, opts.countEach)
			generated[i] = payloads
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("quiz generation interrupted: %w", err)
	}

	now := time.Now().UTC()
	result := &models.BatchResult{MCQ: []models.Quiz{}, Fill: []models.Quiz{}}
	quizzes := make([]models.Quiz, 0, len(kinds)*opts.countEach)
	for i, kind := range kinds {
		for _, payload := range generated[i] {
			quiz := models.Quiz{
				ID:        uuid.NewString(),
				AudioID:   audio.ID,
				Type:      kind,
				Question:  models.QuestionFor(payload),
				Payload:   payload,
				Order:     len(quizzes),
				CreatedAt: now,
			}
			quizzes = append(quizzes, quiz)
			if kind == models.QuizTypeMCQ {
				result.MCQ = append(result.MCQ, quiz)
			} else {
				result.Fill = append(result.Fill, quiz)
			}
		}
	}

	if err := s.quizRepo.ReplaceForAudio(ctx, audio.ID, quizzes); err != nil {
		return nil, fmt.Errorf("failed to store generated quizzes: %w", err)
	}
	cache.InvalidateAudio(ctx, s.cache, s.logger, audio.ID)

	result.Total = len(quizzes)
	s.logger.Info("Quizzes generated",
		zap.String("audio_id", audio.ID),
		zap.Int("mcq", len(result.MCQ)),
		zap.Int("fill", len(result.Fill)),
	)
	return result, nil
}

// generateKind generates count items of one kind sequentially and returns the ones that succeeded.
// Item failures are skipped, only the end of ctx is returned as an error.
func (s *pipelineService) generateKind(ctx context.Context, audioID, transcript string, kind models.QuizType, count int) ([]models.QuizPayload, error) {
	payloads := make([]models.QuizPayload, 0, count)
	for i := 0; i < count; i++ {
		if i > 0 && !s.pause(ctx) {
			return payloads, ctx.Err()
		}
		if err := ctx.Err(); err != nil {
			return payloads, err
		}
		payload, err := s.generator.Generate(ctx, transcript, kind)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return payloads, ctxErr
			}
			s.logger.Warn("Quiz generation failed, skipping item",
				zap.String("audio_id", audioID),
				zap.String("kind", string(kind)),
				zap.Int("item", i),
				zap.Error(err),
			)
			continue
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}

// pause waits ItemDelay and reports false if ctx ended first
func (s *pipelineService) pause(ctx context.Context) bool {
	if s.opts.ItemDelay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(s.opts.ItemDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// GenerateOne appends one generated item after the existing quizzes of a record
func (s *pipelineService) GenerateOne(ctx context.Context, audioID string, kind models.QuizType) (*models.Quiz, error) {
	audio, err := s.loadForGeneration(ctx, audioID, kind)
	if err != nil {
		return nil, err
	}

	quiz, err := s.appendGenerated(ctx, audio, kind)
	if err != nil {
		return nil, err
	}
	cache.InvalidateAudio(ctx, s.cache, s.logger, audioID)
	return quiz, nil
}

// GenerateMultiple appends up to count generated items, failures are logged and skipped
func (s *pipelineService) GenerateMultiple(ctx context.Context, audioID string, kind models.QuizType, count int) ([]models.Quiz, error) {
	if count < 1 || count > MaxGenerateCount {
		return nil, apperrors.Validation("count must be between 1 and %d", MaxGenerateCount)
	}
	audio, err := s.loadForGeneration(ctx, audioID, kind)
	if err != nil {
		return nil, err
	}

	quizzes := make([]models.Quiz, 0, count)
	for i := 0; i < count; i++ {
		if i > 0 && !s.pause(ctx) {
			break
		}
		quiz, err := s.appendGenerated(ctx, audio, kind)
		if err != nil {
			s.logger.Warn("Quiz generation failed, skipping item",
				zap.String("audio_id", audioID),
				zap.String("kind", string(kind)),
				zap.Int("item", i),
				zap.Error(err),
			)
			continue
		}
		quizzes = append(quizzes, *quiz)
	}

	if len(quizzes) > 0 {
		cache.InvalidateAudio(ctx, s.cache, s.logger, audioID)
	}
	return quizzes, nil
}

func (s *pipelineService) loadForGeneration(ctx context.Context, audioID string, kind models.QuizType) (*models.Audio, error) {
	if audioID == "" {
		return nil, apperrors.Validation("audioId is required")
	}
	if !kind.IsGeneratable() {
		return nil, apperrors.Validation("quiz type %q cannot be generated", kind)
	}

	audio, err := s.audioRepo.GetByID(ctx, audioID)
	if err != nil {
		return nil, err
	}
	if !audio.HasTranscript() {
		return nil, apperrors.Precondition("audio %s has no transcript, generate it first", audioID)
	}
	return audio, nil
}

func (s *pipelineService) appendGenerated(ctx context.Context, audio *models.Audio, kind models.QuizType) (*models.Quiz, error) {
	payload, err := s.generator.Generate(ctx, *audio.Transcript, kind)
	if err != nil {
		return nil, err
	}

	order, err := s.quizRepo.CountByAudio(ctx, audio.ID)
	if err != nil {
		return nil, err
	}

	quiz := &models.Quiz{
		ID:        uuid.NewString(),
		AudioID:   audio.ID,
		Type:      kind,
		Question:  models.QuestionFor(payload),
		Payload:   payload,
		Order:     order,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.quizRepo.Create(ctx, quiz); err != nil {
		return nil, err
	}
	return quiz, nil
}

// GenerateTranscript returns the stored transcript of a record or transcribes it now
func (s *pipelineService) GenerateTranscript(ctx context.Context, audioID string) (*models.TranscriptResult, error) {
	audio, err := s.audioRepo.GetByID(ctx, audioID)
	if err != nil {
		return nil, err
	}
	if audio.HasTranscript() {
		return &models.TranscriptResult{
			AudioID:    audioID,
			Transcript: *audio.Transcript,
			Segments:   audio.TranscriptJSON,
			Cached:     true,
		}, nil
	}

	run := s.startRun(ctx, audioID, models.PipelineRunTranscribe)
	result, err := s.transcriber.Transcribe(ctx, audio.AudioURL)
	if err != nil {
		s.finishRun(ctx, run, err)
		return nil, err
	}

	if err := s.audioRepo.UpdateTranscript(ctx, audioID, result.Transcript, result.Segments); err != nil {
		s.finishRun(ctx, run, err)
		return nil, fmt.Errorf("failed to save transcript: %w", err)
	}
	run.TranscriptSaved = true
	s.finishRun(ctx, run, nil)
	cache.InvalidateAudio(ctx, s.cache, s.logger, audioID)

	return &models.TranscriptResult{
		AudioID:    audioID,
		Transcript: result.Transcript,
		Segments:   result.Segments,
		Cached:     false,
	}, nil
}

// ListRuns returns the latest pipeline runs of a record
func (s *pipelineService) ListRuns(ctx context.Context, audioID string, limit int) ([]models.PipelineRun, error) {
	if _, err := s.audioRepo.GetByID(ctx, audioID); err != nil {
		return nil, err
	}
	return s.runRepo.ListByAudio(ctx, audioID, limit)
}

// startRun records the start of a run, a recording failure does not stop the run
func (s *pipelineService) startRun(ctx context.Context, audioID string, kind models.PipelineRunKind) *models.PipelineRun {
	run := &models.PipelineRun{
		ID:        uuid.NewString(),
		AudioID:   audioID,
		Kind:      kind,
		Status:    models.PipelineRunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		s.logger.Warn("Failed to record pipeline run", zap.String("audio_id", audioID), zap.Error(err))
	}
	return run
}

// finishRun stores the outcome even when ctx has already been cancelled
func (s *pipelineService) finishRun(ctx context.Context, run *models.PipelineRun, runErr error) {
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Status = models.PipelineRunCompleted
	if runErr != nil {
		run.Status = models.PipelineRunFailed
		run.Error = runErr.Error()
	}
	if err := s.runRepo.Finish(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("Failed to record pipeline run outcome", zap.String("run_id", run.ID), zap.Error(err))
	}
}
