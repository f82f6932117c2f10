package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/japanesestudent/listening-service/internal/apperrors"
	"github.com/japanesestudent/listening-service/internal/cache"
	"github.com/japanesestudent/listening-service/internal/models"
	"github.com/japanesestudent/listening-service/internal/storage"
	"go.uber.org/zap"
)

// Catalogue paging limits
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// AudioRepository defines methods for audio record data access
type AudioRepository interface {
	// Method Create inserts a new audio record.
	//
	// If some error will occur during data insert, the error will be returned.
	Create(ctx context.Context, audio *models.Audio) error
	// Method GetByID retrieves an audio record by its ID.
	//
	// A missing record is reported with an error wrapping apperrors.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Audio, error)
	// Method List retrieves a page of records with their quiz counts, newest first.
	//
	// "filter" parameter holds the topic, level, visibility and paging options.
	//
	// Returns the page items and the total number of matching records.
	List(ctx context.Context, filter models.AudioFilter) ([]models.AudioListItem, int, error)
	// Method CountPublishedByTopic returns the number of published records per topic.
	CountPublishedByTopic(ctx context.Context) (map[models.Topic]int, error)
	// Method Update writes the editable fields of a record.
	Update(ctx context.Context, audio *models.Audio) error
	// Method UpdateTranscript stores the transcript text and its segments.
	UpdateTranscript(ctx context.Context, id, transcript string, segments json.RawMessage) error
	// Method SetPublished changes the visibility of a record.
	SetPublished(ctx context.Context, id string, published bool) error
	// Method Delete removes a record together with its quizzes.
	Delete(ctx context.Context, id string) error
}

// topicInfo holds the display attributes of a topic
var topicInfo = map[models.Topic]struct {
	name string
	icon string
}{
	models.TopicDaily:    {name: "日常会話", icon: "💬"},
	models.TopicBusiness: {name: "ビジネス", icon: "💼"},
	models.TopicTravel:   {name: "旅行", icon: "✈️"},
	models.TopicCulture:  {name: "文化", icon: "🏯"},
}

// audioService implements the audio catalogue
type audioService struct {
	audioRepo AudioRepository
	quizRepo  QuizRepository
	store     MediaStore
	cache     cache.Cache
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewAudioService creates a new audio service
func NewAudioService(audioRepo AudioRepository, quizRepo QuizRepository, store MediaStore, c cache.Cache, cacheTTL time.Duration, logger *zap.Logger) *audioService {
	return &audioService{
		audioRepo: audioRepo,
		quizRepo:  quizRepo,
		store:     store,
		cache:     c,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// List returns a page of the catalogue
func (s *audioService) List(ctx context.Context, filter models.AudioFilter) (*models.AudioPage, error) {
	if filter.Topic != "" && !filter.Topic.IsValid() {
		return nil, apperrors.Validation("invalid topic %q", filter.Topic)
	}
	if filter.JLPTLevel != "" && !filter.JLPTLevel.IsValid() {
		return nil, apperrors.Validation("invalid jlptLevel %q", filter.JLPTLevel)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = DefaultPageLimit
	}
	if filter.Limit > MaxPageLimit {
		filter.Limit = MaxPageLimit
	}

	key := cache.AudioListKey(filter)
	var page models.AudioPage
	if s.getCached(ctx, key, &page) {
		return &page, nil
	}

	items, total, err := s.audioRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	page = models.AudioPage{
		Data:       items,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: (total + filter.Limit - 1) / filter.Limit,
	}
	s.setCached(ctx, key, page)
	return &page, nil
}

// GetDetail returns a record with its quizzes in display order
func (s *audioService) GetDetail(ctx context.Context, id string) (*models.AudioDetail, error) {
	key := cache.AudioKey(id)
	var detail models.AudioDetail
	if s.getCached(ctx, key, &detail) {
		return &detail, nil
	}

	audio, err := s.audioRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	quizzes, err := s.quizRepo.ListByAudio(ctx, id, "")
	if err != nil {
		return nil, err
	}

	detail = models.AudioDetail{Audio: *audio, Quizzes: quizzes}
	s.setCached(ctx, key, detail)
	return &detail, nil
}

// TopicStats returns the number of published records of every topic
func (s *audioService) TopicStats(ctx context.Context) ([]models.TopicStat, error) {
	key := cache.TopicsKey()
	var stats []models.TopicStat
	if s.getCached(ctx, key, &stats) {
		return stats, nil
	}

	counts, err := s.audioRepo.CountPublishedByTopic(ctx)
	if err != nil {
		return nil, err
	}

	stats = make([]models.TopicStat, 0, len(models.Topics))
	for _, topic := range models.Topics {
		info := topicInfo[topic]
		stats = append(stats, models.TopicStat{
			ID:    topic,
			Name:  info.name,
			Color: string(topic.DefaultColor()),
			Icon:  info.icon,
			Count: counts[topic],
		})
	}
	s.setCached(ctx, key, stats)
	return stats, nil
}

// Create registers a record for media that is already stored
func (s *audioService) Create(ctx context.Context, req *models.CreateAudioRequest) (*models.Audio, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, apperrors.Validation("title is required")
	}
	if !req.Topic.IsValid() {
		return nil, apperrors.Validation("invalid topic %q", req.Topic)
	}
	if strings.TrimSpace(req.AudioURL) == "" {
		return nil, apperrors.Validation("audioUrl is required")
	}
	level := req.JLPTLevel
	if level == "" {
		level = models.DefaultLevel
	}
	if !level.IsValid() {
		return nil, apperrors.Validation("invalid jlptLevel %q", level)
	}
	color := req.ThumbnailColor
	if color == "" {
		color = req.Topic.DefaultColor()
	}
	if !color.IsValid() {
		return nil, apperrors.Validation("invalid thumbnailColor %q", color)
	}
	duration := req.Duration
	if duration < 1 {
		duration = models.DefaultDuration
	}

	now := time.Now().UTC()
	audio := &models.Audio{
		ID:             uuid.NewString(),
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Topic:          req.Topic,
		JLPTLevel:      level,
		AudioURL:       req.AudioURL,
		StorageKey:     storage.KeyFromURL(req.AudioURL),
		Duration:       duration,
		ThumbnailColor: color,
		Transcript:     req.Transcript,
		IsPublished:    true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.audioRepo.Create(ctx, audio); err != nil {
		return nil, err
	}

	cache.InvalidateAudio(ctx, s.cache, s.logger, "")
	return audio, nil
}

// Update applies a partial update to a record
func (s *audioService) Update(ctx context.Context, id string, req *models.UpdateAudioRequest) (*models.Audio, error) {
	audio, err := s.audioRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, apperrors.Validation("title cannot be empty")
		}
		audio.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		audio.Description = *req.Description
	}
	if req.Topic != nil {
		if !req.Topic.IsValid() {
			return nil, apperrors.Validation("invalid topic %q", *req.Topic)
		}
		audio.Topic = *req.Topic
	}
	if req.JLPTLevel != nil {
		if !req.JLPTLevel.IsValid() {
			return nil, apperrors.Validation("invalid jlptLevel %q", *req.JLPTLevel)
		}
		audio.JLPTLevel = *req.JLPTLevel
	}
	if req.ThumbnailColor != nil {
		if !req.ThumbnailColor.IsValid() {
			return nil, apperrors.Validation("invalid thumbnailColor %q", *req.ThumbnailColor)
		}
		audio.ThumbnailColor = *req.ThumbnailColor
	}
	if req.Transcript != nil {
		audio.Transcript = req.Transcript
	}
	if req.IsPublished != nil {
		audio.IsPublished = *req.IsPublished
	}

	if err := s.audioRepo.Update(ctx, audio); err != nil {
		return nil, err
	}
	audio.UpdatedAt = time.Now().UTC()

	cache.InvalidateAudio(ctx, s.cache, s.logger, id)
	return audio, nil
}

// SetPublished shows or hides a record in the public catalogue and returns the updated record
func (s *audioService) SetPublished(ctx context.Context, id string, published bool) (*models.Audio, error) {
	if err := s.audioRepo.SetPublished(ctx, id, published); err != nil {
		return nil, err
	}
	cache.InvalidateAudio(ctx, s.cache, s.logger, id)
	return s.audioRepo.GetByID(ctx, id)
}

// Delete removes a record and its quizzes, then removes the stored media.
// A failure to remove the media is logged and does not fail the call.
func (s *audioService) Delete(ctx context.Context, id string) error {
	audio, err := s.audioRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.audioRepo.Delete(ctx, id); err != nil {
		return err
	}
	cache.InvalidateAudio(ctx, s.cache, s.logger, id)

	key := audio.StorageKey
	if key == "" {
		key = storage.KeyFromURL(audio.AudioURL)
	}
	if key == "" {
		s.logger.Warn("Stored media of deleted audio could not be located", zap.String("audio_id", id), zap.String("url", audio.AudioURL))
		return nil
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn("Failed to delete stored media", zap.String("audio_id", id), zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (s *audioService) getCached(ctx context.Context, key string, dest any) bool {
	ok, err := cache.GetJSON(ctx, s.cache, key, dest)
	if err != nil {
		s.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

func (s *audioService) setCached(ctx context.Context, key string, value any) {
	if err := cache.SetJSON(ctx, s.cache, key, value, s.cacheTTL); err != nil {
		s.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}
