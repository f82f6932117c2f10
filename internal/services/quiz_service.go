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
	"go.uber.org/zap"
)

// QuizRepository defines methods for quiz data access
type QuizRepository interface {
	// Method Create inserts a new quiz.
	//
	// If some error will occur during data insert, the error will be returned.
	Create(ctx context.Context, quiz *models.Quiz) error
	// Method GetByID retrieves a quiz by its ID.
	//
	// A missing quiz is reported with an error wrapping apperrors.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Quiz, error)
	// Method ListByAudio retrieves the quizzes of an audio record in display order.
	//
	// "quizType" parameter filters by type, an empty value returns every type.
	ListByAudio(ctx context.Context, audioID string, quizType models.QuizType) ([]models.Quiz, error)
	// Method CountByAudio returns the number of quizzes of an audio record.
	CountByAudio(ctx context.Context, audioID string) (int, error)
	// Method Update writes the question, payload and order of a quiz.
	Update(ctx context.Context, quiz *models.Quiz) error
	// Method Delete removes a quiz.
	Delete(ctx context.Context, id string) error
	// Method DeleteByAudio removes every quiz of an audio record and returns how many were removed.
	DeleteByAudio(ctx context.Context, audioID string) (int64, error)
	// Method ReplaceForAudio deletes every quiz of an audio record and inserts the given ones atomically.
	ReplaceForAudio(ctx context.Context, audioID string, quizzes []models.Quiz) error
}

// quizService implements quiz management and answer checking
type quizService struct {
	quizRepo  QuizRepository
	audioRepo AudioRepository
	cache     cache.Cache
	logger    *zap.Logger
}

// NewQuizService creates a new quiz service
func NewQuizService(quizRepo QuizRepository, audioRepo AudioRepository, c cache.Cache, logger *zap.Logger) *quizService {
	return &quizService{
		quizRepo:  quizRepo,
		audioRepo: audioRepo,
		cache:     c,
		logger:    logger,
	}
}

// ListByAudio returns the quizzes of a record, optionally of one type
func (s *quizService) ListByAudio(ctx context.Context, audioID string, quizType models.QuizType) ([]models.Quiz, error) {
	if quizType != "" && !quizType.IsValid() {
		return nil, apperrors.Validation("invalid quiz type %q", quizType)
	}
	return s.quizRepo.ListByAudio(ctx, audioID, quizType)
}

// GetByID returns a single quiz
func (s *quizService) GetByID(ctx context.Context, id string) (*models.Quiz, error) {
	return s.quizRepo.GetByID(ctx, id)
}

// Create adds a hand-written quiz, appended after the existing ones unless an order is given
func (s *quizService) Create(ctx context.Context, req *models.CreateQuizRequest) (*models.Quiz, error) {
	if req.AudioID == "" {
		return nil, apperrors.Validation("audioId is required")
	}
	if !req.Type.IsGeneratable() {
		return nil, apperrors.Validation("quiz type must be %q or %q", models.QuizTypeMCQ, models.QuizTypeFill)
	}
	payload, err := models.DecodePayload(req.Type, req.Data)
	if err != nil {
		return nil, apperrors.Validation("invalid dataJson: %v", err)
	}
	if req.Order != nil && *req.Order < 0 {
		return nil, apperrors.Validation("order must not be negative")
	}

	if _, err := s.audioRepo.GetByID(ctx, req.AudioID); err != nil {
		return nil, err
	}

	question := models.QuestionFor(payload)
	if req.Question != nil && strings.TrimSpace(*req.Question) != "" {
		question = *req.Question
	}

	var order int
	if req.Order != nil {
		order = *req.Order
	} else if order, err = s.quizRepo.CountByAudio(ctx, req.AudioID); err != nil {
		return nil, err
	}

	quiz := &models.Quiz{
		ID:        uuid.NewString(),
		AudioID:   req.AudioID,
		Type:      req.Type,
		Question:  question,
		Payload:   payload,
		Order:     order,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.quizRepo.Create(ctx, quiz); err != nil {
		return nil, err
	}

	cache.InvalidateAudio(ctx, s.cache, s.logger, req.AudioID)
	return quiz, nil
}

// Update applies a partial update, a new payload is validated against the quiz type
func (s *quizService) Update(ctx context.Context, id string, req *models.UpdateQuizRequest) (*models.Quiz, error) {
	quiz, err := s.quizRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if len(req.Data) > 0 {
		payload, err := models.DecodePayload(quiz.Type, req.Data)
		if err != nil {
			return nil, apperrors.Validation("invalid dataJson: %v", err)
		}
		quiz.Payload = payload
	}
	if req.Question != nil {
		quiz.Question = *req.Question
	}
	if req.Order != nil {
		if *req.Order < 0 {
			return nil, apperrors.Validation("order must not be negative")
		}
		quiz.Order = *req.Order
	}

	if err := s.quizRepo.Update(ctx, quiz); err != nil {
		return nil, err
	}

	cache.InvalidateAudio(ctx, s.cache, s.logger, quiz.AudioID)
	return quiz, nil
}

// Delete removes a single quiz
func (s *quizService) Delete(ctx context.Context, id string) error {
	quiz, err := s.quizRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.quizRepo.Delete(ctx, id); err != nil {
		return err
	}

	cache.InvalidateAudio(ctx, s.cache, s.logger, quiz.AudioID)
	return nil
}

// DeleteByAudio removes every quiz of a record
func (s *quizService) DeleteByAudio(ctx context.Context, audioID string) (int64, error) {
	deleted, err := s.quizRepo.DeleteByAudio(ctx, audioID)
	if err != nil {
		return 0, err
	}

	cache.InvalidateAudio(ctx, s.cache, s.logger, audioID)
	return deleted, nil
}

// SubmitAnswer evaluates a learner answer
func (s *quizService) SubmitAnswer(ctx context.Context, quizID string, answer json.RawMessage) (*models.AnswerResult, error) {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return Evaluate(quiz, answer)
}
