package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/japanesestudent/listening-service/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockAudioService is a mock implementation of AudioService
type mockAudioService struct {
	page       *models.AudioPage
	detail     *models.AudioDetail
	stats      []models.TopicStat
	audio      *models.Audio
	err        error
	lastFilter models.AudioFilter
	lastCreate *models.CreateAudioRequest
	lastUpdate *models.UpdateAudioRequest
	published  *bool
	deletedID  string
}

func (m *mockAudioService) List(ctx context.Context, filter models.AudioFilter) (*models.AudioPage, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	return m.page, nil
}

func (m *mockAudioService) GetDetail(ctx context.Context, id string) (*models.AudioDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.detail, nil
}

func (m *mockAudioService) TopicStats(ctx context.Context) ([]models.TopicStat, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stats, nil
}

func (m *mockAudioService) Create(ctx context.Context, req *models.CreateAudioRequest) (*models.Audio, error) {
	m.lastCreate = req
	if m.err != nil {
		return nil, m.err
	}
	return m.audio, nil
}

func (m *mockAudioService) Update(ctx context.Context, id string, req *models.UpdateAudioRequest) (*models.Audio, error) {
	m.lastUpdate = req
	if m.err != nil {
		return nil, m.err
	}
	return m.audio, nil
}

func (m *mockAudioService) SetPublished(ctx context.Context, id string, published bool) (*models.Audio, error) {
	m.published = &published
	if m.err != nil {
		return nil, m.err
	}
	return m.audio, nil
}

func (m *mockAudioService) Delete(ctx context.Context, id string) error {
	m.deletedID = id
	return m.err
}

// mockIngestService is a mock implementation of IngestService
type mockIngestService struct {
	audio      *models.Audio
	runs       []models.PipelineRun
	err        error
	lastUpload *models.UploadAudioRequest
	runsLimit  int
}

func (m *mockIngestService) Ingest(ctx context.Context, req *models.UploadAudioRequest) (*models.Audio, error) {
	m.lastUpload = req
	if m.err != nil {
		return nil, m.err
	}
	return m.audio, nil
}

func (m *mockIngestService) ListRuns(ctx context.Context, audioID string, limit int) ([]models.PipelineRun, error) {
	m.runsLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.runs, nil
}

// mockQuizService is a mock implementation of QuizService
type mockQuizService struct {
	quiz       *models.Quiz
	quizzes    []models.Quiz
	result     *models.AnswerResult
	err        error
	lastType   models.QuizType
	lastAnswer json.RawMessage
}

func (m *mockQuizService) ListByAudio(ctx context.Context, audioID string, quizType models.QuizType) ([]models.Quiz, error) {
	m.lastType = quizType
	if m.err != nil {
		return nil, m.err
	}
	return m.quizzes, nil
}

func (m *mockQuizService) GetByID(ctx context.Context, id string) (*models.Quiz, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.quiz, nil
}

func (m *mockQuizService) Create(ctx context.Context, req *models.CreateQuizRequest) (*models.Quiz, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.quiz, nil
}

func (m *mockQuizService) Update(ctx context.Context, id string, req *models.UpdateQuizRequest) (*models.Quiz, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.quiz, nil
}

func (m *mockQuizService) Delete(ctx context.Context, id string) error {
	return m.err
}

func (m *mockQuizService) DeleteByAudio(ctx context.Context, audioID string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return int64(len(m.quizzes)), nil
}

func (m *mockQuizService) SubmitAnswer(ctx context.Context, quizID string, answer json.RawMessage) (*models.AnswerResult, error) {
	m.lastAnswer = answer
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockGenerationService is a mock implementation of GenerationService
type mockGenerationService struct {
	quiz          *models.Quiz
	quizzes       []models.Quiz
	batch         *models.BatchResult
	count         int
	err           error
	oneCalls      int
	multipleCount int
}

func (m *mockGenerationService) GenerateOne(ctx context.Context, audioID string, kind models.QuizType) (*models.Quiz, error) {
	m.oneCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.quiz, nil
}

func (m *mockGenerationService) GenerateMultiple(ctx context.Context, audioID string, kind models.QuizType, count int) ([]models.Quiz, error) {
	m.multipleCount = count
	if m.err != nil {
		return nil, m.err
	}
	return m.quizzes, nil
}

func (m *mockGenerationService) GenerateBatch(ctx context.Context, req *models.GenerateBatchRequest) (*models.BatchResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.batch, nil
}

func (m *mockGenerationService) RegenerateAll(ctx context.Context, audioID string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.count, nil
}

// mockTranscriptService is a mock implementation of TranscriptService
type mockTranscriptService struct {
	result *models.TranscriptResult
	err    error
	delay  time.Duration
	ctxErr error
}

func (m *mockTranscriptService) GenerateTranscript(ctx context.Context, audioID string) (*models.TranscriptResult, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.ctxErr = ctx.Err()
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockHealthChecker reports a fixed health state
type mockHealthChecker struct {
	healthy bool
}

func (m *mockHealthChecker) CheckHealth(ctx context.Context) bool {
	return m.healthy
}

// mockPinger returns a fixed ping error
type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

type testServices struct {
	audio      *mockAudioService
	ingest     *mockIngestService
	quiz       *mockQuizService
	generation *mockGenerationService
	transcript *mockTranscriptService
}

func newTestServices() *testServices {
	return &testServices{
		audio:      &mockAudioService{},
		ingest:     &mockIngestService{},
		quiz:       &mockQuizService{},
		generation: &mockGenerationService{},
		transcript: &mockTranscriptService{},
	}
}

// router wires every handler the way the api command does
func (s *testServices) router() chi.Router {
	logger := zap.NewNop()
	audioHandler := NewAudioHandler(s.audio, s.ingest, logger)
	quizHandler := NewQuizHandler(s.quiz, s.generation, time.Minute, logger)
	transcriptHandler := NewTranscriptHandler(s.transcript, &mockHealthChecker{healthy: true}, time.Minute, logger)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		audioHandler.RegisterRoutes(r, quizHandler.RegisterAudioRoutes, transcriptHandler.RegisterAudioRoutes)
		quizHandler.RegisterRoutes(r)
		transcriptHandler.RegisterRoutes(r)
	})
	return r
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
