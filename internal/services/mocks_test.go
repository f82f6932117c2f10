package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/japanesestudent/listening-service/internal/apperrors"
	"github.com/japanesestudent/listening-service/internal/models"
	"github.com/japanesestudent/listening-service/internal/tasks"
	"github.com/japanesestudent/listening-service/internal/transcription"
)

// mockAudioRepository is an in-memory implementation of AudioRepository
type mockAudioRepository struct {
	mu        sync.Mutex
	audios    map[string]*models.Audio
	counts    map[models.Topic]int
	createErr error
	updateErr error
	deleteErr error
	listCalls int
	getCalls  int
}

func newMockAudioRepository(audios ...*models.Audio) *mockAudioRepository {
	m := &mockAudioRepository{audios: make(map[string]*models.Audio)}
	for _, audio := range audios {
		m.audios[audio.ID] = audio
	}
	return m
}

func (m *mockAudioRepository) Create(ctx context.Context, audio *models.Audio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	copied := *audio
	m.audios[audio.ID] = &copied
	return nil
}

func (m *mockAudioRepository) GetByID(ctx context.Context, id string) (*models.Audio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	audio, ok := m.audios[id]
	if !ok {
		return nil, apperrors.NotFound("audio")
	}
	copied := *audio
	return &copied, nil
}

func (m *mockAudioRepository) List(ctx context.Context, filter models.AudioFilter) ([]models.AudioListItem, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	items := make([]models.AudioListItem, 0)
	for _, audio := range m.audios {
		if !filter.IncludeUnpublished && !audio.IsPublished {
			continue
		}
		items = append(items, models.AudioListItem{Audio: *audio})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, len(items), nil
}

func (m *mockAudioRepository) CountPublishedByTopic(ctx context.Context) (map[models.Topic]int, error) {
	return m.counts, nil
}

func (m *mockAudioRepository) Update(ctx context.Context, audio *models.Audio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	copied := *audio
	m.audios[audio.ID] = &copied
	return nil
}

func (m *mockAudioRepository) UpdateTranscript(ctx context.Context, id, transcript string, segments json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	audio, ok := m.audios[id]
	if !ok {
		return apperrors.NotFound("audio")
	}
	audio.Transcript = &transcript
	audio.TranscriptJSON = segments
	return nil
}

func (m *mockAudioRepository) SetPublished(ctx context.Context, id string, published bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	audio, ok := m.audios[id]
	if !ok {
		return apperrors.NotFound("audio")
	}
	audio.IsPublished = published
	return nil
}

func (m *mockAudioRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.audios[id]; !ok {
		return apperrors.NotFound("audio")
	}
	delete(m.audios, id)
	return nil
}

func (m *mockAudioRepository) get(id string) *models.Audio {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audios[id]
}

// mockQuizRepository is an in-memory implementation of QuizRepository
type mockQuizRepository struct {
	mu           sync.Mutex
	quizzes      []models.Quiz
	replaceErr   error
	createErr    error
	replaceCalls int
}

func (m *mockQuizRepository) Create(ctx context.Context, quiz *models.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.quizzes = append(m.quizzes, *quiz)
	return nil
}

func (m *mockQuizRepository) GetByID(ctx context.Context, id string) (*models.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, quiz := range m.quizzes {
		if quiz.ID == id {
			copied := quiz
			return &copied, nil
		}
	}
	return nil, apperrors.NotFound("quiz")
}

func (m *mockQuizRepository) ListByAudio(ctx context.Context, audioID string, quizType models.QuizType) ([]models.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]models.Quiz, 0)
	for _, quiz := range m.quizzes {
		if quiz.AudioID == audioID && (quizType == "" || quiz.Type == quizType) {
			result = append(result, quiz)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Order < result[j].Order })
	return result, nil
}

func (m *mockQuizRepository) CountByAudio(ctx context.Context, audioID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, quiz := range m.quizzes {
		if quiz.AudioID == audioID {
			count++
		}
	}
	return count, nil
}

func (m *mockQuizRepository) Update(ctx context.Context, quiz *models.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.quizzes {
		if m.quizzes[i].ID == quiz.ID {
			m.quizzes[i] = *quiz
			return nil
		}
	}
	return apperrors.NotFound("quiz")
}

func (m *mockQuizRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.quizzes {
		if m.quizzes[i].ID == id {
			m.quizzes = append(m.quizzes[:i], m.quizzes[i+1:]...)
			return nil
		}
	}
	return apperrors.NotFound("quiz")
}

func (m *mockQuizRepository) DeleteByAudio(ctx context.Context, audioID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]models.Quiz, 0, len(m.quizzes))
	for _, quiz := range m.quizzes {
		if quiz.AudioID != audioID {
			kept = append(kept, quiz)
		}
	}
	deleted := int64(len(m.quizzes) - len(kept))
	m.quizzes = kept
	return deleted, nil
}

func (m *mockQuizRepository) ReplaceForAudio(ctx context.Context, audioID string, quizzes []models.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceCalls++
	if m.replaceErr != nil {
		return m.replaceErr
	}
	kept := make([]models.Quiz, 0, len(m.quizzes)+len(quizzes))
	for _, quiz := range m.quizzes {
		if quiz.AudioID != audioID {
			kept = append(kept, quiz)
		}
	}
	m.quizzes = append(kept, quizzes...)
	return nil
}

func (m *mockQuizRepository) all() []models.Quiz {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Quiz(nil), m.quizzes...)
}

// mockPipelineRunRepository records runs in memory
type mockPipelineRunRepository struct {
	mu   sync.Mutex
	runs map[string]models.PipelineRun
}

func newMockPipelineRunRepository() *mockPipelineRunRepository {
	return &mockPipelineRunRepository{runs: make(map[string]models.PipelineRun)}
}

func (m *mockPipelineRunRepository) Create(ctx context.Context, run *models.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *mockPipelineRunRepository) Finish(ctx context.Context, run *models.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *mockPipelineRunRepository) ListByAudio(ctx context.Context, audioID string, limit int) ([]models.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]models.PipelineRun, 0)
	for _, run := range m.runs {
		if run.AudioID == audioID {
			runs = append(runs, run)
		}
	}
	return runs, nil
}

func (m *mockPipelineRunRepository) only() models.PipelineRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, run := range m.runs {
		return run
	}
	return models.PipelineRun{}
}

func (m *mockPipelineRunRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// mockMediaStore is a mock implementation of MediaStore
type mockMediaStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	putErr     error
	deleteErr  error
	deleteKeys []string
}

func newMockMediaStore() *mockMediaStore {
	return &mockMediaStore{objects: make(map[string][]byte)}
}

func (m *mockMediaStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return "", m.putErr
	}
	m.objects[key] = data
	return "http://media.test/uploads/" + key, nil
}

func (m *mockMediaStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteKeys = append(m.deleteKeys, key)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}

// mockProber returns a fixed duration
type mockProber struct {
	duration int
}

func (m *mockProber) Probe(ctx context.Context, data []byte, filename string) int {
	return m.duration
}

// mockTranscriber returns a fixed result or error
type mockTranscriber struct {
	mu      sync.Mutex
	result  *transcription.Result
	err     error
	calls   int
	locator string
}

func (m *mockTranscriber) Transcribe(ctx context.Context, locator string) (*transcription.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.locator = locator
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockGenerator returns canned payloads per kind, failing the calls listed in failOn.
// A kind listed in waitFor blocks until its channel is closed, a kind listed in onCall runs its hook.
type mockGenerator struct {
	mu      sync.Mutex
	errs    map[models.QuizType]error
	failOn  map[models.QuizType]map[int]bool
	calls   map[models.QuizType]int
	waitFor map[models.QuizType]chan struct{}
	onCall  map[models.QuizType]func()
}

func newMockGenerator() *mockGenerator {
	return &mockGenerator{
		errs:    make(map[models.QuizType]error),
		failOn:  make(map[models.QuizType]map[int]bool),
		calls:   make(map[models.QuizType]int),
		waitFor: make(map[models.QuizType]chan struct{}),
		onCall:  make(map[models.QuizType]func()),
	}
}

func (m *mockGenerator) Generate(ctx context.Context, transcript string, kind models.QuizType) (models.QuizPayload, error) {
	m.mu.Lock()
	wait := m.waitFor[kind]
	hook := m.onCall[kind]
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if wait != nil {
		select {
		case <-wait:
		case <-time.After(2 * time.Second):
			return nil, &apperrors.UpstreamError{Service: "llm", Timeout: true, Message: "blocked kind was never released"}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	call := m.calls[kind]
	m.calls[kind]++
	if err := m.errs[kind]; err != nil {
		return nil, err
	}
	if m.failOn[kind][call] {
		return nil, &apperrors.UpstreamError{Service: "llm", Parse: true, Message: "bad json"}
	}
	switch kind {
	case models.QuizTypeMCQ:
		return models.MultipleChoice{Question: "何をしますか？", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 1}, nil
	case models.QuizTypeFill:
		return models.FillBlank{Sentence: "毎朝＿＿＿を飲みます", BlankWord: "コーヒー", Options: []string{"コーヒー", "お茶"}}, nil
	}
	return nil, apperrors.Validation("unsupported")
}

func (m *mockGenerator) callsFor(kind models.QuizType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

// mockDispatcher records dispatched jobs
type mockDispatcher struct {
	mu   sync.Mutex
	jobs []tasks.Job
	err  error
}

func (m *mockDispatcher) Dispatch(ctx context.Context, job tasks.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *mockDispatcher) Shutdown(ctx context.Context) error {
	return nil
}

func strPtr(s string) *string {
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}

func intPtr(i int) *int {
	return &i
}

func testAudio(id string, transcript *string) *models.Audio {
	now := time.Now().UTC()
	return &models.Audio{
		ID:             id,
		Title:          "駅で",
		Topic:          models.TopicTravel,
		JLPTLevel:      models.LevelN3,
		AudioURL:       "http://media.test/uploads/audio/" + id + ".mp3",
		StorageKey:     "audio/" + id + ".mp3",
		Duration:       90,
		ThumbnailColor: models.ColorMint,
		Transcript:     transcript,
		IsPublished:    true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
