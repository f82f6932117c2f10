package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/japanesestudent/listening-service/internal/apperrors"
	"github.com/japanesestudent/listening-service/internal/middlewares"
	"github.com/japanesestudent/listening-service/internal/models"
	"github.com/japanesestudent/listening-service/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioHandler_List(t *testing.T) {
	tests := []struct {
		name           string
		target         string
		expectedFilter models.AudioFilter
	}{
		{
			name:           "defaults",
			target:         "/api/audio",
			expectedFilter: models.AudioFilter{Page: 1, Limit: 10},
		},
		{
			name:           "filters and paging",
			target:         "/api/audio?topic=travel&jlptLevel=N2&page=3&limit=5",
			expectedFilter: models.AudioFilter{Topic: models.TopicTravel, JLPTLevel: models.LevelN2, Page: 3, Limit: 5},
		},
		{
			name:           "malformed paging falls back",
			target:         "/api/audio?page=abc&limit=-4",
			expectedFilter: models.AudioFilter{Page: 1, Limit: 10},
		},
		{
			name:           "admin includes unpublished",
			target:         "/api/audio/admin",
			expectedFilter: models.AudioFilter{IncludeUnpublished: true, Page: 1, Limit: 50},
		},
		{
			name:           "admin published only",
			target:         "/api/audio/admin?includeUnpublished=false&topic=daily",
			expectedFilter: models.AudioFilter{Topic: models.TopicDaily, Page: 1, Limit: 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestServices()
			svc.audio.page = &models.AudioPage{Data: []models.AudioListItem{}, Page: 1, Limit: 10}

			w := doRequest(t, svc.router(), http.MethodGet, tt.target, "")

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.expectedFilter, svc.audio.lastFilter)
			body := decodeBody(t, w)
			assert.Contains(t, body, "data")
			assert.Contains(t, body, "totalPages")
		})
	}
}

func TestAudioHandler_List_InvalidTopic(t *testing.T) {
	svc := newTestServices()
	svc.audio.err = apperrors.Validation("invalid topic %q", "sports")

	w := doRequest(t, svc.router(), http.MethodGet, "/api/audio?topic=sports", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAudioHandler_Topics(t *testing.T) {
	svc := newTestServices()
	svc.audio.stats = []models.TopicStat{{ID: models.TopicDaily, Name: "日常会話", Color: "peach", Icon: "💬", Count: 2}}

	w := doRequest(t, svc.router(), http.MethodGet, "/api/audio/topics", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":"daily","name":"日常会話","color":"peach","icon":"💬","count":2}]`, w.Body.String())
}

func TestAudioHandler_GetByID(t *testing.T) {
	tests := []struct {
		name           string
		detail         *models.AudioDetail
		err            error
		expectedStatus int
	}{
		{
			name:           "success",
			detail:         &models.AudioDetail{Audio: models.Audio{ID: "audio-1"}, Quizzes: []models.Quiz{}},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "not found",
			err:            apperrors.NotFound("audio"),
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestServices()
			svc.audio.detail = tt.detail
			svc.audio.err = tt.err

			w := doRequest(t, svc.router(), http.MethodGet, "/api/audio/audio-1", "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				body := decodeBody(t, w)
				assert.Equal(t, "audio-1", body["id"])
				assert.Contains(t, body, "quizzes")
			}
		})
	}
}

func TestAudioHandler_Runs(t *testing.T) {
	svc := newTestServices()
	svc.ingest.runs = []models.PipelineRun{{ID: "run-1", AudioID: "audio-1", Kind: models.PipelineRunAuto, Status: models.PipelineRunFailed}}

	w := doRequest(t, svc.router(), http.MethodGet, "/api/audio/audio-1/runs?limit=5", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, svc.ingest.runsLimit)
	assert.Contains(t, w.Body.String(), `"status":"failed"`)
}

func TestAudioHandler_Create(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		err            error
		expectedStatus int
	}{
		{
			name:           "success",
			body:           `{"title":"会議","topic":"business","audioUrl":"https://cdn.test/audio/a.mp3","duration":120}`,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "malformed body",
			body:           `{"title":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "validation error",
			body:           `{"topic":"business"}`,
			err:            apperrors.Validation("title is required"),
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestServices()
			svc.audio.audio = &models.Audio{ID: "audio-1", Title: "会議"}
			svc.audio.err = tt.err

			w := doRequest(t, svc.router(), http.MethodPost, "/api/audio", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusCreated {
				assert.Equal(t, 120, svc.audio.lastCreate.Duration)
			}
		})
	}
}

func newUploadRequest(t *testing.T, fields map[string]string, withFile bool) *http.Request {
	t.Helper()
	return newUploadRequestWithData(t, fields, withFile, []byte("ID3 audio bytes"))
}

func newUploadRequestWithData(t *testing.T, fields map[string]string, withFile bool, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, mw.WriteField(key, value))
	}
	if withFile {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="station.mp3"`)
		header.Set("Content-Type", "audio/mpeg")
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/audio/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAudioHandler_Upload(t *testing.T) {
	svc := newTestServices()
	svc.ingest.audio = &models.Audio{ID: "audio-1", Title: "駅で"}
	req := newUploadRequest(t, map[string]string{
		"title":          "駅で",
		"topic":          "travel",
		"jlptLevel":      "N2",
		"autoTranscribe": "true",
	}, true)

	w := httptest.NewRecorder()
	svc.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	upload := svc.ingest.lastUpload
	require.NotNil(t, upload)
	assert.Equal(t, "station.mp3", upload.Filename)
	assert.Equal(t, "audio/mpeg", upload.ContentType)
	assert.Equal(t, []byte("ID3 audio bytes"), upload.Data)
	assert.Equal(t, models.TopicTravel, upload.Topic)
	assert.Equal(t, models.LevelN2, upload.JLPTLevel)
	assert.True(t, upload.AutoProcess)
}

func TestAudioHandler_Upload_AutoTranscribeOff(t *testing.T) {
	svc := newTestServices()
	svc.ingest.audio = &models.Audio{ID: "audio-1"}
	req := newUploadRequest(t, map[string]string{"title": "t", "topic": "daily", "autoTranscribe": "yes"}, true)

	w := httptest.NewRecorder()
	svc.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.False(t, svc.ingest.lastUpload.AutoProcess)
}

func TestAudioHandler_Upload_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		svc := newTestServices()
		req := newUploadRequest(t, map[string]string{"title": "t", "topic": "daily"}, false)

		w := httptest.NewRecorder()
		svc.router().ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "file is required", decodeBody(t, w)["error"])
		assert.Nil(t, svc.ingest.lastUpload)
	})

	t.Run("not multipart", func(t *testing.T) {
		svc := newTestServices()

		w := doRequest(t, svc.router(), http.MethodPost, "/api/audio/upload", `{"title":"t"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("storage failure", func(t *testing.T) {
		svc := newTestServices()
		svc.ingest.err = &apperrors.StorageError{Op: "put", Key: "audio/x.mp3"}
		req := newUploadRequest(t, map[string]string{"title": "t", "topic": "daily"}, true)

		w := httptest.NewRecorder()
		svc.router().ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestAudioHandler_Update(t *testing.T) {
	svc := newTestServices()
	svc.audio.audio = &models.Audio{ID: "audio-1", Title: "新しい"}

	w := doRequest(t, svc.router(), http.MethodPut, "/api/audio/audio-1", `{"title":"新しい","isPublished":false}`)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.audio.lastUpdate.Title)
	assert.Equal(t, "新しい", *svc.audio.lastUpdate.Title)
	require.NotNil(t, svc.audio.lastUpdate.IsPublished)
	assert.False(t, *svc.audio.lastUpdate.IsPublished)
	assert.Nil(t, svc.audio.lastUpdate.Topic)
}

func TestAudioHandler_Publish(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		err            error
		expectedStatus int
	}{
		{
			name:           "unpublish",
			body:           `{"isPublished":false}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing flag",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "not found",
			body:           `{"isPublished":true}`,
			err:            apperrors.NotFound("audio"),
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestServices()
			svc.audio.audio = &models.Audio{ID: "audio-1"}
			svc.audio.err = tt.err

			w := doRequest(t, svc.router(), http.MethodPut, "/api/audio/audio-1/publish", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestAudioHandler_Delete(t *testing.T) {
	svc := newTestServices()

	w := doRequest(t, svc.router(), http.MethodDelete, "/api/audio/audio-1", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "audio-1", svc.audio.deletedID)

	svc.audio.err = apperrors.NotFound("audio")
	w = doRequest(t, svc.router(), http.MethodDelete, "/api/audio/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAudioHandler_Upload_MaxSizeThroughMiddleware(t *testing.T) {
	svc := newTestServices()
	svc.ingest.audio = &models.Audio{ID: "audio-1"}

	r := chi.NewRouter()
	r.Use(middlewares.RequestSizeLimitMiddleware(MaxRequestSize))
	r.Mount("/", svc.router())

	data := bytes.Repeat([]byte{0xff}, services.MaxUploadSize)
	req := newUploadRequestWithData(t, map[string]string{"title": "長い会話", "topic": "daily"}, true, data)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.ingest.lastUpload)
	assert.Len(t, svc.ingest.lastUpload.Data, services.MaxUploadSize)
}
