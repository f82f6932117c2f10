package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/japanesestudent/listening-service/internal/apperrors"
	"github.com/japanesestudent/listening-service/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGenerateKey(t *testing.T) {
	key := GenerateKey("Lesson One.MP3")

	assert.True(t, strings.HasPrefix(key, KeyPrefix))
	assert.True(t, strings.HasSuffix(key, ".mp3"))
	assert.NotEqual(t, key, GenerateKey("Lesson One.MP3"))
}

func TestKeyFromURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{
			name:     "local url",
			url:      "http://localhost:8080/uploads/audio/abc.mp3",
			expected: "audio/abc.mp3",
		},
		{
			name:     "signed url",
			url:      "https://storage.googleapis.com/bucket/audio/abc.wav?X-Goog-Signature=xyz",
			expected: "audio/abc.wav",
		},
		{
			name:     "foreign url",
			url:      "https://example.com/clip.mp3",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KeyFromURL(tt.url))
		})
	}
}

func TestLocalStore_PutAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "http://localhost:8080/")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "audio/clip.mp3", []byte("ID3"), "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/uploads/audio/clip.mp3", url)

	content, err := os.ReadFile(filepath.Join(dir, "audio", "clip.mp3"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3"), content)

	require.NoError(t, store.Delete(context.Background(), "audio/clip.mp3"))
	_, err = os.Stat(filepath.Join(dir, "audio", "clip.mp3"))
	assert.True(t, os.IsNotExist(err))

	// deleting again is not an error
	assert.NoError(t, store.Delete(context.Background(), "audio/clip.mp3"))
}

func TestLocalStore_InvalidKey(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)

	tests := []string{"../escape.mp3", "/etc/passwd", ""}
	for _, key := range tests {
		t.Run(key, func(t *testing.T) {
			_, err := store.Put(context.Background(), key, []byte("x"), "audio/mpeg")
			assert.True(t, apperrors.IsStorage(err))
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		store, err := New(context.Background(), config.StorageConfig{
			Backend:   config.StorageBackendLocal,
			UploadDir: t.TempDir(),
			BaseURL:   "http://localhost:8080",
		}, zap.NewNop())
		require.NoError(t, err)
		defer store.Close()

		assert.Equal(t, "local", store.Backend())
	})

	t.Run("unknown backend", func(t *testing.T) {
		store, err := New(context.Background(), config.StorageConfig{Backend: "ftp"}, zap.NewNop())
		assert.Error(t, err)
		assert.Nil(t, store)
	})
}
