package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockRunPruner is a mock implementation of RunPruner
type mockRunPruner struct {
	before  time.Time
	calls   int
	deleted int64
	err     error
}

func (m *mockRunPruner) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	m.calls++
	m.before = before
	return m.deleted, m.err
}

// mockCachePurger is a mock implementation of CachePurger
type mockCachePurger struct {
	calls int
}

func (m *mockCachePurger) Purge() int {
	m.calls++
	return 3
}

func TestNewScheduler(t *testing.T) {
	tests := []struct {
		name          string
		schedule      string
		expectedError bool
	}{
		{name: "descriptor", schedule: "@hourly"},
		{name: "standard expression", schedule: "*/15 * * * *"},
		{name: "invalid", schedule: "every hour", expectedError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScheduler(tt.schedule, time.Hour, &mockRunPruner{}, nil, zap.NewNop())

			if tt.expectedError {
				assert.Error(t, err)
				assert.Nil(t, s)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, s)
			}
		})
	}
}

func TestScheduler_RunOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("purges cache and prunes runs", func(t *testing.T) {
		runs := &mockRunPruner{deleted: 2}
		purger := &mockCachePurger{}
		s, err := NewScheduler("@hourly", 24*time.Hour, runs, purger, zap.NewNop())
		require.NoError(t, err)
		s.now = func() time.Time { return now }

		s.RunOnce(context.Background())

		assert.Equal(t, 1, purger.calls)
		assert.Equal(t, 1, runs.calls)
		assert.Equal(t, now.Add(-24*time.Hour), runs.before)
	})

	t.Run("retention disabled", func(t *testing.T) {
		runs := &mockRunPruner{}
		s, err := NewScheduler("@hourly", 0, runs, nil, zap.NewNop())
		require.NoError(t, err)

		s.RunOnce(context.Background())

		assert.Equal(t, 0, runs.calls)
	})

	t.Run("prune error is logged", func(t *testing.T) {
		runs := &mockRunPruner{err: errors.New("database error")}
		s, err := NewScheduler("@hourly", time.Hour, runs, nil, zap.NewNop())
		require.NoError(t, err)

		assert.NotPanics(t, func() { s.RunOnce(context.Background()) })
		assert.Equal(t, 1, runs.calls)
	})
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := NewScheduler("@hourly", time.Hour, &mockRunPruner{}, nil, zap.NewNop())
	require.NoError(t, err)

	s.Start()
	s.Stop()
}
