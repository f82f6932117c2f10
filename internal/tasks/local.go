package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// ErrShuttingDown is returned by Dispatch once Shutdown has been called
var ErrShuttingDown = errors.New("dispatcher is shutting down")

// LocalDispatcher runs jobs on goroutines of the current process.
// Jobs are detached from the dispatching request context.
type LocalDispatcher struct {
	logger   *zap.Logger
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	closed   bool
	wg       sync.WaitGroup
}

// NewLocalDispatcher creates a dispatcher with no handlers
func NewLocalDispatcher(logger *zap.Logger) *LocalDispatcher {
	return &LocalDispatcher{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
	}
}

// HandleFunc registers the handler of a job type
func (d *LocalDispatcher) HandleFunc(jobType string, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[jobType] = handler
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrShuttingDown
	}
	handler, ok := d.handlers[job.Type]
	if !ok {
		return fmt.Errorf("no handler registered for job type %s", job.Type)
	}

	d.wg.Add(1)
	go d.run(handler, job)
	return nil
}

func (d *LocalDispatcher) run(handler HandlerFunc, job Job) {
	defer d.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("Job panicked",
				zap.String("type", job.Type),
				zap.String("audio_id", job.AudioID),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	if err := handler(context.Background(), job); err != nil {
		d.logger.Error("Job failed",
			zap.String("type", job.Type),
			zap.String("audio_id", job.AudioID),
			zap.Error(err),
		)
		return
	}
	d.logger.Debug("Job finished", zap.String("type", job.Type), zap.String("audio_id", job.AudioID))
}

// Shutdown waits for running jobs until ctx is done
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs still running at shutdown: %w", ctx.Err())
	}
}
