package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// QueuePipeline is the asynq queue that carries pipeline jobs
const QueuePipeline = "pipeline"

// AsynqDispatcher enqueues jobs in Redis for the worker process
type AsynqDispatcher struct {
	client  *asynq.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewAsynqDispatcher creates a dispatcher that enqueues into Redis
func NewAsynqDispatcher(redisOpt asynq.RedisClientOpt, timeout time.Duration, logger *zap.Logger) *AsynqDispatcher {
	return &AsynqDispatcher{
		client:  asynq.NewClient(redisOpt),
		timeout: timeout,
		logger:  logger,
	}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, job Job) error {
	payload, err := encodePayload(job)
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.Queue(QueuePipeline), asynq.MaxRetry(0)}
	if d.timeout > 0 {
		opts = append(opts, asynq.Timeout(d.timeout))
	}

	info, err := d.client.EnqueueContext(ctx, asynq.NewTask(job.Type, payload), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	d.logger.Debug("Job enqueued", zap.String("type", job.Type), zap.String("audio_id", job.AudioID), zap.String("task_id", info.ID))
	return nil
}

func (d *AsynqDispatcher) Shutdown(ctx context.Context) error {
	return d.client.Close()
}

// AsynqHandler adapts a job handler to the asynq server mux
func AsynqHandler(handler HandlerFunc) func(ctx context.Context, task *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		job, err := DecodePayload(task.Type(), task.Payload())
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return handler(ctx, job)
	}
}
