package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeProductChanged is the asynq task type carrying a ProductChanged payload.
const TypeProductChanged = "pricing:product_changed"

// Enqueuer is the subset of *asynq.Client used by TaskPublisher.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewProductChangedTask encodes ev as an asynq task.
func NewProductChangedTask(ev ProductChanged) (*asynq.Task, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeProductChanged, payload), nil
}

// TaskPublisher forwards product events to the worker queue.
type TaskPublisher struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
	// Unique suppresses duplicate tasks for the same product within the window.
	Unique time.Duration
}

// ProductChanged implements Subscriber.
func (p TaskPublisher) ProductChanged(ctx context.Context, ev ProductChanged) error {
	if p.Client == nil {
		return nil
	}
	task, err := NewProductChangedTask(ev)
	if err != nil {
		return fmt.Errorf("events: encode task: %w", err)
	}
	var opts []asynq.Option
	if p.Queue != "" {
		opts = append(opts, asynq.Queue(p.Queue))
	}
	if p.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(p.MaxRetry))
	}
	if p.Unique > 0 {
		opts = append(opts, asynq.Unique(p.Unique))
	}
	if _, err := p.Client.EnqueueContext(ctx, task, opts...); err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		return fmt.Errorf("events: enqueue %s: %w", TypeProductChanged, err)
	}
	return nil
}

// NewProductChangedHandler decodes product change tasks and passes them to fn.
// Malformed payloads are not retried.
func NewProductChangedHandler(fn func(context.Context, ProductChanged) error) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var ev ProductChanged
		if err := json.Unmarshal(task.Payload(), &ev); err != nil {
			return fmt.Errorf("events: decode task: %v: %w", err, asynq.SkipRetry)
		}
		if ev.ProductID <= 0 {
			return fmt.Errorf("events: task without product id: %w", asynq.SkipRetry)
		}
		return fn(ctx, ev)
	}
}
