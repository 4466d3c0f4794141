package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-tierprice/internal/events"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestTaskPublisherRoundTrip(t *testing.T) {
	enq := &fakeEnqueuer{}
	pub := events.TaskPublisher{Client: enq, Queue: "pricing", MaxRetry: 3, Unique: time.Second}

	ev := events.ProductChanged{ProductID: 12, Topic: events.TopicProductUpdated}
	require.NoError(t, pub.ProductChanged(context.Background(), ev))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, events.TypeProductChanged, enq.tasks[0].Type())
	require.Len(t, enq.opts[0], 3)

	var got events.ProductChanged
	handler := events.NewProductChangedHandler(func(_ context.Context, ev events.ProductChanged) error {
		got = ev
		return nil
	})
	require.NoError(t, handler.ProcessTask(context.Background(), enq.tasks[0]))
	require.Equal(t, ev, got)
}

func TestTaskPublisherErrors(t *testing.T) {
	dup := &fakeEnqueuer{err: asynq.ErrDuplicateTask}
	require.NoError(t, events.TaskPublisher{Client: dup}.ProductChanged(context.Background(), events.ProductChanged{ProductID: 1}))

	boom := errors.New("redis down")
	failing := &fakeEnqueuer{err: boom}
	err := events.TaskPublisher{Client: failing}.ProductChanged(context.Background(), events.ProductChanged{ProductID: 1})
	require.ErrorIs(t, err, boom)

	require.NoError(t, events.TaskPublisher{}.ProductChanged(context.Background(), events.ProductChanged{ProductID: 1}))
}

func TestHandlerSkipsRetryOnBadPayload(t *testing.T) {
	called := false
	handler := events.NewProductChangedHandler(func(context.Context, events.ProductChanged) error {
		called = true
		return nil
	})
	err := handler.ProcessTask(context.Background(), asynq.NewTask(events.TypeProductChanged, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = handler.ProcessTask(context.Background(), asynq.NewTask(events.TypeProductChanged, []byte(`{"product_id":0}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.False(t, called)
}
