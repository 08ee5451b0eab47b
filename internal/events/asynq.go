package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskDispatch is the asynq task type carrying one Event.
const TaskDispatch = "events:dispatch"

// Enqueuer is the slice of *asynq.Client used by AsynqSink.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqSink queues events for the worker process.
type AsynqSink struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
}

func (AsynqSink) Name() string { return "asynq" }

// Deliver enqueues the event. The event id doubles as the task id so a retried emit does not
// queue the same event twice.
func (s AsynqSink) Deliver(ctx context.Context, ev Event) error {
	if s.Client == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(ev.ID.String()), asynq.Retention(24 * time.Hour)}
	if s.Queue != "" {
		opts = append(opts, asynq.Queue(s.Queue))
	}
	if s.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(s.MaxRetry))
	}
	if _, err := s.Client.EnqueueContext(ctx, asynq.NewTask(TaskDispatch, data), opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", ev.Topic, err)
	}
	return nil
}

// Consumer handles a dequeued event in the worker.
type Consumer interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// Processor decodes dispatch tasks and passes each event to its consumers in order. Any consumer
// error fails the task so asynq retries it.
type Processor struct {
	Consumers []Consumer
}

// ProcessTask implements asynq.Handler.
func (p Processor) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var ev Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return fmt.Errorf("decode event: %v: %w", err, asynq.SkipRetry)
	}
	for _, c := range p.Consumers {
		if c == nil {
			continue
		}
		if err := c.Deliver(ctx, ev); err != nil {
			return fmt.Errorf("%s: %w", c.Name(), err)
		}
	}
	return nil
}

// NewServeMux registers the processor for dispatch tasks.
func NewServeMux(p Processor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TaskDispatch, p)
	return mux
}
