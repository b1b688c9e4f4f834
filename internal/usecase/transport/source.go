// Package transport turns the backend's task status endpoints into a lazy
// sequence of status events. Polling and server-sent events are
// interchangeable behind Source.
package transport

import (
	"context"
	"errors"
	"iter"
	"log"
	"time"

	"github.com/fadilmartias/introeval-web/internal/config"
	"github.com/fadilmartias/introeval-web/internal/model"
	"github.com/fadilmartias/introeval-web/internal/service"
)

// StatusEvent carries either a task snapshot or the error that ended the
// subscription. Recovered marks events synthesised from a cached or
// remote "latest completed" record rather than observed live.
type StatusEvent struct {
	Task      model.Task
	Err       error
	Recovered bool
}

// Source yields the status events of one task. Each call to Subscribe
// returns a fresh sequence; nothing is requested until it is ranged over.
// The sequence ends after a terminal status, after an error event, or when
// ctx is done.
type Source interface {
	Subscribe(ctx context.Context, taskID string) iter.Seq[StatusEvent]
}

// NewSource picks the transport named in cfg.
func NewSource(cfg *config.BackendConfig, svc service.QueueServiceInterface) Source {
	if cfg.StatusTransport == config.TransportSSE {
		return NewStreamSource(svc, cfg.PollInterval)
	}
	return NewPollSource(svc, cfg.PollInterval)
}

// fatal reports whether err must end the subscription. Server errors and
// network failures are retried.
func fatal(err error) bool {
	var apiErr *service.APIError
	if errors.As(err, &apiErr) {
		return !apiErr.ServerError()
	}
	return false
}

// sleep waits d or until ctx is done, reporting whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type PollSource struct {
	svc      service.QueueServiceInterface
	interval time.Duration
}

func NewPollSource(svc service.QueueServiceInterface, interval time.Duration) *PollSource {
	return &PollSource{svc: svc, interval: interval}
}

func (s *PollSource) Subscribe(ctx context.Context, taskID string) iter.Seq[StatusEvent] {
	return func(yield func(StatusEvent) bool) {
		for sleep(ctx, s.interval) {
			task, err := s.svc.TaskStatus(ctx, taskID)
			if ctx.Err() != nil {
				// stopped while the request was in flight
				return
			}
			if err != nil {
				if fatal(err) {
					yield(StatusEvent{Task: model.Task{TaskID: taskID}, Err: err})
					return
				}
				log.Printf("status poll for task %s failed, will retry: %v", taskID, err)
				continue
			}
			if !yield(StatusEvent{Task: *task}) || task.Status.IsTerminal() {
				return
			}
		}
	}
}
