package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"iter"
	"log"
	"strings"
	"time"

	"github.com/fadilmartias/introeval-web/internal/model"
	"github.com/fadilmartias/introeval-web/internal/service"
)

// StreamSource reads task updates from a server-sent event stream and
// reconnects after retry when the stream drops before a terminal status.
type StreamSource struct {
	svc   service.QueueServiceInterface
	retry time.Duration
}

func NewStreamSource(svc service.QueueServiceInterface, retry time.Duration) *StreamSource {
	return &StreamSource{svc: svc, retry: retry}
}

func (s *StreamSource) Subscribe(ctx context.Context, taskID string) iter.Seq[StatusEvent] {
	return func(yield func(StatusEvent) bool) {
		for {
			body, err := s.svc.OpenStatusStream(ctx, taskID)
			if ctx.Err() != nil {
				if body != nil {
					body.Close()
				}
				return
			}
			if err != nil {
				if fatal(err) {
					yield(StatusEvent{Task: model.Task{TaskID: taskID}, Err: err})
					return
				}
				log.Printf("status stream for task %s failed, will reconnect: %v", taskID, err)
			} else {
				done := s.read(ctx, taskID, body, yield)
				body.Close()
				if done {
					return
				}
			}
			if !sleep(ctx, s.retry) {
				return
			}
		}
	}
}

// read forwards events until the stream ends. It reports true when the
// subscription is over: terminal status, consumer stopped, or ctx done.
func (s *StreamSource) read(ctx context.Context, taskID string, body io.Reader, yield func(StatusEvent) bool) bool {
	stop := context.AfterFunc(ctx, func() {
		if c, ok := body.(io.Closer); ok {
			c.Close()
		}
	})
	defer stop()

	done := false
	err := scanEvents(body, func(data string) bool {
		var task model.Task
		if err := json.Unmarshal([]byte(data), &task); err != nil {
			log.Printf("status stream for task %s: skipping malformed event: %v", taskID, err)
			return true
		}
		if task.TaskID == "" {
			task.TaskID = taskID
		}
		if ctx.Err() != nil || !yield(StatusEvent{Task: task}) || task.Status.IsTerminal() {
			done = true
			return false
		}
		return true
	})
	if ctx.Err() != nil {
		return true
	}
	if err != nil && !done {
		log.Printf("status stream for task %s dropped: %v", taskID, err)
	}
	return done
}

// scanEvents parses the text/event-stream framing and hands each event's
// data to fn until fn returns false or the reader is exhausted.
func scanEvents(r io.Reader, fn func(data string) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 4<<20)

	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				ok := fn(strings.Join(data, "\n"))
				data = data[:0]
				if !ok {
					return nil
				}
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if len(data) > 0 {
		fn(strings.Join(data, "\n"))
	}
	return nil
}
