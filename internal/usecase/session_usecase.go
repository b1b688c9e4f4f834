package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fadilmartias/introeval-web/internal/config"
	"github.com/fadilmartias/introeval-web/internal/model"
	"github.com/fadilmartias/introeval-web/internal/repository"
	"github.com/fadilmartias/introeval-web/internal/service"
	"github.com/fadilmartias/introeval-web/internal/usecase/transport"
	"github.com/fadilmartias/introeval-web/internal/view"
)

var ErrSessionStopped = errors.New("session is not running")

const eventQueueSize = 64

// SessionDeps are shared by every session.
type SessionDeps struct {
	Queue     service.QueueServiceInterface
	Source    transport.Source
	States    repository.StateRepository
	Displayed repository.DisplayedTaskRepository
	Config    *config.BackendConfig
}

// Session is the controller behind one browser session. Producers (the
// status subscription, the recovery agent, uploads) never touch the view
// directly; they enqueue work that a single consumer goroutine applies in
// order.
type Session struct {
	ID string

	deps     SessionDeps
	doc      *view.Document
	recovery *RecoveryAgent
	events   chan func(context.Context)

	cookie   atomic.Value
	lastSeen atomic.Int64

	mu              sync.Mutex
	wg              sync.WaitGroup
	ctx             context.Context
	cancel          context.CancelFunc
	gen             uint64
	pollCancel      context.CancelFunc
	pollTaskID      string
	monitorCancel   context.CancelFunc
	redirect        *time.Timer
	generateRatings bool
	disposed        bool
	// recovery replays claimed in the displayed set but not yet applied
	replays map[string]struct{}
}

func NewSession(id string, deps SessionDeps) *Session {
	s := &Session{
		ID:              id,
		deps:            deps,
		doc:             view.NewDocument(),
		events:          make(chan func(context.Context), eventQueueSize),
		generateRatings: true,
		replays:         make(map[string]struct{}),
	}
	s.cookie.Store("")
	s.recovery = newRecoveryAgent(s, deps.Config.RecoveryInterval, deps.Config.RecoveryInitialDelay)
	s.Touch()
	return s
}

func (s *Session) View() *view.Document {
	return s.doc
}

func (s *Session) Recovery() *RecoveryAgent {
	return s.recovery
}

// SetCookie records the browser's Cookie header; backend calls made on the
// session's behalf carry it.
func (s *Session) SetCookie(cookie string) {
	s.cookie.Store(cookie)
}

func (s *Session) Touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) requestContext(ctx context.Context) context.Context {
	return service.WithSessionCookie(ctx, s.cookie.Load().(string))
}

// Start launches the consumer and the recovery agent. Starting a running
// or disposed session is a no-op.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.disposed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.ctx, s.cancel = ctx, cancel

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.consume(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.recovery.run(ctx)
	}()
}

// Stop halts polling, queue monitoring and recovery and waits for the
// session's goroutines. Pending events are discarded and the task being
// followed is abandoned; a later Start does not resume polling. Recovery
// replays that were discarded are released from the displayed set so a
// later check can replay them. The view is kept.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return
	}
	s.stopPollingLocked()
	if s.redirect != nil {
		s.redirect.Stop()
		s.redirect = nil
	}
	s.cancel()
	s.ctx, s.cancel = nil, nil
	s.mu.Unlock()

	s.wg.Wait()
	for drained := false; !drained; {
		select {
		case <-s.events:
		default:
			drained = true
		}
	}
	s.releaseReplays()
}

func (s *Session) releaseReplays() {
	s.mu.Lock()
	pending := make([]string, 0, len(s.replays))
	for taskID := range s.replays {
		pending = append(pending, taskID)
	}
	clear(s.replays)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, taskID := range pending {
		if err := s.deps.Displayed.Unmark(ctx, s.ID, taskID); err != nil {
			log.Printf("session %s: release replay of task %s: %v", s.ID, taskID, err)
		}
	}
}

// Dispose stops the session for good and forgets which tasks it displayed.
func (s *Session) Dispose(ctx context.Context) {
	s.Stop()
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
	if err := s.deps.Displayed.Reset(ctx, s.ID); err != nil {
		log.Printf("session %s: reset displayed tasks: %v", s.ID, err)
	}
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Session) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-s.events:
			// both cases can be ready at once; never apply after Stop
			if ctx.Err() != nil {
				return
			}
			fn(ctx)
		}
	}
}

// enqueue hands fn to the consumer. It reports false once the session has
// stopped.
func (s *Session) enqueue(fn func(context.Context)) bool {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return false
	}
	select {
	case s.events <- fn:
		return true
	case <-ctx.Done():
		return false
	}
}

// do runs fn on the consumer and waits for it to finish.
func (s *Session) do(ctx context.Context, fn func(context.Context)) error {
	done := make(chan struct{})
	if !s.enqueue(func(c context.Context) {
		defer close(done)
		fn(c)
	}) {
		return ErrSessionStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset drops the current task and returns the view to the upload form.
func (s *Session) Reset(ctx context.Context) error {
	s.stopPolling()
	return s.do(ctx, func(context.Context) {
		s.doc.Reset()
	})
}

func (s *Session) setGenerateRatings(v bool) {
	s.mu.Lock()
	s.generateRatings = v
	s.mu.Unlock()
}

func (s *Session) ratingsRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateRatings
}

func (s *Session) State(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.deps.States.Get(ctx, s.ID, key)
	if err != nil {
		log.Printf("session %s: read %s: %v", s.ID, key, err)
		return "", false
	}
	return v, ok
}

func (s *Session) SetState(ctx context.Context, key, value string) {
	if err := s.deps.States.Set(ctx, s.ID, key, value); err != nil {
		log.Printf("session %s: write %s: %v", s.ID, key, err)
	}
}

func (s *Session) DeleteState(ctx context.Context, key string) {
	if err := s.deps.States.Delete(ctx, s.ID, key); err != nil {
		log.Printf("session %s: delete %s: %v", s.ID, key, err)
	}
}

func (s *Session) cachedCompletedTask(ctx context.Context) (model.Task, bool) {
	raw, ok := s.State(ctx, model.StateLastCompletedTask)
	if !ok {
		return model.Task{}, false
	}
	var task model.Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		log.Printf("session %s: cached completed task unreadable: %v", s.ID, err)
		return model.Task{}, false
	}
	return task, task.TaskID != "" && task.Status == model.TaskComplete
}

func (s *Session) cacheCompletedTask(ctx context.Context, task model.Task) {
	raw, err := json.Marshal(task)
	if err != nil {
		log.Printf("session %s: encode completed task: %v", s.ID, err)
		return
	}
	s.SetState(ctx, model.StateLastCompletedTask, string(raw))
}
