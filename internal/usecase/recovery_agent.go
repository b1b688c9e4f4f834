package usecase

import (
	"context"
	"log"
	"time"

	"github.com/fadilmartias/introeval-web/internal/model"
)

// RecoveryAgent finds tasks that finished on the backend without the
// session noticing (a dropped stream, a backgrounded tab, a restart) and
// replays their completion once.
type RecoveryAgent struct {
	s            *Session
	interval     time.Duration
	initialDelay time.Duration
	visible      chan struct{}
}

func newRecoveryAgent(s *Session, interval, initialDelay time.Duration) *RecoveryAgent {
	return &RecoveryAgent{
		s:            s,
		interval:     interval,
		initialDelay: initialDelay,
		visible:      make(chan struct{}, 1),
	}
}

func (a *RecoveryAgent) run(ctx context.Context) {
	initial := time.NewTimer(a.initialDelay)
	defer initial.Stop()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-initial.C:
		case <-ticker.C:
		case <-a.visible:
		}
		a.Check(ctx)
	}
}

// Visible signals that the page became visible again. Signals arriving
// while a check is pending collapse into one.
func (a *RecoveryAgent) Visible() {
	select {
	case a.visible <- struct{}{}:
	default:
	}
}

// Check looks for an undisplayed completed task and queues its replay. It
// reports whether a replay was queued. Errors are logged, never returned.
func (a *RecoveryAgent) Check(ctx context.Context) bool {
	s := a.s
	if s.doc.ResultsShown() {
		return false
	}

	if task, ok := s.cachedCompletedTask(ctx); ok && a.replay(ctx, task) {
		return true
	}

	results, err := s.deps.Queue.MyResults(s.requestContext(ctx))
	if err != nil {
		log.Printf("session %s: recovery check failed: %v", s.ID, err)
		return false
	}
	if !results.HasResults || results.LatestCompleted == nil {
		return false
	}
	latest := *results.LatestCompleted
	if latest.Status != model.TaskComplete || latest.TaskID == "" {
		return false
	}
	return a.replay(ctx, latest)
}

func (a *RecoveryAgent) replay(ctx context.Context, task model.Task) bool {
	s := a.s
	if current, polling := s.PollingTask(); polling && current != task.TaskID {
		// a newer task is in flight; its own completion will show results
		return false
	}

	ok, err := s.deps.Displayed.TryMark(ctx, s.ID, task.TaskID)
	if err != nil {
		log.Printf("session %s: recovery skipped: %v", s.ID, err)
		return false
	}
	if !ok {
		return false
	}

	log.Printf("session %s: recovering completed task %s", s.ID, task.TaskID)
	task = recoveredTask(task)
	s.mu.Lock()
	s.replays[task.TaskID] = struct{}{}
	s.mu.Unlock()

	if !s.enqueue(func(c context.Context) {
		s.mu.Lock()
		delete(s.replays, task.TaskID)
		s.mu.Unlock()
		s.applyStatus(c, task, true)
	}) {
		s.releaseReplays()
		return false
	}
	return true
}
