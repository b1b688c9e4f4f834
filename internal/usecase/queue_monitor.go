package usecase

import (
	"context"
	"log"
	"time"

	"github.com/fadilmartias/introeval-web/internal/dto"
)

// startMonitorLocked polls system-wide queue stats while a task is
// outstanding. Caller holds s.mu.
func (s *Session) startMonitorLocked() {
	if s.ctx == nil || s.monitorCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.monitorCancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.monitorQueue(ctx)
	}()
}

func (s *Session) monitorQueue(ctx context.Context) {
	ticker := time.NewTicker(s.deps.Config.StatsInterval)
	defer ticker.Stop()

	for {
		stats, err := s.deps.Queue.QueueStats(s.requestContext(ctx))
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("session %s: queue stats: %v", s.ID, err)
		} else if !s.enqueue(func(context.Context) { s.doc.SetQueueStats(*stats) }) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// QueueStats fetches the current system-wide queue state on the session's
// behalf.
func (s *Session) QueueStats(ctx context.Context) (*dto.QueueStatsDTO, error) {
	return s.deps.Queue.QueueStats(s.requestContext(ctx))
}
