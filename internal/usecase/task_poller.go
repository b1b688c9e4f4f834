package usecase

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/fadilmartias/introeval-web/internal/model"
	"github.com/fadilmartias/introeval-web/internal/service"
	"github.com/fadilmartias/introeval-web/internal/usecase/transport"
	"github.com/fadilmartias/introeval-web/internal/view"
)

const (
	SessionExpiredNotice = "Your session has expired. Don't worry - your file is still processing in the background! Please log in again to check your results."
	AccessDeniedMessage  = "Access denied to this task."
	RecoveredMessage     = "Processing complete! Your results are ready to view."
)

// startPolling subscribes to taskID, replacing any running subscription.
// Events from a replaced subscription are dropped by generation.
func (s *Session) startPolling(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return
	}
	s.stopPollingLocked()

	s.gen++
	gen := s.gen
	ctx, cancel := context.WithTimeout(s.ctx, s.deps.Config.PollTimeout)
	s.pollCancel = cancel
	s.pollTaskID = taskID

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		log.Printf("session %s: polling task %s", s.ID, taskID)
		for ev := range s.deps.Source.Subscribe(s.requestContext(ctx), taskID) {
			if !s.enqueue(func(c context.Context) { s.handleStatus(c, gen, ev) }) {
				return
			}
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Printf("session %s: status polling for task %s stopped after timeout", s.ID, taskID)
			s.expirePolling(gen)
		}
	}()

	s.startMonitorLocked()
}

// expirePolling clears the handles of a subscription that hit the poll
// ceiling, unless a newer one has replaced it.
func (s *Session) expirePolling(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollCancel != nil && s.gen == gen {
		s.stopPollingLocked()
	}
}

func (s *Session) stopPolling() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopPollingLocked()
}

// stopPollingLocked also stops the queue monitor, which only runs while a
// task is outstanding.
func (s *Session) stopPollingLocked() {
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
		s.pollTaskID = ""
		s.gen++
	}
	if s.monitorCancel != nil {
		s.monitorCancel()
		s.monitorCancel = nil
	}
}

func (s *Session) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollCancel != nil
}

// PollingTask is the task currently subscribed to, if any.
func (s *Session) PollingTask() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollTaskID, s.pollCancel != nil
}

func (s *Session) currentGen(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollCancel != nil && s.gen == gen
}

func (s *Session) handleStatus(ctx context.Context, gen uint64, ev transport.StatusEvent) {
	if !s.currentGen(gen) {
		return
	}
	if ev.Err != nil {
		s.handlePollError(ev.Task.TaskID, ev.Err)
		return
	}
	s.applyStatus(ctx, ev.Task, false)
}

func (s *Session) handlePollError(taskID string, err error) {
	s.stopPolling()

	var apiErr *service.APIError
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		log.Printf("session %s: authentication expired while polling task %s", s.ID, taskID)
		s.doc.AddNotice("warning", SessionExpiredNotice)
		s.scheduleLoginRedirect()
	case errors.Is(err, service.ErrForbidden):
		log.Printf("session %s: access denied to task %s", s.ID, taskID)
		s.doc.ShowError(AccessDeniedMessage)
	case errors.As(err, &apiErr):
		log.Printf("session %s: status polling for task %s returned %d", s.ID, taskID, apiErr.StatusCode)
		s.doc.ShowError("Failed to get task status: " + apiErr.Status)
	default:
		log.Printf("session %s: status polling for task %s failed: %v", s.ID, taskID, err)
		s.doc.ShowError("Failed to get task status: " + err.Error())
	}
}

// scheduleLoginRedirect points the browser at the login page once the
// notice has had a moment on screen. The task id stays cached.
func (s *Session) scheduleLoginRedirect() {
	cfg := s.deps.Config
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.redirect != nil {
		s.redirect.Stop()
	}
	s.redirect = time.AfterFunc(cfg.AuthRedirectDelay, func() {
		s.enqueue(func(context.Context) {
			s.doc.SetRedirect(cfg.LoginPath, time.Now())
		})
	})
}

func positionText(task model.Task, fallback string) string {
	if pos, ok := task.Position(); ok {
		return strconv.Itoa(pos)
	}
	return fallback
}

// applyStatus drives the view through one task state. Recovered events have
// already claimed the task in the displayed set.
func (s *Session) applyStatus(ctx context.Context, task model.Task, recovered bool) {
	s.doc.SetTask(task.TaskID, positionText(task, "N/A"))
	s.doc.SetQueueStatus(string(task.Status))

	switch task.Status {
	case model.TaskPending:
		msg := task.Message
		if msg == "" {
			msg = "Waiting in queue. Position: " + positionText(task, "Unknown")
		}
		s.doc.Render(view.TaskStatusView{Element: view.TranscriptionStatus, State: view.StatePending,
			Title: "In Queue", Message: msg, Progress: view.Progress(25)})

	case model.TaskProcessing:
		msg := task.Message
		if msg == "" {
			msg = "Your file is being processed..."
		}
		s.doc.Render(view.TaskStatusView{Element: view.TranscriptionStatus, State: view.StateProcessing,
			Title: "Processing", Message: msg, Progress: view.Progress(50)})
		s.doc.SetStep(view.StepUpload, view.StepCompleted)
		s.doc.SetStep(view.StepTranscribe, view.StepActive)

	case model.TaskSTTComplete:
		s.renderTranscribed()
		s.loadResults(ctx, task, false)
		s.doc.SetStep(view.StepTranscribe, view.StepCompleted)
		s.doc.SetStep(view.StepExtract, view.StepActive)
		s.doc.Render(view.TaskStatusView{Element: view.ExtractionStatus, State: view.StateProcessing,
			Title: "Extracting Information", Message: "Analyzing transcript to extract information...", Progress: view.Progress(50)})

	case model.TaskFormComplete:
		s.renderExtracted()
		s.loadResults(ctx, task, false)
		s.doc.SetStep(view.StepExtract, view.StepCompleted)
		if s.ratingsRequested() {
			s.doc.SetStep(view.StepRate, view.StepActive)
			s.doc.Render(view.TaskStatusView{Element: view.RatingStatus, State: view.StateProcessing,
				Title: "Generating Ratings", Message: "Evaluating your introduction...", Progress: view.Progress(50)})
		} else {
			s.doc.ShowResults()
			s.stopPolling()
		}

	case model.TaskComplete:
		if !recovered && !s.claimDisplay(ctx, task.TaskID) {
			// already shown, e.g. by recovery
			s.stopPolling()
			return
		}
		s.completeTask(ctx, task)

	case model.TaskFailed:
		s.stopPolling()
		msg := task.ErrorMessage
		if msg == "" {
			msg = "Processing failed"
		}
		s.doc.Render(view.TaskStatusView{Element: view.TranscriptionStatus, State: view.StateError,
			Title: "Processing Failed", Message: msg, Progress: view.Progress(100)})
		modal := task.ErrorMessage
		if modal == "" {
			modal = "Processing failed. Please try again."
		}
		s.doc.ShowError(modal)

	default:
		log.Printf("session %s: unknown status %q for task %s", s.ID, task.Status, task.TaskID)
	}
}

// claimDisplay marks taskID displayed. If the guard itself is unavailable
// the completion is shown anyway.
func (s *Session) claimDisplay(ctx context.Context, taskID string) bool {
	ok, err := s.deps.Displayed.TryMark(ctx, s.ID, taskID)
	if err != nil {
		log.Printf("session %s: %v", s.ID, err)
		return true
	}
	return ok
}

func (s *Session) completeTask(ctx context.Context, task model.Task) {
	s.stopPolling()
	s.cacheCompletedTask(ctx, task)

	s.renderTranscribed()
	s.renderExtracted()
	s.doc.Render(view.TaskStatusView{Element: view.RatingStatus, State: view.StateCompleted,
		Title: "Ratings Complete", Message: "Evaluation completed successfully", Progress: view.Progress(100)})
	s.doc.CompleteAllSteps()
	if task.Message != "" {
		s.doc.SetProcessingMessage("success", task.Message)
	}

	s.loadResults(ctx, task, true)
	s.doc.ShowResults()
	log.Printf("session %s: task %s complete", s.ID, task.TaskID)
}

func (s *Session) renderTranscribed() {
	s.doc.Render(view.TaskStatusView{Element: view.TranscriptionStatus, State: view.StateCompleted,
		Title: "Transcription Complete", Message: "Audio converted to text successfully", Progress: view.Progress(100)})
}

func (s *Session) renderExtracted() {
	s.doc.Render(view.TaskStatusView{Element: view.ExtractionStatus, State: view.StateCompleted,
		Title: "Information Extracted", Message: "Information extracted from transcript", Progress: view.Progress(100)})
}

// recoveredTask fills the fields a completion replay needs when the cached
// or remote record omits them.
func recoveredTask(task model.Task) model.Task {
	task.Status = model.TaskComplete
	if task.ProgressPercent == 0 {
		task.ProgressPercent = 100
	}
	if task.Message == "" {
		task.Message = RecoveredMessage
	}
	return task
}
