package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/fadilmartias/introeval-web/internal/model"
	"github.com/fadilmartias/introeval-web/internal/service"
	"github.com/fadilmartias/introeval-web/internal/util"
	"github.com/fadilmartias/introeval-web/internal/view"
)

const ProcessingFailedMessage = "An error occurred during processing. Please try again."

// TaskHandle identifies a submitted task.
type TaskHandle struct {
	TaskID        string `json:"task_id"`
	QueuePosition *int   `json:"queue_position"`
}

// Submit validates and uploads one media file, then starts following the
// new task. Files that are not audio or video are rejected before any
// backend call; every failure is also written to the view's error modal.
func (s *Session) Submit(ctx context.Context, upload service.Upload) (*TaskHandle, error) {
	mediaType, content, err := util.DetectMediaType(upload.ContentType, upload.Content)
	if err != nil {
		if doErr := s.do(ctx, func(context.Context) { s.doc.ShowError(util.InvalidMediaMessage) }); doErr != nil {
			return nil, doErr
		}
		return nil, err
	}
	upload.ContentType, upload.Content = mediaType, content

	s.stopPolling()
	s.setGenerateRatings(upload.GenerateRatings)

	if err := s.do(ctx, func(context.Context) {
		s.doc.ClearError()
		s.doc.ShowProcessing()
		s.doc.SetStep(view.StepUpload, view.StepCompleted)
		s.doc.SetStep(view.StepTranscribe, view.StepActive)
		s.doc.Render(view.TaskStatusView{Element: view.TranscriptionStatus, State: view.StateProcessing,
			Title: "Transcribing Audio", Message: "Converting your audio to text...", Progress: view.Progress(25)})
	}); err != nil {
		return nil, err
	}

	resp, err := s.deps.Queue.Submit(s.requestContext(ctx), upload)
	if err != nil {
		log.Printf("session %s: upload %s failed: %v", s.ID, upload.Filename, err)
		msg := submitErrorMessage(err)
		_ = s.do(ctx, func(context.Context) {
			s.doc.Render(view.TaskStatusView{Element: view.TranscriptionStatus, State: view.StateError,
				Title: "Transcription Failed", Message: msg, Progress: view.Progress(100)})
			s.doc.SetProcessingMessage("danger", ProcessingFailedMessage)
			s.doc.ShowError(msg)
		})
		return nil, fmt.Errorf("submit %s: %w", upload.Filename, err)
	}

	position := "Unknown"
	if resp.QueuePosition != nil && *resp.QueuePosition > 0 {
		position = strconv.Itoa(*resp.QueuePosition)
	}
	if err := s.do(ctx, func(c context.Context) {
		s.doc.Render(view.TaskStatusView{Element: view.TranscriptionStatus, State: view.StatePending,
			Title: "In Queue", Message: "Your task is queued. Position: " + position, Progress: view.Progress(25)})
		s.doc.SetTask(resp.TaskID, position)
		s.doc.SetQueueStatus("Queued")
		s.SetState(c, model.StateLastTaskID, resp.TaskID)
	}); err != nil {
		return nil, err
	}

	s.startPolling(resp.TaskID)
	log.Printf("session %s: submitted %s as task %s", s.ID, upload.Filename, resp.TaskID)
	return &TaskHandle{TaskID: resp.TaskID, QueuePosition: resp.QueuePosition}, nil
}

func submitErrorMessage(err error) string {
	var apiErr *service.APIError
	if errors.As(err, &apiErr) {
		if detail := apiErr.Detail(); detail != "" && detail != apiErr.Status {
			return detail
		}
		return "Failed to submit file to queue"
	}
	return "Failed to process your file. Please try again."
}
