package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fadilmartias/introeval-web/internal/config"
	"github.com/fadilmartias/introeval-web/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, h http.HandlerFunc) *QueueService {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewQueueService(&config.BackendConfig{
		BaseURL:          srv.URL,
		RequestTimeout:   5 * time.Second,
		StatusStreamPath: "/queue/events",
	})
}

func TestSubmitSendsMultipartAndCookie(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/queue/submit", r.URL.Path)
		assert.Equal(t, "session=abc", r.Header.Get("Cookie"))

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "true", r.FormValue("extract_fields"))
		assert.Equal(t, "false", r.FormValue("generate_ratings"))
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		assert.Equal(t, "intro.webm", header.Filename)
		assert.Equal(t, "video/webm", header.Header.Get("Content-Type"))
		assert.Equal(t, "media", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task_id": "t-1", "queue_position": 3}`))
	})

	ctx := WithSessionCookie(context.Background(), "session=abc")
	out, err := svc.Submit(ctx, Upload{
		Filename:      "intro.webm",
		ContentType:   "video/webm",
		Content:       strings.NewReader("media"),
		ExtractFields: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", out.TaskID)
	require.NotNil(t, out.QueuePosition)
	assert.Equal(t, 3, *out.QueuePosition)
}

func TestSubmitRejectsResponseWithoutTaskID(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"queue_position": 1}`))
	})

	_, err := svc.Submit(context.Background(), Upload{Filename: "a.mp3", ContentType: "audio/mpeg", Content: strings.NewReader("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid response")
}

func TestTaskStatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		sentinel error
		server   bool
	}{
		{name: "unauthenticated", code: http.StatusUnauthorized, sentinel: ErrUnauthenticated},
		{name: "forbidden", code: http.StatusForbidden, sentinel: ErrForbidden},
		{name: "server error", code: http.StatusBadGateway, server: true},
		{name: "not found", code: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(`{"detail": "nope"}`))
			})

			_, err := svc.TaskStatus(context.Background(), "t-1")
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.code, apiErr.StatusCode)
			assert.Equal(t, http.StatusText(tt.code), apiErr.Status)
			assert.Equal(t, "nope", apiErr.Detail())
			assert.Equal(t, tt.server, apiErr.ServerError())
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			} else {
				assert.False(t, errors.Is(err, ErrUnauthenticated))
				assert.False(t, errors.Is(err, ErrForbidden))
			}
		})
	}
}

func TestTaskStatusDecodesInlineData(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/queue/status/t-9", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"status": "stt_complete",
			"users_ahead": 2,
			"data": {"transcript_content": "hello", "intro_rating": null}
		}`))
	})

	task, err := svc.TaskStatus(context.Background(), "t-9")
	require.NoError(t, err)
	assert.Equal(t, "t-9", task.TaskID)
	assert.Equal(t, model.TaskSTTComplete, task.Status)
	pos, ok := task.Position()
	assert.True(t, ok)
	assert.Equal(t, 2, pos)
	require.NotNil(t, task.Data)
	assert.Equal(t, "hello", task.Data.TranscriptContent)
	assert.False(t, model.Present(task.Data.IntroRating))
}

func TestMyResults(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"has_results": true,
			"latest_completed": {"task_id": "t-2", "status": "complete"},
			"all_tasks": [{"task_id": "t-2", "status": "complete"}, {"task_id": "t-1", "status": "failed"}]
		}`))
	})

	out, err := svc.MyResults(context.Background())
	require.NoError(t, err)
	assert.True(t, out.HasResults)
	require.NotNil(t, out.LatestCompleted)
	assert.Equal(t, model.TaskComplete, out.LatestCompleted.Status)
	assert.Len(t, out.AllTasks, 2)
}

func TestNetworkErrorIsNotAPIError(t *testing.T) {
	svc := NewQueueService(&config.BackendConfig{BaseURL: "http://127.0.0.1:1", RequestTimeout: time.Second})

	_, err := svc.TaskStatus(context.Background(), "t-1")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestOpenStatusStream(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/queue/events/t-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"status\":\"complete\"}\n\n"))
	})

	body, err := svc.OpenStatusStream(context.Background(), "t-1")
	require.NoError(t, err)
	defer body.Close()
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"complete"`)

	_, err = svc.OpenStatusStream(context.Background(), "t-404")
	require.Error(t, err)
}
