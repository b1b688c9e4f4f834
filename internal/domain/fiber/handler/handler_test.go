package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/fadilmartias/introeval-web/internal/config"
	"github.com/fadilmartias/introeval-web/internal/middleware"
	"github.com/fadilmartias/introeval-web/internal/repository"
	"github.com/fadilmartias/introeval-web/internal/service"
	"github.com/fadilmartias/introeval-web/internal/usecase"
	"github.com/fadilmartias/introeval-web/internal/usecase/transport"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Details    json.RawMessage `json:"details"`
	Pagination json.RawMessage `json:"pagination"`
}

type testServer struct {
	app      *fiber.App
	sessions *SessionHandler
	cookies  []*http.Cookie
}

func backendMux() *http.ServeMux {
	mux := http.NewServeMux()
	reply := func(code int, body string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			_, _ = io.WriteString(w, body)
		}
	}
	mux.HandleFunc("POST /queue/submit", reply(http.StatusOK, `{"task_id": "t-1", "queue_position": 1}`))
	mux.HandleFunc("GET /queue/status/{id}", reply(http.StatusOK, `{"task_id": "t-1", "status": "pending"}`))
	mux.HandleFunc("GET /queue/stats", reply(http.StatusOK, `{"current_phase": "stt", "stt_queue_size": 2}`))
	mux.HandleFunc("GET /queue/my-results", reply(http.StatusOK,
		`{"has_results": true, "all_tasks": [{"task_id": "a", "status": "complete"}, {"task_id": "b", "status": "failed"}, {"task_id": "c", "status": "complete"}]}`))
	mux.HandleFunc("GET /api/auth/me", reply(http.StatusUnauthorized, `{"detail": "Not authenticated"}`))
	mux.HandleFunc("GET /api/student/profile_analytics/{roll}", reply(http.StatusOK,
		`{"performance_summary": {"overall_average": 8.2, "total_assessments": 2}, "score_trends": []}`))
	return mux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	backend := httptest.NewServer(backendMux())
	t.Cleanup(backend.Close)

	cfg := &config.BackendConfig{
		BaseURL:              backend.URL,
		RequestTimeout:       2 * time.Second,
		PollInterval:         20 * time.Millisecond,
		PollTimeout:          time.Minute,
		StatsInterval:        20 * time.Millisecond,
		RecoveryInterval:     time.Hour,
		RecoveryInitialDelay: time.Hour,
		LoginPath:            "/login",
		StatusTransport:      config.TransportPoll,
	}
	queue := service.NewQueueService(cfg)
	manager := usecase.NewSessionManager(usecase.SessionDeps{
		Queue:     queue,
		Source:    transport.NewSource(cfg, queue),
		States:    repository.NewMemoryStateRepository(),
		Displayed: repository.NewMemoryDisplayedTaskRepository(),
		Config:    cfg,
	})
	t.Cleanup(manager.Close)

	app := fiber.New()
	app.Use(middleware.Session(false))
	sessions := NewSessionHandler(manager, time.Hour)
	sessions.RegisterRoutes(app)
	NewAnalyticsHandler(usecase.NewAnalyticsUsecase(queue)).RegisterRoutes(app)
	return &testServer{app: app, sessions: sessions}
}

// do sends req with the cookies collected so far, so consecutive calls
// share one browser session.
func (ts *testServer) do(t *testing.T, req *http.Request) (*http.Response, envelope) {
	t.Helper()
	for _, ck := range ts.cookies {
		req.AddCookie(ck)
	}
	resp, err := ts.app.Test(req, 5000)
	require.NoError(t, err)
	if cks := resp.Cookies(); len(cks) > 0 {
		ts.cookies = cks
	}

	var env envelope
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(body, &env), string(body))
	} else {
		env.Data = body
	}
	return resp, env
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func uploadRequest(t *testing.T, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("generate_ratings", "false"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set(fiber.HeaderContentType, mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		wantCode    int
	}{
		{"audio", "intro.mp3", "audio/mpeg", fiber.StatusAccepted},
		{"video", "intro.webm", "video/webm", fiber.StatusAccepted},
		{"text", "notes.txt", "text/plain", fiber.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			resp, env := ts.do(t, uploadRequest(t, tt.filename, tt.contentType, []byte("fake media bytes")))
			assert.Equal(t, tt.wantCode, resp.StatusCode)

			if tt.wantCode == fiber.StatusAccepted {
				assert.True(t, env.Success)
				assert.JSONEq(t, `{"task_id": "t-1", "queue_position": 1}`, string(env.Data))
				return
			}
			assert.False(t, env.Success)
			assert.Equal(t, "Please select an audio or video file.", env.Message)
			assert.Contains(t, string(env.Details), `"file"`)
		})
	}
}

func TestUploadWithoutFile(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := ts.do(t, jsonRequest(http.MethodPost, "/upload", `{}`))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestViewFollowsSession(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := ts.do(t, uploadRequest(t, "intro.mp3", "audio/mpeg", []byte("fake media bytes")))
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	resp, env := ts.do(t, httptest.NewRequest(http.MethodGet, "/session/view", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var snap struct {
		TaskID   string          `json:"task_id"`
		Sections map[string]bool `json:"sections"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, "t-1", snap.TaskID)
	assert.True(t, snap.Sections["processing"])

	resp, _ = ts.do(t, httptest.NewRequest(http.MethodPost, "/session/reset", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	_, env = ts.do(t, httptest.NewRequest(http.MethodGet, "/session/view", nil))
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Empty(t, snap.TaskID)
}

func TestEventsStreamsView(t *testing.T) {
	ts := newTestServer(t)
	ts.sessions.Close()

	resp, env := ts.do(t, httptest.NewRequest(http.MethodGet, "/session/events", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(fiber.HeaderContentType))

	body := string(env.Data)
	assert.Contains(t, body, "event: view\n")
	assert.Contains(t, body, "data: {")
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}

func TestVisibilityAndRecover(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
	}{
		{"visible", http.MethodPost, "/session/visibility", `{"state": "visible"}`, fiber.StatusOK},
		{"hidden", http.MethodPost, "/session/visibility", `{"state": "hidden"}`, fiber.StatusOK},
		{"bogus state", http.MethodPost, "/session/visibility", `{"state": "blurred"}`, fiber.StatusUnprocessableEntity},
		{"malformed", http.MethodPost, "/session/visibility", `{`, fiber.StatusBadRequest},
		{"recover", http.MethodPost, "/session/recover", ``, fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			resp, _ := ts.do(t, jsonRequest(tt.method, tt.path, tt.body))
			assert.Equal(t, tt.wantCode, resp.StatusCode)
		})
	}
}

func TestTheme(t *testing.T) {
	ts := newTestServer(t)

	_, env := ts.do(t, httptest.NewRequest(http.MethodGet, "/preferences/theme", nil))
	assert.JSONEq(t, `{"theme": "dark"}`, string(env.Data))

	resp, _ := ts.do(t, jsonRequest(http.MethodPut, "/preferences/theme", `{"theme": "light"}`))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	_, env = ts.do(t, httptest.NewRequest(http.MethodGet, "/preferences/theme", nil))
	assert.JSONEq(t, `{"theme": "light"}`, string(env.Data))

	resp, _ = ts.do(t, jsonRequest(http.MethodPut, "/preferences/theme", `{"theme": "neon"}`))
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t)
	resp, env := ts.do(t, httptest.NewRequest(http.MethodGet, "/session/history?page=2&page_size=2", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var items []struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "c", items[0].TaskID)

	var page struct {
		Page       int   `json:"page"`
		TotalPages int64 `json:"total_pages"`
		TotalItems int64 `json:"total_items"`
	}
	require.NoError(t, json.Unmarshal(env.Pagination, &page))
	assert.Equal(t, 2, page.Page)
	assert.EqualValues(t, 2, page.TotalPages)
	assert.EqualValues(t, 3, page.TotalItems)
}

func TestBackendErrorsKeepClientStatus(t *testing.T) {
	ts := newTestServer(t)

	resp, env := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.False(t, env.Success)

	resp, env = ts.do(t, httptest.NewRequest(http.MethodGet, "/queue/stats", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), `"stt_queue_size":2`)
}

func TestStudentAnalytics(t *testing.T) {
	tests := []struct {
		name     string
		roll     string
		wantCode int
	}{
		{"valid", "21CS042", fiber.StatusOK},
		{"invalid", "21CS-042", fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			resp, env := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/student/analytics/"+tt.roll, nil))
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			if tt.wantCode == fiber.StatusOK {
				assert.Contains(t, string(env.Data), `"label":"Excellent"`)
			}
		})
	}
}
