package usecase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fadilmartias/introeval-web/internal/config"
	"github.com/fadilmartias/introeval-web/internal/repository"
	"github.com/fadilmartias/introeval-web/internal/service"
	"github.com/fadilmartias/introeval-web/internal/usecase/transport"
)

type reply struct {
	code int
	body string
}

// fakeBackend scripts the remote queue API. Status replies are served in
// order and the last one repeats.
type fakeBackend struct {
	mu          sync.Mutex
	hits        map[string]int
	submit      reply
	statuses    []reply
	statusCalls int
	myResults   string
	ratingCheck string
	ratingFiles map[string]string
	analytics   string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		hits:        make(map[string]int),
		submit:      reply{code: http.StatusOK, body: `{"task_id": "t-1", "queue_position": 2}`},
		statuses:    []reply{{code: http.StatusOK, body: `{"task_id": "t-1", "status": "pending"}`}},
		myResults:   `{"has_results": false}`,
		ratingCheck: `{"profile_ready": false, "intro_ready": false}`,
		ratingFiles: make(map[string]string),
	}
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := r.URL.Path
	key := path
	if strings.HasPrefix(path, "/queue/status/") {
		key = "/queue/status"
	}
	b.hits[key]++

	send := func(rep reply) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rep.code)
		_, _ = w.Write([]byte(rep.body))
	}

	switch {
	case path == "/queue/submit":
		send(b.submit)
	case strings.HasPrefix(path, "/queue/status/"):
		rep := b.statuses[min(b.statusCalls, len(b.statuses)-1)]
		b.statusCalls++
		send(rep)
	case path == "/queue/my-results":
		send(reply{http.StatusOK, b.myResults})
	case path == "/queue/stats":
		send(reply{http.StatusOK, `{"current_phase": "stt", "stt_queue_size": 3, "processing_active": true}`})
	case path == "/ratings/check_status":
		send(reply{http.StatusOK, b.ratingCheck})
	case strings.HasPrefix(path, "/rating/"):
		body, ok := b.ratingFiles[strings.TrimPrefix(path, "/rating/")]
		if !ok {
			send(reply{http.StatusNotFound, `{"detail": "not found"}`})
			return
		}
		send(reply{http.StatusOK, body})
	case path == "/api/auth/me":
		send(reply{http.StatusOK, `{"username": "asha", "roll_number": "21CS042"}`})
	case path == "/logout":
		send(reply{http.StatusOK, `{"success": true}`})
	case strings.HasPrefix(path, "/api/student/profile_analytics/"):
		send(reply{http.StatusOK, b.analytics})
	default:
		send(reply{http.StatusNotFound, `{}`})
	}
}

func (b *fakeBackend) Hits(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

func (b *fakeBackend) TotalHits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, v := range b.hits {
		n += v
	}
	return n
}

func (b *fakeBackend) SetStatuses(statuses ...reply) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses = statuses
	b.statusCalls = 0
}

func (b *fakeBackend) SetMyResults(body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.myResults = body
}

func ok(body string) reply {
	return reply{code: http.StatusOK, body: body}
}

func testConfig(baseURL string) *config.BackendConfig {
	return &config.BackendConfig{
		BaseURL:              baseURL,
		RequestTimeout:       2 * time.Second,
		PollInterval:         5 * time.Millisecond,
		PollTimeout:          10 * time.Second,
		StatsInterval:        5 * time.Millisecond,
		RecoveryInterval:     time.Hour,
		RecoveryInitialDelay: time.Hour,
		AuthRedirectDelay:    10 * time.Millisecond,
		LoginPath:            "/login",
		StatusTransport:      config.TransportPoll,
	}
}

type harness struct {
	backend *fakeBackend
	deps    SessionDeps
	session *Session
}

func newHarness(t *testing.T, opts ...func(*config.BackendConfig)) *harness {
	t.Helper()
	backend := newFakeBackend()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	for _, opt := range opts {
		opt(cfg)
	}
	queue := service.NewQueueService(cfg)
	deps := SessionDeps{
		Queue:     queue,
		Source:    transport.NewSource(cfg, queue),
		States:    repository.NewMemoryStateRepository(),
		Displayed: repository.NewMemoryDisplayedTaskRepository(),
		Config:    cfg,
	}
	s := NewSession("s-1", deps)
	s.Start()
	t.Cleanup(s.Stop)
	return &harness{backend: backend, deps: deps, session: s}
}

// flush waits until every event queued before the call has been applied.
func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.session.do(ctx, func(context.Context) {}); err != nil {
		t.Fatalf("flush: %v", err)
	}
}
