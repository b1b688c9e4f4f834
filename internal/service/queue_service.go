package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fadilmartias/introeval-web/internal/config"
	"github.com/fadilmartias/introeval-web/internal/dto"
	"github.com/fadilmartias/introeval-web/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

var validate = validator.New()

// APIError is a non-2xx answer from the backend. errors.Is matches it
// against ErrUnauthenticated (401) and ErrForbidden (403).
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend responded %d %s", e.StatusCode, e.Status)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthenticated:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	}
	return false
}

func (e *APIError) ServerError() bool {
	return e.StatusCode >= 500
}

// Detail is the backend's own explanation when it sent one.
func (e *APIError) Detail() string {
	for _, path := range []string{"detail", "message", "error"} {
		if v := gjson.Get(e.Body, path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return e.Status
}

type cookieKey struct{}

// WithSessionCookie attaches the browser's Cookie header so that calls made
// on its behalf authenticate as the same user.
func WithSessionCookie(ctx context.Context, cookie string) context.Context {
	return context.WithValue(ctx, cookieKey{}, cookie)
}

func SessionCookie(ctx context.Context) string {
	cookie, _ := ctx.Value(cookieKey{}).(string)
	return cookie
}

// Upload is one media file plus the processing options sent with it.
type Upload struct {
	Filename        string
	ContentType     string
	Content         io.Reader
	ExtractFields   bool
	GenerateRatings bool
}

type QueueServiceInterface interface {
	Submit(ctx context.Context, upload Upload) (*dto.SubmitResponseDTO, error)
	TaskStatus(ctx context.Context, taskID string) (*model.Task, error)
	MyResults(ctx context.Context) (*dto.MyResultsDTO, error)
	QueueStats(ctx context.Context) (*dto.QueueStatsDTO, error)
	RatingCheckStatus(ctx context.Context) (*dto.RatingCheckStatusDTO, error)
	RatingFile(ctx context.Context, file string) ([]byte, error)
	Me(ctx context.Context) (*dto.UserProfileDTO, error)
	Logout(ctx context.Context) error
	StudentAnalytics(ctx context.Context, rollNumber string) ([]byte, error)
	OpenStatusStream(ctx context.Context, taskID string) (io.ReadCloser, error)
}

type QueueService struct {
	client     *resty.Client
	stream     *resty.Client
	streamPath string
}

func NewQueueService(cfg *config.BackendConfig) *QueueService {
	return &QueueService{
		client: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.RequestTimeout).
			SetHeader("Accept", "application/json"),
		// event streams stay open far longer than any request timeout
		stream: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetHeader("Accept", "text/event-stream"),
		streamPath: strings.TrimRight(cfg.StatusStreamPath, "/"),
	}
}

func (s *QueueService) request(ctx context.Context) *resty.Request {
	req := s.client.R().SetContext(ctx)
	if cookie := SessionCookie(ctx); cookie != "" {
		req.SetHeader("Cookie", cookie)
	}
	return req
}

func (s *QueueService) Submit(ctx context.Context, upload Upload) (*dto.SubmitResponseDTO, error) {
	resp, err := s.request(ctx).
		SetMultipartField("file", upload.Filename, upload.ContentType, upload.Content).
		SetMultipartFormData(map[string]string{
			"extract_fields":   strconv.FormatBool(upload.ExtractFields),
			"generate_ratings": strconv.FormatBool(upload.GenerateRatings),
		}).
		Post("/queue/submit")
	if err != nil {
		return nil, fmt.Errorf("submit upload: %w", err)
	}

	var out dto.SubmitResponseDTO
	if err := decode(resp, &out); err != nil {
		return nil, fmt.Errorf("submit upload: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return nil, fmt.Errorf("submit upload: invalid response: %w", err)
	}
	return &out, nil
}

func (s *QueueService) TaskStatus(ctx context.Context, taskID string) (*model.Task, error) {
	resp, err := s.request(ctx).
		SetPathParam("taskID", taskID).
		Get("/queue/status/{taskID}")
	if err != nil {
		return nil, fmt.Errorf("get task status: %w", err)
	}

	var task model.Task
	if err := decode(resp, &task); err != nil {
		return nil, fmt.Errorf("get task status: %w", err)
	}
	if task.TaskID == "" {
		task.TaskID = taskID
	}
	return &task, nil
}

func (s *QueueService) MyResults(ctx context.Context) (*dto.MyResultsDTO, error) {
	resp, err := s.request(ctx).Get("/queue/my-results")
	if err != nil {
		return nil, fmt.Errorf("get my results: %w", err)
	}

	var out dto.MyResultsDTO
	if err := decode(resp, &out); err != nil {
		return nil, fmt.Errorf("get my results: %w", err)
	}
	return &out, nil
}

func (s *QueueService) QueueStats(ctx context.Context) (*dto.QueueStatsDTO, error) {
	resp, err := s.request(ctx).Get("/queue/stats")
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}

	var out dto.QueueStatsDTO
	if err := decode(resp, &out); err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return &out, nil
}

func (s *QueueService) RatingCheckStatus(ctx context.Context) (*dto.RatingCheckStatusDTO, error) {
	resp, err := s.request(ctx).Get("/ratings/check_status")
	if err != nil {
		return nil, fmt.Errorf("check rating status: %w", err)
	}

	var out dto.RatingCheckStatusDTO
	if err := decode(resp, &out); err != nil {
		return nil, fmt.Errorf("check rating status: %w", err)
	}
	return &out, nil
}

// RatingFile returns the raw body; its envelope varies between backend
// versions and is unwrapped by rating.ExtractPayload.
func (s *QueueService) RatingFile(ctx context.Context, file string) ([]byte, error) {
	resp, err := s.request(ctx).
		SetPathParam("file", file).
		Get("/rating/{file}")
	if err != nil {
		return nil, fmt.Errorf("get rating file %s: %w", file, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("get rating file %s: %w", file, err)
	}
	return resp.Body(), nil
}

func (s *QueueService) Me(ctx context.Context) (*dto.UserProfileDTO, error) {
	resp, err := s.request(ctx).Get("/api/auth/me")
	if err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}

	var out dto.UserProfileDTO
	if err := decode(resp, &out); err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return &out, nil
}

func (s *QueueService) Logout(ctx context.Context) error {
	resp, err := s.request(ctx).Post("/logout")
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (s *QueueService) StudentAnalytics(ctx context.Context, rollNumber string) ([]byte, error) {
	resp, err := s.request(ctx).
		SetPathParam("roll", rollNumber).
		Get("/api/student/profile_analytics/{roll}")
	if err != nil {
		return nil, fmt.Errorf("get analytics for %s: %w", rollNumber, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("get analytics for %s: %w", rollNumber, err)
	}
	return resp.Body(), nil
}

// OpenStatusStream opens the server-sent event stream for one task. The
// caller owns the returned body and must close it.
func (s *QueueService) OpenStatusStream(ctx context.Context, taskID string) (io.ReadCloser, error) {
	if s.streamPath == "" {
		return nil, errors.New("open status stream: no stream path configured")
	}
	req := s.stream.R().SetContext(ctx).SetDoNotParseResponse(true)
	if cookie := SessionCookie(ctx); cookie != "" {
		req.SetHeader("Cookie", cookie)
	}
	resp, err := req.Get(s.streamPath + "/" + url.PathEscape(taskID))
	if err != nil {
		return nil, fmt.Errorf("open status stream: %w", err)
	}

	body := resp.RawBody()
	if resp.IsError() {
		defer body.Close()
		raw, _ := io.ReadAll(io.LimitReader(body, 64<<10))
		return nil, fmt.Errorf("open status stream: %w", newAPIError(resp.StatusCode(), string(raw)))
	}
	return body, nil
}

func checkStatus(resp *resty.Response) error {
	if resp.IsError() {
		return newAPIError(resp.StatusCode(), resp.String())
	}
	return nil
}

func decode(resp *resty.Response, out any) error {
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func newAPIError(code int, body string) *APIError {
	return &APIError{StatusCode: code, Status: http.StatusText(code), Body: body}
}
