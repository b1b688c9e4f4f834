package handler

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/fadilmartias/introeval-web/internal/middleware"
	"github.com/fadilmartias/introeval-web/internal/service"
	"github.com/fadilmartias/introeval-web/internal/usecase"
	"github.com/fadilmartias/introeval-web/internal/util"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

var validate = validator.New()

type VisibilityRequest struct {
	State string `json:"state" validate:"required,oneof=visible hidden"`
}

type ThemeRequest struct {
	Theme string `json:"theme"`
}

type SessionHandler struct {
	sessions  *usecase.SessionManager
	heartbeat time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

func NewSessionHandler(sessions *usecase.SessionManager, heartbeat time.Duration) *SessionHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &SessionHandler{sessions: sessions, heartbeat: heartbeat, done: make(chan struct{})}
}

func (h *SessionHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/upload", middleware.RateLimiter(5, time.Minute), h.Upload)

	session := app.Group("/session")
	session.Get("/view", h.View)
	session.Get("/events", h.Events)
	session.Post("/visibility", h.Visibility)
	session.Post("/recover", h.Recover)
	session.Post("/reset", h.Reset)
	session.Get("/history", h.History)

	app.Get("/queue/stats", h.QueueStats)
	app.Get("/preferences/theme", h.Theme)
	app.Put("/preferences/theme", h.SetTheme)
	app.Get("/api/me", h.Me)
	app.Post("/logout", h.Logout)
}

// Close ends open event streams so the server can shut down.
func (h *SessionHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *SessionHandler) session(c *fiber.Ctx) *usecase.Session {
	s := h.sessions.Get(middleware.SessionID(c))
	s.SetCookie(c.Get(fiber.HeaderCookie))
	return s
}

func (h *SessionHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: "file is required",
		}, err)
	}
	f, err := file.Open()
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "cannot read uploaded file",
		}, err)
	}
	defer f.Close()

	s := h.session(c)
	handle, err := s.Submit(c.UserContext(), service.Upload{
		Filename:        file.Filename,
		ContentType:     file.Header.Get(fiber.HeaderContentType),
		Content:         f,
		ExtractFields:   formBool(c, "extract_fields", true),
		GenerateRatings: formBool(c, "generate_ratings", true),
	})
	if err != nil {
		var formErr *util.FormError
		if errors.As(err, &formErr) {
			return util.ErrorResponse(c, util.ErrorResponseFormat{
				Code:    fiber.StatusUnprocessableEntity,
				Message: formErr.Message,
				Details: formErr.Errors,
			}, err)
		}
		return backendError(c, s.View().Snapshot().Error, err)
	}

	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusAccepted,
		Message: "File submitted to queue",
		Data:    handle,
	})
}

func formBool(c *fiber.Ctx, key string, fallback bool) bool {
	v, err := strconv.ParseBool(c.FormValue(key))
	if err != nil {
		return fallback
	}
	return v
}

func (h *SessionHandler) View(c *fiber.Ctx) error {
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Success get view",
		Data:    h.session(c).View().Snapshot(),
	})
}

// Events streams the view as server-sent events: one "view" event per
// version, comments as heartbeats.
func (h *SessionHandler) Events(c *fiber.Ctx) error {
	doc := h.session(c).View()
	heartbeat, done := h.heartbeat, h.done

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		sent := false
		var last uint64
		for {
			changed := doc.Changed()
			snap := doc.Snapshot()
			if !sent || snap.Version != last {
				if err := writeView(w, snap.Version, snap); err != nil {
					return
				}
				sent, last = true, snap.Version
			}

			select {
			case <-done:
				return
			case <-changed:
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))
	return nil
}

func writeView(w *bufio.Writer, version uint64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("encode view: %v", err)
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: view\ndata: %s\n\n", version, data); err != nil {
		return err
	}
	return w.Flush()
}

func (h *SessionHandler) Visibility(c *fiber.Ctx) error {
	var req VisibilityRequest
	if err := c.BodyParser(&req); err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: "invalid request body",
		}, err)
	}
	if err := validate.Struct(req); err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusUnprocessableEntity,
			Message: "state must be visible or hidden",
		}, err)
	}
	if req.State == "visible" {
		h.session(c).Recovery().Visible()
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Visibility recorded",
	})
}

func (h *SessionHandler) Recover(c *fiber.Ctx) error {
	recovered := h.session(c).Recovery().Check(c.UserContext())
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Recovery check finished",
		Data:    fiber.Map{"recovered": recovered},
	})
}

func (h *SessionHandler) Reset(c *fiber.Ctx) error {
	if err := h.session(c).Reset(c.UserContext()); err != nil {
		return backendError(c, "failed to reset session", err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Session reset",
	})
}

func (h *SessionHandler) History(c *fiber.Ctx) error {
	items, page, err := h.session(c).History(c.UserContext(), c.QueryInt("page", 1), c.QueryInt("page_size", 10))
	if err != nil {
		return backendError(c, "failed to load history", err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message:    "Success get history",
		Data:       items,
		Pagination: page,
	})
}

func (h *SessionHandler) QueueStats(c *fiber.Ctx) error {
	stats, err := h.session(c).QueueStats(c.UserContext())
	if err != nil {
		return backendError(c, "failed to load queue stats", err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Success get queue stats",
		Data:    stats,
	})
}

func (h *SessionHandler) Theme(c *fiber.Ctx) error {
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Success get theme",
		Data:    fiber.Map{"theme": h.session(c).Theme(c.UserContext())},
	})
}

func (h *SessionHandler) SetTheme(c *fiber.Ctx) error {
	var req ThemeRequest
	if err := c.BodyParser(&req); err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: "invalid request body",
		}, err)
	}
	if err := h.session(c).SetTheme(c.UserContext(), req.Theme); err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusUnprocessableEntity,
			Message: "theme must be light or dark",
		}, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Theme saved",
		Data:    fiber.Map{"theme": req.Theme},
	})
}

func (h *SessionHandler) Me(c *fiber.Ctx) error {
	me, err := h.session(c).Me(c.UserContext())
	if err != nil {
		return backendError(c, "failed to load user profile", err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Success get user profile",
		Data:    me,
	})
}

func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	if err := h.session(c).Logout(c.UserContext()); err != nil {
		return backendError(c, "failed to log out", err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Logged out",
	})
}

// backendError maps a failed backend call onto a response: client errors
// keep their status, anything else is a bad gateway.
func backendError(c *fiber.Ctx, message string, err error) error {
	code := fiber.StatusBadGateway
	var apiErr *service.APIError
	switch {
	case errors.As(err, &apiErr) && !apiErr.ServerError():
		code = apiErr.StatusCode
	case errors.Is(err, usecase.ErrSessionStopped):
		code = fiber.StatusServiceUnavailable
	}
	if message == "" {
		message = "backend request failed"
	}
	return util.ErrorResponse(c, util.ErrorResponseFormat{
		Code:    code,
		Message: message,
	}, err)
}
