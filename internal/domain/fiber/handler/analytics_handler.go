package handler

import (
	"github.com/fadilmartias/introeval-web/internal/service"
	"github.com/fadilmartias/introeval-web/internal/usecase"
	"github.com/fadilmartias/introeval-web/internal/util"
	"github.com/gofiber/fiber/v2"
)

type AnalyticsHandler struct {
	uc *usecase.AnalyticsUsecase
}

func NewAnalyticsHandler(uc *usecase.AnalyticsUsecase) *AnalyticsHandler {
	return &AnalyticsHandler{uc: uc}
}

func (h *AnalyticsHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/api/student/analytics/:roll", h.StudentAnalytics)
}

func (h *AnalyticsHandler) StudentAnalytics(c *fiber.Ctx) error {
	roll := c.Params("roll")
	if err := validate.Var(roll, "required,alphanum,max=32"); err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: "invalid roll number",
		}, err)
	}

	ctx := service.WithSessionCookie(c.UserContext(), c.Get(fiber.HeaderCookie))
	out, err := h.uc.StudentAnalytics(ctx, roll)
	if err != nil {
		return backendError(c, "failed to load student analytics", err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Success get student analytics",
		Data:    out,
	})
}
