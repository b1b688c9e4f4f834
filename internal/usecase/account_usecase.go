package usecase

import (
	"context"
	"fmt"

	"github.com/fadilmartias/introeval-web/internal/dto"
	"github.com/fadilmartias/introeval-web/internal/model"
	"github.com/fadilmartias/introeval-web/internal/response"
	"github.com/go-playground/validator/v10"
)

const DefaultTheme = "dark"

var validate = validator.New()

func (s *Session) Theme(ctx context.Context) string {
	if theme, ok := s.State(ctx, model.StateTheme); ok && theme != "" {
		return theme
	}
	return DefaultTheme
}

func (s *Session) SetTheme(ctx context.Context, theme string) error {
	if err := validate.Var(theme, "required,oneof=light dark"); err != nil {
		return fmt.Errorf("invalid theme %q: %w", theme, err)
	}
	if err := s.deps.States.Set(ctx, s.ID, model.StateTheme, theme); err != nil {
		return fmt.Errorf("save theme: %w", err)
	}
	return nil
}

func (s *Session) Me(ctx context.Context) (*dto.UserProfileDTO, error) {
	return s.deps.Queue.Me(s.requestContext(ctx))
}

// Logout ends the backend session and stops following any task. The
// cached task ids are kept so results can be recovered after logging in
// again.
func (s *Session) Logout(ctx context.Context) error {
	s.DeleteState(ctx, model.StateShowFluidTransition)
	s.stopPolling()
	return s.deps.Queue.Logout(s.requestContext(ctx))
}

// History pages through the user's tasks, newest first as the backend
// returns them.
func (s *Session) History(ctx context.Context, page, pageSize int) ([]model.Task, *response.Pagination, error) {
	results, err := s.deps.Queue.MyResults(s.requestContext(ctx))
	if err != nil {
		return nil, nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	total := len(results.AllTasks)
	from := min((page-1)*pageSize, total)
	to := min(from+pageSize, total)
	items := results.AllTasks[from:to]
	if items == nil {
		items = []model.Task{}
	}
	return items, response.NewPagination(page, pageSize, int64(total)), nil
}
