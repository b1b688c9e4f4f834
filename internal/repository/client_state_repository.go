package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fadilmartias/introeval-web/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StateRepository is the per-session client cache. Nothing stored here is
// authoritative; callers re-validate against the backend.
type StateRepository interface {
	Get(ctx context.Context, sessionID, key string) (string, bool, error)
	Set(ctx context.Context, sessionID, key, value string) error
	Delete(ctx context.Context, sessionID, key string) error
}

type ClientStateRepository struct {
	db *gorm.DB
}

func NewClientStateRepository(db *gorm.DB) *ClientStateRepository {
	return &ClientStateRepository{db}
}

func (r *ClientStateRepository) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	var state model.ClientState
	err := r.db.WithContext(ctx).
		First(&state, "session_id = ? AND key = ?", sessionID, key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return state.Value, true, nil
}

func (r *ClientStateRepository) Set(ctx context.Context, sessionID, key, value string) error {
	state := model.ClientState{SessionID: sessionID, Key: key, Value: value, UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&state).Error
}

func (r *ClientStateRepository) Delete(ctx context.Context, sessionID, key string) error {
	return r.db.WithContext(ctx).
		Delete(&model.ClientState{}, "session_id = ? AND key = ?", sessionID, key).Error
}

// MemoryStateRepository is used when no database is configured.
type MemoryStateRepository struct {
	mu     sync.RWMutex
	states map[string]map[string]string
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{states: make(map[string]map[string]string)}
}

func (r *MemoryStateRepository) Get(_ context.Context, sessionID, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.states[sessionID][key]
	return v, ok, nil
}

func (r *MemoryStateRepository) Set(_ context.Context, sessionID, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.states[sessionID] == nil {
		r.states[sessionID] = make(map[string]string)
	}
	r.states[sessionID][key] = value
	return nil
}

func (r *MemoryStateRepository) Delete(_ context.Context, sessionID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states[sessionID], key)
	return nil
}
