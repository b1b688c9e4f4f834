package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DisplayedTaskRepository remembers which completed tasks a session has
// already rendered. TryMark is the only way in and is atomic: exactly one
// caller per (session, task) gets true. Unmark releases a claim whose
// rendering never happened.
type DisplayedTaskRepository interface {
	TryMark(ctx context.Context, sessionID, taskID string) (bool, error)
	Unmark(ctx context.Context, sessionID, taskID string) error
	Has(ctx context.Context, sessionID, taskID string) (bool, error)
	Reset(ctx context.Context, sessionID string) error
}

type MemoryDisplayedTaskRepository struct {
	mu    sync.Mutex
	tasks map[string]map[string]struct{}
}

func NewMemoryDisplayedTaskRepository() *MemoryDisplayedTaskRepository {
	return &MemoryDisplayedTaskRepository{tasks: make(map[string]map[string]struct{})}
}

func (r *MemoryDisplayedTaskRepository) TryMark(_ context.Context, sessionID, taskID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.tasks[sessionID]
	if set == nil {
		set = make(map[string]struct{})
		r.tasks[sessionID] = set
	}
	if _, ok := set[taskID]; ok {
		return false, nil
	}
	set[taskID] = struct{}{}
	return true, nil
}

func (r *MemoryDisplayedTaskRepository) Unmark(_ context.Context, sessionID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks[sessionID], taskID)
	return nil
}

func (r *MemoryDisplayedTaskRepository) Has(_ context.Context, sessionID, taskID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[sessionID][taskID]
	return ok, nil
}

func (r *MemoryDisplayedTaskRepository) Reset(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, sessionID)
	return nil
}

// RedisDisplayedTaskRepository shares the set between replicas. Each session
// is one Redis set; SADD reports whether the member was new.
type RedisDisplayedTaskRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDisplayedTaskRepository(rdb *redis.Client, ttl time.Duration) *RedisDisplayedTaskRepository {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDisplayedTaskRepository{rdb: rdb, ttl: ttl}
}

func displayedKey(sessionID string) string {
	return "introeval:displayed:" + sessionID
}

func (r *RedisDisplayedTaskRepository) TryMark(ctx context.Context, sessionID, taskID string) (bool, error) {
	key := displayedKey(sessionID)
	pipe := r.rdb.TxPipeline()
	added := pipe.SAdd(ctx, key, taskID)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("mark task %s displayed: %w", taskID, err)
	}
	return added.Val() == 1, nil
}

func (r *RedisDisplayedTaskRepository) Unmark(ctx context.Context, sessionID, taskID string) error {
	if err := r.rdb.SRem(ctx, displayedKey(sessionID), taskID).Err(); err != nil {
		return fmt.Errorf("unmark task %s: %w", taskID, err)
	}
	return nil
}

func (r *RedisDisplayedTaskRepository) Has(ctx context.Context, sessionID, taskID string) (bool, error) {
	ok, err := r.rdb.SIsMember(ctx, displayedKey(sessionID), taskID).Result()
	if err != nil {
		return false, fmt.Errorf("check task %s displayed: %w", taskID, err)
	}
	return ok, nil
}

func (r *RedisDisplayedTaskRepository) Reset(ctx context.Context, sessionID string) error {
	return r.rdb.Del(ctx, displayedKey(sessionID)).Err()
}
