package repository

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fadilmartias/introeval-web/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestMemoryStateRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStateRepository()

	_, ok, err := repo.Get(ctx, "s1", "theme")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, "s1", "theme", "light"))
	require.NoError(t, repo.Set(ctx, "s2", "theme", "dark"))

	v, ok, err := repo.Get(ctx, "s1", "theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "light", v)

	require.NoError(t, repo.Delete(ctx, "s1", "theme"))
	_, ok, _ = repo.Get(ctx, "s1", "theme")
	assert.False(t, ok)

	v, _, _ = repo.Get(ctx, "s2", "theme")
	assert.Equal(t, "dark", v)
}

func TestClientStateRepository(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.ClientState{}))

	ctx := context.Background()
	repo := NewClientStateRepository(db)
	session := uuid.NewString()
	t.Cleanup(func() { db.Where("session_id = ?", session).Delete(&model.ClientState{}) })

	require.NoError(t, repo.Set(ctx, session, model.StateLastTaskID, "t-1"))
	require.NoError(t, repo.Set(ctx, session, model.StateLastTaskID, "t-2"))

	v, ok, err := repo.Get(ctx, session, model.StateLastTaskID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "t-2", v)

	require.NoError(t, repo.Delete(ctx, session, model.StateLastTaskID))
	_, ok, err = repo.Get(ctx, session, model.StateLastTaskID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testDisplayedTaskRepository(t *testing.T, repo DisplayedTaskRepository) {
	ctx := context.Background()
	session := uuid.NewString()
	t.Cleanup(func() { _ = repo.Reset(ctx, session) })

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.TryMark(ctx, session, "t-1")
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	has, err := repo.Has(ctx, session, "t-1")
	require.NoError(t, err)
	assert.True(t, has)

	other := uuid.NewString()
	ok, err := repo.TryMark(ctx, other, "t-1")
	require.NoError(t, err)
	assert.True(t, ok, "sessions are independent")
	_ = repo.Reset(ctx, other)

	require.NoError(t, repo.Unmark(ctx, session, "t-1"))
	has, err = repo.Has(ctx, session, "t-1")
	require.NoError(t, err)
	assert.False(t, has)
	ok, err = repo.TryMark(ctx, session, "t-1")
	require.NoError(t, err)
	assert.True(t, ok, "unmarked task can be claimed again")
	require.NoError(t, repo.Unmark(ctx, session, "never-marked"))

	require.NoError(t, repo.Reset(ctx, session))
	ok, err = repo.TryMark(ctx, session, "t-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryDisplayedTaskRepository(t *testing.T) {
	testDisplayedTaskRepository(t, NewMemoryDisplayedTaskRepository())
}

func TestRedisDisplayedTaskRepository(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	testDisplayedTaskRepository(t, NewRedisDisplayedTaskRepository(rdb, time.Minute))
}
