package repository

import (
	"context"
	"testing"
	"time"

	"wisefido-collar/internal/accumulator"
	"wisefido-collar/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisStateRepo(t *testing.T) (*miniredis.Miniredis, *ActivityStateRepository) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := NewActivityStateRepository(NewRedisStateCache(client), "collar:state:", 48*time.Hour, zap.NewNop())
	return mr, repo
}

func TestActivityState_SaveAndLoad(t *testing.T) {
	mr, repo := newRedisStateRepo(t)
	ctx := context.Background()

	day := accumulator.NewDay("2026-03-01")
	day.Apply(models.LabelWalk, 1000, time.Now())
	day.Apply(models.LabelWalk, 1500, time.Now())
	day.AddSteps(7)

	require.NoError(t, repo.Save(ctx, "collar-1", day))
	assert.True(t, mr.Exists("collar:state:collar-1"))
	assert.Equal(t, 48*time.Hour, mr.TTL("collar:state:collar-1"))

	got, err := repo.Load(ctx, "collar-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", got.Key)
	assert.Equal(t, uint64(7), got.Steps)
	assert.Equal(t, uint64(500), got.State.PerLabelMs[models.LabelWalk])
	assert.Equal(t, uint64(500), got.State.ActiveMs)
	require.NotNil(t, got.State.LastSensorTimeMs)
	assert.Equal(t, uint32(1500), *got.State.LastSensorTimeMs)
}

func TestActivityState_NotFound(t *testing.T) {
	_, repo := newRedisStateRepo(t)

	_, err := repo.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrStateNotFound)

	day, err := repo.LoadOrEmpty(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, day.Key)
}

func TestActivityState_CorruptedStateIsDiscarded(t *testing.T) {
	mr, repo := newRedisStateRepo(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("collar:state:collar-1", "{not json"))
	_, err := repo.Load(ctx, "collar-1")
	assert.ErrorIs(t, err, ErrStateCorrupted)

	day, err := repo.LoadOrEmpty(ctx, "collar-1")
	require.NoError(t, err)
	assert.Empty(t, day.Key)
	assert.False(t, mr.Exists("collar:state:collar-1"))
}

func TestActivityState_RejectsBadDayKey(t *testing.T) {
	cache := newMemStateCache()
	repo := NewActivityStateRepository(cache, "s:", 0, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, "s:collar-1", []byte(`{"day":"yesterday","steps":3}`), 0))
	_, err := repo.Load(ctx, "collar-1")
	assert.ErrorIs(t, err, ErrStateCorrupted)
}

func TestActivityState_RedisUnavailable(t *testing.T) {
	mr, repo := newRedisStateRepo(t)
	mr.Close()

	_, err := repo.LoadOrEmpty(context.Background(), "collar-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrStateNotFound)
}

func TestActivityState_BadDayKeyIsDroppedFromCache(t *testing.T) {
	cache := newMemStateCache()
	repo := NewActivityStateRepository(cache, "s:", time.Hour, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, "s:collar-1", []byte(`{"day":"2026-13-40"}`), 0))
	day, err := repo.LoadOrEmpty(ctx, "collar-1")
	require.NoError(t, err)
	assert.Empty(t, day.Key)

	_, err = cache.Load(ctx, "s:collar-1")
	assert.ErrorIs(t, err, errNotCached)
}
