package params_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markoval/stylist-api/internal/params"
	"github.com/markoval/stylist-api/internal/platform/redis"
)

func testDefaults() params.Defaults {
	return params.Defaults{
		DurationMinutes: 1440,
		Price:           1000,
		ShopID:          "shop-1",
		APIKey:          "secret",
	}
}

func newTestStore(t *testing.T) (*params.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewFromRedisClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return params.NewStore(client, testDefaults(), logger), mr
}

func TestInitializeSeedsMissingParams(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx))

	value, err := s.Get(ctx, params.NameDuration)
	require.NoError(t, err)
	assert.Equal(t, "1440", value)

	assert.Equal(t, 1000, s.Price(ctx))
	assert.Equal(t, "shop-1", s.ShopID(ctx))
	assert.Equal(t, "secret", s.APIKey(ctx))
}

func TestInitializeNeverOverwrites(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, params.NamePrice, "1500"))
	require.NoError(t, s.Initialize(ctx))

	assert.Equal(t, 1500, s.Price(ctx), "operator value must survive a restart")
}

func TestSetAndGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, params.NameDuration, "60"))
	assert.Equal(t, 60, s.DurationMinutes(ctx))

	err := s.Set(ctx, "Mystery", "1")
	assert.ErrorIs(t, err, params.ErrUnknownParam)

	_, err = s.Get(ctx, "Mystery")
	assert.ErrorIs(t, err, params.ErrUnknownParam)
}

func TestSetRejectsBadNumericValues(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Set(ctx, params.NamePrice, "free"), params.ErrInvalidValue)
	assert.ErrorIs(t, s.Set(ctx, params.NamePrice, "-10"), params.ErrInvalidValue)
	assert.ErrorIs(t, s.Set(ctx, params.NameDuration, "0"), params.ErrInvalidValue)
}

func TestHistoryRecordsChanges(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, params.NamePrice, "1100"))
	require.NoError(t, s.Set(ctx, params.NamePrice, "1200"))

	entries, err := s.History(ctx, params.NamePrice)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1200", entries[0].Value, "newest first")
	assert.Equal(t, "1100", entries[1].Value)
}

func TestHistoryIsCapped(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		require.NoError(t, s.Set(ctx, params.NamePrice, fmt.Sprintf("%d", 1000+i)))
	}

	entries, err := s.History(ctx, params.NamePrice)
	require.NoError(t, err)
	assert.Len(t, entries, 100)
	assert.Equal(t, "1119", entries[0].Value)
}

func TestGetFallsBackWhenRedisDown(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	mr.Close()

	value, err := s.Get(ctx, params.NameDuration)
	require.NoError(t, err)
	assert.Equal(t, "1440", value)
	assert.Equal(t, 1000, s.Price(ctx))
}

func TestCorruptNumericValueFallsBack(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("param:W", "soon"))
	assert.Equal(t, 1440, s.DurationMinutes(ctx))
}
