package broker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	cacheredis "github.com/alanyoungcy/arbscanner/internal/cache/redis"
	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/metrics"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRedisDeps(t *testing.T) (*cacheredis.SignalBus, *cacheredis.PayloadCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := cacheredis.Wrap(rdb)
	return cacheredis.NewSignalBus(c), cacheredis.NewPayloadCache(c), mr
}

func TestRedisPublishBeforeStart(t *testing.T) {
	bus, _, _ := newRedisDeps(t)
	b := NewRedis(bus, RedisOptions{Channel: "feed"}, discardLogger())
	err := b.Publish(context.Background(), payload("x"))
	assert.ErrorIs(t, err, domain.ErrBrokerNotStarted)
}

func TestRedisRoundTripAcrossBrokers(t *testing.T) {
	bus, cache, mr := newRedisDeps(t)
	ctx := context.Background()

	producer := NewRedis(bus, RedisOptions{Channel: "feed", Cache: cache}, discardLogger())
	consumer := NewRedis(bus, RedisOptions{Channel: "feed", Cache: cache}, discardLogger())
	require.NoError(t, producer.Start(ctx))
	require.NoError(t, consumer.Start(ctx))
	require.NoError(t, consumer.Start(ctx))
	defer producer.Stop(ctx)
	defer consumer.Stop(ctx)

	local := producer.Subscribe()
	remote := consumer.Subscribe()

	require.NoError(t, producer.Publish(ctx, payload("r1")))
	assert.Equal(t, "r1", recv(t, local)[0].ID)
	assert.Equal(t, "r1", recv(t, remote)[0].ID)
	assert.Equal(t, "r1", consumer.Latest()[0].ID)

	assert.True(t, mr.Exists("feed:latest"))
	assert.Equal(t, defaultLatestTTL, mr.TTL("feed:latest"))
}

func TestRedisDropsMalformedPayloads(t *testing.T) {
	bus, _, _ := newRedisDeps(t)
	ctx := context.Background()

	b := NewRedis(bus, RedisOptions{Channel: "feed"}, discardLogger())
	require.NoError(t, b.Start(ctx))
	defer b.Stop(ctx)
	ch := b.Subscribe()
	before := testutil.ToFloat64(metrics.MalformedPayloads)

	require.NoError(t, bus.Publish(ctx, "feed", []byte("not json")))
	require.NoError(t, bus.Publish(ctx, "feed", []byte(`{"id":"obj"}`)))
	require.NoError(t, b.Publish(ctx, payload("good")))

	assert.Equal(t, "good", recv(t, ch)[0].ID)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.MalformedPayloads)-before)
}

func TestRedisRestoresLatestOnStart(t *testing.T) {
	bus, cache, _ := newRedisDeps(t)
	ctx := context.Background()

	data, err := Encode(payload("cached"))
	require.NoError(t, err)
	require.NoError(t, cache.SetLatest(ctx, "feed:latest", data, time.Minute))

	b := NewRedis(bus, RedisOptions{Channel: "feed", Cache: cache}, discardLogger())
	assert.Empty(t, b.Latest())
	require.NoError(t, b.Start(ctx))
	defer b.Stop(ctx)
	assert.Equal(t, "cached", b.Latest()[0].ID)
}

func TestRedisStopIsIdempotent(t *testing.T) {
	bus, _, _ := newRedisDeps(t)
	ctx := context.Background()

	b := NewRedis(bus, RedisOptions{Channel: "feed"}, discardLogger())
	require.NoError(t, b.Stop(ctx))
	require.NoError(t, b.Start(ctx))
	require.NoError(t, b.Stop(ctx))
	require.NoError(t, b.Stop(ctx))
	assert.ErrorIs(t, b.Publish(ctx, nil), domain.ErrBrokerNotStarted)
}

func TestNewSelectsBackend(t *testing.T) {
	bus, _, _ := newRedisDeps(t)

	m, err := New(Options{Mode: ModeMemory}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, m)

	r, err := New(Options{Mode: ModeRedis, Bus: bus}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultTopic, r.(*Redis).channel)

	_, err = New(Options{Mode: ModeRedis}, discardLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = New(Options{Mode: "kafka"}, discardLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
