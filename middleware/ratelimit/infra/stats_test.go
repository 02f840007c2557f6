package infra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot-gateway/middleware/ratelimit/domain"
)

func statsEvent(cat domain.Category, allowed bool, reason domain.Reason) domain.StatsEvent {
	return domain.StatsEvent{
		Key:      "user:1",
		Category: cat,
		Allowed:  allowed,
		Reason:   reason,
		Method:   "POST",
		Path:     "/api/chat",
		At:       time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC),
	}
}

func TestMemoryStatsStore_AggregatesByOutcome(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, statsEvent(domain.CategoryChat, true, "")))
	require.NoError(t, s.Record(ctx, statsEvent(domain.CategoryChat, true, "")))
	require.NoError(t, s.Record(ctx, statsEvent(domain.CategoryChat, false, domain.ReasonBurstExceeded)))

	degraded := statsEvent(domain.CategoryLogin, true, "")
	degraded.Degraded = true
	require.NoError(t, s.Record(ctx, degraded))

	total := s.Total()
	assert.Equal(t, int64(3), total.Allowed)
	assert.Equal(t, int64(1), total.Denied)
	assert.Equal(t, int64(1), total.Degraded)

	byCat := s.ByCategory()
	assert.Equal(t, int64(2), byCat["chat"].Allowed)
	assert.Equal(t, int64(1), byCat["chat"].Denied)
	assert.Equal(t, int64(1), byCat["login"].Degraded)

	byKey := s.ByKey()
	assert.Equal(t, int64(3), byKey["user:1"].Allowed)
}

func TestMemoryStatsStore_IgnoresKeysWhenNotTracking(t *testing.T) {
	s := NewMemoryStatsStore()

	require.NoError(t, s.Record(context.Background(), statsEvent(domain.CategoryChat, true, "")))

	assert.Empty(t, s.ByKey())
}

func TestPrometheusStatsStore_CountsByCategoryAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPrometheusStatsStore(reg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Record(ctx, statsEvent(domain.CategoryChat, true, "")))
	require.NoError(t, s.Record(ctx, statsEvent(domain.CategoryChat, true, "")))
	require.NoError(t, s.Record(ctx, statsEvent(domain.CategoryChat, false, domain.ReasonSustainedExceeded)))

	allowed := s.decisions.WithLabelValues("chat", "allowed")
	denied := s.decisions.WithLabelValues("chat", "sustained_exceeded")

	assert.Equal(t, 2.0, testutil.ToFloat64(allowed))
	assert.Equal(t, 1.0, testutil.ToFloat64(denied))
}

func TestPrometheusStatsStore_DoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := NewPrometheusStatsStore(reg)
	require.NoError(t, err)

	_, err = NewPrometheusStatsStore(reg)
	assert.Error(t, err)
}

func TestRedisStatsStore_WritesAggregatedHashes(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStatsStore(client, WithStatsTrackKeys(true))
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, statsEvent(domain.CategoryChat, true, "")))
	require.NoError(t, s.Record(ctx, statsEvent(domain.CategoryChat, false, domain.ReasonBurstExceeded)))

	assert.Equal(t, "1", server.HGet("ratelimit:stats:total", "allowed"))
	assert.Equal(t, "1", server.HGet("ratelimit:stats:total", "burst_exceeded"))

	// balde de minuto derivado de ev.At, em UTC
	assert.Equal(t, "1", server.HGet("ratelimit:stats:minute:202406231015", "allowed"))

	assert.Equal(t, "1", server.HGet("ratelimit:stats:category", "chat:allowed"))
	assert.Equal(t, "1", server.HGet("ratelimit:stats:category", "chat:burst_exceeded"))

	assert.Equal(t, "1", server.HGet("ratelimit:stats:key:user:1", "allowed"))

	// séries expiram; o total não
	assert.Equal(t, 24*time.Hour, server.TTL("ratelimit:stats:minute:202406231015"))
	assert.Equal(t, time.Duration(0), server.TTL("ratelimit:stats:total"))
}

func TestRedisStatsStore_NoBucketSkipsMinuteSeries(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStatsStore(client, WithStatsBucket("none"))
	require.NoError(t, s.Record(context.Background(), statsEvent(domain.CategoryChat, true, "")))

	assert.False(t, server.Exists("ratelimit:stats:minute:202406231015"))
	assert.Equal(t, "1", server.HGet("ratelimit:stats:total", "allowed"))
}
