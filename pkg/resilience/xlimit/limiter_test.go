package xlimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

var admissionRule = Rule{Name: "admission", Rate: 3, Burst: 3, Period: time.Minute}

func TestLimiter_Allow_WhenBurstExhausted_Denies(t *testing.T) {
	// Given
	_, rdb := setupMiniredis(t)
	l, err := New(rdb, admissionRule)
	require.NoError(t, err)
	ctx := context.Background()

	// When: 连续请求超过桶容量
	for i := range 3 {
		res, err := l.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 2-i, res.Remaining)
	}
	res, err := l.Allow(ctx, "user:1")

	// Then
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)
	assert.Equal(t, "limit:admission:user:1", res.Key)
	assert.False(t, res.Degraded)
}

func TestLimiter_Allow_KeysAreIndependent(t *testing.T) {
	_, rdb := setupMiniredis(t)
	l, err := New(rdb, Rule{Name: "admission", Rate: 1, Period: time.Minute})
	require.NoError(t, err)
	ctx := context.Background()

	r1, err := l.Allow(ctx, "user:1")
	require.NoError(t, err)
	r2, err := l.Allow(ctx, "user:2")
	require.NoError(t, err)
	r3, err := l.Allow(ctx, "user:1")
	require.NoError(t, err)

	assert.True(t, r1.Allowed)
	assert.True(t, r2.Allowed)
	assert.False(t, r3.Allowed)
}

func TestLimiter_Reset(t *testing.T) {
	_, rdb := setupMiniredis(t)
	l, err := New(rdb, Rule{Name: "admission", Rate: 1, Period: time.Minute}, WithKeyPrefix("rl:"))
	require.NoError(t, err)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "user:1")
	denied, err := l.Allow(ctx, "user:1")
	require.NoError(t, err)
	require.False(t, denied.Allowed)

	require.NoError(t, l.Reset(ctx, "user:1"))
	res, err := l.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, "rl:admission:user:1", res.Key)
}

func TestLimiter_WhenRedisDown_FallbackOpenAllows(t *testing.T) {
	mr, rdb := setupMiniredis(t)
	l, err := New(rdb, admissionRule)
	require.NoError(t, err)
	mr.Close()

	res, err := l.Allow(context.Background(), "user:1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.True(t, res.Degraded)
}

func TestLimiter_WhenRedisDown_FallbackCloseDenies(t *testing.T) {
	mr, rdb := setupMiniredis(t)
	l, err := New(rdb, admissionRule, WithFallback(FallbackClose))
	require.NoError(t, err)
	mr.Close()

	res, err := l.Allow(context.Background(), "user:1")
	assert.ErrorIs(t, err, ErrRedisUnavailable)
	require.NotNil(t, res)
	assert.False(t, res.Allowed)
}

func TestNew_Validation(t *testing.T) {
	_, rdb := setupMiniredis(t)

	_, err := New(nil, admissionRule)
	assert.ErrorIs(t, err, ErrNilClient)

	for _, r := range []Rule{
		{Name: "x", Rate: 0, Period: time.Second},
		{Name: "x", Rate: 1, Burst: -1, Period: time.Second},
		{Name: "x", Rate: 1},
	} {
		_, err := New(rdb, r)
		assert.ErrorIs(t, err, ErrInvalidRule)
	}

	l, err := New(rdb, admissionRule)
	require.NoError(t, err)
	_, err = l.Allow(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
	assert.Equal(t, admissionRule, l.Rule())
}
