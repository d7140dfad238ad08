package middleware

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, mr
}

// mockHandler is a simple handler that always succeeds
func mockHandler(ctx context.Context, req any) (any, error) {
	return "success", nil
}

var getUserInfo = &grpc.UnaryServerInfo{FullMethod: "/usermanager.v1.UserService/GetUser"}

func peerContext(t *testing.T, addr string) context.Context {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	require.NoError(t, err)
	return peer.NewContext(context.Background(), &peer.Peer{Addr: tcpAddr})
}

// newFrozenLimiter returns a limiter whose clock only moves when advanced.
func newFrozenLimiter(t *testing.T, client *redis.Client, cfg RateLimiterConfig) (*RateLimiter, func(time.Duration)) {
	rl := NewRateLimiter(client, cfg, zaptest.NewLogger(t))
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	return rl, func(d time.Duration) { now = now.Add(d) }
}

func TestRateLimiter_WithinLimit(t *testing.T) {
	client, _ := setupTestRedis(t)
	rl, _ := newFrozenLimiter(t, client, RateLimiterConfig{RequestsPerSecond: 10, BurstCapacity: 10, Enabled: true})
	interceptor := rl.UnaryInterceptor()
	ctx := peerContext(t, "127.0.0.1:12345")

	for i := 0; i < 5; i++ {
		resp, err := interceptor(ctx, nil, getUserInfo, mockHandler)
		require.NoError(t, err)
		assert.Equal(t, "success", resp)
	}
}

func TestRateLimiter_ExceedLimit(t *testing.T) {
	client, _ := setupTestRedis(t)
	rl, _ := newFrozenLimiter(t, client, RateLimiterConfig{RequestsPerSecond: 5, BurstCapacity: 5, Enabled: true})
	interceptor := rl.UnaryInterceptor()
	ctx := peerContext(t, "127.0.0.1:12345")

	for i := 0; i < 5; i++ {
		_, err := interceptor(ctx, nil, getUserInfo, mockHandler)
		require.NoError(t, err)
	}

	resp, err := interceptor(ctx, nil, getUserInfo, mockHandler)
	require.Error(t, err)
	assert.Nil(t, resp)

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.ResourceExhausted, st.Code())
	assert.Contains(t, st.Message(), "rate limit exceeded")
}

func TestRateLimiter_Refill(t *testing.T) {
	client, _ := setupTestRedis(t)
	rl, advance := newFrozenLimiter(t, client, RateLimiterConfig{RequestsPerSecond: 2, BurstCapacity: 2, Enabled: true})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "scope", "10.0.0.1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "scope", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	advance(500 * time.Millisecond)

	ok, err = rl.Allow(ctx, "scope", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok, "one token refilled after half a second at 2 rps")
}

func TestRateLimiter_Disabled(t *testing.T) {
	client, _ := setupTestRedis(t)
	rl, _ := newFrozenLimiter(t, client, RateLimiterConfig{RequestsPerSecond: 1, BurstCapacity: 1, Enabled: false})
	interceptor := rl.UnaryInterceptor()
	ctx := peerContext(t, "127.0.0.1:12345")

	for i := 0; i < 10; i++ {
		resp, err := interceptor(ctx, nil, getUserInfo, mockHandler)
		require.NoError(t, err)
		assert.Equal(t, "success", resp)
	}
}

func TestRateLimiter_NilIsDisabled(t *testing.T) {
	var rl *RateLimiter
	assert.False(t, rl.Enabled())

	resp, err := rl.UnaryInterceptor()(context.Background(), nil, getUserInfo, mockHandler)
	require.NoError(t, err)
	assert.Equal(t, "success", resp)
}

func TestRateLimiter_DifferentIPs(t *testing.T) {
	client, _ := setupTestRedis(t)
	rl, _ := newFrozenLimiter(t, client, RateLimiterConfig{RequestsPerSecond: 1, BurstCapacity: 2, Enabled: true})
	interceptor := rl.UnaryInterceptor()

	ctx1 := peerContext(t, "192.168.1.1:12345")
	for i := 0; i < 2; i++ {
		_, err := interceptor(ctx1, nil, getUserInfo, mockHandler)
		require.NoError(t, err)
	}
	_, err := interceptor(ctx1, nil, getUserInfo, mockHandler)
	require.Error(t, err)

	// same host on another port shares the bucket
	_, err = interceptor(peerContext(t, "192.168.1.1:23456"), nil, getUserInfo, mockHandler)
	require.Error(t, err)

	resp, err := interceptor(peerContext(t, "192.168.1.2:12345"), nil, getUserInfo, mockHandler)
	require.NoError(t, err)
	assert.Equal(t, "success", resp)
}

func TestRateLimiter_SpoofedHeadersShareBucket(t *testing.T) {
	client, _ := setupTestRedis(t)
	rl, _ := newFrozenLimiter(t, client, RateLimiterConfig{RequestsPerSecond: 1, BurstCapacity: 1, Enabled: true})
	interceptor := rl.UnaryInterceptor()

	allowed := 0
	for i := 0; i < 10; i++ {
		md := metadata.Pairs(
			"x-forwarded-for", fmt.Sprintf("203.0.113.%d", i),
			"x-real-ip", fmt.Sprintf("198.51.100.%d", i),
		)
		ctx := metadata.NewIncomingContext(peerContext(t, "192.0.2.10:40000"), md)
		if _, err := interceptor(ctx, nil, getUserInfo, mockHandler); err == nil {
			allowed++
		} else {
			assert.Equal(t, codes.ResourceExhausted, status.Code(err))
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestRateLimiter_TrustedProxyForwardedFor(t *testing.T) {
	client, mr := setupTestRedis(t)
	rl, _ := newFrozenLimiter(t, client, RateLimiterConfig{
		RequestsPerSecond: 5,
		BurstCapacity:     10,
		Enabled:           true,
		TrustedProxies:    []string{"10.0.0.0/8", "192.0.2.1", "not-an-ip"},
	})
	interceptor := rl.UnaryInterceptor()

	tests := []struct {
		name   string
		peer   string
		md     metadata.MD
		client string
	}{
		{name: "untrusted peer", peer: "192.0.2.2:5000", md: metadata.Pairs("x-forwarded-for", "203.0.113.1"), client: "192.0.2.2"},
		{name: "trusted peer", peer: "192.0.2.1:5000", md: metadata.Pairs("x-forwarded-for", "203.0.113.1"), client: "203.0.113.1"},
		{name: "client prepends spoofed hop", peer: "10.1.1.1:5000", md: metadata.Pairs("x-forwarded-for", "1.2.3.4, 203.0.113.7, 10.2.2.2"), client: "203.0.113.7"},
		{name: "real ip", peer: "10.1.1.1:5000", md: metadata.Pairs("x-real-ip", "203.0.113.9"), client: "203.0.113.9"},
		{name: "garbage header", peer: "10.1.1.1:5000", md: metadata.Pairs("x-forwarded-for", "nonsense"), client: "10.1.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := metadata.NewIncomingContext(peerContext(t, tt.peer), tt.md)
			_, err := interceptor(ctx, nil, getUserInfo, mockHandler)
			require.NoError(t, err)
			assert.True(t, mr.Exists("ratelimit:tb:/usermanager.v1.UserService/GetUser:"+tt.client))
		})
	}
}

func TestRateLimiter_NoPeer(t *testing.T) {
	client, mr := setupTestRedis(t)
	rl, _ := newFrozenLimiter(t, client, RateLimiterConfig{RequestsPerSecond: 1, BurstCapacity: 1, Enabled: true})

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-forwarded-for", "203.0.113.1"))
	_, err := rl.UnaryInterceptor()(ctx, nil, getUserInfo, mockHandler)
	require.NoError(t, err)
	assert.True(t, mr.Exists("ratelimit:tb:/usermanager.v1.UserService/GetUser:unknown"))
}

func TestRateLimiter_DifferentMethods(t *testing.T) {
	client, _ := setupTestRedis(t)
	rl, _ := newFrozenLimiter(t, client, RateLimiterConfig{RequestsPerSecond: 1, BurstCapacity: 1, Enabled: true})
	interceptor := rl.UnaryInterceptor()
	ctx := peerContext(t, "127.0.0.1:12345")

	_, err := interceptor(ctx, nil, getUserInfo, mockHandler)
	require.NoError(t, err)

	listInfo := &grpc.UnaryServerInfo{FullMethod: "/usermanager.v1.UserService/ListUsers"}
	_, err = interceptor(ctx, nil, listInfo, mockHandler)
	require.NoError(t, err)
}

func TestRateLimiter_RedisDownFailsOpen(t *testing.T) {
	client, mr := setupTestRedis(t)
	rl, _ := newFrozenLimiter(t, client, RateLimiterConfig{RequestsPerSecond: 1, BurstCapacity: 1, Enabled: true})
	interceptor := rl.UnaryInterceptor()
	mr.Close()

	resp, err := interceptor(peerContext(t, "127.0.0.1:1"), nil, getUserInfo, mockHandler)
	require.NoError(t, err)
	assert.Equal(t, "success", resp)
}

func TestRateLimiter_BucketExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	rl, _ := newFrozenLimiter(t, client, RateLimiterConfig{RequestsPerSecond: 1, BurstCapacity: 1, Enabled: true})

	_, err := rl.Allow(context.Background(), "scope", "10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, bucketTTLSeconds*time.Second, mr.TTL("ratelimit:tb:scope:10.0.0.9"))
}
