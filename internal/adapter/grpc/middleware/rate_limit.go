package middleware

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// bucketTTLSeconds bounds how long an idle bucket survives in Redis.
const bucketTTLSeconds = 60

// tokenBucket refills ARGV[1] tokens per second up to ARGV[2] and takes one.
// Returns 1 when the request is allowed, 0 otherwise.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'last_refill', 'tokens')
local last_refill = tonumber(bucket[1]) or now
local tokens = tonumber(bucket[2]) or capacity

local elapsed = math.max(0, now - last_refill)
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', key, 'last_refill', tostring(now), 'tokens', tostring(tokens))
redis.call('EXPIRE', key, ttl)
return allowed
`)

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	RequestsPerSecond float64
	BurstCapacity     int
	Enabled           bool
	// TrustedProxies are the IPs or CIDRs whose x-forwarded-for and
	// x-real-ip metadata is believed. Other peers are keyed by address.
	TrustedProxies []string
}

// RateLimiter is a Redis-backed token bucket shared by the gRPC interceptor
// and the gin middleware, so both transports draw on the same buckets.
type RateLimiter struct {
	client  *redis.Client
	config  RateLimiterConfig
	trusted []*net.IPNet
	log     *zap.Logger
	now     func() time.Time
}

// NewRateLimiter creates a new rate limiter. Unparseable trusted proxies
// are skipped with a warning.
func NewRateLimiter(client *redis.Client, config RateLimiterConfig, log *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		client: client,
		config: config,
		log:    log,
		now:    time.Now,
	}
	for _, proxy := range config.TrustedProxies {
		ipNet, err := parseIPNet(proxy)
		if err != nil {
			log.Warn("ignoring trusted proxy", zap.String("proxy", proxy), zap.Error(err))
			continue
		}
		rl.trusted = append(rl.trusted, ipNet)
	}
	return rl
}

// Enabled reports whether requests are being limited. A nil limiter is disabled.
func (rl *RateLimiter) Enabled() bool {
	return rl != nil && rl.config.Enabled && rl.client != nil
}

// Allow takes one token from the bucket for scope and client. Redis errors
// are returned to the caller, which fails open.
func (rl *RateLimiter) Allow(ctx context.Context, scope, client string) (bool, error) {
	key := fmt.Sprintf("ratelimit:tb:%s:%s", scope, client)
	now := float64(rl.now().UnixNano()) / float64(time.Second)

	allowed, err := tokenBucket.Run(ctx, rl.client, []string{key},
		strconv.FormatFloat(rl.config.RequestsPerSecond, 'f', -1, 64),
		rl.config.BurstCapacity,
		strconv.FormatFloat(now, 'f', 6, 64),
		bucketTTLSeconds,
	).Int64()
	if err != nil {
		return false, err
	}
	return allowed == 1, nil
}

// ExceededMessage describes the limit for a rejected caller.
func (rl *RateLimiter) ExceededMessage() string {
	return fmt.Sprintf("rate limit exceeded: %.2f requests/second (burst capacity: %d)",
		rl.config.RequestsPerSecond, rl.config.BurstCapacity)
}

// UnaryInterceptor returns a gRPC unary interceptor for rate limiting.
func (rl *RateLimiter) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if !rl.Enabled() {
			return handler(ctx, req)
		}

		clientIP := rl.clientIPFromContext(ctx)

		allowed, err := rl.Allow(ctx, info.FullMethod, clientIP)
		if err != nil {
			rl.log.Warn("rate limiter redis error, allowing request",
				zap.String("client_ip", clientIP),
				zap.String("method", info.FullMethod),
				zap.Error(err),
			)
			return handler(ctx, req)
		}

		if !allowed {
			rl.log.Warn("rate limit exceeded",
				zap.String("client_ip", clientIP),
				zap.String("method", info.FullMethod),
			)
			return nil, status.Error(codes.ResourceExhausted, rl.ExceededMessage())
		}

		return handler(ctx, req)
	}
}

// clientIPFromContext identifies the caller by peer address. Forwarding
// metadata is only honored when the peer itself is a trusted proxy, and
// x-forwarded-for is walked right to left past the trusted hops.
func (rl *RateLimiter) clientIPFromContext(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}

	remote := p.Addr.String()
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}

	if !rl.isTrusted(net.ParseIP(remote)) {
		return remote
	}

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if xff := md.Get("x-forwarded-for"); len(xff) > 0 {
			hops := strings.Split(strings.Join(xff, ","), ",")
			for i := len(hops) - 1; i >= 0; i-- {
				ip := net.ParseIP(strings.TrimSpace(hops[i]))
				if ip == nil {
					break
				}
				if i == 0 || !rl.isTrusted(ip) {
					return ip.String()
				}
			}
		}
		if xri := md.Get("x-real-ip"); len(xri) > 0 {
			if ip := net.ParseIP(strings.TrimSpace(xri[0])); ip != nil {
				return ip.String()
			}
		}
	}

	return remote
}

func (rl *RateLimiter) isTrusted(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.trusted {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

func parseIPNet(s string) (*net.IPNet, error) {
	if strings.Contains(s, "/") {
		_, ipNet, err := net.ParseCIDR(s)
		return ipNet, err
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP %q", s)
	}
	bits := 8 * net.IPv4len
	if ip.To4() == nil {
		bits = 8 * net.IPv6len
	} else {
		ip = ip.To4()
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}
