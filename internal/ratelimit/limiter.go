// Package ratelimit throttles reservation writes per member and per client IP.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Config struct {
	// MemberPerMinute is the sustained write rate allowed for one member.
	MemberPerMinute float64
	// IPPerMinute is the sustained write rate allowed for one client address.
	IPPerMinute float64
	Burst       int
	// TrustProxy makes GetClientIP honor X-Forwarded-For and X-Real-IP.
	TrustProxy bool
	// IdleTTL is how long an unused bucket is kept.
	IdleTTL time.Duration

	// Clock for testing (nil uses real time)
	Clock Clock
}

func DefaultConfig() *Config {
	return &Config{
		MemberPerMinute: 10,
		IPPerMinute:     60,
		Burst:           5,
		IdleTTL:         30 * time.Minute,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

type bucket struct {
	limiter *rate.Limiter
	lastAt  time.Time
}

// Limiter keeps one token bucket per member and per client IP.
type Limiter struct {
	config *Config
	clock  Clock
	mu     sync.Mutex
	byID   map[int64]*bucket
	byIP   map[string]*bucket

	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	defaults := DefaultConfig()
	if cfg.MemberPerMinute <= 0 {
		cfg.MemberPerMinute = defaults.MemberPerMinute
	}
	if cfg.IPPerMinute <= 0 {
		cfg.IPPerMinute = defaults.IPPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaults.IdleTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		byID:          make(map[int64]*bucket),
		byIP:          make(map[string]*bucket),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// AllowWrite consumes one token from the member bucket and one from the IP bucket. A denied
// request consumes nothing.
func (l *Limiter) AllowWrite(memberID int64, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	memberBucket := bucketFor(l.byID, memberID, l.config.MemberPerMinute, l.config.Burst, now)
	ipBucket := bucketFor(l.byIP, ip, l.config.IPPerMinute, l.config.Burst, now)

	memberRes := memberBucket.limiter.ReserveN(now, 1)
	if delay := memberRes.DelayFrom(now); !memberRes.OK() || delay > 0 {
		memberRes.CancelAt(now)
		return LimitResult{Allowed: false, RetryAfter: delay, Reason: "member_rate"}
	}
	ipRes := ipBucket.limiter.ReserveN(now, 1)
	if delay := ipRes.DelayFrom(now); !ipRes.OK() || delay > 0 {
		ipRes.CancelAt(now)
		memberRes.CancelAt(now)
		return LimitResult{Allowed: false, RetryAfter: delay, Reason: "ip_rate"}
	}
	return LimitResult{Allowed: true}
}

func bucketFor[K comparable](buckets map[K]*bucket, key K, perMinute float64, burst int, now time.Time) *bucket {
	b := buckets[key]
	if b == nil {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(perMinute/60), burst)}
		buckets[key] = b
	}
	b.lastAt = now
	return b
}

// Middleware rejects writes with 429 once the caller's bucket is empty. identify returns the
// member ID of the caller, or zero for anonymous requests, which pass through untouched.
func (l *Limiter) Middleware(identify func(*http.Request) int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			memberID := identify(r)
			if memberID <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ip := GetClientIP(r, l.config.TrustProxy)
			result := l.AllowWrite(memberID, ip)
			if !result.Allowed {
				log.Ctx(r.Context()).Warn().
					Str("event", "rate_limit_exceeded").
					Int64("member_id", memberID).
					Str("ip", ip).
					Str("reason", result.Reason).
					Dur("retry_after", result.RetryAfter).
					Msg("Reservation write rate limit exceeded")
				seconds := int(result.RetryAfter.Round(time.Second) / time.Second)
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, b := range l.byID {
		if now.Sub(b.lastAt) > l.config.IdleTTL {
			delete(l.byID, k)
		}
	}
	for k, b := range l.byIP {
		if now.Sub(b.lastAt) > l.config.IdleTTL {
			delete(l.byIP, k)
		}
	}
}

// GetClientIP extracts the client IP from a request.
// When trustProxy is true, the rightmost public address in X-Forwarded-For wins.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				ip := strings.TrimSpace(parts[i])
				if ip != "" && !isPrivateIP(ip) {
					return ip
				}
			}
			return strings.TrimSpace(parts[len(parts)-1])
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

var privateNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid private CIDR: " + cidr)
		}
		networks = append(networks, network)
	}
	return networks
}

func isPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	if ipv4 := ip.To4(); ipv4 != nil {
		ip = ipv4
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
