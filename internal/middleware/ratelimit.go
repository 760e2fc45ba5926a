package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	rateLimitMaxIP   = 200 // запросов в минуту
	rateLimitMaxUser = 100
	limiterIdleTTL   = 10 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyedLimiter: token bucket на ключ; неактивные ключи вычищаются при обращениях.
type keyedLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

func newKeyedLimiter(perMinute int) *keyedLimiter {
	return &keyedLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
	}
}

func (k *keyedLimiter) allow(key string) bool {
	now := time.Now()
	k.mu.Lock()
	if now.Sub(k.lastSweep) > limiterIdleTTL {
		for key, v := range k.visitors {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(k.visitors, key)
			}
		}
		k.lastSweep = now
	}
	v, ok := k.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.visitors[key] = v
	}
	v.lastSeen = now
	k.mu.Unlock()
	return v.limiter.AllowN(now, 1)
}

var (
	apiRateByIP   = newKeyedLimiter(rateLimitMaxIP)
	apiRateByUser = newKeyedLimiter(rateLimitMaxUser)
)

func clientIP(r *http.Request) string {
	// chimw.RealIP уже подставил X-Real-Ip / X-Forwarded-For в RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimitAPI ограничивает запросы по IP. 429 при превышении.
func RateLimitAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !apiRateByIP.allow(clientIP(r)) {
			writeFailure(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitUser ограничивает запросы по user_id; ставится после BearerAuth.
func RateLimitUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := GetUserID(r.Context()); userID != "" && !apiRateByUser.allow(userID) {
			writeFailure(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
