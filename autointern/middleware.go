package autointern

import (
	"crypto/subtle"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/justinas/alice"
	"golang.org/x/time/rate"
)

//SecurityHeaders sets headers to lock down api responses
func (s *Server) SecurityHeaders(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// check to see if we are developing before forcing strict transport
		if !s.cfg.Developing {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		h.ServeHTTP(w, r)
	})
}

//SetVersionHeader adds a header with the current version
func SetVersionHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Autointern-Version", version)

		h.ServeHTTP(w, r)
	})
}

//RestoreRealIP uses the real ip of the request from theCF-Connecting-IP header
func RestoreRealIP(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.Header.Get("CF-Connecting-IP")
		if ip != "" {
			r.RemoteAddr = ip
		}
		h.ServeHTTP(w, r)
	})
}

// RequireAdminKey only lets through requests carrying the configured admin key.
// With no key configured every request is refused.
func (s *Server) RequireAdminKey(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k := r.Header.Get("X-Autointern-Admin-Key")

		if s.cfg.AdminKey == "" || subtle.ConstantTimeCompare([]byte(k), []byte(s.cfg.AdminKey)) != 1 {
			returnJSONError(w, r, http.StatusUnauthorized, CodeUnauthenticated, "Unauthorized: admin key invalid")
			return
		}

		h.ServeHTTP(w, r)
	})
}

const (
	limiterIdle  = 10 * time.Minute
	limiterSweep = 5 * time.Minute
)

type limitedClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter hands out a token bucket per client. Idle clients are dropped during later calls.
type rateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*limitedClient
	every     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiter(requests int, per time.Duration) *rateLimiter {
	return &rateLimiter{
		clients: make(map[string]*limitedClient),
		every:   rate.Every(per / time.Duration(requests)),
		burst:   requests,
		now:     time.Now,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	if now.Sub(rl.lastSweep) > limiterSweep {
		for k, c := range rl.clients {
			if now.Sub(c.lastSeen) > limiterIdle {
				delete(rl.clients, k)
			}
		}
		rl.lastSweep = now
	}

	c, ok := rl.clients[key]
	if !ok {
		c = &limitedClient{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now

	return c.limiter.AllowN(now, 1)
}

// RateLimit limits requests per signed in user, or per remote ip for anonymous requests
func RateLimit(requests int, per time.Duration) alice.Constructor {
	rl := newRateLimiter(requests, per)

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := userID(r)
			if key == "" {
				key = clientIP(r)
			}

			if !rl.allow(key) {
				returnJSONError(w, r, http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded. Please try again later.")
				return
			}

			h.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
