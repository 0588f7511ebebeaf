package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// csrfGuard issues stateless tokens bound to an hour bucket. A token stays
// valid through the following hour.
type csrfGuard struct {
	secret []byte
	now    func() time.Time
}

func newCSRFGuard() *csrfGuard {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		secret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &csrfGuard{secret: secret, now: time.Now}
}

func (g *csrfGuard) bucket(offset int64) int64 {
	return g.now().UTC().Truncate(time.Hour).Unix() - offset*3600
}

func (g *csrfGuard) sign(bucket int64) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(strconv.FormatInt(bucket, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *csrfGuard) Issue() string {
	return g.sign(g.bucket(0))
}

func (g *csrfGuard) Valid(token string) bool {
	if token == "" {
		return false
	}
	for offset := int64(0); offset < 2; offset++ {
		if hmac.Equal([]byte(token), []byte(g.sign(g.bucket(offset)))) {
			return true
		}
	}
	return false
}

// attemptLimiter allows max hits per key inside a sliding window.
type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(limit int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		max:     max(limit, 1),
		window:  cmpDuration(window, time.Minute),
		entries: make(map[string][]time.Time),
	}
}

func cmpDuration(d time.Duration, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := slices.DeleteFunc(l.entries[key], func(ts time.Time) bool {
		return !ts.After(cutoff)
	})
	if len(recent) >= l.max {
		l.entries[key] = recent
		return false
	}
	l.entries[key] = append(recent, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}
