package handlers

import (
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	maxAttempts    = 5
	blockDuration  = 15 * time.Minute
	windowDuration = 15 * time.Minute
)

type attemptData struct {
	count        int
	firstAttempt time.Time
}

// ipLimiter blocks an IP for blockDuration after maxAttempts failures inside
// windowDuration. Each App carries its own login and signup limiter.
type ipLimiter struct {
	sync.Mutex
	attempts map[string]*attemptData
	blocked  map[string]time.Time
}

func newIPLimiter() *ipLimiter {
	return &ipLimiter{
		attempts: make(map[string]*attemptData),
		blocked:  make(map[string]time.Time),
	}
}

// Allow returns false if the IP is currently blocked. Expired blocks are
// cleaned up on the way.
func (l *ipLimiter) Allow(ip string) bool {
	l.Lock()
	defer l.Unlock()

	if unblockTime, ok := l.blocked[ip]; ok {
		if time.Now().Before(unblockTime) {
			return false
		}
		delete(l.blocked, ip)
		delete(l.attempts, ip)
	}
	return true
}

// RecordFailure increments the failure count and blocks if the threshold is
// reached.
func (l *ipLimiter) RecordFailure(ip string) {
	l.Lock()
	defer l.Unlock()

	// Bounded memory: a full reset is crude but keeps the map from growing
	// without limit under address-spraying
	if len(l.attempts) > 10000 {
		l.attempts = make(map[string]*attemptData)
	}

	data, exists := l.attempts[ip]
	if !exists || time.Since(data.firstAttempt) > windowDuration {
		l.attempts[ip] = &attemptData{count: 1, firstAttempt: time.Now()}
		return
	}
	data.count++
	if data.count >= maxAttempts {
		l.blocked[ip] = time.Now().Add(blockDuration)
	}
}

// Reset clears the counters for an IP (used on successful login).
func (l *ipLimiter) Reset(ip string) {
	l.Lock()
	defer l.Unlock()
	delete(l.attempts, ip)
	delete(l.blocked, ip)
}

func getClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
