// Package ratelimit throttles API clients with per-client token buckets.
package ratelimit

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Limiter implements a token bucket rate limiter with per-key tracking
type Limiter struct {
	rate       float64 // tokens per second
	burst      int
	clients    map[string]*bucket
	mu         sync.Mutex
	logger     *logrus.Logger
	cleanupTTL time.Duration
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
	blockUntil time.Time
}

// NewLimiter creates a limiter and starts its stale-client sweeper.
// Call Stop to end the sweeper.
func NewLimiter(rate float64, burst int, logger *logrus.Logger) *Limiter {
	l := &Limiter{
		rate:       rate,
		burst:      burst,
		clients:    make(map[string]*bucket),
		logger:     logger,
		cleanupTTL: 10 * time.Minute,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go l.cleanup()

	return l
}

// Stop ends the sweeper goroutine
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// refill returns the bucket for key with tokens accrued up to now.
// Callers hold l.mu.
func (l *Limiter) refill(key string, now time.Time) *bucket {
	b, exists := l.clients[key]
	if !exists {
		b = &bucket{tokens: float64(l.burst), lastUpdate: now}
		l.clients[key] = b
		return b
	}

	b.tokens += now.Sub(b.lastUpdate).Seconds() * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastUpdate = now
	return b
}

// Allow reports whether one request from key may proceed
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN reports whether n requests from key may proceed, spending the
// tokens if so
func (l *Limiter) AllowN(key string, n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.refill(key, now)
	if now.Before(b.blockUntil) {
		return false
	}

	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// Block rejects every request from key for duration
func (l *Limiter) Block(key string, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.refill(key, now)
	b.blockUntil = now.Add(duration)
	b.tokens = 0

	if l.logger != nil {
		l.logger.WithFields(logrus.Fields{
			"key":         key,
			"block_until": b.blockUntil,
		}).Warn("Client blocked due to rate limit violation")
	}
}

// IsBlocked checks if a client is currently blocked
func (l *Limiter) IsBlocked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.clients[key]
	return exists && l.now().Before(b.blockUntil)
}

// Remaining returns the tokens currently available to key
func (l *Limiter) Remaining(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.clients[key]
	if !exists {
		return float64(l.burst)
	}

	tokens := b.tokens + l.now().Sub(b.lastUpdate).Seconds()*l.rate
	if tokens > float64(l.burst) {
		tokens = float64(l.burst)
	}
	return tokens
}

// ClientCount returns the number of tracked clients
func (l *Limiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cleanupTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// sweep drops clients idle for longer than the TTL that are not blocked
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, b := range l.clients {
		if now.Sub(b.lastUpdate) > l.cleanupTTL && !now.Before(b.blockUntil) {
			delete(l.clients, key)
		}
	}
}
