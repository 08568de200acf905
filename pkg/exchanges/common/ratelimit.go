package common

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WeightTracker follows the request weight an exchange reports in a response header
// (Binance sends X-MBX-USED-WEIGHT-1M) so callers can back off before a ban.
type WeightTracker struct {
	mu            sync.RWMutex
	usedWeight    int
	limit         int
	lastReset     time.Time
	resetInterval time.Duration
	log           *zap.Logger
}

// NewWeightTracker creates a tracker for limit weight units per resetInterval.
func NewWeightTracker(limit int, resetInterval time.Duration, log *zap.Logger) *WeightTracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &WeightTracker{
		limit:         limit,
		resetInterval: resetInterval,
		lastReset:     time.Now(),
		log:           log,
	}
}

// Update records the weight reported by the latest response.
func (w *WeightTracker) Update(headerValue string) {
	if w == nil || headerValue == "" {
		return
	}
	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if time.Since(w.lastReset) >= w.resetInterval {
		w.lastReset = time.Now()
	}
	w.usedWeight = weight

	pct := float64(w.usedWeight) / float64(w.limit) * 100
	switch {
	case pct >= 95:
		w.log.Warn("request weight critical", zap.Int("used", w.usedWeight), zap.Int("limit", w.limit))
	case pct >= 80:
		w.log.Info("request weight high", zap.Int("used", w.usedWeight), zap.Int("limit", w.limit))
	}
}

// Usage returns the current weight, the limit and the used percentage.
func (w *WeightTracker) Usage() (used, limit int, pct float64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if time.Since(w.lastReset) >= w.resetInterval {
		return 0, w.limit, 0
	}
	return w.usedWeight, w.limit, float64(w.usedWeight) / float64(w.limit) * 100
}

// Cooldown returns how long to wait before the next request; zero when under 90%.
func (w *WeightTracker) Cooldown() time.Duration {
	if w == nil {
		return 0
	}
	_, _, pct := w.Usage()
	if pct < 90 {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	left := w.resetInterval - time.Since(w.lastReset)
	if left < 0 {
		return 0
	}
	return left
}
