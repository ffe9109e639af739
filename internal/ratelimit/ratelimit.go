package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deusflow/newslens/internal/logger"
	"golang.org/x/time/rate"
)

// ErrBudgetExhausted is returned once the per-run request budget is spent.
var ErrBudgetExhausted = errors.New("ai request budget exhausted")

// AIRateLimiter paces model requests and enforces a per-run request budget.
// A nil *AIRateLimiter allows everything.
type AIRateLimiter struct {
	mu       sync.Mutex
	pacer    *rate.Limiter
	maxTotal int
	total    int
	perModel map[string]int
	denied   int
}

// NewAIRateLimiter creates a limiter. maxTotal <= 0 disables the budget, perMinute <= 0 disables pacing.
func NewAIRateLimiter(maxTotal, perMinute int) *AIRateLimiter {
	rl := &AIRateLimiter{
		maxTotal: maxTotal,
		perModel: make(map[string]int),
	}
	if perMinute > 0 {
		rl.pacer = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return rl
}

// Wait reserves one request for model, blocking for pacing if needed.
func (rl *AIRateLimiter) Wait(ctx context.Context, model string) error {
	if rl == nil {
		return nil
	}

	rl.mu.Lock()
	if rl.maxTotal > 0 && rl.total >= rl.maxTotal {
		rl.denied++
		rl.mu.Unlock()
		logger.Warn("AI request budget reached", "used", rl.maxTotal, "model", model)
		return ErrBudgetExhausted
	}
	rl.total++
	rl.perModel[model]++
	used := rl.total
	rl.mu.Unlock()

	logger.Debug("AI usage", "model", model, "total", used, "limit", rl.maxTotal)

	if rl.pacer != nil {
		if err := rl.pacer.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}
	}
	return nil
}

// Used returns how many requests were reserved for model ("" for the total).
func (rl *AIRateLimiter) Used(model string) int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if model == "" {
		return rl.total
	}
	return rl.perModel[model]
}

// GetStats returns current rate limiter statistics
func (rl *AIRateLimiter) GetStats() map[string]interface{} {
	if rl == nil {
		return map[string]interface{}{}
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	per := make(map[string]int, len(rl.perModel))
	for k, v := range rl.perModel {
		per[k] = v
	}
	return map[string]interface{}{
		"total_used":  rl.total,
		"total_limit": rl.maxTotal,
		"denied":      rl.denied,
		"per_model":   per,
	}
}
