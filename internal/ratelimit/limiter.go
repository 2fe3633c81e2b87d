package ratelimit

import (
	"log/slog"
	"time"

	"github.com/letterflow/letterflow/internal/repository"
)

// Result of a rate limit check
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is a fixed-window rate limiter backed by the database, so the
// counters survive restarts and are shared by all processes on the same
// store. Store errors fail open: rejecting legitimate traffic because
// the limiter is broken is the worse failure mode.
type Limiter struct {
	repo   *repository.RateLimitRepository
	logger *slog.Logger
}

func NewLimiter(repo *repository.RateLimitRepository, logger *slog.Logger) *Limiter {
	return &Limiter{
		repo:   repo,
		logger: logger.With("component", "ratelimit"),
	}
}

// Check records one request for (identifier, endpoint) and reports
// whether it is within max requests per window.
func (l *Limiter) Check(identifier, endpoint string, max int, window time.Duration) Result {
	now := time.Now()
	cutoff := now.Add(-window)

	w, err := l.repo.GetWindow(identifier, endpoint, cutoff)
	if err != nil {
		l.logger.Error("rate limit lookup failed, allowing request",
			"endpoint", endpoint, "error", err)
		return Result{Allowed: true, Remaining: max - 1, ResetAt: now.Add(window)}
	}

	if w == nil {
		if err := l.repo.CreateWindow(identifier, endpoint); err != nil {
			l.logger.Error("rate limit window create failed, allowing request",
				"endpoint", endpoint, "error", err)
		}
		return Result{Allowed: true, Remaining: max - 1, ResetAt: now.Add(window)}
	}

	resetAt := w.WindowStart.Add(window)
	if w.Count >= max {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	if err := l.repo.Increment(w.ID); err != nil {
		l.logger.Error("rate limit increment failed, allowing request",
			"endpoint", endpoint, "error", err)
	}

	remaining := max - w.Count - 1
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, ResetAt: resetAt}
}
