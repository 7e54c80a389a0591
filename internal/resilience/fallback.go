package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/earshot/internal/observe"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures a [FallbackGroup] and the per-entry circuit
// breaker created for each provider in it.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig

	// Kind labels provider metrics, e.g. "stt" or "tts".
	Kind string

	// Metrics receives one provider request per attempt. Nil disables
	// recording.
	Metrics *observe.Metrics

	// Permanent reports errors no other provider could fix, such as empty
	// input. They are returned at once without failing over.
	Permanent func(error) bool

	// Logger receives failover decisions. Default: slog.Default().
	Logger *slog.Logger
}

// fallbackEntry pairs a provider value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// ProviderStatus is a snapshot of one entry's breaker.
type ProviderStatus struct {
	Name  string
	State State
}

// FallbackGroup wraps a primary and zero or more fallback instances of the same
// provider type. When the primary fails (or its circuit breaker is open), the
// next healthy fallback is tried in registration order.
//
// Fallbacks must be registered before the group is shared; after that the
// group is safe for concurrent use.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
	log     *slog.Logger
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
// Additional fallbacks are registered via [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CircuitBreaker.Logger == nil {
		cfg.CircuitBreaker.Logger = cfg.Logger
	}
	if perm := cfg.Permanent; perm != nil && cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = func(err error) bool {
			return defaultIsFailure(err) && !perm(err)
		}
	}
	fg := &FallbackGroup[T]{
		cfg: cfg,
		log: cfg.Logger.With("kind", cfg.Kind),
	}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a fallback provider. Fallbacks are tried in the order they
// are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Status reports the breaker state of every entry in order.
func (fg *FallbackGroup[T]) Status() []ProviderStatus {
	out := make([]ProviderStatus, len(fg.entries))
	for i := range fg.entries {
		out[i] = ProviderStatus{Name: fg.entries[i].name, State: fg.entries[i].breaker.State()}
	}
	return out
}

// Execute tries fn against each entry in order until one succeeds.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry in the group until one succeeds,
// returning both the result value and error. Circuit-breaker-open entries are
// skipped. A permanent error or a done ctx stops the walk and is returned
// unchanged; otherwise [ErrAllFailed] wraps the last error. This is a
// package-level function because Go does not support method-level type
// parameters.
func ExecuteWithResult[T any, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		switch {
		case err == nil:
			fg.record(ctx, entry.name, "ok")
			return result, nil
		case errors.Is(err, ErrCircuitOpen):
			fg.record(ctx, entry.name, "skipped")
			fg.log.Debug("skipping provider (circuit open)", "provider", entry.name)
			lastErr = err
			continue
		}

		fg.record(ctx, entry.name, "error")
		if ctx.Err() != nil || (fg.cfg.Permanent != nil && fg.cfg.Permanent(err)) {
			return zero, err
		}
		lastErr = err
		fg.log.Warn("provider failed, trying next", "provider", entry.name, "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

func (fg *FallbackGroup[T]) record(ctx context.Context, provider, status string) {
	if fg.cfg.Metrics == nil {
		return
	}
	fg.cfg.Metrics.RecordProviderRequest(ctx, provider, fg.cfg.Kind, status)
	if status == "error" {
		fg.cfg.Metrics.RecordProviderError(ctx, provider, fg.cfg.Kind)
	}
}
