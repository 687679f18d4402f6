package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllModelsFailed is returned when every model in a [ModelChain] fails or
// has an open circuit breaker.
var ErrAllModelsFailed = errors.New("all models failed")

// chainEntry pairs a model name with its dedicated circuit breaker.
type chainEntry struct {
	model   string
	breaker *CircuitBreaker
}

// ModelChain is an ordered list of model names with one circuit breaker per
// model. Do tries each healthy model in order until one succeeds, so a
// model that keeps failing stops being tried at all for a while instead of
// adding its timeout to every request.
//
// ModelChain is safe for concurrent use.
type ModelChain struct {
	entries []chainEntry
}

// NewModelChain creates a chain over models, in fallback order. Each model
// gets its own breaker built from cfg.
func NewModelChain(models []string, cfg CircuitBreakerConfig) *ModelChain {
	entries := make([]chainEntry, 0, len(models))
	for _, m := range models {
		cbCfg := cfg
		cbCfg.Name = m
		entries = append(entries, chainEntry{
			model:   m,
			breaker: NewCircuitBreaker(cbCfg),
		})
	}
	return &ModelChain{entries: entries}
}

// Models returns the chain's model names in fallback order.
func (mc *ModelChain) Models() []string {
	out := make([]string, len(mc.entries))
	for i, e := range mc.entries {
		out[i] = e.model
	}
	return out
}

// Do tries fn against each model in order until one succeeds. Models with an
// open breaker are skipped. Returns [ErrAllModelsFailed] wrapped with the
// accumulated per-model errors when no model succeeds.
func (mc *ModelChain) Do(fn func(model string) error) error {
	var errs []error
	for i := range mc.entries {
		entry := &mc.entries[i]
		err := entry.breaker.Execute(func() error {
			return fn(entry.model)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping model (circuit open)", "model", entry.model)
		} else {
			slog.Warn("model failed, trying next", "model", entry.model, "error", err)
		}
		errs = append(errs, fmt.Errorf("model %s: %w", entry.model, err))
	}
	return fmt.Errorf("%w: %w", ErrAllModelsFailed, errors.Join(errs...))
}
