package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"polyagent/internal/logger"
	"polyagent/internal/pkg/circuit"
)

var ErrCircuitOpen = errors.New("collector circuit open")

// Guarded wraps a Collector with a timeout and a circuit breaker. Only source
// failures count against the breaker; ErrNotFound and ErrBadPayload belong to
// a single market.
type Guarded struct {
	inner   Collector
	breaker *circuit.CircuitBreaker
	timeout time.Duration
}

func NewGuarded(name string, inner Collector, timeout time.Duration, threshold int, cooldown time.Duration) *Guarded {
	return &Guarded{
		inner:   inner,
		breaker: circuit.NewCircuitBreaker("collector:"+name, threshold, cooldown),
		timeout: timeout,
	}
}

func (g *Guarded) Collect(ctx context.Context, query string) (Snapshot, error) {
	var snap Snapshot
	err := g.breaker.Do(func() error {
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		var err error
		snap, err = g.inner.Collect(callCtx, query)
		return err
	}, marketScoped)
	if errors.Is(err, circuit.ErrOpen) {
		logger.Debugf("collector breaker open, skip %s", query)
		return Snapshot{}, fmt.Errorf("%w: %w", ErrCollection, ErrCircuitOpen)
	}
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func marketScoped(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrBadPayload)
}

func (g *Guarded) State() circuit.State {
	return g.breaker.State()
}
