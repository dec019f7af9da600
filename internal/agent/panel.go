package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"polyagent/internal/logger"
	"polyagent/internal/market"

	"golang.org/x/sync/errgroup"
)

var (
	ErrProviderTimeout = errors.New("provider timeout")
	ErrProviderPanic   = errors.New("provider failed")
)

// Panel evaluates a snapshot with every provider concurrently and waits for
// all of them. Each provider runs under its own timeout; a provider that
// times out or panics contributes a HOLD/0 opinion instead of blocking.
type Panel struct {
	providers []Provider
	timeout   time.Duration
	onFailure func(provider string, err error)
}

func NewPanel(providers []Provider, timeout time.Duration) *Panel {
	return &Panel{providers: providers, timeout: timeout}
}

// SetFailureHook registers fn to be told about degraded providers.
func (p *Panel) SetFailureHook(fn func(provider string, err error)) {
	p.onFailure = fn
}

func (p *Panel) Names() []string {
	names := make([]string, 0, len(p.providers))
	for _, pr := range p.providers {
		names = append(names, pr.Name())
	}
	return names
}

// Evaluate returns one opinion per provider, in provider order.
func (p *Panel) Evaluate(ctx context.Context, snap market.Snapshot) []Opinion {
	out := make([]Opinion, len(p.providers))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, pr := range p.providers {
		i, pr := i, pr
		eg.Go(func() error {
			out[i] = p.invoke(egCtx, pr, snap)
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

type panelResult struct {
	op  Opinion
	err error
}

func (p *Panel) invoke(parent context.Context, pr Provider, snap market.Snapshot) Opinion {
	name := pr.Name()
	cctx := parent
	if p.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(parent, p.timeout)
		defer cancel()
	}

	ch := make(chan panelResult, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- panelResult{err: fmt.Errorf("%w: panic: %v", ErrProviderPanic, r)}
			}
		}()
		ch <- panelResult{op: pr.Evaluate(cctx, snap)}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			p.degraded(name, res.err)
			return NoSignal(name, res.err.Error(), ErrProviderPanic.Error())
		}
		op := NewOpinion(name, res.op.Stance, res.op.Confidence, res.op.Reasoning, res.op.Supporting, res.op.Risks)
		logger.Debugf("provider %s market=%s stance=%s confidence=%.2f elapsed=%s",
			name, snap.ID, op.Stance, op.Confidence, time.Since(start).Truncate(time.Millisecond))
		return op
	case <-cctx.Done():
		err := fmt.Errorf("%w after %s: %v", ErrProviderTimeout, time.Since(start).Truncate(time.Millisecond), cctx.Err())
		p.degraded(name, err)
		return NoSignal(name, err.Error(), ErrProviderTimeout.Error())
	}
}

func (p *Panel) degraded(name string, err error) {
	logger.Warnf("provider %s degraded to HOLD: %v", name, err)
	if p.onFailure != nil {
		p.onFailure(name, err)
	}
}
