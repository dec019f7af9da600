package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"polyagent/internal/decision"
	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/metrics"
	"polyagent/internal/policy"
	"polyagent/internal/portfolio"
	"polyagent/internal/store/decisionlog"

	"golang.org/x/sync/errgroup"
)

// Analysis is the result of an on-demand evaluation. Verdict previews what the
// gate would do; nothing is applied to the ledger.
type Analysis struct {
	Snapshot market.Snapshot   `json:"snapshot"`
	Decision decision.Decision `json:"decision"`
	Verdict  policy.Verdict    `json:"verdict"`
}

// DecideOnce runs the provider panel and the coordinator on snap.
func (s *Service) DecideOnce(ctx context.Context, snap market.Snapshot) (decision.Decision, error) {
	if err := snap.Validate(); err != nil {
		return decision.Decision{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return s.decide(ctx, snap)
}

// Analyze collects query, enriches it with research and decides, without trading.
func (s *Service) Analyze(ctx context.Context, query string) (Analysis, error) {
	snap, err := s.collector.Collect(ctx, query)
	if err != nil {
		return Analysis{}, err
	}
	snap = s.enrich(ctx, snap)
	d, err := s.decide(ctx, snap)
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{
		Snapshot: snap,
		Decision: d,
		Verdict:  s.gate.Evaluate(d, s.ledger.Snapshot(), s.Config()),
	}, nil
}

func (s *Service) decide(ctx context.Context, snap market.Snapshot) (decision.Decision, error) {
	opinions := s.panel.Evaluate(ctx, snap)
	d, err := s.coordinator.Decide(snap, opinions)
	if err != nil {
		return decision.Decision{}, err
	}
	metrics.DecisionsTotal.WithLabelValues(string(d.Stance)).Inc()
	return d, nil
}

// enrich appends research text to the snapshot context. Research is optional:
// failures leave the snapshot as collected.
func (s *Service) enrich(ctx context.Context, snap market.Snapshot) market.Snapshot {
	if s.research == nil {
		return snap
	}
	rctx := ctx
	if s.opts.ResearchTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, s.opts.ResearchTimeout)
		defer cancel()
	}
	text, err := s.research.Research(rctx, snap.Title)
	if err != nil {
		metrics.MarketErrors.WithLabelValues("research").Inc()
		logger.Warnf("market=%s research unavailable: %v", snap.ID, err)
		return snap
	}
	return snap.WithContext(text)
}

// tick evaluates every monitored market once and flushes the ledger. Only a
// storage failure is returned; it stops the loop.
func (s *Service) tick(ctx context.Context) error {
	start := time.Now()
	metrics.CyclesTotal.Inc()

	s.mu.Lock()
	markets := append([]string(nil), s.markets...)
	s.mu.Unlock()
	cfg := s.Config()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.opts.MaxConcurrent)
	for _, m := range markets {
		m := m
		eg.Go(func() error {
			return s.runMarket(egCtx, m, cfg)
		})
	}
	cycleErr := eg.Wait()

	// Flush even when the tick was cancelled so readers see persisted state.
	flushErr := s.ledger.Flush(context.WithoutCancel(ctx))

	s.mu.Lock()
	s.lastTick = time.Now().UTC()
	s.mu.Unlock()
	s.observePortfolio()
	metrics.TickDuration.Observe(time.Since(start).Seconds())

	if cycleErr != nil {
		return cycleErr
	}
	if flushErr != nil {
		return flushErr
	}
	p := s.ledger.Snapshot()
	logger.Infof("tick done: markets=%d cash=%s total=%s open=%d elapsed=%s",
		len(markets), p.Cash.StringFixed(2), p.TotalValue.StringFixed(2), len(p.OpenPositions),
		time.Since(start).Truncate(time.Millisecond))
	return nil
}

// runMarket is one market cycle. Errors other than persistence failures are
// logged and swallowed so other markets keep going.
func (s *Service) runMarket(ctx context.Context, query string, cfg policy.Config) error {
	key := lockKey(query)
	lock := s.marketLock(key)
	if !lock.TryLock() {
		logger.Infof("market=%s previous cycle still running, skip", query)
		return nil
	}
	defer lock.Unlock()

	if ctx.Err() != nil {
		return nil
	}
	snap, err := s.collector.Collect(ctx, query)
	if err != nil {
		stage := "collect"
		if errors.Is(err, market.ErrNotFound) {
			stage = "not_found"
		}
		metrics.MarketErrors.WithLabelValues(stage).Inc()
		logger.Warnf("market=%s collect failed, skip this cycle: %v", query, err)
		return nil
	}
	// different queries can resolve to the same market
	if snap.ID != key {
		idLock := s.marketLock(snap.ID)
		if !idLock.TryLock() {
			logger.Infof("market=%s cycle already running for another query, skip %q", snap.ID, query)
			return nil
		}
		defer idLock.Unlock()
	}
	snap = s.enrich(ctx, snap)

	if err := s.ledger.Mark(ctx, snap.ID, snap.Prices); err != nil {
		if errors.Is(err, portfolio.ErrPersist) {
			return err
		}
		logger.Warnf("market=%s mark failed: %v", snap.ID, err)
	}

	d, err := s.decide(ctx, snap)
	if err != nil {
		metrics.MarketErrors.WithLabelValues("decide").Inc()
		logger.Errorf("market=%s decide failed: %v", snap.ID, err)
		return nil
	}
	logger.InfoBlock(d.Summary())

	rec := decisionlog.NewRecord(d)
	verdict := s.gate.Evaluate(d, s.ledger.Snapshot(), cfg)
	if !verdict.Execute {
		metrics.SkipsTotal.WithLabelValues(string(verdict.Reason)).Inc()
		logger.Infof("market=%s skip reason=%s %s", snap.ID, verdict.Reason, verdict.Detail)
		rec.SkipReason = string(verdict.Reason)
		rec.Detail = verdict.Detail
		s.audit(ctx, rec)
		return nil
	}

	pos, err := s.ledger.Apply(ctx, *verdict.Order)
	if err != nil {
		rec.Error = err.Error()
		s.audit(ctx, rec)
		if errors.Is(err, portfolio.ErrPersist) {
			return err
		}
		if errors.Is(err, portfolio.ErrInsufficientCash) {
			metrics.SkipsTotal.WithLabelValues(string(policy.SkipInsufficientCash)).Inc()
			logger.Infof("market=%s skip reason=%s %v", snap.ID, policy.SkipInsufficientCash, err)
			return nil
		}
		metrics.MarketErrors.WithLabelValues("apply").Inc()
		logger.Errorf("market=%s apply failed: %v", snap.ID, err)
		return nil
	}
	metrics.TradesTotal.WithLabelValues(string(pos.Side)).Inc()
	logger.Infof("market=%s executed trade=%s side=%s outcome=%s size=%s price=%s shares=%s",
		snap.ID, pos.TradeID, pos.Side, pos.Outcome, pos.Size.StringFixed(2), pos.EntryPrice.String(), pos.Shares.StringFixed(4))
	rec.Executed = true
	rec.TradeID = pos.TradeID
	s.audit(ctx, rec)
	s.notify.NotifyExecuted(pos)
	return nil
}

func (s *Service) audit(ctx context.Context, rec decisionlog.Record) {
	if s.decisions == nil {
		return
	}
	if _, err := s.decisions.Insert(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warnf("market=%s decision log insert failed: %v", rec.MarketID, err)
	}
}
