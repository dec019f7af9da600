// Package monitor drives the collect → decide → gate → trade cycle over a set
// of markets and exposes the operations the HTTP layer serves.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"polyagent/internal/agent"
	"polyagent/internal/decision"
	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/metrics"
	"polyagent/internal/notifier"
	"polyagent/internal/policy"
	"polyagent/internal/portfolio"
	"polyagent/internal/research"
	"polyagent/internal/scheduler"
	"polyagent/internal/store/decisionlog"

	"github.com/shopspring/decimal"
)

var (
	ErrAlreadyRunning = errors.New("monitor already running")
	ErrNotRunning     = errors.New("monitor not running")
	ErrInvalidRequest = errors.New("invalid request")
)

// DecisionLog is the audit sink. A nil DecisionLog disables auditing.
type DecisionLog interface {
	Insert(ctx context.Context, rec decisionlog.Record) (int64, error)
	List(ctx context.Context, q decisionlog.Query) ([]decisionlog.Record, error)
}

// Params wires the service. Collector, Panel, Coordinator and Ledger are required.
type Params struct {
	Collector   market.Collector
	Research    research.Source
	Panel       *agent.Panel
	Coordinator *decision.Coordinator
	Gate        *policy.Gate
	Ledger      *portfolio.Ledger
	DecisionLog DecisionLog
	Notifier    *notifier.Trades
	Options     Options
}

// Options shape the loop; they are fixed for the lifetime of the service.
type Options struct {
	Align           bool
	AlignOffset     time.Duration
	RunImmediately  bool
	MaxConcurrent   int
	ResearchTimeout time.Duration
}

// Status is the externally visible loop state.
type Status struct {
	Running  bool          `json:"running"`
	Config   policy.Config `json:"config"`
	Markets  []string      `json:"markets_monitored"`
	LastTick *time.Time    `json:"last_tick,omitempty"`
}

// Service owns the monitoring loop. All portfolio writes go through its Ledger.
type Service struct {
	collector   market.Collector
	research    research.Source
	panel       *agent.Panel
	coordinator *decision.Coordinator
	gate        *policy.Gate
	ledger      *portfolio.Ledger
	decisions   DecisionLog
	notify      *notifier.Trades
	opts        Options

	cfg   atomic.Pointer[policy.Config]
	locks sync.Map // market query -> *sync.Mutex

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	markets  []string
	lastTick time.Time
}

func New(p Params) (*Service, error) {
	if p.Collector == nil || p.Panel == nil || p.Coordinator == nil || p.Ledger == nil {
		return nil, fmt.Errorf("monitor: collector, panel, coordinator and ledger are required")
	}
	if p.Gate == nil {
		p.Gate = policy.NewGate()
	}
	if p.Options.MaxConcurrent <= 0 {
		p.Options.MaxConcurrent = 1
	}
	s := &Service{
		collector:   p.Collector,
		research:    p.Research,
		panel:       p.Panel,
		coordinator: p.Coordinator,
		gate:        p.Gate,
		ledger:      p.Ledger,
		decisions:   p.DecisionLog,
		notify:      p.Notifier,
		opts:        p.Options,
	}
	cfg := policy.DefaultConfig()
	s.cfg.Store(&cfg)
	s.panel.SetFailureHook(func(provider string, err error) {
		kind := "failed"
		if errors.Is(err, agent.ErrProviderTimeout) {
			kind = "timeout"
		}
		metrics.ProviderFailures.WithLabelValues(provider, kind).Inc()
	})
	s.observePortfolio()
	return s, nil
}

// Start launches the loop over markets. It fails with ErrAlreadyRunning when
// a loop is active.
func (s *Service) Start(markets []string, cfg policy.Config) error {
	markets = normalizeMarkets(markets)
	if len(markets) == 0 {
		return fmt.Errorf("%w: no markets to monitor", ErrInvalidRequest)
	}
	if cfg.CheckInterval <= 0 {
		return fmt.Errorf("%w: check interval must be > 0", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done
	s.markets = markets
	s.cfg.Store(&cfg)

	sched := scheduler.New(ctx, cfg.CheckInterval)
	sched.Align = s.opts.Align
	sched.Offset = s.opts.AlignOffset
	sched.RunImmediately = s.opts.RunImmediately

	logger.Infof("monitor started: markets=%s interval=%s min_confidence=%.2f min_consensus=%.2f max_position=%.2f",
		strings.Join(markets, ","), cfg.CheckInterval, cfg.MinConfidence, cfg.MinConsensus, cfg.MaxPositionSize)
	go func() {
		defer close(done)
		defer s.markStopped(done)
		sched.Start(func(ctx context.Context) {
			if err := s.tick(ctx); err != nil {
				logger.Errorf("monitor halted: %v", err)
				cancel()
			}
		})
	}()
	return nil
}

// Stop cancels the loop and waits for the running tick, if any, to finish.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	logger.Infof("monitor stopped")
	return nil
}

// Shutdown stops the loop if it runs and flushes the ledger.
func (s *Service) Shutdown(ctx context.Context) error {
	if err := s.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return s.ledger.Flush(ctx)
}

func (s *Service) markStopped(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == done {
		s.running = false
		s.cancel = nil
	}
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running: s.running,
		Config:  s.Config(),
		Markets: append([]string(nil), s.markets...),
	}
	if st.Markets == nil {
		st.Markets = []string{}
	}
	if !s.lastTick.IsZero() {
		t := s.lastTick
		st.LastTick = &t
	}
	return st
}

// Config returns the gate configuration in force.
func (s *Service) Config() policy.Config {
	return *s.cfg.Load()
}

// UpdateConfig swaps the gate thresholds used from the next market cycle on.
// The loop interval is only read by Start.
func (s *Service) UpdateConfig(cfg policy.Config) {
	cur := s.Config()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = cur.CheckInterval
	}
	s.cfg.Store(&cfg)
	logger.Infof("monitor config updated: min_confidence=%.2f min_consensus=%.2f max_position=%.2f max_open=%d",
		cfg.MinConfidence, cfg.MinConsensus, cfg.MaxPositionSize, cfg.MaxOpenPerMarket)
}

// Portfolio returns a consistent copy of the ledger without waiting on the loop.
func (s *Service) Portfolio() portfolio.Portfolio {
	return s.ledger.Snapshot()
}

// Resolve settles a position. finalPrice is the settlement price of the
// position's own outcome.
func (s *Service) Resolve(ctx context.Context, tradeID, outcome string, finalPrice float64) (portfolio.Position, error) {
	if strings.TrimSpace(outcome) == "" {
		return portfolio.Position{}, fmt.Errorf("%w: outcome is required", ErrInvalidRequest)
	}
	pos, err := s.ledger.Resolve(ctx, tradeID, outcome, decimal.NewFromFloat(finalPrice))
	if err != nil {
		return portfolio.Position{}, err
	}
	metrics.ObserveResolved(pos.PnL)
	s.observePortfolio()
	s.notify.NotifyResolved(pos)
	return pos, nil
}

// Decisions lists audited decisions, newest first.
func (s *Service) Decisions(ctx context.Context, q decisionlog.Query) ([]decisionlog.Record, error) {
	if s.decisions == nil {
		return []decisionlog.Record{}, nil
	}
	return s.decisions.List(ctx, q)
}

func (s *Service) observePortfolio() {
	p := s.ledger.Snapshot()
	metrics.ObservePortfolio(p.Cash, p.TotalValue, len(p.OpenPositions))
}

func (s *Service) marketLock(key string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// lockKey folds queries that name the same market onto one key.
func lockKey(query string) string {
	if slug := market.Slugify(query); slug != "" {
		return slug
	}
	return strings.TrimSpace(query)
}

func normalizeMarkets(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, m := range in {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		key := lockKey(m)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}
