package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"polyagent/internal/agent"
	"polyagent/internal/decision"
	"polyagent/internal/market"
	"polyagent/internal/policy"
	"polyagent/internal/portfolio"
	"polyagent/internal/store/decisionlog"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCollector struct {
	mock.Mock
}

func (m *MockCollector) Collect(ctx context.Context, query string) (market.Snapshot, error) {
	args := m.Called(ctx, query)
	return args.Get(0).(market.Snapshot), args.Error(1)
}

type MockResearch struct {
	mock.Mock
}

func (m *MockResearch) Research(ctx context.Context, title string) (string, error) {
	args := m.Called(ctx, title)
	return args.String(0), args.Error(1)
}

type fixedProvider struct {
	name   string
	stance agent.Stance
	conf   float64
	seen   chan string
}

func (f fixedProvider) Name() string { return f.name }
func (f fixedProvider) Evaluate(_ context.Context, snap market.Snapshot) agent.Opinion {
	if f.seen != nil {
		select {
		case f.seen <- snap.Context:
		default:
		}
	}
	return agent.NewOpinion(f.name, f.stance, f.conf, "fixed", []string{f.name + " agrees"}, nil)
}

type memStore struct {
	mu    sync.Mutex
	saved *portfolio.Portfolio
	fail  error
}

func (m *memStore) Load(context.Context) (*portfolio.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return nil, nil
	}
	p := m.saved.Clone()
	return &p, nil
}

func (m *memStore) Save(_ context.Context, p portfolio.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	c := p.Clone()
	m.saved = &c
	return nil
}

func (m *memStore) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

type memLog struct {
	mu   sync.Mutex
	recs []decisionlog.Record
}

func (m *memLog) Insert(_ context.Context, rec decisionlog.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = int64(len(m.recs) + 1)
	m.recs = append(m.recs, rec)
	return rec.ID, nil
}

func (m *memLog) List(context.Context, decisionlog.Query) ([]decisionlog.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]decisionlog.Record(nil), m.recs...), nil
}

func (m *memLog) all() []decisionlog.Record {
	recs, _ := m.List(context.Background(), decisionlog.Query{})
	return recs
}

func halfPriced(id string) market.Snapshot {
	return market.Snapshot{
		ID:        id,
		Title:     "Will " + id + " happen?",
		Outcomes:  []string{"Yes", "No"},
		Prices:    map[string]float64{"Yes": 0.5, "No": 0.5},
		Volume24h: 100000,
		Liquidity: 50000,
	}
}

func tradingConfig() policy.Config {
	cfg := policy.DefaultConfig()
	cfg.MaxPositionSize = 5000
	cfg.CheckInterval = time.Hour
	return cfg
}

type fixture struct {
	svc       *Service
	collector *MockCollector
	store     *memStore
	log       *memLog
	ledger    *portfolio.Ledger
}

func newFixture(t *testing.T, opts Options, providers ...agent.Provider) *fixture {
	t.Helper()
	if len(providers) == 0 {
		providers = []agent.Provider{
			fixedProvider{name: "a", stance: agent.StanceBuy, conf: 0.8},
			fixedProvider{name: "b", stance: agent.StanceBuy, conf: 0.6},
		}
	}
	store := &memStore{}
	ledger, err := portfolio.NewLedger(context.Background(), store, decimal.NewFromInt(10000))
	require.NoError(t, err)
	collector := new(MockCollector)
	log := &memLog{}
	svc, err := New(Params{
		Collector:   collector,
		Panel:       agent.NewPanel(providers, time.Second),
		Coordinator: decision.NewCoordinator(decision.DefaultConfig()),
		Ledger:      ledger,
		DecisionLog: log,
		Options:     opts,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, collector: collector, store: store, log: log, ledger: ledger}
}

func TestDecideOnceHasNoLedgerEffect(t *testing.T) {
	f := newFixture(t, Options{})
	d, err := f.svc.DecideOnce(context.Background(), halfPriced("m1"))
	require.NoError(t, err)

	assert.Equal(t, agent.StanceBuy, d.Stance)
	assert.InDelta(t, 0.7, d.AggregateConfidence, 1e-9)
	assert.Equal(t, 1.0, d.ConsensusLevel)
	assert.InDelta(t, 0.2, d.Edge, 1e-9)
	assert.InDelta(t, 0.1, d.SuggestedSize, 1e-9)
	assert.True(t, f.svc.Portfolio().Cash.Equal(decimal.NewFromInt(10000)))
	assert.Empty(t, f.log.all())
}

func TestDecideOnceRejectsInvalidSnapshot(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.DecideOnce(context.Background(), market.Snapshot{Title: "no id"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestEndToEndTradeAndResolve(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.collector.On("Collect", mock.Anything, "m1").Return(halfPriced("m1"), nil).Once()

	require.NoError(t, f.svc.runMarket(ctx, "m1", tradingConfig()))

	p := f.svc.Portfolio()
	assert.True(t, p.Cash.Equal(decimal.NewFromInt(9000)), p.Cash.String())
	require.Len(t, p.OpenPositions, 1)
	pos := p.OpenPositions[0]
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(1000)))
	assert.True(t, pos.Shares.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, portfolio.StatusOpen, pos.Status)
	assert.Equal(t, map[string]string{"a": "BUY", "b": "BUY"}, pos.AgentVotes)

	recs := f.log.all()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Executed)
	assert.Equal(t, pos.TradeID, recs[0].TradeID)

	closed, err := f.svc.Resolve(ctx, pos.TradeID, "Yes", 1.0)
	require.NoError(t, err)
	assert.True(t, closed.PnL.Equal(decimal.NewFromInt(1000)))

	p = f.svc.Portfolio()
	assert.True(t, p.Cash.Equal(decimal.NewFromInt(11000)), p.Cash.String())
	assert.True(t, p.TotalPnL.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 1.0, p.WinRate)

	_, err = f.svc.Resolve(ctx, pos.TradeID, "Yes", 1.0)
	assert.ErrorIs(t, err, portfolio.ErrAlreadyResolved)
	f.collector.AssertExpectations(t)
}

func TestHighMinConfidenceSkips(t *testing.T) {
	f := newFixture(t, Options{})
	f.collector.On("Collect", mock.Anything, "m1").Return(halfPriced("m1"), nil)

	cfg := tradingConfig()
	cfg.MinConfidence = 0.9
	require.NoError(t, f.svc.runMarket(context.Background(), "m1", cfg))

	p := f.svc.Portfolio()
	assert.True(t, p.Cash.Equal(decimal.NewFromInt(10000)))
	assert.Empty(t, p.OpenPositions)
	recs := f.log.all()
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Executed)
	assert.Equal(t, string(policy.SkipLowConfidence), recs[0].SkipReason)
}

func TestCollectFailureIsIsolated(t *testing.T) {
	f := newFixture(t, Options{MaxConcurrent: 2})
	f.collector.On("Collect", mock.Anything, "broken").Return(market.Snapshot{}, market.ErrCollection)
	f.collector.On("Collect", mock.Anything, "m1").Return(halfPriced("m1"), nil)
	f.svc.markets = []string{"broken", "m1"}

	require.NoError(t, f.svc.tick(context.Background()))
	assert.Len(t, f.svc.Portfolio().OpenPositions, 1)
	assert.NotNil(t, f.svc.Status().LastTick)
}

func TestResearchIsMergedIntoContext(t *testing.T) {
	seen := make(chan string, 1)
	f := newFixture(t, Options{ResearchTimeout: time.Second},
		fixedProvider{name: "a", stance: agent.StanceHold, conf: 0.5, seen: seen})
	res := new(MockResearch)
	res.On("Research", mock.Anything, "Will m1 happen?").Return("analysts expect approval", nil)
	f.svc.research = res
	f.collector.On("Collect", mock.Anything, "m1").Return(halfPriced("m1"), nil)

	a, err := f.svc.Analyze(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "analysts expect approval", a.Snapshot.Context)
	assert.Equal(t, "analysts expect approval", <-seen)
	assert.False(t, a.Verdict.Execute)
	assert.Equal(t, policy.SkipHold, a.Verdict.Reason)
	res.AssertExpectations(t)
}

func TestResearchFailureDegrades(t *testing.T) {
	f := newFixture(t, Options{})
	res := new(MockResearch)
	res.On("Research", mock.Anything, mock.Anything).Return("", errors.New("upstream 503"))
	f.svc.research = res
	f.collector.On("Collect", mock.Anything, "m1").Return(halfPriced("m1"), nil)

	a, err := f.svc.Analyze(context.Background(), "m1")
	require.NoError(t, err)
	assert.Empty(t, a.Snapshot.Context)
	assert.Equal(t, agent.StanceBuy, a.Decision.Stance)
}

func TestAnalyzeNotFound(t *testing.T) {
	f := newFixture(t, Options{})
	f.collector.On("Collect", mock.Anything, "nope").Return(market.Snapshot{}, market.ErrNotFound)
	_, err := f.svc.Analyze(context.Background(), "nope")
	assert.ErrorIs(t, err, market.ErrNotFound)
}

func TestSecondCycleOnSameMarketIsSkipped(t *testing.T) {
	f := newFixture(t, Options{})
	lock := f.svc.marketLock("m1")
	lock.Lock()
	defer lock.Unlock()

	require.NoError(t, f.svc.runMarket(context.Background(), "m1", tradingConfig()))
	f.collector.AssertNotCalled(t, "Collect", mock.Anything, "m1")
}

func TestQueriesForSameMarketShareLock(t *testing.T) {
	f := newFixture(t, Options{})
	lock := f.svc.marketLock(lockKey("will-m1"))
	lock.Lock()
	defer lock.Unlock()

	require.NoError(t, f.svc.runMarket(context.Background(), "Will M1", tradingConfig()))
	f.collector.AssertNotCalled(t, "Collect", mock.Anything, "Will M1")
}

func TestCycleSkipsWhenMarketIDIsBusy(t *testing.T) {
	f := newFixture(t, Options{})
	f.collector.On("Collect", mock.Anything, "rain alias").Return(halfPriced("m1"), nil)
	lock := f.svc.marketLock("m1")
	lock.Lock()
	defer lock.Unlock()

	require.NoError(t, f.svc.runMarket(context.Background(), "rain alias", tradingConfig()))
	assert.Empty(t, f.svc.Portfolio().OpenPositions)
	assert.Empty(t, f.log.all())
}

func TestNormalizeMarketsFoldsAliases(t *testing.T) {
	assert.Equal(t, []string{"Will X", "y"}, normalizeMarkets([]string{"Will X", " will-x ", "", "y", "Y"}))
}

func TestStartStopToggle(t *testing.T) {
	f := newFixture(t, Options{RunImmediately: true})
	f.collector.On("Collect", mock.Anything, "m1").Return(halfPriced("m1"), nil)

	assert.ErrorIs(t, f.svc.Stop(), ErrNotRunning)
	assert.ErrorIs(t, f.svc.Start(nil, tradingConfig()), ErrInvalidRequest)

	require.NoError(t, f.svc.Start([]string{" m1 ", "m1"}, tradingConfig()))
	assert.ErrorIs(t, f.svc.Start([]string{"m1"}, tradingConfig()), ErrAlreadyRunning)

	assert.Eventually(t, func() bool {
		return f.svc.Status().LastTick != nil
	}, 2*time.Second, 10*time.Millisecond)

	st := f.svc.Status()
	assert.True(t, st.Running)
	assert.Equal(t, []string{"m1"}, st.Markets)
	assert.Len(t, f.svc.Portfolio().OpenPositions, 1)

	require.NoError(t, f.svc.Stop())
	assert.False(t, f.svc.Status().Running)
	assert.ErrorIs(t, f.svc.Stop(), ErrNotRunning)

	// max_open_per_market=1 keeps a restart from stacking positions.
	require.NoError(t, f.svc.Start([]string{"m1"}, tradingConfig()))
	require.NoError(t, f.svc.Stop())
	assert.Len(t, f.svc.Portfolio().OpenPositions, 1)
}

func TestStorageFailureHaltsLoop(t *testing.T) {
	f := newFixture(t, Options{RunImmediately: true})
	f.collector.On("Collect", mock.Anything, "m1").Return(halfPriced("m1"), nil)
	f.store.setFail(errors.New("disk full"))

	require.NoError(t, f.svc.Start([]string{"m1"}, tradingConfig()))
	assert.Eventually(t, func() bool {
		return !f.svc.Status().Running
	}, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, f.svc.Stop(), ErrNotRunning)
	assert.True(t, f.svc.Portfolio().Cash.Equal(decimal.NewFromInt(10000)))
}

func TestUpdateConfigKeepsInterval(t *testing.T) {
	f := newFixture(t, Options{})
	cfg := tradingConfig()
	cfg.CheckInterval = 0
	cfg.MinConfidence = 0.95
	f.svc.UpdateConfig(cfg)
	got := f.svc.Config()
	assert.Equal(t, 0.95, got.MinConfidence)
	assert.Equal(t, policy.DefaultConfig().CheckInterval, got.CheckInterval)
}

func TestShutdownFlushes(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.svc.Shutdown(context.Background()))
	f.store.setFail(errors.New("gone"))
	assert.ErrorIs(t, f.svc.Shutdown(context.Background()), portfolio.ErrPersist)
}
