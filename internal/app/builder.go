package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"polyagent/internal/agent"
	"polyagent/internal/config"
	"polyagent/internal/decision"
	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/monitor"
	"polyagent/internal/notifier"
	"polyagent/internal/policy"
	"polyagent/internal/portfolio"
	"polyagent/internal/research"
	"polyagent/internal/store/decisionlog"
	"polyagent/internal/store/filestore"
	"polyagent/internal/store/gormstore"
	apihttp "polyagent/internal/transport/http/api"

	"github.com/shopspring/decimal"
)

type AppBuilder struct {
	cfg     *config.Config
	cfgPath string

	collectorFn      func(config.CollectorConfig) (market.Collector, error)
	portfolioStoreFn func(config.StorageConfig) (portfolio.Store, io.Closer, error)
	decisionLogFn    func(config.StorageConfig) (*decisionlog.Store, error)
	researchFn       func(config.ResearchConfig) research.Source
	senderFn         func(config.TelegramConfig) notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

// WithCollector replaces the configured market collector.
func WithCollector(c market.Collector) AppBuilderOption {
	return func(b *AppBuilder) {
		b.collectorFn = func(config.CollectorConfig) (market.Collector, error) { return c, nil }
	}
}

// WithConfigPath enables hot reload of the file at path.
func WithConfigPath(path string) AppBuilderOption {
	return func(b *AppBuilder) { b.cfgPath = path }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:              cfg,
		collectorFn:      buildCollector,
		portfolioStoreFn: buildPortfolioStore,
		decisionLogFn:    buildDecisionLog,
		researchFn:       buildResearch,
		senderFn:         buildSender,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (app *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	var closers []io.Closer
	defer func() {
		if err != nil {
			closeAll(closers)
		}
	}()

	collector, err := b.collectorFn(cfg.Collector)
	if err != nil {
		return nil, fmt.Errorf("collector: %w", err)
	}
	providers, err := agent.Build(cfg.Agents.Enabled, agent.Settings{
		ThinLiquidity: cfg.Agents.ThinLiquidity,
		ValueShrink:   cfg.Agents.ValueShrink,
		ValueMinEdge:  cfg.Agents.ValueMinEdge,
	})
	if err != nil {
		return nil, fmt.Errorf("agents: %w", err)
	}
	panel := agent.NewPanel(providers, cfg.Monitor.ProviderTimeout())

	store, storeCloser, err := b.portfolioStoreFn(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("portfolio store: %w", err)
	}
	if storeCloser != nil {
		closers = append(closers, storeCloser)
	}
	ledger, err := portfolio.NewLedger(ctx, store, decimal.NewFromFloat(cfg.Trading.StartingCash))
	if err != nil {
		return nil, err
	}

	params := monitor.Params{
		Collector:   collector,
		Panel:       panel,
		Coordinator: decision.NewCoordinator(DecisionConfig(cfg.Decision)),
		Gate:        policy.NewGate(),
		Ledger:      ledger,
		Options: monitor.Options{
			Align:           cfg.Monitor.Align,
			AlignOffset:     cfg.Monitor.AlignOffset(),
			RunImmediately:  cfg.Monitor.RunImmediately,
			MaxConcurrent:   cfg.Monitor.MaxConcurrentMarkets,
			ResearchTimeout: cfg.Research.Timeout(),
		},
	}
	if strings.TrimSpace(cfg.Storage.DecisionLogPath) != "" {
		logs, err := b.decisionLogFn(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("decision log: %w", err)
		}
		closers = append(closers, logs)
		params.DecisionLog = logs
	}
	if cfg.Research.Enabled {
		params.Research = b.researchFn(cfg.Research)
	}
	if cfg.Notify.Telegram.Enabled {
		params.Notifier = notifier.NewTrades(b.senderFn(cfg.Notify.Telegram))
	}

	svc, err := monitor.New(params)
	if err != nil {
		return nil, err
	}
	svc.UpdateConfig(TradingPolicy(cfg))

	server, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:           cfg.App.HTTPAddr,
		Monitor:        svc,
		DefaultMarkets: cfg.Monitor.Markets,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		cfgPath: b.cfgPath,
		monitor: svc,
		http:    server,
		closers: closers,
		Summary: newStartupSummary(cfg, panel.Names()),
	}, nil
}

// TradingPolicy maps the trading section onto the gate configuration.
func TradingPolicy(cfg *config.Config) policy.Config {
	return policy.Config{
		MinConfidence:    cfg.Trading.MinConfidence,
		MinConsensus:     cfg.Trading.MinConsensus,
		MaxPositionSize:  cfg.Trading.MaxPositionSize,
		CheckInterval:    cfg.Monitor.Interval(),
		MaxOpenPerMarket: cfg.Trading.MaxOpenPerMarket,
	}
}

func DecisionConfig(d config.DecisionConfig) decision.Config {
	return decision.Config{
		BuyThreshold:  d.BuyThreshold,
		SellThreshold: d.SellThreshold,
		KellyFraction: d.KellyFraction,
		SizeCap:       d.SizeCap,
		MinEdge:       d.MinEdge,
		MaxFactors:    d.MaxFactors,
	}
}

func buildCollector(c config.CollectorConfig) (market.Collector, error) {
	kind := strings.ToLower(strings.TrimSpace(c.Kind))
	var inner market.Collector
	switch kind {
	case "static":
		inner = market.NewStaticCollector()
	case "file":
		fc, err := market.NewFileCollector(c.FixturesPath)
		if err != nil {
			return nil, err
		}
		inner = fc
	case "gamma":
		inner = market.NewGammaCollector(c.GammaURL, c.Timeout())
	case "browser":
		inner = market.NewBrowserCollector(c.PageURL, c.Timeout())
	default:
		return nil, fmt.Errorf("unknown collector kind %q", c.Kind)
	}
	logger.Infof("collector: kind=%s timeout=%s breaker=%d/%s", kind, c.Timeout(), c.BreakerThreshold, c.BreakerCooldown())
	return market.NewGuarded(kind, inner, c.Timeout(), c.BreakerThreshold, c.BreakerCooldown()), nil
}

func buildPortfolioStore(s config.StorageConfig) (portfolio.Store, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case "file":
		st, err := filestore.New(s.PortfolioPath)
		if err != nil {
			return nil, nil, err
		}
		return st, nil, nil
	case "sqlite":
		st, err := gormstore.NewGormStore(s.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage kind %q", s.Kind)
	}
}

func buildDecisionLog(s config.StorageConfig) (*decisionlog.Store, error) {
	return decisionlog.NewStore(s.DecisionLogPath)
}

func buildResearch(r config.ResearchConfig) research.Source {
	return research.NewChatClient(r.APIURL, r.APIKey, r.Model, r.Timeout(), r.MaxRetries)
}

func buildSender(t config.TelegramConfig) notifier.TextNotifier {
	return notifier.NewTelegram(t.BotToken, t.ChatID)
}

func closeAll(closers []io.Closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warnf("close: %v", err)
		}
	}
}
