package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv               = "dev"
	defaultAppLogLevel          = "info"
	defaultAppHTTPAddr          = ":8080"
	defaultCheckInterval        = "300s"
	defaultProviderTimeout      = 10
	defaultMaxConcurrentMarkets = 4
	defaultMinConfidence        = 0.7
	defaultMinConsensus         = 0.6
	defaultMaxPositionSize      = 500
	defaultStartingCash         = 10000
	defaultMaxOpenPerMarket     = 1
	defaultBuyThreshold         = 0.15
	defaultSellThreshold        = -0.15
	defaultKellyFraction        = 0.5
	defaultSizeCap              = 0.20
	defaultThinLiquidity        = 5000
	defaultValueShrink          = 0.7
	defaultValueMinEdge         = 0.03
	defaultCollectorKind        = "static"
	defaultGammaURL             = "https://gamma-api.polymarket.com"
	defaultPageURL              = "https://polymarket.com/event"
	defaultCollectorTimeout     = 20
	defaultBreakerThreshold     = 3
	defaultBreakerCooldown      = 60
	defaultResearchAPIURL       = "https://api.perplexity.ai/chat/completions"
	defaultResearchModel        = "sonar"
	defaultResearchTimeout      = 30
	defaultResearchRetries      = 2
	defaultStorageKind          = "file"
	defaultPortfolioPath        = "data/portfolio.json"
	defaultSQLitePath           = "data/portfolio.db"
	defaultDecisionLogPath      = "data/decisions.db"
)

var defaultAgents = []string{"data_quality", "value", "research", "sentiment"}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Monitor.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Decision.applyDefaults(keys)
	c.Agents.applyDefaults(keys)
	c.Collector.applyDefaults(keys)
	c.Research.applyDefaults(keys)
	c.Storage.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (m *MonitorConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("monitor.check_interval", &m.CheckInterval, defaultCheckInterval),
		intFieldDefault("monitor.provider_timeout_seconds", &m.ProviderTimeoutSeconds, defaultProviderTimeout),
		intFieldDefault("monitor.max_concurrent_markets", &m.MaxConcurrentMarkets, defaultMaxConcurrentMarkets),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("trading.min_confidence", &t.MinConfidence, defaultMinConfidence),
		floatFieldDefault("trading.min_consensus", &t.MinConsensus, defaultMinConsensus),
		floatFieldDefault("trading.max_position_size", &t.MaxPositionSize, defaultMaxPositionSize),
		floatFieldDefault("trading.starting_cash", &t.StartingCash, defaultStartingCash),
		intFieldDefault("trading.max_open_per_market", &t.MaxOpenPerMarket, defaultMaxOpenPerMarket),
	)
}

func (d *DecisionConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("decision.buy_threshold", &d.BuyThreshold, defaultBuyThreshold),
		floatFieldDefault("decision.sell_threshold", &d.SellThreshold, defaultSellThreshold),
		floatFieldDefault("decision.kelly_fraction", &d.KellyFraction, defaultKellyFraction),
		floatFieldDefault("decision.size_cap", &d.SizeCap, defaultSizeCap),
	)
}

func (a *AgentsConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "agents.enabled",
			need:  func() bool { return len(a.Enabled) == 0 },
			apply: func() { a.Enabled = append([]string(nil), defaultAgents...) },
		},
		floatFieldDefault("agents.thin_liquidity", &a.ThinLiquidity, defaultThinLiquidity),
		floatFieldDefault("agents.value_shrink", &a.ValueShrink, defaultValueShrink),
		floatFieldDefault("agents.value_min_edge", &a.ValueMinEdge, defaultValueMinEdge),
	)
	a.Enabled = normalizeNames(a.Enabled)
}

func (c *CollectorConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("collector.kind", &c.Kind, defaultCollectorKind),
		stringFieldDefault("collector.gamma_url", &c.GammaURL, defaultGammaURL),
		stringFieldDefault("collector.page_url", &c.PageURL, defaultPageURL),
		intFieldDefault("collector.timeout_seconds", &c.TimeoutSeconds, defaultCollectorTimeout),
		intFieldDefault("collector.breaker_threshold", &c.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("collector.breaker_cooldown_seconds", &c.BreakerCooldownSeconds, defaultBreakerCooldown),
	)
	c.Kind = strings.ToLower(strings.TrimSpace(c.Kind))
}

func (r *ResearchConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("research.api_url", &r.APIURL, defaultResearchAPIURL),
		stringFieldDefault("research.model", &r.Model, defaultResearchModel),
		intFieldDefault("research.timeout_seconds", &r.TimeoutSeconds, defaultResearchTimeout),
		intFieldDefault("research.max_retries", &r.MaxRetries, defaultResearchRetries),
	)
}

func (s *StorageConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("storage.kind", &s.Kind, defaultStorageKind),
		stringFieldDefault("storage.portfolio_path", &s.PortfolioPath, defaultPortfolioPath),
		stringFieldDefault("storage.sqlite_path", &s.SQLitePath, defaultSQLitePath),
		stringFieldDefault("storage.decision_log_path", &s.DecisionLogPath, defaultDecisionLogPath),
	)
	s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

// 数值字段只在未显式配置时填充，显式写 0 的值会被保留。
func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			*target = def
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			*target = def
		},
	}
}

func normalizeNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
