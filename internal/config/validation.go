package config

import (
	"fmt"
	"strings"

	"polyagent/internal/scheduler"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Monitor.validate(); err != nil {
		return err
	}
	if err := c.Trading.Validate(); err != nil {
		return err
	}
	if err := c.Decision.validate(); err != nil {
		return err
	}
	if err := c.Agents.validate(); err != nil {
		return err
	}
	if err := c.Collector.validate(); err != nil {
		return err
	}
	if err := c.Research.validate(); err != nil {
		return err
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MonitorConfig) validate() error {
	if _, ok := scheduler.ParseIntervalDuration(m.CheckInterval); !ok {
		return fmt.Errorf("monitor.check_interval invalid: %q", m.CheckInterval)
	}
	if m.AlignOffsetSeconds < 0 {
		return fmt.Errorf("monitor.align_offset_seconds must be >= 0")
	}
	if m.ProviderTimeoutSeconds <= 0 {
		return fmt.Errorf("monitor.provider_timeout_seconds must be > 0")
	}
	if m.MaxConcurrentMarkets <= 0 {
		return fmt.Errorf("monitor.max_concurrent_markets must be > 0")
	}
	for _, id := range m.Markets {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("monitor.markets contains empty entry")
		}
	}
	return nil
}

// Validate is exported so runtime updates go through the same checks as the file.
func (t TradingConfig) Validate() error {
	if t.MinConfidence < 0 || t.MinConfidence > 1 {
		return fmt.Errorf("trading.min_confidence must be within [0,1]")
	}
	if t.MinConsensus < 0 || t.MinConsensus > 1 {
		return fmt.Errorf("trading.min_consensus must be within [0,1]")
	}
	if t.MaxPositionSize <= 0 {
		return fmt.Errorf("trading.max_position_size must be > 0")
	}
	if t.StartingCash < 0 {
		return fmt.Errorf("trading.starting_cash must be >= 0")
	}
	if t.MaxOpenPerMarket < 0 {
		return fmt.Errorf("trading.max_open_per_market must be >= 0")
	}
	return nil
}

func (d *DecisionConfig) validate() error {
	if d.BuyThreshold < d.SellThreshold {
		return fmt.Errorf("decision.buy_threshold (%.4f) must be >= decision.sell_threshold (%.4f)", d.BuyThreshold, d.SellThreshold)
	}
	if d.KellyFraction <= 0 || d.KellyFraction > 1 {
		return fmt.Errorf("decision.kelly_fraction must be within (0,1]")
	}
	if d.SizeCap <= 0 || d.SizeCap > 1 {
		return fmt.Errorf("decision.size_cap must be within (0,1]")
	}
	if d.MinEdge < 0 {
		return fmt.Errorf("decision.min_edge must be >= 0")
	}
	if d.MaxFactors < 0 {
		return fmt.Errorf("decision.max_factors must be >= 0")
	}
	return nil
}

func (a *AgentsConfig) validate() error {
	if len(a.Enabled) == 0 {
		return fmt.Errorf("agents.enabled requires at least one provider")
	}
	if a.ThinLiquidity < 0 {
		return fmt.Errorf("agents.thin_liquidity must be >= 0")
	}
	if a.ValueShrink < 0 || a.ValueShrink > 1 {
		return fmt.Errorf("agents.value_shrink must be within [0,1]")
	}
	return nil
}

func (c *CollectorConfig) validate() error {
	switch c.Kind {
	case "static", "gamma", "browser":
	case "file":
		if strings.TrimSpace(c.FixturesPath) == "" {
			return fmt.Errorf("collector.fixtures_path is required for kind=file")
		}
	default:
		return fmt.Errorf("collector.kind unsupported: %q", c.Kind)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("collector.timeout_seconds must be > 0")
	}
	if c.BreakerThreshold <= 0 {
		return fmt.Errorf("collector.breaker_threshold must be > 0")
	}
	return nil
}

func (r *ResearchConfig) validate() error {
	if !r.Enabled {
		return nil
	}
	if strings.TrimSpace(r.APIURL) == "" {
		return fmt.Errorf("research.api_url cannot be empty")
	}
	if strings.TrimSpace(r.APIKey) == "" {
		return fmt.Errorf("research enabled but missing api_key")
	}
	if r.TimeoutSeconds <= 0 {
		return fmt.Errorf("research.timeout_seconds must be > 0")
	}
	return nil
}

func (s *StorageConfig) validate() error {
	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.PortfolioPath) == "" {
			return fmt.Errorf("storage.portfolio_path cannot be empty")
		}
	case "sqlite":
		if strings.TrimSpace(s.SQLitePath) == "" {
			return fmt.Errorf("storage.sqlite_path cannot be empty")
		}
	default:
		return fmt.Errorf("storage.kind unsupported: %q", s.Kind)
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}
