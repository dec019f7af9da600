package config

import (
	"strings"
	"time"

	"polyagent/internal/scheduler"
)

// Config 是 polyagent 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Trading   TradingConfig   `toml:"trading"`
	Decision  DecisionConfig  `toml:"decision"`
	Agents    AgentsConfig    `toml:"agents"`
	Collector CollectorConfig `toml:"collector"`
	Research  ResearchConfig  `toml:"research"`
	Storage   StorageConfig   `toml:"storage"`
	Notify    NotifyConfig    `toml:"notify"`

	// Sources are the files Load merged, includes first.
	Sources []string `toml:"-"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// MonitorConfig 控制自动监控循环。
type MonitorConfig struct {
	Markets                []string `toml:"markets"`
	CheckInterval          string   `toml:"check_interval"` // "300" | "300s" | "5m"
	Align                  bool     `toml:"align"`
	AlignOffsetSeconds     int      `toml:"align_offset_seconds"`
	RunImmediately         bool     `toml:"run_immediately"`
	ProviderTimeoutSeconds int      `toml:"provider_timeout_seconds"`
	MaxConcurrentMarkets   int      `toml:"max_concurrent_markets"`
	AutoStart              bool     `toml:"auto_start"`
}

func (m MonitorConfig) Interval() time.Duration {
	d, _ := scheduler.ParseIntervalDuration(m.CheckInterval)
	return d
}

func (m MonitorConfig) ProviderTimeout() time.Duration {
	return time.Duration(m.ProviderTimeoutSeconds) * time.Second
}

func (m MonitorConfig) AlignOffset() time.Duration {
	return time.Duration(m.AlignOffsetSeconds) * time.Second
}

// TradingConfig 是交易闸门的阈值，可热更新。
type TradingConfig struct {
	MinConfidence    float64 `toml:"min_confidence"`
	MinConsensus     float64 `toml:"min_consensus"`
	MaxPositionSize  float64 `toml:"max_position_size"` // 单笔名义金额上限
	StartingCash     float64 `toml:"starting_cash"`
	MaxOpenPerMarket int     `toml:"max_open_per_market"` // 0 表示不限
}

type DecisionConfig struct {
	BuyThreshold  float64 `toml:"buy_threshold"`
	SellThreshold float64 `toml:"sell_threshold"`
	KellyFraction float64 `toml:"kelly_fraction"`
	SizeCap       float64 `toml:"size_cap"`
	MinEdge       float64 `toml:"min_edge"`
	MaxFactors    int     `toml:"max_factors"` // 0 表示不截断
}

type AgentsConfig struct {
	Enabled       []string `toml:"enabled"`
	ThinLiquidity float64  `toml:"thin_liquidity"`
	ValueShrink   float64  `toml:"value_shrink"`
	ValueMinEdge  float64  `toml:"value_min_edge"`
}

// CollectorConfig 描述市场快照来源。
type CollectorConfig struct {
	Kind                   string `toml:"kind"` // static | file | gamma | browser
	FixturesPath           string `toml:"fixtures_path"`
	GammaURL               string `toml:"gamma_url"`
	PageURL                string `toml:"page_url"`
	TimeoutSeconds         int    `toml:"timeout_seconds"`
	BreakerThreshold       int    `toml:"breaker_threshold"`
	BreakerCooldownSeconds int    `toml:"breaker_cooldown_seconds"`
}

func (c CollectorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c CollectorConfig) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSeconds) * time.Second
}

type ResearchConfig struct {
	Enabled        bool   `toml:"enabled"`
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}

func (r ResearchConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

type StorageConfig struct {
	Kind            string `toml:"kind"` // file | sqlite
	PortfolioPath   string `toml:"portfolio_path"`
	SQLitePath      string `toml:"sqlite_path"`
	DecisionLogPath string `toml:"decision_log_path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
