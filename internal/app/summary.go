package app

import (
	"fmt"
	"strings"

	"polyagent/internal/config"
)

type StartupSummary struct {
	Markets   []string
	Interval  string
	Providers []string
	Collector string
	Storage   string
	Trading   config.TradingConfig
	Research  bool
	Telegram  bool
	AutoStart bool
	HTTPAddr  string
}

func newStartupSummary(cfg *config.Config, providers []string) *StartupSummary {
	storage := cfg.Storage.Kind + " " + cfg.Storage.PortfolioPath
	if cfg.Storage.Kind == "sqlite" {
		storage = cfg.Storage.Kind + " " + cfg.Storage.SQLitePath
	}
	return &StartupSummary{
		Markets:   append([]string(nil), cfg.Monitor.Markets...),
		Interval:  cfg.Monitor.Interval().String(),
		Providers: providers,
		Collector: cfg.Collector.Kind,
		Storage:   storage,
		Trading:   cfg.Trading,
		Research:  cfg.Research.Enabled,
		Telegram:  cfg.Notify.Telegram.Enabled,
		AutoStart: cfg.Monitor.AutoStart,
		HTTPAddr:  cfg.App.HTTPAddr,
	}
}

func (s *StartupSummary) String() string {
	var b strings.Builder
	line := strings.Repeat("=", 80)
	b.WriteString(line + "\n")
	fmt.Fprintf(&b, "%*s\n", 40+len("STARTUP SUMMARY")/2, "STARTUP SUMMARY")
	b.WriteString(line + "\n")

	b.WriteString("[MONITOR]\n")
	fmt.Fprintf(&b, "  markets:    %s\n", formatList(s.Markets))
	fmt.Fprintf(&b, "  interval:   %s\n", s.Interval)
	fmt.Fprintf(&b, "  auto start: %v\n", s.AutoStart)
	fmt.Fprintf(&b, "  providers:  %s\n", formatList(s.Providers))
	fmt.Fprintf(&b, "  collector:  %s\n", s.Collector)
	b.WriteString("\n")

	b.WriteString("[TRADING]\n")
	fmt.Fprintf(&b, "  starting cash:     %.2f\n", s.Trading.StartingCash)
	fmt.Fprintf(&b, "  min confidence:    %.2f\n", s.Trading.MinConfidence)
	fmt.Fprintf(&b, "  min consensus:     %.2f\n", s.Trading.MinConsensus)
	fmt.Fprintf(&b, "  max position size: %.2f\n", s.Trading.MaxPositionSize)
	fmt.Fprintf(&b, "  max open / market: %d\n", s.Trading.MaxOpenPerMarket)
	b.WriteString("\n")

	b.WriteString("[IO]\n")
	fmt.Fprintf(&b, "  storage:  %s\n", s.Storage)
	fmt.Fprintf(&b, "  research: %v\n", s.Research)
	fmt.Fprintf(&b, "  telegram: %v\n", s.Telegram)
	fmt.Fprintf(&b, "  http:     %s\n", s.HTTPAddr)
	b.WriteString(line)
	return b.String()
}

func (s *StartupSummary) Print() {
	fmt.Println(s.String())
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
