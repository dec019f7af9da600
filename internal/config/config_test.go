package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "app:\n  env: test\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, defaultAppHTTPAddr, cfg.App.HTTPAddr)
	assert.Equal(t, 300*time.Second, cfg.Monitor.Interval())
	assert.Equal(t, 0.7, cfg.Trading.MinConfidence)
	assert.Equal(t, 0.6, cfg.Trading.MinConsensus)
	assert.Equal(t, 500.0, cfg.Trading.MaxPositionSize)
	assert.Equal(t, 10000.0, cfg.Trading.StartingCash)
	assert.Equal(t, 1, cfg.Trading.MaxOpenPerMarket)
	assert.Equal(t, 0.15, cfg.Decision.BuyThreshold)
	assert.Equal(t, -0.15, cfg.Decision.SellThreshold)
	assert.Equal(t, 0.5, cfg.Decision.KellyFraction)
	assert.Equal(t, 0.2, cfg.Decision.SizeCap)
	assert.Equal(t, defaultAgents, cfg.Agents.Enabled)
	assert.Equal(t, "static", cfg.Collector.Kind)
	assert.Equal(t, "file", cfg.Storage.Kind)
}

func TestLoadKeepsExplicitZero(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "trading:\n  max_open_per_market: 0\n  min_consensus: 0\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Trading.MaxOpenPerMarket)
	assert.Equal(t, 0.0, cfg.Trading.MinConsensus)
	assert.Equal(t, 0.7, cfg.Trading.MinConfidence)
}

func TestLoadMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "agents.yaml", "agents:\n  enabled: [Value, value, sentiment]\ndecision:\n  kelly_fraction: 0.25\n")
	path := writeFile(t, dir, "config.yaml", "include:\n  - agents.yaml\ndecision:\n  size_cap: 0.1\nmonitor:\n  check_interval: \"60\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"value", "sentiment"}, cfg.Agents.Enabled)
	assert.Equal(t, 0.25, cfg.Decision.KellyFraction)
	assert.Equal(t, 0.1, cfg.Decision.SizeCap)
	assert.Equal(t, time.Minute, cfg.Monitor.Interval())
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "agents.yaml", filepath.Base(cfg.Sources[0]))
	assert.Equal(t, "config.yaml", filepath.Base(cfg.Sources[1]))
}

func TestLoadRejectsScalarInclude(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "include: agents.yaml\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("POLYAGENT_RESEARCH_API_KEY", "from-env")
	t.Setenv("POLYAGENT_APP_HTTP_ADDR", ":9999")
	path := writeFile(t, t.TempDir(), "config.yaml", "app:\n  http_addr: \":8080\"\nresearch:\n  enabled: true\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Research.APIKey)
	assert.Equal(t, ":9999", cfg.App.HTTPAddr)
	assert.Equal(t, defaultAgents, cfg.Agents.Enabled)
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, DefaultConfigPath, PathFromEnv())
	t.Setenv(EnvConfigPath, "/etc/polyagent.yaml")
	assert.Equal(t, "/etc/polyagent.yaml", PathFromEnv())
}

func TestWatchReloadsOnIncludeChange(t *testing.T) {
	dir := t.TempDir()
	inc := writeFile(t, dir, "trading.yaml", "trading:\n  min_confidence: 0.7\n")
	path := writeFile(t, dir, "config.yaml", "include:\n  - trading.yaml\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan float64, 4)
	require.NoError(t, Watch(ctx, path, func(cfg *Config) { got <- cfg.Trading.MinConfidence }))

	require.NoError(t, os.WriteFile(inc, []byte("trading:\n  min_confidence: 0.8\n"), 0o644))
	select {
	case v := <-got:
		assert.Equal(t, 0.8, v)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after include edit")
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include:\n  - b.yaml\n")
	writeFile(t, dir, "b.yaml", "include:\n  - a.yaml\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"bad interval":   "monitor:\n  check_interval: soon\n",
		"confidence":     "trading:\n  min_confidence: 1.5\n",
		"thresholds":     "decision:\n  buy_threshold: -0.5\n  sell_threshold: 0.5\n",
		"collector kind": "collector:\n  kind: carrier-pigeon\n",
		"file fixtures":  "collector:\n  kind: file\n",
		"storage kind":   "storage:\n  kind: mongo\n",
		"research key":   "research:\n  enabled: true\n",
		"telegram":       "notify:\n  telegram:\n    enabled: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestTradingValidate(t *testing.T) {
	ok := TradingConfig{MinConfidence: 0.7, MinConsensus: 0.6, MaxPositionSize: 500, StartingCash: 10000, MaxOpenPerMarket: 1}
	assert.NoError(t, ok.Validate())
	bad := ok
	bad.MaxPositionSize = 0
	assert.Error(t, bad.Validate())
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Collector.Kind)
	assert.Equal(t, 5, cfg.Decision.MaxFactors)
	assert.Len(t, cfg.Monitor.Markets, 2)
}
