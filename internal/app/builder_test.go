package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"polyagent/internal/config"
	"polyagent/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, storageKind string) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`
app:
  log_level: warn
  http_addr: "127.0.0.1:0"
monitor:
  markets: ["rain-tomorrow"]
  check_interval: 1h
trading:
  min_confidence: 0.5
  max_position_size: 250
collector:
  kind: static
storage:
  kind: %s
  portfolio_path: %s
  sqlite_path: %s
  decision_log_path: %s
`, storageKind,
		filepath.Join(dir, "portfolio.json"),
		filepath.Join(dir, "portfolio.db"),
		filepath.Join(dir, "decisions.db"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg, path
}

func TestBuildWiresMonitor(t *testing.T) {
	for _, kind := range []string{"file", "sqlite"} {
		t.Run(kind, func(t *testing.T) {
			cfg, _ := writeConfig(t, kind)
			a, err := NewAppBuilder(cfg).Build(context.Background())
			require.NoError(t, err)
			defer closeAll(a.closers)

			mon := a.Monitor()
			require.NotNil(t, mon)
			assert.Equal(t, 0.5, mon.Config().MinConfidence)
			assert.Equal(t, 250.0, mon.Config().MaxPositionSize)
			assert.Equal(t, time.Hour, mon.Config().CheckInterval)
			assert.Equal(t, "10000.00", mon.Portfolio().Cash.StringFixed(2))
			assert.Equal(t, []string{"rain-tomorrow"}, a.Summary.Markets)
			assert.Contains(t, a.Summary.String(), "STARTUP SUMMARY")

			d, err := mon.DecideOnce(context.Background(), market.Snapshot{
				ID:        "rain-tomorrow",
				Title:     "Will it rain tomorrow?",
				Outcomes:  []string{"Yes", "No"},
				Prices:    map[string]float64{"Yes": 0.4, "No": 0.6},
				Volume24h: 20000,
				Liquidity: 9000,
			})
			require.NoError(t, err)
			assert.Len(t, d.Opinions, len(cfg.Agents.Enabled))
		})
	}
}

func TestBuildRejectsUnknownCollector(t *testing.T) {
	cfg, _ := writeConfig(t, "file")
	cfg.Collector.Kind = "carrier-pigeon"
	_, err := NewAppBuilder(cfg).Build(context.Background())
	assert.ErrorContains(t, err, "carrier-pigeon")
}

func TestAnalyzeThroughStaticCollector(t *testing.T) {
	cfg, _ := writeConfig(t, "file")
	a, err := NewAppBuilder(cfg).Build(context.Background())
	require.NoError(t, err)
	defer closeAll(a.closers)

	res, err := a.Monitor().Analyze(context.Background(), "Will it rain")
	require.NoError(t, err)
	assert.Equal(t, "will-it-rain", res.Snapshot.ID)
	assert.Equal(t, 0.65, res.Snapshot.Prices["Yes"])
}

func TestApplyReloadUpdatesThresholds(t *testing.T) {
	cfg, _ := writeConfig(t, "file")
	a, err := NewAppBuilder(cfg).Build(context.Background())
	require.NoError(t, err)
	defer closeAll(a.closers)

	next := *cfg
	next.Trading.MinConfidence = 0.95
	a.applyReload(&next)
	assert.Equal(t, 0.95, a.Monitor().Config().MinConfidence)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg, path := writeConfig(t, "file")
	cfg.Monitor.AutoStart = true
	a, err := NewAppBuilder(cfg, WithConfigPath(path)).Build(context.Background())
	require.NoError(t, err)
	a.Summary = nil

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	assert.Eventually(t, func() bool { return a.Monitor().Status().Running }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, a.Monitor().Status().Running)
	_, err = os.Stat(cfg.Storage.PortfolioPath)
	assert.NoError(t, err)
}
