package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"polyagent/internal/config"
	"polyagent/internal/logger"
	"polyagent/internal/monitor"
	apihttp "polyagent/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App wires config, ledger, monitor and the HTTP API together.
type App struct {
	cfg     *config.Config
	cfgPath string
	monitor *monitor.Service
	http    *apihttp.Server
	closers []io.Closer
	Summary *StartupSummary
}

func NewApp(cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return NewAppBuilder(cfg, opts...).Build(context.Background())
}

// Run serves the API until ctx is cancelled, then stops the loop, flushes the
// ledger and closes the stores.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.monitor == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	defer closeAll(a.closers)

	if a.cfgPath != "" {
		if err := config.Watch(ctx, a.cfgPath, a.applyReload); err != nil {
			logger.Warnf("config hot reload disabled: %v", err)
		}
	}
	if a.cfg.Monitor.AutoStart {
		if err := a.monitor.Start(a.cfg.Monitor.Markets, TradingPolicy(a.cfg)); err != nil {
			return fmt.Errorf("auto start monitor: %w", err)
		}
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.http.Start(gctx); err != nil {
			return fmt.Errorf("api server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.monitor.Shutdown(shCtx); err != nil {
			return fmt.Errorf("monitor shutdown: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// applyReload pushes reloaded trading thresholds into the running monitor.
// Other sections need a restart.
func (a *App) applyReload(cfg *config.Config) {
	a.monitor.UpdateConfig(TradingPolicy(cfg))
}

// Monitor exposes the service, mainly for tests.
func (a *App) Monitor() *monitor.Service {
	if a == nil {
		return nil
	}
	return a.monitor
}
