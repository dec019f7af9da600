package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"polyagent/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const watchDebounce = 200 * time.Millisecond

// Watch reloads the config whenever path or one of its includes changes and
// hands the validated result to onChange. Invalid edits are logged and ignored.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	if onChange == nil {
		return fmt.Errorf("config watch requires a callback")
	}
	current, err := Load(path)
	if err != nil {
		return err
	}
	root := current.Sources[len(current.Sources)-1]

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func(evt fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
			return
		}
		// editors often emit several events per save
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			if ctx.Err() != nil {
				return
			}
			cfg, err := Load(root)
			if err != nil {
				logger.Errorf("config reload failed (%s): %v", evt.Name, err)
				return
			}
			logger.Infof("config reloaded after change to %s", evt.Name)
			onChange(cfg)
		})
	}
	// Includes added by a later edit are only picked up after a restart.
	for _, file := range current.Sources {
		v := viper.New()
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
		v.OnConfigChange(reload)
		v.WatchConfig()
	}
	return nil
}
