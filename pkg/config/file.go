package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/opsgate/gatehouse/pkg/observability"
)

// LoadConfigFile loads configuration from a YAML file with GATEHOUSE_*
// environment variables applied on top.
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.Observability.LogLevel = ParseLogLevel(cfg.Observability.LogLevelName)

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Watch re-loads the file on change and calls onChange with the fresh
// configuration. Invalid intermediate states (editors often write in two
// steps) are logged and skipped. Blocks until ctx-free: the caller runs it
// in its own goroutine and closes the returned watcher to stop.
func Watch(path string, logger *observability.Logger, onChange func(*Config)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	// Watch the directory, not the file: renames during atomic writes drop
	// file-level watches.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				cfg, err := LoadConfigFile(path)
				if err != nil {
					logger.WithError(err).Warn("ignoring invalid config reload")
					continue
				}
				logger.Info("configuration reloaded")
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("config watcher error")
			}
		}
	}()

	return watcher, nil
}
