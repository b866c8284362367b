package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watch reloads the file when it is edited outside this process and calls fn
// with the new configuration. It blocks until ctx is done. Our own saves and
// documents that fail to parse are skipped.
func (m *Manager) Watch(ctx context.Context, fn func(*Config)) error {
	log := logger.WithComponent("config")

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	// editors replace files by rename, so watch the directory
	if err := w.Add(filepath.Dir(m.configPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	target := filepath.Clean(m.configPath)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			cfg, changed, err := m.reload()
			if err != nil {
				log.Warn().Err(err).Str("path", m.configPath).Msg("Ignoring invalid config edit")
				continue
			}
			if changed {
				log.Info().Str("path", m.configPath).Msg("Config reloaded")
				fn(cfg)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

func (m *Manager) reload() (*Config, bool, error) {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return nil, false, err
	}

	// a truncate-then-write edit shows up as an empty file first
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if bytes.Equal(data, m.lastSaved) {
		return nil, false, nil
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, false, err
	}
	m.config = cfg
	m.lastSaved = data
	return cfg.clone(), true, nil
}
