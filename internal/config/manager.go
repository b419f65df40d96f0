package config

import (
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/metrics"
)

// Manager keeps the resolved configuration and reloads it when a file in the
// config directory changes. Command line flags are re-applied on every reload.
type Manager struct {
	mu           sync.RWMutex
	current      *AppConfig
	configDir    string
	flags        *Flags
	onUpdateFunc func(*AppConfig)

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

func NewManager(configDir string, flags *Flags) (*Manager, error) {
	mgr := &Manager{
		configDir: configDir,
		flags:     flags,
		done:      make(chan struct{}),
	}

	if err := mgr.Reload(); err != nil {
		return nil, err
	}

	if configDir != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Error("failed to create config watcher", "error", err)
			return mgr, nil
		}
		if err := watcher.Add(configDir); err != nil {
			slog.Error("failed to watch config dir", "dir", configDir, "error", err)
			watcher.Close()
			return mgr, nil
		}
		mgr.watcher = watcher
		go mgr.watch()
	}

	return mgr, nil
}

func (m *Manager) Get() AppConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.current
}

// Reload rebuilds the configuration. On error the previous one is kept.
func (m *Manager) Reload() error {
	newConfig, err := LoadAppConfig(m.configDir)
	if err != nil {
		return err
	}
	if m.flags != nil {
		m.flags.Apply(newConfig)
	}

	m.mu.Lock()
	if m.current != nil {
		// identity is fixed for the life of the process
		newConfig.Signalling.Identity = m.current.Signalling.Identity
	}
	if err := Resolve(newConfig); err != nil {
		m.mu.Unlock()
		return err
	}
	m.current = newConfig
	onUpdate := m.onUpdateFunc
	m.mu.Unlock()

	if onUpdate != nil {
		onUpdate(newConfig)
	}

	slog.Debug("configuration loaded", "dir", m.configDir)
	return nil
}

func (m *Manager) SetUpdateCallback(f func(*AppConfig)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdateFunc = f
}

func (m *Manager) Close() {
	m.once.Do(func() {
		close(m.done)
		if m.watcher != nil {
			m.watcher.Close()
		}
	})
}

func (m *Manager) watch() {
	for {
		select {
		case <-m.done:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if !isConfigFile(event.Name) {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				slog.Info("config file modified", "file", event.Name)
				if err := m.Reload(); err != nil {
					slog.Error("error reloading config", "error", err)
					continue
				}
				metrics.ConfigReloads.Inc()
				slog.Info("configuration reloaded successfully")
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)
		}
	}
}

func isConfigFile(name string) bool {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if !slices.ContainsFunc(configDecoders, func(d fileDecoder) bool { return d.ext == ext }) {
		return false
	}
	return slices.Contains(ConfigFiles, strings.TrimSuffix(base, ext))
}
