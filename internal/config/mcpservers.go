package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/kagenti/mcp-gateway/internal/model"
)

// Loader reads the gateway's bootstrap McpConfig set from a YAML/JSON file
// via viper, and re-reads it on change, exactly as the original main.go does
// with viper.WatchConfig()+OnConfigChange - generalized here from a
// package-level mutable global (mcpConfig/mutex in the original main.go) to
// an explicitly-constructed Loader, avoiding a process-wide mutable global.
type Loader struct {
	mu        sync.Mutex
	observers []Observer
}

// NewLoader builds a Loader reading path via viper. path must name a file
// viper can identify the format of (.yaml, .yml, .json).
func NewLoader(path string) (*Loader, error) {
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	l := &Loader{}
	viper.WatchConfig()
	viper.OnConfigChange(func(fsnotify.Event) {
		configs, err := l.decode()
		if err != nil {
			return
		}
		l.notify(configs)
	})
	return l, nil
}

// Load returns the currently configured McpConfig set.
func (l *Loader) Load() ([]*model.McpConfig, error) {
	return l.decode()
}

func (l *Loader) decode() ([]*model.McpConfig, error) {
	var fc FileConfig
	if err := viper.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	return fc.Configs, nil
}

// RegisterObserver registers obs to be called with the full config set
// whenever the backing file changes.
func (l *Loader) RegisterObserver(obs Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, obs)
}

func (l *Loader) notify(configs []*model.McpConfig) {
	l.mu.Lock()
	observers := append([]Observer(nil), l.observers...)
	l.mu.Unlock()
	for _, obs := range observers {
		go obs.OnConfigChange(configs)
	}
}
