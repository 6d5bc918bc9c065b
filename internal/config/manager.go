package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReloadCallback is invoked after a successful hot reload.
type ReloadCallback func(oldConfig, newConfig *Config)

// Manager loads, validates and hot-reloads the decision-core configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	viper     *viper.Viper
	validator *validator.Validate
	logger    *zap.Logger

	watcher    *fsnotify.Watcher
	watchPath  string
	callbacks  []ReloadCallback
	lastReload time.Time
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New()
	// "decimal" accepts any string shopspring/decimal can parse.
	_ = v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		_, err := decimal.NewFromString(fl.Field().String())
		return err == nil
	})
	return &Manager{
		viper:     viper.New(),
		validator: v,
		logger:    logger.Named("config"),
	}
}

// Load reads the configuration file at path, layers HEDGECORE_ environment
// variables on top, and validates the result.
func (m *Manager) Load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setupViper()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		m.viper.SetConfigFile(path)
		if err := m.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		m.watchPath = path
	}

	cfg, err := m.unmarshalAndValidate()
	if err != nil {
		return err
	}

	m.config = cfg
	m.lastReload = time.Now()
	m.logger.Info("configuration loaded",
		zap.String("file", m.viper.ConfigFileUsed()),
		zap.String("environment", cfg.Environment))
	return nil
}

func (m *Manager) setupViper() {
	m.viper.SetConfigType("yaml")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.viper.SetEnvPrefix("HEDGECORE")

	m.viper.SetDefault("environment", "development")
	m.viper.SetDefault("logging.level", "info")
	m.viper.SetDefault("risk.enforce_caps", true)
	m.viper.SetDefault("risk.enforce_budget", true)
	m.viper.SetDefault("risk.enforce_daily_loss", true)
	m.viper.SetDefault("flow_control.cooldown_max_entries", 4096)
	m.viper.SetDefault("flow_control.deadline_max_entries", 4096)
	m.viper.SetDefault("flow_control.ack_timeout", "5s")
	m.viper.SetDefault("flow_control.fill_timeout", "60s")
	m.viper.SetDefault("router.freshness_window", "3s")
	m.viper.SetDefault("router.horizon", "1h")
	m.viper.SetDefault("router.min_edge_bps", "1.0")
	m.viper.SetDefault("router.min_notional", "10")
	m.viper.SetDefault("router.slippage_pct", "0.001")
	m.viper.SetDefault("router.qty_precision", 4)
	m.viper.SetDefault("client_id.bucket_seconds", 60)
}

func (m *Manager) unmarshalAndValidate() (*Config, error) {
	var cfg Config
	if err := m.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := m.validator.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration snapshot.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnReload registers a callback run after each successful hot reload.
func (m *Manager) OnReload(cb ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Watch re-validates and swaps the configuration whenever the loaded file
// changes on disk. A reload that fails validation keeps the previous
// configuration in place.
func (m *Manager) Watch() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watchPath == "" {
		return fmt.Errorf("no config file loaded, nothing to watch")
	}
	if m.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(m.watchPath); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", m.watchPath, err)
	}
	m.watcher = watcher

	go m.watchLoop(watcher)
	return nil
}

func (m *Manager) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			m.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("config watcher error", zap.Error(err))
		}
	}
}

func (m *Manager) reload() {
	m.mu.Lock()

	if err := m.viper.ReadInConfig(); err != nil {
		m.mu.Unlock()
		m.logger.Error("config reload read failed, keeping previous", zap.Error(err))
		return
	}
	cfg, err := m.unmarshalAndValidate()
	if err != nil {
		m.mu.Unlock()
		m.logger.Error("config reload rejected, keeping previous", zap.Error(err))
		return
	}

	old := m.config
	m.config = cfg
	m.lastReload = time.Now()
	callbacks := append([]ReloadCallback(nil), m.callbacks...)
	m.mu.Unlock()

	m.logger.Info("configuration reloaded", zap.Time("at", m.lastReload))
	for _, cb := range callbacks {
		cb(old, cfg)
	}
}

// Close stops the file watcher.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		err := m.watcher.Close()
		m.watcher = nil
		return err
	}
	return nil
}
