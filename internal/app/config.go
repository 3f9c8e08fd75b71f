package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/errors"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

type Config struct {
	Store      StoreConfig      `mapstructure:"store"`
	Geo        GeoConfig        `mapstructure:"geo"`
	Fail2ban   Fail2banConfig   `mapstructure:"fail2ban"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	UI         UIConfig         `mapstructure:"ui"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Recorder   RecorderConfig   `mapstructure:"recorder"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type GeoConfig struct {
	// Provider is "ipapi" or "mmdb".
	Provider     string        `mapstructure:"provider"`
	URL          string        `mapstructure:"url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CityDB       string        `mapstructure:"city_db"`
	ASNDB        string        `mapstructure:"asn_db"`
	CacheEnabled bool          `mapstructure:"cache_enabled"`
	CachePath    string        `mapstructure:"cache_path"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CacheSize    int           `mapstructure:"cache_size"`
}

type Fail2banConfig struct {
	Binary  string        `mapstructure:"binary"`
	Jail    string        `mapstructure:"jail"`
	Timeout time.Duration `mapstructure:"timeout"`
	LogPath string        `mapstructure:"log_path"`
	Poll    bool          `mapstructure:"poll"`
}

type JournalConfig struct {
	Command string   `mapstructure:"command"`
	Units   []string `mapstructure:"units"`
}

type EnrichmentConfig struct {
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	CooldownSize   int           `mapstructure:"cooldown_size"`
	QuarantinePath string        `mapstructure:"quarantine_path"`
}

type UIConfig struct {
	Theme       string  `mapstructure:"theme"`
	LogCapacity int     `mapstructure:"log_capacity"`
	TickRate    float64 `mapstructure:"tick_rate"`
	FrameRate   float64 `mapstructure:"frame_rate"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type RecorderConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "iplogs.db")

	v.SetDefault("geo.provider", "ipapi")
	v.SetDefault("geo.url", "http://ip-api.com/json")
	v.SetDefault("geo.timeout", 5*time.Second)
	v.SetDefault("geo.city_db", "./data/GeoLite2-City.mmdb")
	v.SetDefault("geo.asn_db", "./data/GeoLite2-ASN.mmdb")
	v.SetDefault("geo.cache_enabled", true)
	v.SetDefault("geo.cache_path", "./data/geocache.db")
	v.SetDefault("geo.cache_ttl", 7*24*time.Hour)
	v.SetDefault("geo.cache_size", 1000)

	v.SetDefault("fail2ban.binary", "fail2ban-client")
	v.SetDefault("fail2ban.jail", "sshd")
	v.SetDefault("fail2ban.timeout", 10*time.Second)
	v.SetDefault("fail2ban.log_path", "/var/log/fail2ban.log")
	v.SetDefault("fail2ban.poll", false)

	v.SetDefault("journal.command", "journalctl")
	v.SetDefault("journal.units", []string{"ssh", "sshd"})

	v.SetDefault("enrichment.workers", 4)
	v.SetDefault("enrichment.queue_size", 1024)
	v.SetDefault("enrichment.cooldown", time.Minute)
	v.SetDefault("enrichment.cooldown_size", 4096)
	v.SetDefault("enrichment.quarantine_path", "")

	v.SetDefault("ui.theme", "default")
	v.SetDefault("ui.log_capacity", DefaultLogCapacity)
	v.SetDefault("ui.tick_rate", 1.0)
	v.SetDefault("ui.frame_rate", 30.0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", ":9090")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("recorder.enabled", false)
	v.SetDefault("recorder.path", "actions.jsonl")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "succeed2ban.log")
}

// LoadConfig decodes and validates the configuration held by v.
func LoadConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, errors.KindConfig, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Store.Path == "" {
		return &ConfigValidationError{Field: "store.path", Value: c.Store.Path, Reason: "must not be empty"}
	}
	switch c.Geo.Provider {
	case "ipapi":
		if c.Geo.URL == "" {
			return &ConfigValidationError{Field: "geo.url", Value: c.Geo.URL, Reason: "required for the ipapi provider"}
		}
	case "mmdb":
		if c.Geo.CityDB == "" || c.Geo.ASNDB == "" {
			return &ConfigValidationError{Field: "geo.city_db", Value: c.Geo.CityDB, Reason: "city and asn databases are required for the mmdb provider"}
		}
	default:
		return &ConfigValidationError{Field: "geo.provider", Value: c.Geo.Provider, Reason: "must be ipapi or mmdb"}
	}
	if c.Geo.Timeout <= 0 {
		return &ConfigValidationError{Field: "geo.timeout", Value: c.Geo.Timeout, Reason: "must be positive"}
	}
	if c.Fail2ban.Timeout <= 0 {
		return &ConfigValidationError{Field: "fail2ban.timeout", Value: c.Fail2ban.Timeout, Reason: "must be positive"}
	}
	if c.Fail2ban.Jail == "" {
		return &ConfigValidationError{Field: "fail2ban.jail", Value: c.Fail2ban.Jail, Reason: "must not be empty"}
	}
	if c.Enrichment.Workers < 1 || c.Enrichment.Workers > 256 {
		return &ConfigValidationError{Field: "enrichment.workers", Value: c.Enrichment.Workers, Reason: "must be between 1 and 256"}
	}
	if c.Enrichment.QueueSize < 1 || c.Enrichment.QueueSize > 1000000 {
		return &ConfigValidationError{Field: "enrichment.queue_size", Value: c.Enrichment.QueueSize, Reason: "must be between 1 and 1M"}
	}
	if c.UI.LogCapacity < 1 || c.UI.LogCapacity > MaxLogCapacity {
		return &ConfigValidationError{Field: "ui.log_capacity", Value: c.UI.LogCapacity, Reason: "must be between 1 and " + strconv.Itoa(MaxLogCapacity)}
	}
	if c.UI.TickRate <= 0 {
		return &ConfigValidationError{Field: "ui.tick_rate", Value: c.UI.TickRate, Reason: "must be positive"}
	}
	if c.UI.FrameRate <= 0 || c.UI.FrameRate > 240 {
		return &ConfigValidationError{Field: "ui.frame_rate", Value: c.UI.FrameRate, Reason: "must be in (0, 240]"}
	}
	return nil
}

// EnricherConfig maps the enrichment section onto the pipeline settings.
func (c Config) EnricherConfig() EnricherConfig {
	return EnricherConfig{
		Pool: WorkerPoolConfig{
			WorkerCount:    c.Enrichment.Workers,
			BufferSize:     c.Enrichment.QueueSize,
			QuarantinePath: c.Enrichment.QuarantinePath,
		},
		LookupTimeout: c.Geo.Timeout,
		Cooldown:      c.Enrichment.Cooldown,
		CooldownSize:  c.Enrichment.CooldownSize,
	}
}

// ConfigReloader watches the config file and forwards the settings that can
// change at runtime to the bus.
type ConfigReloader struct {
	v       *viper.Viper
	sender  ports.Sender
	current UIConfig

	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewConfigReloader(v *viper.Viper, sender ports.Sender, current Config) *ConfigReloader {
	return &ConfigReloader{
		v:        v,
		sender:   sender,
		current:  current.UI,
		stopChan: make(chan struct{}),
	}
}

func (r *ConfigReloader) StartWatching(ctx context.Context) {
	r.v.OnConfigChange(func(e fsnotify.Event) {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		default:
		}
		log.Info().
			Str("file", e.Name).
			Str("op", e.Op.String()).
			Msg("Config file changed, reloading...")
		r.Reload()
	})

	r.v.WatchConfig()
	log.Debug().Str("config", r.v.ConfigFileUsed()).Msg("Hot-reload config watching started")
}

// Reload re-reads the file and pushes SelectTheme and SubmittedCapacity for
// changed values. An invalid file keeps the current configuration.
func (r *ConfigReloader) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.v.ConfigFileUsed() != "" {
		if err := r.v.ReadInConfig(); err != nil {
			log.Error().Err(err).Msg("Failed to re-read config, keeping current configuration")
			return
		}
	}

	cfg, err := LoadConfig(r.v)
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration, rejecting reload")
		return
	}

	if cfg.UI.Theme != r.current.Theme {
		r.send(domain.SelectTheme{Name: cfg.UI.Theme})
	}
	if cfg.UI.LogCapacity != r.current.LogCapacity {
		r.send(domain.SubmittedCapacity{Capacity: cfg.UI.LogCapacity})
	}
	r.current = cfg.UI
}

func (r *ConfigReloader) send(a domain.Action) {
	if err := r.sender.Send(a); err != nil {
		log.Debug().Err(err).Str("action", string(a.Kind())).Msg("Reloaded setting dropped")
		return
	}
	log.Info().Str("action", string(a.Kind())).Msg("Configuration hot-reloaded")
}

func (r *ConfigReloader) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
		log.Debug().Msg("Hot-reload config watcher stopped")
	})
}

type ConfigValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return "config validation error: " + e.Field + " = " +
		formatValue(e.Value) + " - " + e.Reason
}

func formatValue(v any) string {
	switch val := v.(type) {
	case int:
		return strconv.Itoa(val)
	case string:
		return strconv.Quote(val)
	case time.Duration:
		return val.String()
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%v", val)
	}
}
