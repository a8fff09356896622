// Package config loads and validates monitor configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Target   TargetConfig   `mapstructure:"target"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Render   RenderConfig   `mapstructure:"render"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Region   RegionConfig   `mapstructure:"region"`
	State    StateConfig    `mapstructure:"state"`
	Artifact ArtifactConfig `mapstructure:"artifact"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// TargetConfig names the watched page.
type TargetConfig struct {
	URL          string `mapstructure:"url"`
	SubscribeURL string `mapstructure:"subscribe_url"`
}

// TelegramConfig holds Bot API credentials and destinations.
type TelegramConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	BotToken       string        `mapstructure:"bot_token"`
	ChannelID      string        `mapstructure:"channel_id"`
	LogChannelID   string        `mapstructure:"log_channel_id"`
	PhotoTimeout   time.Duration `mapstructure:"photo_timeout"`
	MessageTimeout time.Duration `mapstructure:"message_timeout"`
}

// RenderConfig configures the headless browser.
type RenderConfig struct {
	ViewportWidth     int           `mapstructure:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	UserAgent         string        `mapstructure:"user_agent"`
	ExecPath          string        `mapstructure:"exec_path"`
	NoSandbox         bool          `mapstructure:"no_sandbox"`
}

// ExtractConfig sets the content markers.
type ExtractConfig struct {
	AlertMarkers []string `mapstructure:"alert_markers"`
	DateMarker   string   `mapstructure:"date_marker"`
	Tags         []string `mapstructure:"tags"`
}

// RegionConfig sets the region anchors.
type RegionConfig struct {
	StartAnchor string  `mapstructure:"start_anchor"`
	EndAnchor   string  `mapstructure:"end_anchor"`
	EndMargin   float64 `mapstructure:"end_margin"`
}

// Backend names accepted by StateConfig.Backend.
const (
	BackendFile     = "file"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
)

// StateConfig selects and configures the baseline backend.
type StateConfig struct {
	Backend  string              `mapstructure:"backend"`
	Path     string              `mapstructure:"path"`
	GCS      GCSStateConfig      `mapstructure:"gcs"`
	Postgres PostgresStateConfig `mapstructure:"postgres"`
}

// GCSStateConfig locates the baseline object.
type GCSStateConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Object          string `mapstructure:"object"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// PostgresStateConfig locates the baseline table.
type PostgresStateConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ArtifactConfig sets where the cropped screenshot is written.
type ArtifactConfig struct {
	Dir  string `mapstructure:"dir"`
	Name string `mapstructure:"name"`
}

// LoggingConfig toggles zap development features and the run log zone.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	Timezone    string `mapstructure:"timezone"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// PubSubConfig holds metadata for change-event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether change events should be published.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.TopicName != ""
}

// TracingConfig toggles OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// legacyEnv maps keys to the bare variable names used by earlier
// deployments. Prefixed names win when both are set.
var legacyEnv = map[string]string{
	"target.url":              "URL",
	"target.subscribe_url":    "SUBSCRIBE",
	"telegram.bot_token":      "TELEGRAM_BOT_TOKEN",
	"telegram.channel_id":     "TELEGRAM_CHANNEL_ID",
	"telegram.log_channel_id": "TELEGRAM_LOG_CHANNEL_ID",
}

// LoadDotenv loads variables from path into the process environment without
// overriding ones already set. A missing file is not an error.
func LoadDotenv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, legacy := range legacyEnv {
		prefixed := "PAGEWATCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target.url", "")
	v.SetDefault("target.subscribe_url", "")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.channel_id", "")
	v.SetDefault("telegram.log_channel_id", "")
	v.SetDefault("telegram.photo_timeout", "30s")
	v.SetDefault("telegram.message_timeout", "10s")
	v.SetDefault("render.viewport_width", 1920)
	v.SetDefault("render.viewport_height", 3080)
	v.SetDefault("render.navigation_timeout", "30s")
	v.SetDefault("render.idle_timeout", "10s")
	v.SetDefault("render.settle_delay", "0s")
	v.SetDefault("render.user_agent", "")
	v.SetDefault("render.exec_path", "")
	v.SetDefault("render.no_sandbox", false)
	v.SetDefault("extract.alert_markers", []string{"УВАГА", "ІНФОРМАЦІЯ"})
	v.SetDefault("extract.date_marker", "Дата")
	v.SetDefault("extract.tags", []string{"div", "span", "p", "h2", "h3", "h4", "h5"})
	v.SetDefault("region.start_anchor", "Дата оновлення інформації")
	v.SetDefault("region.end_anchor", "робіт")
	v.SetDefault("region.end_margin", 5)
	v.SetDefault("state.backend", BackendFile)
	v.SetDefault("state.path", "last_hash.json")
	v.SetDefault("state.gcs.bucket", "")
	v.SetDefault("state.gcs.prefix", "")
	v.SetDefault("state.gcs.object", "last_hash.json")
	v.SetDefault("state.gcs.credentials_file", "")
	v.SetDefault("state.postgres.dsn", "")
	v.SetDefault("state.postgres.table", "pagewatch_state")
	v.SetDefault("state.postgres.max_conns", 2)
	v.SetDefault("state.postgres.max_conn_lifetime", "5m")
	v.SetDefault("artifact.dir", ".")
	v.SetDefault("artifact.name", "screenshot.png")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.timezone", "Europe/Kyiv")
	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "pagewatch")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Target.URL == "" {
		return fmt.Errorf("target.url is required")
	}
	u, err := url.Parse(c.Target.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("target.url must be an absolute http(s) url")
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.ChannelID == "" {
		return fmt.Errorf("telegram.channel_id is required")
	}
	if c.Render.ViewportWidth <= 0 || c.Render.ViewportHeight <= 0 {
		return fmt.Errorf("render viewport dimensions must be > 0")
	}
	if c.Render.NavigationTimeout <= 0 {
		return fmt.Errorf("render.navigation_timeout must be > 0")
	}
	if len(c.Extract.AlertMarkers) == 0 || c.Extract.DateMarker == "" {
		return fmt.Errorf("extract.alert_markers and extract.date_marker must be set")
	}
	if c.Region.StartAnchor == "" || c.Region.EndAnchor == "" {
		return fmt.Errorf("region.start_anchor and region.end_anchor must be set")
	}
	if c.Region.EndMargin < 0 {
		return fmt.Errorf("region.end_margin must be >= 0")
	}
	switch c.State.Backend {
	case BackendFile:
		if c.State.Path == "" {
			return fmt.Errorf("state.path is required for the file backend")
		}
	case BackendGCS:
		if c.State.GCS.Bucket == "" || c.State.GCS.Object == "" {
			return fmt.Errorf("state.gcs.bucket and state.gcs.object are required for the gcs backend")
		}
	case BackendPostgres:
		if c.State.Postgres.DSN == "" {
			return fmt.Errorf("state.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("state.backend must be one of file, gcs, postgres; got %q", c.State.Backend)
	}
	if c.Artifact.Name == "" {
		return fmt.Errorf("artifact.name is required")
	}
	if _, err := time.LoadLocation(c.Logging.Timezone); err != nil {
		return fmt.Errorf("logging.timezone: %w", err)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}
