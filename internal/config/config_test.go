package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Target:   TargetConfig{URL: "https://example.com/outages"},
		Telegram: TelegramConfig{BotToken: "t", ChannelID: "@c"},
		Render:   RenderConfig{ViewportWidth: 1920, ViewportHeight: 3080, NavigationTimeout: 30 * time.Second},
		Extract:  ExtractConfig{AlertMarkers: []string{"УВАГА"}, DateMarker: "Дата"},
		Region:   RegionConfig{StartAnchor: "a", EndAnchor: "b", EndMargin: 5},
		State:    StateConfig{Backend: BackendFile, Path: "last_hash.json"},
		Artifact: ArtifactConfig{Dir: ".", Name: "screenshot.png"},
		Logging:  LoggingConfig{Timezone: "Europe/Kyiv"},
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
target:
  url: https://example.com/page
  subscribe_url: https://t.me/sub
telegram:
  bot_token: token
  channel_id: "@news"
  log_channel_id: "-100"
  photo_timeout: 45s
render:
  viewport_width: 1280
  settle_delay: 2s
  no_sandbox: true
region:
  end_anchor: "кінець"
  end_margin: 8
state:
  backend: postgres
  postgres:
    dsn: postgres://localhost/db
logging:
  development: false
  level: debug
  timezone: UTC
pubsub:
  project_id: proj
  topic_name: changes
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/page", cfg.Target.URL)
	assert.Equal(t, "https://t.me/sub", cfg.Target.SubscribeURL)
	assert.Equal(t, "-100", cfg.Telegram.LogChannelID)
	assert.Equal(t, 45*time.Second, cfg.Telegram.PhotoTimeout)
	assert.Equal(t, 10*time.Second, cfg.Telegram.MessageTimeout)
	assert.Equal(t, 1280, cfg.Render.ViewportWidth)
	assert.Equal(t, 3080, cfg.Render.ViewportHeight)
	assert.Equal(t, 2*time.Second, cfg.Render.SettleDelay)
	assert.True(t, cfg.Render.NoSandbox)
	assert.Equal(t, "Дата оновлення інформації", cfg.Region.StartAnchor)
	assert.Equal(t, "кінець", cfg.Region.EndAnchor)
	assert.Equal(t, 8.0, cfg.Region.EndMargin)
	assert.Equal(t, BackendPostgres, cfg.State.Backend)
	assert.Equal(t, "pagewatch_state", cfg.State.Postgres.Table)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.PubSub.Enabled())
}

func TestLoadDefaultsFromLegacyEnv(t *testing.T) {
	t.Setenv("URL", "https://example.com/legacy")
	t.Setenv("SUBSCRIBE", "https://t.me/legacy")
	t.Setenv("TELEGRAM_BOT_TOKEN", "legacy-token")
	t.Setenv("TELEGRAM_CHANNEL_ID", "@legacy")
	t.Setenv("TELEGRAM_LOG_CHANNEL_ID", "@legacy-log")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/legacy", cfg.Target.URL)
	assert.Equal(t, "https://t.me/legacy", cfg.Target.SubscribeURL)
	assert.Equal(t, "legacy-token", cfg.Telegram.BotToken)
	assert.Equal(t, "@legacy", cfg.Telegram.ChannelID)
	assert.Equal(t, "@legacy-log", cfg.Telegram.LogChannelID)

	assert.Equal(t, []string{"УВАГА", "ІНФОРМАЦІЯ"}, cfg.Extract.AlertMarkers)
	assert.Equal(t, "Дата", cfg.Extract.DateMarker)
	assert.Equal(t, []string{"div", "span", "p", "h2", "h3", "h4", "h5"}, cfg.Extract.Tags)
	assert.Equal(t, "робіт", cfg.Region.EndAnchor)
	assert.Equal(t, 5.0, cfg.Region.EndMargin)
	assert.Equal(t, BackendFile, cfg.State.Backend)
	assert.Equal(t, "last_hash.json", cfg.State.Path)
	assert.Equal(t, "screenshot.png", cfg.Artifact.Name)
	assert.Equal(t, "Europe/Kyiv", cfg.Logging.Timezone)
	assert.Equal(t, 30*time.Second, cfg.Render.NavigationTimeout)
	assert.False(t, cfg.PubSub.Enabled())
}

func TestLoadPrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("URL", "https://example.com/legacy")
	t.Setenv("PAGEWATCH_TARGET_URL", "https://example.com/prefixed")
	t.Setenv("PAGEWATCH_TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("PAGEWATCH_TELEGRAM_CHANNEL_ID", "@c")
	t.Setenv("PAGEWATCH_STATE_PATH", "/tmp/state.json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/prefixed", cfg.Target.URL)
	assert.Equal(t, "/tmp/state.json", cfg.State.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing url", func(c *Config) { c.Target.URL = "" }, "target.url is required"},
		{"relative url", func(c *Config) { c.Target.URL = "/page" }, "absolute http(s)"},
		{"missing token", func(c *Config) { c.Telegram.BotToken = "" }, "bot_token"},
		{"missing channel", func(c *Config) { c.Telegram.ChannelID = "" }, "channel_id"},
		{"zero viewport", func(c *Config) { c.Render.ViewportWidth = 0 }, "viewport"},
		{"no markers", func(c *Config) { c.Extract.AlertMarkers = nil }, "alert_markers"},
		{"no anchor", func(c *Config) { c.Region.EndAnchor = "" }, "end_anchor"},
		{"negative margin", func(c *Config) { c.Region.EndMargin = -1 }, "end_margin"},
		{"unknown backend", func(c *Config) { c.State.Backend = "redis" }, "state.backend"},
		{"gcs without bucket", func(c *Config) { c.State.Backend = BackendGCS }, "state.gcs.bucket"},
		{"postgres without dsn", func(c *Config) { c.State.Backend = BackendPostgres }, "state.postgres.dsn"},
		{"bad timezone", func(c *Config) { c.Logging.Timezone = "Mars/Olympus" }, "logging.timezone"},
		{"half pubsub", func(c *Config) { c.PubSub.ProjectID = "p" }, "pubsub"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}

func TestLoadDotenv(t *testing.T) {
	require.NoError(t, LoadDotenv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PAGEWATCH_DOTENV_PROBE=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("PAGEWATCH_DOTENV_PROBE") })

	require.NoError(t, LoadDotenv(path))
	assert.Equal(t, "from-file", os.Getenv("PAGEWATCH_DOTENV_PROBE"))
}
