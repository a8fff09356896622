package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/clock/system"
	"github.com/JakeFAU/pagewatch/internal/config"
)

// With ZONEINFO pointing at an empty directory the lookup falls through to
// the zone data compiled into the binary.
func TestDefaultTimezoneResolvesWithoutHostZoneinfo(t *testing.T) {
	t.Setenv("ZONEINFO", t.TempDir())
	t.Setenv("URL", "https://example.com/outages")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHANNEL_ID", "@outages")

	loc, err := time.LoadLocation("Europe/Kyiv")
	require.NoError(t, err)
	require.Equal(t, "Europe/Kyiv", loc.String())

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "Europe/Kyiv", cfg.Logging.Timezone)
	_, err = system.NewInZone(cfg.Logging.Timezone)
	require.NoError(t, err)
}
