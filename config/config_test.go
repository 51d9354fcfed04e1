package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Addr())
	assert.Equal(t, "./videos", cfg.Media.Root)
	assert.EqualValues(t, 1<<20, cfg.Stream.OpenRangeWindow)
	assert.Equal(t, 32, cfg.WebSocket.SendBuffer)
	assert.Equal(t, 10*time.Second, cfg.WebSocket.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 2*time.Minute, cfg.Pairing.CodeTTL)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("MEDIA_ROOT", "/srv/media")
	t.Setenv("STREAM_OPEN_RANGE_WINDOW", "0")
	t.Setenv("WEBSOCKET_PING_INTERVAL", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "/srv/media", cfg.Media.Root)
	assert.EqualValues(t, 0, cfg.Stream.OpenRangeWindow)
	assert.Equal(t, 5*time.Second, cfg.WebSocket.PingInterval)
}

func TestInvalidPort(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("server.port", 70000)

	_, err := fromViper(v)
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitList(" http://a, ,http://b "))
}

func TestInvalidDurationIsAnError(t *testing.T) {
	for key, val := range map[string]string{
		"websocket.write_timeout": "soon",
		"websocket.ping_interval": "-5s",
		"pairing.code_ttl":        "2 minutes",
	} {
		v := viper.New()
		setDefaults(v)
		v.Set(key, val)

		_, err := fromViper(v)
		assert.Error(t, err, key)
	}
}

func TestLoadRejectsInvalidDurationFromEnv(t *testing.T) {
	t.Setenv("PAIRING_CODE_TTL", "forever")

	_, err := Load()
	assert.Error(t, err)
}

func TestVideosDirAlias(t *testing.T) {
	t.Setenv("VIDEOS_DIR", "/srv/legacy")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/legacy", cfg.Media.Root)
}
