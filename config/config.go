package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tvremote/logger"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Media     MediaConfig     `mapstructure:"media"`
	Stream    StreamConfig    `mapstructure:"stream"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Pairing   PairingConfig   `mapstructure:"pairing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       logger.Config   `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type MediaConfig struct {
	// Root holds one directory per room plus the shared _default library.
	Root string `mapstructure:"root"`
}

type StreamConfig struct {
	// OpenRangeWindow caps "bytes=N-" requests. Zero serves to end of file.
	OpenRangeWindow int64 `mapstructure:"open_range_window"`
}

type WebSocketConfig struct {
	SendBuffer     int           `mapstructure:"send_buffer"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type PairingConfig struct {
	CodeTTL time.Duration `mapstructure:"code_ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads .env (if present), then config/config.yaml (if present), then
// environment variables, on top of built-in defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := bindEnvAliases(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return fromViper(v)
}

// envAliases maps config keys to the short variable names deployments
// already use, alongside the automatic SECTION_KEY form.
var envAliases = map[string][]string{
	"server.port": {"PORT"},
	"media.root":  {"MEDIA_ROOT", "VIDEOS_DIR"},
	"log.level":   {"LOG_LEVEL"},
}

func bindEnvAliases(v *viper.Viper) error {
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("media.root", "./videos")
	v.SetDefault("stream.open_range_window", 1<<20)
	v.SetDefault("websocket.send_buffer", 32)
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("pairing.code_ttl", "2m")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Comma-separated origins from the environment arrive as a single string.
	if len(cfg.CORS.AllowedOrigins) == 1 && strings.Contains(cfg.CORS.AllowedOrigins[0], ",") {
		cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins[0])
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	if cfg.Stream.OpenRangeWindow < 0 {
		return nil, fmt.Errorf("invalid stream.open_range_window %d", cfg.Stream.OpenRangeWindow)
	}
	for key, d := range map[string]time.Duration{
		"websocket.write_timeout": cfg.WebSocket.WriteTimeout,
		"websocket.ping_interval": cfg.WebSocket.PingInterval,
		"pairing.code_ttl":        cfg.Pairing.CodeTTL,
	} {
		if d < 0 {
			return nil, fmt.Errorf("invalid %s %s", key, d)
		}
	}
	if cfg.WebSocket.SendBuffer <= 0 {
		cfg.WebSocket.SendBuffer = 32
	}
	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
