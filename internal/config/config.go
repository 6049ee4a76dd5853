package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

const (
	DefaultListenAddr = "127.0.0.1:8080"

	DefaultShutdownTimeout = 15 * time.Second

	DefaultWSIdleTimeout        = 60 * time.Second
	DefaultWSPingInterval       = 20 * time.Second
	DefaultMaxMessageBytes      = int64(64 * 1024)
	DefaultMaxMessagesPerSecond = 50

	DefaultTURNRESTTTLSeconds     int64 = 3600
	DefaultTURNRESTUsernamePrefix       = "callrelay"
)

// WebSocketConfig carries the signaling transport knobs. Read limits and the
// per-connection message rate limit are hard caps; violating either closes
// the connection.
type WebSocketConfig struct {
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	MaxMessageBytes      int64         `mapstructure:"max_message_bytes"`
	MaxMessagesPerSecond int           `mapstructure:"max_messages_per_second"`
}

// ICEConfig is the raw (pre-parse) ICE server configuration. ServersJSON wins
// over the convenience STUN/TURN fields when both are set.
type ICEConfig struct {
	ServersJSON    string `mapstructure:"servers_json"`
	StunURLs       string `mapstructure:"stun_urls"`
	TurnURLs       string `mapstructure:"turn_urls"`
	TurnUsername   string `mapstructure:"turn_username"`
	TurnCredential string `mapstructure:"turn_credential"`
}

// TURNRESTConfig configures coturn-compatible ephemeral TURN credentials,
// injected into the /webrtc/ice response when a shared secret is set.
type TURNRESTConfig struct {
	SharedSecret   string `mapstructure:"shared_secret"`
	TTLSeconds     int64  `mapstructure:"ttl_seconds"`
	UsernamePrefix string `mapstructure:"username_prefix"`
}

func (c TURNRESTConfig) Enabled() bool {
	return strings.TrimSpace(c.SharedSecret) != ""
}

type Config struct {
	Mode            Mode          `mapstructure:"mode"`
	ListenAddr      string        `mapstructure:"listen_addr"`
	LogLevel        string        `mapstructure:"log_level"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// JWTSecret is the HS256 secret shared with the credential-issuing
	// service. Connections presenting tokens not signed with it are rejected
	// at handshake.
	JWTSecret string `mapstructure:"jwt_secret"`

	WS       WebSocketConfig `mapstructure:"ws"`
	ICE      ICEConfig       `mapstructure:"ice"`
	TURNREST TURNRESTConfig  `mapstructure:"turn_rest"`

	// iceServers is the parsed form of ICE, resolved during Load.
	iceServers []webrtc.ICEServer
}

// ICEServers returns the parsed ICE server list handed to clients via
// GET /webrtc/ice.
func (c Config) ICEServers() []webrtc.ICEServer {
	return c.iceServers
}

// Load reads configuration from config/config.<CONFIG_ENV>.yaml (when
// present), environment variables prefixed CALL_RELAY_, and baked-in
// defaults, then validates the result. A missing config file is not an
// error; an invalid value always is.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	v.SetConfigFile(fmt.Sprintf("config/config.%s.yaml", env))
	v.AddConfigPath(".")

	v.SetEnvPrefix("CALL_RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeDev))
	v.SetDefault("listen_addr", DefaultListenAddr)
	v.SetDefault("log_level", "")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("jwt_secret", "")

	v.SetDefault("ws.idle_timeout", DefaultWSIdleTimeout)
	v.SetDefault("ws.ping_interval", DefaultWSPingInterval)
	v.SetDefault("ws.max_message_bytes", DefaultMaxMessageBytes)
	v.SetDefault("ws.max_messages_per_second", DefaultMaxMessagesPerSecond)

	v.SetDefault("ice.servers_json", "")
	v.SetDefault("ice.stun_urls", "")
	v.SetDefault("ice.turn_urls", "")
	v.SetDefault("ice.turn_username", "")
	v.SetDefault("ice.turn_credential", "")

	v.SetDefault("turn_rest.shared_secret", "")
	v.SetDefault("turn_rest.ttl_seconds", DefaultTURNRESTTTLSeconds)
	v.SetDefault("turn_rest.username_prefix", DefaultTURNRESTUsernamePrefix)
}

// Validate checks the config and resolves derived fields, including the
// parsed ICE server list. Load calls it; manually assembled configs must
// call it before use.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeDev, ModeProd:
	default:
		return fmt.Errorf("mode must be dev or prod, got %q", c.Mode)
	}

	if c.LogLevel == "" {
		if c.Mode == ModeProd {
			c.LogLevel = "info"
		} else {
			c.LogLevel = "debug"
		}
	}

	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("listen_addr must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be > 0")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("jwt_secret must be set")
	}

	if c.WS.IdleTimeout <= 0 {
		return errors.New("ws.idle_timeout must be > 0")
	}
	if c.WS.PingInterval <= 0 {
		return errors.New("ws.ping_interval must be > 0")
	}
	if c.WS.PingInterval >= c.WS.IdleTimeout {
		return errors.New("ws.ping_interval must be < ws.idle_timeout")
	}
	if c.WS.MaxMessageBytes <= 0 {
		return errors.New("ws.max_message_bytes must be > 0")
	}
	if c.WS.MaxMessagesPerSecond <= 0 {
		return errors.New("ws.max_messages_per_second must be > 0")
	}

	if c.TURNREST.Enabled() {
		if c.TURNREST.TTLSeconds <= 0 {
			return errors.New("turn_rest.ttl_seconds must be > 0")
		}
		if strings.TrimSpace(c.TURNREST.UsernamePrefix) == "" {
			return errors.New("turn_rest.username_prefix must not be empty")
		}
		if strings.Contains(c.TURNREST.UsernamePrefix, ":") {
			return errors.New("turn_rest.username_prefix must not contain ':'")
		}
	}

	// With TURN REST enabled, TURN URLs may legitimately lack static
	// credentials: the /webrtc/ice handler injects ephemeral ones.
	servers, err := parseICEServers(c.ICE, c.TURNREST.Enabled())
	if err != nil {
		return err
	}
	c.iceServers = servers

	return nil
}
