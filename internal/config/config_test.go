package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Mode:            ModeDev,
		ListenAddr:      DefaultListenAddr,
		ShutdownTimeout: DefaultShutdownTimeout,
		JWTSecret:       "secret",
		WS: WebSocketConfig{
			IdleTimeout:          DefaultWSIdleTimeout,
			PingInterval:         DefaultWSPingInterval,
			MaxMessageBytes:      DefaultMaxMessageBytes,
			MaxMessagesPerSecond: DefaultMaxMessagesPerSecond,
		},
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("dev log level = %q, want debug", cfg.LogLevel)
	}
	if got := cfg.ICEServers(); len(got) != 0 {
		t.Fatalf("iceServers = %+v, want empty", got)
	}
}

func TestValidate_ProdDefaultsLogLevelInfo(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = ModeProd
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("prod log level = %q, want info", cfg.LogLevel)
	}
}

func TestValidate_Rejections(t *testing.T) {
	for _, tc := range []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"bad mode", func(c *Config) { c.Mode = "staging" }, "mode"},
		{"empty listen addr", func(c *Config) { c.ListenAddr = " " }, "listen_addr"},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }, "shutdown_timeout"},
		{"missing jwt secret", func(c *Config) { c.JWTSecret = "" }, "jwt_secret"},
		{"zero idle timeout", func(c *Config) { c.WS.IdleTimeout = 0 }, "ws.idle_timeout"},
		{"ping >= idle", func(c *Config) { c.WS.PingInterval = c.WS.IdleTimeout }, "ws.ping_interval"},
		{"zero message cap", func(c *Config) { c.WS.MaxMessageBytes = 0 }, "ws.max_message_bytes"},
		{"zero rate limit", func(c *Config) { c.WS.MaxMessagesPerSecond = 0 }, "ws.max_messages_per_second"},
		{"turn rest bad ttl", func(c *Config) {
			c.TURNREST = TURNRESTConfig{SharedSecret: "s", TTLSeconds: 0, UsernamePrefix: "p"}
		}, "turn_rest.ttl_seconds"},
		{"turn rest colon prefix", func(c *Config) {
			c.TURNREST = TURNRESTConfig{SharedSecret: "s", TTLSeconds: 60, UsernamePrefix: "a:b"}
		}, "turn_rest.username_prefix"},
		{"turn urls without creds", func(c *Config) {
			c.ICE.TurnURLs = "turn:turn.example.org:3478"
		}, "ice.turn"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted invalid config")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("err = %v, want mention of %q", err, tc.wantSub)
			}
		})
	}
}

func TestValidate_ParsesConvenienceICEFields(t *testing.T) {
	cfg := validConfig()
	cfg.ICE.StunURLs = "stun:a.example.org:3478, stun:b.example.org:3478"
	cfg.ICE.TurnURLs = "turn:turn.example.org:3478"
	cfg.ICE.TurnUsername = "user"
	cfg.ICE.TurnCredential = "pass"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	servers := cfg.ICEServers()
	if len(servers) != 2 {
		t.Fatalf("servers = %+v, want stun entry + turn entry", servers)
	}
	if len(servers[0].URLs) != 2 {
		t.Fatalf("stun urls = %+v", servers[0].URLs)
	}
	if servers[1].Username != "user" {
		t.Fatalf("turn username = %q", servers[1].Username)
	}
}

func TestValidate_TURNWithoutCredsAllowedUnderTURNREST(t *testing.T) {
	cfg := validConfig()
	cfg.ICE.TurnURLs = "turn:turn.example.org:3478"
	cfg.TURNREST = TURNRESTConfig{
		SharedSecret:   "secret",
		TTLSeconds:     DefaultTURNRESTTTLSeconds,
		UsernamePrefix: DefaultTURNRESTUsernamePrefix,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_ServersJSONWinsOverConvenienceFields(t *testing.T) {
	cfg := validConfig()
	cfg.ICE.ServersJSON = `[{"urls":"stun:json.example.org:3478"}]`
	cfg.ICE.StunURLs = "stun:ignored.example.org:3478"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	servers := cfg.ICEServers()
	if len(servers) != 1 || servers[0].URLs[0] != "stun:json.example.org:3478" {
		t.Fatalf("servers = %+v, want the servers_json entry only", servers)
	}
}

func TestParseICEServersJSON(t *testing.T) {
	t.Run("urls as string or array", func(t *testing.T) {
		servers, err := ParseICEServersJSON(
			`[{"urls":"stun:a.example.org"},{"urls":["stun:b.example.org","stuns:c.example.org"]}]`, false)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if len(servers) != 2 || len(servers[1].URLs) != 2 {
			t.Fatalf("servers = %+v", servers)
		}
	})

	t.Run("rejects unknown scheme", func(t *testing.T) {
		if _, err := ParseICEServersJSON(`[{"urls":"http://a.example.org"}]`, false); err == nil {
			t.Fatal("accepted non-ICE url scheme")
		}
	})

	t.Run("turn requires credentials unless waived", func(t *testing.T) {
		raw := `[{"urls":"turn:t.example.org"}]`
		if _, err := ParseICEServersJSON(raw, false); err == nil {
			t.Fatal("accepted turn url without credentials")
		}
		if _, err := ParseICEServersJSON(raw, true); err != nil {
			t.Fatalf("waived parse: %v", err)
		}
	})
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_ENV", "nonexistent")
	t.Setenv("CALL_RELAY_JWT_SECRET", "env-secret")
	t.Setenv("CALL_RELAY_LISTEN_ADDR", "127.0.0.1:9999")
	t.Setenv("CALL_RELAY_WS_IDLE_TIMEOUT", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Fatalf("jwt secret = %q", cfg.JWTSecret)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.WS.IdleTimeout != 90*time.Second {
		t.Fatalf("idle timeout = %v", cfg.WS.IdleTimeout)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("mode = %q, want default dev", cfg.Mode)
	}
}

func TestLoad_MissingSecretFails(t *testing.T) {
	t.Setenv("CONFIG_ENV", "nonexistent")
	t.Setenv("CALL_RELAY_JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted config without jwt secret")
	}
}
