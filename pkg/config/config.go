// Package config defines the proxy's TOML-backed configuration tree
// and its viper wiring, generalized from the teacher's
// `viper.Unmarshal(&cfg)` + `config.Validate(&cfg)` pattern in
// cmd/gate/gate.go.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root of velocity.toml (spec §6 "Configuration").
type Config struct {
	Bind  string `mapstructure:"bind"`
	Debug bool   `mapstructure:"debug"`

	OnlineMode                       bool   `mapstructure:"online-mode"`
	KickExistingPlayers              bool   `mapstructure:"kick-existing-players"`
	PreventClientProxyConnections    bool   `mapstructure:"prevent-client-proxy-connections"`
	PlayerInfoForwardingMode         string `mapstructure:"player-info-forwarding-mode"`
	ForwardingSecret                 string `mapstructure:"forwarding-secret"`
	ForwardingSecretFile             string `mapstructure:"forwarding-secret-file"`

	CompressionThreshold int `mapstructure:"compression-threshold"`
	CompressionLevel     int `mapstructure:"compression-level"`

	LoginRatelimitMs   int `mapstructure:"login-ratelimit"`
	ConnectionTimeoutMs int `mapstructure:"connection-timeout"`
	ReadTimeoutMs      int `mapstructure:"read-timeout"`

	AnnounceForge bool `mapstructure:"announce-forge"`
	DisableForge  bool `mapstructure:"disable-forge"`

	ProxyProtocol  bool `mapstructure:"proxy-protocol"`
	TCPFastOpen    bool `mapstructure:"tcp-fast-open"`
	EnableReusePort bool `mapstructure:"enable-reuse-port"`

	BungeePluginMessageChannel         bool `mapstructure:"bungee-plugin-message-channel"`
	FailoverOnUnexpectedServerDisconnect bool `mapstructure:"failover-on-unexpected-server-disconnect"`

	AnnounceProxyCommands bool `mapstructure:"announce-proxy-commands"`
	LogCommandExecutions  bool `mapstructure:"log-command-executions"`

	AcceptsTransfers bool           `mapstructure:"accepts-transfers"`
	ProxyAddresses   []ProxyAddress `mapstructure:"proxy-addresses"`

	Servers ServersConfig  `mapstructure:"servers"`
	ForcedHosts map[string][]string `mapstructure:"forced-hosts"`

	Motd            string `mapstructure:"motd"`
	FaviconPath     string `mapstructure:"favicon-path"`
	ShowMaxPlayers  int    `mapstructure:"show-max-players"`
	PingPassthrough string `mapstructure:"ping-passthrough"`

	Redis RedisConfig `mapstructure:"redis"`
	Queue QueueConfig `mapstructure:"queue"`
}

// ProxyAddress is one entry of `proxy-addresses[]` (spec §4.7 "Shutdown semantics").
type ProxyAddress struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	ProxyID            string `mapstructure:"proxy-id"`
	DynamicProxyFilter string `mapstructure:"dynamic-proxy-filter"`
}

type ServersConfig struct {
	Entries                  map[string]string `mapstructure:"-"`
	Try                      []string           `mapstructure:"try"`
	DynamicFallbacksFilter   string             `mapstructure:"dynamic-fallbacks-filter"`
	ForwardingModeOverrides  map[string]string  `mapstructure:"forwarding-mode"`
}

type RedisConfig struct {
	Enabled                   bool   `mapstructure:"enabled"`
	Host                      string `mapstructure:"host"`
	Port                      int    `mapstructure:"port"`
	Username                  string `mapstructure:"username"`
	Password                  string `mapstructure:"password"`
	UseSSL                    bool   `mapstructure:"use-ssl"`
	MaxConcurrentConnections  int    `mapstructure:"max-concurrent-connections"`
	ProxyID                   string `mapstructure:"proxy-id"`
	PingIntervalMs            int    `mapstructure:"ping-interval-ms"`
	OtherProxyTimeoutMs       int    `mapstructure:"other-proxy-timeout-ms"`
}

type QueueConfig struct {
	Enabled                  bool     `mapstructure:"enabled"`
	MasterProxyIDs            []string `mapstructure:"master-proxy-ids"`
	NoQueueServers            []string `mapstructure:"no-queue-servers"`
	AllowMultiQueue           bool     `mapstructure:"allow-multi-queue"`
	SendDelayMs               int      `mapstructure:"send-delay"`
	QueueDelayMs              int      `mapstructure:"queue-delay"`
	MessageDelayMs            int      `mapstructure:"message-delay"`
	BackendPingIntervalMs     int      `mapstructure:"backend-ping-interval"`
	MaxSendRetries            int      `mapstructure:"max-send-retries"`
	RemovePlayerOnServerSwitch bool    `mapstructure:"remove-player-on-server-switch"`
	ForwardKickReason         bool     `mapstructure:"forward-kick-reason"`
	AllowPausedQueueJoining   bool     `mapstructure:"allow-paused-queue-joining"`
	QueueOnShutdown           bool     `mapstructure:"queue-on-shutdown"`
	OverrideBungeeMessaging   bool     `mapstructure:"override-bungee-messaging"`
	BannedReasons             []string `mapstructure:"banned-reason"`
}

// SetDefaults registers defaults on v before Unmarshal, matching the
// values vanilla Velocity/Gate ship in their example velocity.toml.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("bind", "0.0.0.0:25577")
	v.SetDefault("online-mode", true)
	v.SetDefault("player-info-forwarding-mode", "none")
	v.SetDefault("compression-threshold", 256)
	v.SetDefault("compression-level", -1)
	v.SetDefault("login-ratelimit", 3000)
	v.SetDefault("connection-timeout", 5000)
	v.SetDefault("read-timeout", 30000)
	v.SetDefault("servers.dynamic-fallbacks-filter", "FIRST_AVAILABLE")
	v.SetDefault("motd", "A Fleetgate Server")
	v.SetDefault("show-max-players", 1000)
	v.SetDefault("ping-passthrough", "DISABLED")
	v.SetDefault("queue.send-delay", 500)
	v.SetDefault("queue.message-delay", 1000)
	v.SetDefault("queue.max-send-retries", 3)
	v.SetDefault("redis.ping-interval-ms", 30000)
	v.SetDefault("redis.other-proxy-timeout-ms", 65000)
}

// LoadServerAddresses reads the dynamic `servers.<name> = "host:port"`
// entries, skipping the fixed sub-keys (try, dynamic-fallbacks-filter,
// forwarding-mode) that mapstructure already bound onto ServersConfig.
func LoadServerAddresses(v *viper.Viper) map[string]string {
	out := make(map[string]string)
	fixed := map[string]bool{"try": true, "dynamic-fallbacks-filter": true, "forwarding-mode": true}
	for key, val := range v.GetStringMapString("servers") {
		if fixed[strings.ToLower(key)] {
			continue
		}
		out[key] = val
	}
	return out
}

// Validate checks numeric ranges and mode combinations per spec §6's
// "numeric ranges are validated at parse time".
func Validate(c *Config) error {
	if c.Bind == "" {
		return fmt.Errorf("config: bind address must not be empty")
	}
	if c.CompressionThreshold < -1 {
		return fmt.Errorf("config: compression-threshold must be >= -1")
	}
	if c.CompressionLevel < -1 || c.CompressionLevel > 9 {
		return fmt.Errorf("config: compression-level must be in [-1,9]")
	}
	mode := strings.ToLower(c.PlayerInfoForwardingMode)
	switch mode {
	case "none", "legacy", "bungeeguard", "modern":
	default:
		return fmt.Errorf("config: unknown player-info-forwarding-mode %q", c.PlayerInfoForwardingMode)
	}
	if (mode == "modern" || mode == "bungeeguard") && c.ForwardingSecret == "" && c.ForwardingSecretFile == "" {
		return fmt.Errorf("config: forwarding-secret(-file) is required for %s forwarding", mode)
	}
	switch strings.ToUpper(c.Servers.DynamicFallbacksFilter) {
	case "FIRST_AVAILABLE", "MOST_POPULATED", "LEAST_POPULATED":
	default:
		return fmt.Errorf("config: unknown servers.dynamic-fallbacks-filter %q", c.Servers.DynamicFallbacksFilter)
	}
	switch strings.ToUpper(c.PingPassthrough) {
	case "DISABLED", "MODS", "DESCRIPTION", "ALL":
	default:
		return fmt.Errorf("config: unknown ping-passthrough %q", c.PingPassthrough)
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("config: redis.host is required when redis.enabled")
	}
	for _, pa := range c.ProxyAddresses {
		switch strings.ToUpper(pa.DynamicProxyFilter) {
		case "", "MOST_EMPTY", "LEAST_EMPTY", "NONE":
		default:
			return fmt.Errorf("config: unknown dynamic-proxy-filter %q", pa.DynamicProxyFilter)
		}
	}
	return nil
}

// AttemptConnectionOrder is the global try-list consulted when a
// player has no forced-host override (spec §4.5 "global try-list").
func (c *Config) AttemptConnectionOrder() []string { return c.Servers.Try }

func (c *Config) ConnectTimeout() time.Duration { return time.Duration(c.ConnectionTimeoutMs) * time.Millisecond }
func (c *Config) ReadTimeout() time.Duration    { return time.Duration(c.ReadTimeoutMs) * time.Millisecond }
func (c *Config) LoginRatelimit() time.Duration { return time.Duration(c.LoginRatelimitMs) * time.Millisecond }
