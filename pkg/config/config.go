// Package config provides a reusable loader for replicon configuration
// files and environment variables, mirroring the teacher's pkg/config
// package: a single exported Config struct, viper-backed, with dual
// mapstructure/json tags so the same values can be dumped over the admin
// interface.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"replicon/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified runtime configuration for a replicon host or
// peer. Every field has a spec-mandated default, applied by Load before
// any file or environment override is merged in.
type Config struct {
	Transport struct {
		MTU                 int     `mapstructure:"mtu" json:"mtu"`
		FragmentThreshold   int     `mapstructure:"fragment_threshold" json:"fragment_threshold"`
		StreamThreshold     int     `mapstructure:"stream_threshold" json:"stream_threshold"`
		ResendFactor        float64 `mapstructure:"resend_factor" json:"resend_factor"`
		MaxInFlight         int     `mapstructure:"max_in_flight" json:"max_in_flight"`
		HeartbeatIntervalMS int     `mapstructure:"heartbeat_interval_ms" json:"heartbeat_interval_ms"`
	} `mapstructure:"transport" json:"transport"`

	Entities struct {
		ReservationTTLSeconds int `mapstructure:"reservation_ttl_seconds" json:"reservation_ttl_seconds"`
	} `mapstructure:"entities" json:"entities"`

	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`

	Admin struct {
		GRPCAddr    string `mapstructure:"grpc_addr" json:"grpc_addr"`
		MetricsAddr string `mapstructure:"metrics_addr" json:"metrics_addr"`
	} `mapstructure:"admin" json:"admin"`
}

// Defaults returns a Config populated with every spec-mandated default:
// 1200-byte post-header MTU, 400-byte unreliable fragmentation ceiling,
// 32KB stream threshold, resend factor 1.5, max-in-flight 32767, 60s
// reservation TTL.
func Defaults() Config {
	var c Config
	c.Transport.MTU = 1200
	c.Transport.FragmentThreshold = 400
	c.Transport.StreamThreshold = 32 * 1024
	c.Transport.ResendFactor = 1.5
	c.Transport.MaxInFlight = 32767
	c.Transport.HeartbeatIntervalMS = 1000
	c.Entities.ReservationTTLSeconds = 60
	c.Network.ListenAddr = "0.0.0.0:0"
	c.Network.DiscoveryTag = "replicon"
	c.Logging.Level = "info"
	c.Admin.GRPCAddr = "127.0.0.1:9090"
	c.Admin.MetricsAddr = "127.0.0.1:9091"
	return c
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig = Defaults()

// Load reads the default.yaml configuration file (searched in cmd/config,
// config and the working directory) and merges an optional environment-specific override
// file, then merges environment variables prefixed REPLICON_. The result is
// stored in AppConfig and returned.
func Load(env string) (*Config, error) {
	v := viper.New()
	def := Defaults()
	v.SetConfigName("default")
	v.SetConfigType("yaml")
	v.AddConfigPath("cmd/config")
	v.AddConfigPath("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("REPLICON")
	v.AutomaticEnv()
	bindDefaults(v, def)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		v.SetConfigName(env)
		if err := v.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	cfg := def
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	AppConfig = cfg
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the REPLICON_ENV environment
// variable to select an override file.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("REPLICON_ENV", ""))
}

// bindDefaults seeds viper's own default layer so Unmarshal still produces
// spec defaults for keys missing from every file and every env var.
func bindDefaults(v *viper.Viper, def Config) {
	v.SetDefault("transport.mtu", def.Transport.MTU)
	v.SetDefault("transport.fragment_threshold", def.Transport.FragmentThreshold)
	v.SetDefault("transport.stream_threshold", def.Transport.StreamThreshold)
	v.SetDefault("transport.resend_factor", def.Transport.ResendFactor)
	v.SetDefault("transport.max_in_flight", def.Transport.MaxInFlight)
	v.SetDefault("transport.heartbeat_interval_ms", def.Transport.HeartbeatIntervalMS)
	v.SetDefault("entities.reservation_ttl_seconds", def.Entities.ReservationTTLSeconds)
	v.SetDefault("network.listen_addr", def.Network.ListenAddr)
	v.SetDefault("network.discovery_tag", def.Network.DiscoveryTag)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("admin.grpc_addr", def.Admin.GRPCAddr)
	v.SetDefault("admin.metrics_addr", def.Admin.MetricsAddr)
}
