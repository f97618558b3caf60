// Package config loads the master and slave configuration trees via viper,
// with environment variable overrides and exhaustive defaults for every
// tunable named by the protocol.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// MasterConfig is the full configuration tree for the coordinator process.
type MasterConfig struct {
	Server     ServerConfig
	Connection ConnectionConfig
	Metrics    MetricsConfig
	Events     EventsConfig
	Admin      AdminConfig
	RateLimit  RateLimitConfig
	LogLevel   string
}

// SlaveConfig is the full configuration tree for the worker process.
type SlaveConfig struct {
	Discovery DiscoveryConfig
	Heartbeat HeartbeatConfig
	Task      TaskCycleConfig
	Metrics   MetricsConfig
	LogLevel  string
}

// ServerConfig controls the coordinator's HTTP bind address.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// ConnectionConfig controls per-connection liveness tracking.
type ConnectionConfig struct {
	// TimeoutSecs is how long a connection may go without a heartbeat
	// before it is considered dead.
	TimeoutSecs float64
	// CleanupIntervalSecs is how often the background sweep runs.
	CleanupIntervalSecs float64
}

// MetricsConfig controls the prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// EventsConfig controls the optional, non-authoritative event mirror.
type EventsConfig struct {
	// Backend is "memory" (default, in-process only) or "redis".
	Backend  string
	RedisURL string
}

// AdminConfig controls the optional operator dashboard/status surface.
type AdminConfig struct {
	Enabled         bool
	JWTSecret       string
	RateLimitRPS    int
	RateLimitBurst  int
}

// RateLimitConfig controls the optional per-client request-rate guard on
// the public /discovery and /get_tasks endpoints. Disabled by default.
type RateLimitConfig struct {
	Enabled bool
	RPS     int
}

// DiscoveryConfig controls LAN auto-discovery of the coordinator.
type DiscoveryConfig struct {
	MasterPort      int
	ProbeTimeout    time.Duration
	ScanBackoffMin  time.Duration
	ScanBackoffMax  time.Duration
}

// HeartbeatConfig controls the slave's heartbeat cadence.
type HeartbeatConfig struct {
	IntervalSecs  float64
	RequestTimeout time.Duration
	RetryAttempts int
}

// TaskCycleConfig controls the slave's task fetch/execute/report loop.
type TaskCycleConfig struct {
	// MaxConcurrentTasks is the batch size requested from /get_tasks and the
	// number of subprocess invocations run concurrently. Defaults to 1,
	// matching the reference single-task-at-a-time behavior; values above 1
	// are an optional extension.
	MaxConcurrentTasks int
	// FetchRetrySleep is how long the slave waits before retrying a
	// retriable task-fetch error.
	FetchRetrySleep time.Duration
	// MaxConsecutiveFetchFailures is how many consecutive fatal task-fetch
	// failures cause the slave to give up on the job.
	MaxConsecutiveFetchFailures int
	JobDir                      string
}

// LoadMaster reads the coordinator config tree from file/env, applying
// defaults for anything unset.
func LoadMaster(configPath string) (*MasterConfig, error) {
	v := newViper(configPath)
	setMasterDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg MasterConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadSlave reads the worker config tree from file/env, applying defaults
// for anything unset.
func LoadSlave(configPath string) (*SlaveConfig, error) {
	v := newViper(configPath)
	setSlaveDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg SlaveConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/hypercube")

	v.SetEnvPrefix("HYPERCUBE")
	v.AutomaticEnv()
	return v
}

func setMasterDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5678)
	v.SetDefault("server.readtimeout", 30*time.Second)
	v.SetDefault("server.writetimeout", 30*time.Second)
	v.SetDefault("server.idletimeout", 120*time.Second)

	v.SetDefault("connection.timeoutsecs", 10.0)
	v.SetDefault("connection.cleanupintervalsecs", 3.0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("events.backend", "memory")
	v.SetDefault("events.redisurl", "")

	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.jwtsecret", "")
	v.SetDefault("admin.ratelimitrps", 5)
	v.SetDefault("admin.ratelimitburst", 10)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.rps", 50)

	v.SetDefault("loglevel", "info")
}

func setSlaveDefaults(v *viper.Viper) {
	v.SetDefault("discovery.masterport", 5678)
	v.SetDefault("discovery.probetimeout", 75*time.Millisecond)
	v.SetDefault("discovery.scanbackoffmin", 1*time.Second)
	v.SetDefault("discovery.scanbackoffmax", 30*time.Second)

	v.SetDefault("heartbeat.intervalsecs", 2.0)
	v.SetDefault("heartbeat.requesttimeout", 1*time.Second)
	v.SetDefault("heartbeat.retryattempts", 5)

	v.SetDefault("task.maxconcurrenttasks", 1)
	v.SetDefault("task.fetchretrysleep", 20*time.Second)
	v.SetDefault("task.maxconsecutivefetchfailures", 5)
	v.SetDefault("task.jobdir", "job")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("loglevel", "info")
}
