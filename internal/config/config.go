// Package config loads the relayer's YAML configuration, expanding
// ${VAR:default} references against the process environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the relayer's full configuration surface.
type Config struct {
	Service    ServiceConfig    `yaml:"service" json:"service"`
	Postgres   PostgresConfig   `yaml:"postgres" json:"postgres"`
	Blockchain BlockchainConfig `yaml:"blockchain" json:"blockchain"`
	Relayer    RelayerConfig    `yaml:"relayer" json:"relayer"`
	WebSocket  WebSocketConfig  `yaml:"websocket" json:"websocket"`
	Log        LogConfig        `yaml:"log" json:"log"`
}

// ServiceConfig configures the HTTP ingress and admin credentials for
// the concurrency-tuning endpoint.
type ServiceConfig struct {
	Name          string `yaml:"name" json:"name"`
	HTTPPort      int    `yaml:"http_port" json:"http_port"`
	Env           string `yaml:"env" json:"env"`
	AdminUser     string `yaml:"admin_user" json:"admin_user"`
	AdminPassword string `yaml:"admin_password" json:"admin_password"`
}

// PostgresConfig configures the transfer store's database connection.
type PostgresConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	Database        string `yaml:"database" json:"database"`
	User            string `yaml:"user" json:"user"`
	Password        string `yaml:"password" json:"password"`
	MaxConnections  int    `yaml:"max_connections" json:"max_connections"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// BlockchainConfig configures the Chain Gateway.
type BlockchainConfig struct {
	RPCURL          string `yaml:"rpc_url" json:"rpc_url"`
	BackupRPCURLs   []string `yaml:"backup_rpc_urls" json:"backup_rpc_urls"`
	ChainID         int64  `yaml:"chain_id" json:"chain_id"`
	ContractAddress string `yaml:"contract_address" json:"contract_address"`
	PrivateKey      string `yaml:"private_key" json:"private_key"`
	MaxRetries      int    `yaml:"max_retries" json:"max_retries"`
	RetryBackoff    int    `yaml:"retry_backoff" json:"retry_backoff"`
	HealthCheckFreq int    `yaml:"health_check_freq" json:"health_check_freq"`
}

// RelayerConfig configures the executor's concurrency, its retry and
// scheduling cadence, the validator's lockout windows, and the ingress
// rate limit.
type RelayerConfig struct {
	DefaultConcurrency int `yaml:"default_concurrency" json:"default_concurrency"`
	MaxConcurrency     int `yaml:"max_concurrency" json:"max_concurrency"`

	MaxRetries                   int `yaml:"max_retries" json:"max_retries"`
	SchedulerTickIntervalSeconds int `yaml:"scheduler_tick_interval_seconds" json:"scheduler_tick_interval_seconds"`

	LockoutGracePeriodSeconds int `yaml:"lockout_grace_period_seconds" json:"lockout_grace_period_seconds"`
	LockoutDelaySeconds       int `yaml:"lockout_delay_seconds" json:"lockout_delay_seconds"`

	RateLimitWindow int `yaml:"rate_limit_window_seconds" json:"rate_limit_window_seconds"`
	RateLimitMax    int `yaml:"rate_limit_max_requests" json:"rate_limit_max_requests"`
}

// SchedulerTickInterval returns the executor's poll cadence.
func (c RelayerConfig) SchedulerTickInterval() time.Duration {
	return time.Duration(c.SchedulerTickIntervalSeconds) * time.Second
}

// LockoutGracePeriod returns the window after a withdrawal is initiated
// during which transfers still execute.
func (c RelayerConfig) LockoutGracePeriod() time.Duration {
	return time.Duration(c.LockoutGracePeriodSeconds) * time.Second
}

// LockoutDelay returns the on-chain withdrawal delay after which a
// pending withdrawal completes or can be cancelled.
func (c RelayerConfig) LockoutDelay() time.Duration {
	return time.Duration(c.LockoutDelaySeconds) * time.Second
}

// WebSocketConfig configures the subscription endpoint's transport-level
// keepalive.
type WebSocketConfig struct {
	PingIntervalSeconds int `yaml:"ping_interval_seconds" json:"ping_interval_seconds"`
	PongWaitSeconds     int `yaml:"pong_wait_seconds" json:"pong_wait_seconds"`
	WriteWaitSeconds    int `yaml:"write_wait_seconds" json:"write_wait_seconds"`
	MaxMessageSize      int64 `yaml:"max_message_size" json:"max_message_size"`
	ReadBufferSize      int `yaml:"read_buffer_size" json:"read_buffer_size"`
	WriteBufferSize     int `yaml:"write_buffer_size" json:"write_buffer_size"`
	MaxConnections      int `yaml:"max_connections" json:"max_connections"`
}

// PingInterval returns the transport-level ping cadence.
func (c WebSocketConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

// PongWait returns how long the server waits for a pong before it
// considers the connection dead.
func (c WebSocketConfig) PongWait() time.Duration {
	return time.Duration(c.PongWaitSeconds) * time.Second
}

// WriteWait returns the deadline applied to each outbound write.
func (c WebSocketConfig) WriteWait() time.Duration {
	return time.Duration(c.WriteWaitSeconds) * time.Second
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Load reads configPath, expands environment references, and applies
// defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	content := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)

	return &cfg, nil
}

// expandEnvVars replaces ${VAR:default} references with the named
// environment variable, or default if unset.
func expandEnvVars(s string) string {
	result := s
	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := result[start+2 : end]
		parts := strings.SplitN(expr, ":", 2)
		varName := parts[0]
		defaultVal := ""
		if len(parts) > 1 {
			defaultVal = parts[1]
		}

		value := os.Getenv(varName)
		if value == "" {
			value = defaultVal
		}

		result = result[:start] + value + result[end+1:]
	}
	return result
}

func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "aion-relayer"
	}
	if cfg.Service.HTTPPort == 0 {
		cfg.Service.HTTPPort = 8080
	}
	if cfg.Service.Env == "" {
		cfg.Service.Env = "dev"
	}

	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.MaxConnections == 0 {
		cfg.Postgres.MaxConnections = 50
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 10
	}
	if cfg.Postgres.ConnMaxLifetime == 0 {
		cfg.Postgres.ConnMaxLifetime = 3600
	}

	if cfg.Blockchain.ChainID == 0 {
		cfg.Blockchain.ChainID = 31337
	}
	if cfg.Blockchain.MaxRetries == 0 {
		cfg.Blockchain.MaxRetries = 3
	}
	if cfg.Blockchain.RetryBackoff == 0 {
		cfg.Blockchain.RetryBackoff = 5
	}
	if cfg.Blockchain.HealthCheckFreq == 0 {
		cfg.Blockchain.HealthCheckFreq = 30
	}

	if cfg.Relayer.DefaultConcurrency == 0 {
		cfg.Relayer.DefaultConcurrency = 3
	}
	if cfg.Relayer.MaxConcurrency == 0 {
		cfg.Relayer.MaxConcurrency = 10
	}
	if cfg.Relayer.MaxRetries == 0 {
		cfg.Relayer.MaxRetries = 3
	}
	if cfg.Relayer.SchedulerTickIntervalSeconds == 0 {
		cfg.Relayer.SchedulerTickIntervalSeconds = 5
	}
	if cfg.Relayer.LockoutGracePeriodSeconds == 0 {
		cfg.Relayer.LockoutGracePeriodSeconds = 300
	}
	if cfg.Relayer.LockoutDelaySeconds == 0 {
		cfg.Relayer.LockoutDelaySeconds = 600
	}
	if cfg.Relayer.RateLimitWindow == 0 {
		cfg.Relayer.RateLimitWindow = 60
	}
	if cfg.Relayer.RateLimitMax == 0 {
		cfg.Relayer.RateLimitMax = 10
	}

	if cfg.WebSocket.PingIntervalSeconds == 0 {
		cfg.WebSocket.PingIntervalSeconds = 30
	}
	if cfg.WebSocket.PongWaitSeconds == 0 {
		cfg.WebSocket.PongWaitSeconds = 60
	}
	if cfg.WebSocket.WriteWaitSeconds == 0 {
		cfg.WebSocket.WriteWaitSeconds = 10
	}
	if cfg.WebSocket.MaxMessageSize == 0 {
		cfg.WebSocket.MaxMessageSize = 4096
	}
	if cfg.WebSocket.ReadBufferSize == 0 {
		cfg.WebSocket.ReadBufferSize = 4096
	}
	if cfg.WebSocket.WriteBufferSize == 0 {
		cfg.WebSocket.WriteBufferSize = 4096
	}
	if cfg.WebSocket.MaxConnections == 0 {
		cfg.WebSocket.MaxConnections = 1000
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// GetEnvInt reads key as an int, falling back to defaultVal.
func GetEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetEnvString reads key as a string, falling back to defaultVal.
func GetEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
