// Package config loads the gateway configuration from a YAML (or JSON) file,
// an optional .env file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Network   NetworkConfig   `yaml:"network"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Contracts ContractsConfig `yaml:"contracts"`
	Uniswap   UniswapConfig   `yaml:"uniswap"`
	Logging   LoggingConfig   `yaml:"logging"`
	Activity  ActivityConfig  `yaml:"activity"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type NetworkConfig struct {
	PolygonRPCURL string        `yaml:"polygon_rpc_url"`
	WSURL         string        `yaml:"ws_url"`
	ChainID       int64         `yaml:"chain_id"`
	RPCTimeout    time.Duration `yaml:"rpc_timeout"`
	RPCMaxRetries int           `yaml:"rpc_max_retries"`
	RPCRateLimit  float64       `yaml:"rpc_rate_limit"` // requests per second, 0 = unlimited
}

// WalletConfig holds the custodial wallet. PrivateKey must never be logged.
type WalletConfig struct {
	Address    string `yaml:"address"`
	PrivateKey string `yaml:"private_key"`
}

type ContractsConfig struct {
	POLAddress          string `yaml:"pol_address"`
	DAIAddress          string `yaml:"dai_address"`
	RouterAddress       string `yaml:"router_address"`
	PriceFeedAddress    string `yaml:"price_feed_address"`
	DAIPriceFeedAddress string `yaml:"dai_price_feed_address"`
}

type UniswapConfig struct {
	RouterABIPath    string `yaml:"router_abi_path"`
	PriceFeedABIPath string `yaml:"price_feed_abi_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"` // json | console
}

type ActivityConfig struct {
	File string `yaml:"file"`
}

type PipelineConfig struct {
	Deadline        time.Duration `yaml:"deadline"`
	ConfirmTimeout  time.Duration `yaml:"confirm_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollInterval time.Duration `yaml:"max_poll_interval"`
	SubmitRetries   int           `yaml:"submit_retries"`
	SlippageBps     int64         `yaml:"slippage_bps"`
	GasMultiplier   float64       `yaml:"gas_multiplier"`
}

type StorageConfig struct {
	Backend       string `yaml:"backend"` // memory | postgres | sqlite
	PostgresDSN   string `yaml:"postgres_dsn"`
	SQLitePath    string `yaml:"sqlite_path"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
}

type RedisConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	LockTTL        time.Duration `yaml:"lock_ttl"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type ScheduleConfig struct {
	PriceSnapshotCron string           `yaml:"price_snapshot_cron"`
	AutoRebalanceCron string           `yaml:"auto_rebalance_cron"`
	AutoRebalance     AutoRebalanceJob `yaml:"auto_rebalance"`
}

// AutoRebalanceJob is the fixed request the scheduler submits to AutoRebalance.
type AutoRebalanceJob struct {
	TokenA  string  `yaml:"token_a"`
	TokenB  string  `yaml:"token_b"`
	AmountA float64 `yaml:"amount_a"`
	AmountB float64 `yaml:"amount_b"`
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// LoadDotEnv loads KEY=VALUE pairs from path without overriding variables
// already set in the environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads config from a YAML or JSON file, then applies environment
// variable overrides and defaults. A missing file yields a config built
// from the environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		// JSON documents are valid YAML, so the original config.json loads as is.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("POLYGON_RPC_URL"); v != "" {
		cfg.Network.PolygonRPCURL = v
	}
	if v := os.Getenv("POLYGON_WS_URL"); v != "" {
		cfg.Network.WSURL = v
	}
	if v := os.Getenv("WALLET_PRIVATE_KEY"); v != "" {
		cfg.Wallet.PrivateKey = v
	}
	if v := os.Getenv("WALLET_ADDRESS"); v != "" {
		cfg.Wallet.Address = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("ACTIVITY_LOG_FILE"); v != "" {
		cfg.Activity.File = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Network.ChainID = id
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// must outlast confirm_timeout or confirmed responses are cut off
		cfg.Server.WriteTimeout = 3 * time.Minute
	}

	if cfg.Network.ChainID == 0 {
		cfg.Network.ChainID = 137 // Polygon PoS mainnet
	}
	if cfg.Network.RPCTimeout == 0 {
		cfg.Network.RPCTimeout = 30 * time.Second
	}
	if cfg.Network.RPCMaxRetries == 0 {
		cfg.Network.RPCMaxRetries = 3
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Activity.File == "" {
		cfg.Activity.File = "data/activity.log"
	}

	if cfg.Pipeline.Deadline == 0 {
		cfg.Pipeline.Deadline = 100 * time.Second
	}
	if cfg.Pipeline.ConfirmTimeout == 0 {
		cfg.Pipeline.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.Pipeline.PollInterval == 0 {
		cfg.Pipeline.PollInterval = time.Second
	}
	if cfg.Pipeline.MaxPollInterval == 0 {
		cfg.Pipeline.MaxPollInterval = 8 * time.Second
	}
	if cfg.Pipeline.SubmitRetries == 0 {
		cfg.Pipeline.SubmitRetries = 3
	}
	if cfg.Pipeline.GasMultiplier == 0 {
		cfg.Pipeline.GasMultiplier = 1.2
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/transactions.db"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = 5 * time.Minute
	}
	if cfg.Redis.IdempotencyTTL == 0 {
		cfg.Redis.IdempotencyTTL = 24 * time.Hour
	}

	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "pol-gateway.transactions"
	}

	if cfg.Contracts.DAIPriceFeedAddress == "" {
		cfg.Contracts.DAIPriceFeedAddress = cfg.Contracts.PriceFeedAddress
	}
}

// Validate checks that all required fields are set and well formed.
func (c *Config) Validate() error {
	if c.Network.PolygonRPCURL == "" {
		return fmt.Errorf("network.polygon_rpc_url is required")
	}
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required")
	}
	if c.Wallet.Address != "" && !common.IsHexAddress(c.Wallet.Address) {
		return fmt.Errorf("wallet.address is not a hex address")
	}

	addrs := []struct {
		name, value string
	}{
		{"contracts.pol_address", c.Contracts.POLAddress},
		{"contracts.dai_address", c.Contracts.DAIAddress},
		{"contracts.router_address", c.Contracts.RouterAddress},
		{"contracts.price_feed_address", c.Contracts.PriceFeedAddress},
		{"contracts.dai_price_feed_address", c.Contracts.DAIPriceFeedAddress},
	}
	for _, a := range addrs {
		if a.value == "" {
			return fmt.Errorf("%s is required", a.name)
		}
		if !common.IsHexAddress(a.value) {
			return fmt.Errorf("%s is not a hex address", a.name)
		}
	}

	if c.Pipeline.GasMultiplier < 1 {
		return fmt.Errorf("pipeline.gas_multiplier must be >= 1")
	}
	if c.Pipeline.SlippageBps < 0 || c.Pipeline.SlippageBps >= 10_000 {
		return fmt.Errorf("pipeline.slippage_bps must be in [0, 10000)")
	}
	if c.Pipeline.SubmitRetries < 1 {
		return fmt.Errorf("pipeline.submit_retries must be positive")
	}

	switch c.Storage.Backend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, postgres, sqlite", c.Storage.Backend)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Schedule.AutoRebalanceCron != "" {
		job := c.Schedule.AutoRebalance
		if !common.IsHexAddress(job.TokenA) || !common.IsHexAddress(job.TokenB) || job.AmountA <= 0 || job.AmountB <= 0 {
			return fmt.Errorf("schedule.auto_rebalance needs token_a, token_b and positive amounts")
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
