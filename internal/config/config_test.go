package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrPOL    = "0x0000000000000000000000000000000000001010"
	addrDAI    = "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063"
	addrRouter = "0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff"
	addrFeed   = "0xAB594600376Ec9fD91F8e885dADF0CE036862dE0"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 8080
network:
  polygon_rpc_url: https://polygon-rpc.com
  chain_id: 80002
wallet:
  private_key: "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
contracts:
  pol_address: `+addrPOL+`
  dai_address: `+addrDAI+`
  router_address: `+addrRouter+`
  price_feed_address: `+addrFeed+`
pipeline:
  deadline: 60s
  slippage_bps: 50
kafka:
  enabled: true
  brokers: [localhost:9092]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, int64(80002), cfg.Network.ChainID)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.Deadline)
	assert.Equal(t, int64(50), cfg.Pipeline.SlippageBps)
	assert.Equal(t, 1.2, cfg.Pipeline.GasMultiplier)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, addrFeed, cfg.Contracts.DAIPriceFeedAddress, "dai feed falls back to the pol feed")
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_OriginalJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "server": {"host": "127.0.0.1", "port": 5001},
  "network": {"polygon_rpc_url": "https://polygon-rpc.com"},
  "wallet": {"address": "0x71C7656EC7ab88b098defB751B7401B5f6d8976F", "private_key": "abc"},
  "contracts": {
    "pol_address": "`+addrPOL+`",
    "dai_address": "`+addrDAI+`",
    "router_address": "`+addrRouter+`",
    "price_feed_address": "`+addrFeed+`"
  },
  "uniswap": {"router_abi_path": "abi/router.json"},
  "logging": {"level": "debug", "file": "app.log"}
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:5001", cfg.Server.Addr())
	assert.Equal(t, "abi/router.json", cfg.Uniswap.RouterABIPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 100*time.Second, cfg.Pipeline.Deadline)
	assert.Equal(t, int64(137), cfg.Network.ChainID)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POLYGON_RPC_URL", "http://env-rpc")
	t.Setenv("WALLET_PRIVATE_KEY", "env-key")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("ACTIVITY_LOG_FILE", "/tmp/activity.csv")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://env-rpc", cfg.Network.PolygonRPCURL)
	assert.Equal(t, "env-key", cfg.Wallet.PrivateKey)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "/tmp/activity.csv", cfg.Activity.File)
}

func TestLoad_ParseError(t *testing.T) {
	path := writeFile(t, "bad.yaml", "server: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	t.Setenv("POLYGON_RPC_URL", "http://real")
	path := writeFile(t, ".env", "POLYGON_RPC_URL=http://dotenv\n")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "http://real", os.Getenv("POLYGON_RPC_URL"))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func validConfig() *Config {
	cfg := &Config{
		Network: NetworkConfig{PolygonRPCURL: "http://rpc"},
		Wallet:  WalletConfig{PrivateKey: "key"},
		Contracts: ContractsConfig{
			POLAddress:       addrPOL,
			DAIAddress:       addrDAI,
			RouterAddress:    addrRouter,
			PriceFeedAddress: addrFeed,
		},
	}
	applyDefaults(cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing rpc", func(c *Config) { c.Network.PolygonRPCURL = "" }, "polygon_rpc_url"},
		{"missing key", func(c *Config) { c.Wallet.PrivateKey = "" }, "private_key"},
		{"bad router", func(c *Config) { c.Contracts.RouterAddress = "router" }, "router_address"},
		{"bad slippage", func(c *Config) { c.Pipeline.SlippageBps = 10_000 }, "slippage_bps"},
		{"low gas multiplier", func(c *Config) { c.Pipeline.GasMultiplier = 0.5 }, "gas_multiplier"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }, "storage.backend"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, "postgres_dsn"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka.brokers"},
		{"auto rebalance job incomplete", func(c *Config) { c.Schedule.AutoRebalanceCron = "0 * * * * *" }, "auto_rebalance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
