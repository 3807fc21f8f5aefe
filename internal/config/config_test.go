package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "0x1111111111111111111111111111111111111111"

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.ValidateAgent())
	assert.ErrorIs(t, cfg.ValidateSupplier(), ErrInvalidConfig, "no wallet configured")
	assert.False(t, cfg.Supplier.VerifyOnChain)
	assert.False(t, cfg.Supplier.RejectReplayedProofs, "replayed proofs are accepted unless opted in")

	pricing, err := cfg.Supplier.Pricing.Pricing()
	require.NoError(t, err)
	assert.Equal(t, "0.0001", pricing.Base.String())
	assert.Equal(t, 17, pricing.SurgeHour)
	assert.ElementsMatch(t, []string{"AGENT_PRIVATE_KEY", "RPC_URL"}, cfg.MissingCredentials())
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  format: json
supplier:
  wallet_address: "`+wallet+`"
  invoice_ttl: 5m
  reject_replayed_proofs: true
agent:
  item: Flour
  sale_interval: 500ms
  fallback_suppliers:
    - http://backup-1:4000
    - http://backup-2:4000
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5*time.Minute, cfg.Supplier.InvoiceTTL)
	assert.True(t, cfg.Supplier.RejectReplayedProofs)
	assert.Equal(t, ":3001", cfg.Supplier.HTTPAddr)
	assert.Equal(t, "Flour", cfg.Agent.Item)
	assert.Equal(t, 500*time.Millisecond, cfg.Agent.SaleInterval)
	assert.Equal(t, 20, cfg.Agent.InitialStock)
	assert.Len(t, cfg.Agent.FallbackSuppliers, 2)
	require.NoError(t, cfg.ValidateSupplier())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SUPPLIER_WALLET_ADDRESS", wallet)
	t.Setenv("AGENT_PRIVATE_KEY", "deadbeef")
	t.Setenv("RPC_URL", "http://localhost:8545")
	t.Setenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/restock")
	t.Setenv("SUPPLIER_URL", "http://supplier:3001")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, wallet, cfg.Supplier.WalletAddress)
	assert.Equal(t, "deadbeef", cfg.Agent.PrivateKey)
	assert.Equal(t, "http://supplier:3001", cfg.Agent.SupplierURL)
	assert.Equal(t, DatabaseConfig{Driver: "mysql", DSN: "root:root@tcp(localhost:3306)/restock"}, cfg.Supplier.Database)
	assert.Empty(t, cfg.MissingCredentials())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MYSQL_DSN":          "mysql-dsn",
		"DATABASE_URL":       "postgres://localhost/restock",
		"FALLBACK_SUPPLIERS": "http://a,http://b",
		"INITIAL_STOCK":      "7",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, "postgres", cfg.Supplier.Database.Driver)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Agent.FallbackSuppliers)
	assert.Equal(t, 7, cfg.Agent.InitialStock)

	env["INITIAL_STOCK"] = "many"
	assert.ErrorIs(t, Default().applyEnv(lookup), ErrInvalidConfig)
}

func TestValidateAgent(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AgentConfig)
	}{
		{"no item", func(a *AgentConfig) { a.Item = "" }},
		{"negative stock", func(a *AgentConfig) { a.InitialStock = -1 }},
		{"thresholds inverted", func(a *AgentConfig) { a.ExecuteThreshold = 20 }},
		{"unknown transport", func(a *AgentConfig) { a.SupplierTransport = "carrier-pigeon" }},
		{"grpc without target", func(a *AgentConfig) { a.SupplierTransport = TransportGRPC; a.SupplierGRPC = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg.Agent)
			assert.ErrorIs(t, cfg.ValidateAgent(), ErrInvalidConfig)
		})
	}
}

func TestValidateSupplier(t *testing.T) {
	cfg := Default()
	cfg.Supplier.WalletAddress = wallet
	require.NoError(t, cfg.ValidateSupplier())

	cfg.Supplier.VerifyOnChain = true
	assert.ErrorIs(t, cfg.ValidateSupplier(), ErrInvalidConfig)

	cfg.Chain.RPCURL = "http://localhost:8545"
	require.NoError(t, cfg.ValidateSupplier())

	cfg.Supplier.Pricing.Surge = "cheap"
	assert.ErrorIs(t, cfg.ValidateSupplier(), ErrInvalidConfig)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json"}, &buf)
	logger.Debug("restock", "stock", 9)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "restock", line["msg"])
	assert.Equal(t, float64(9), line["stock"])

	buf.Reset()
	NewLogger(LogConfig{Level: "bogus"}, &buf).Debug("hidden")
	assert.Empty(t, buf.String())
}
