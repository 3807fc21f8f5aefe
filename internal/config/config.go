package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/rl1809/restock-agent/internal/core/service"
	"github.com/rl1809/restock-agent/internal/decision"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Chain    ChainConfig    `yaml:"chain"`
	Redis    RedisConfig    `yaml:"redis"`
	Supplier SupplierConfig `yaml:"supplier"`
	Agent    AgentConfig    `yaml:"agent"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ChainConfig struct {
	RPCURL         string        `yaml:"rpc_url"`
	Name           string        `yaml:"name"`
	GasLimit       uint64        `yaml:"gas_limit"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
}

// RedisConfig is shared: the supplier keeps invoices and spent proofs
// there, the agent its stock level. Empty Addr means in-process storage.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	PoolSize int    `yaml:"pool_size"`
}

type PricingConfig struct {
	Base          string `yaml:"base"`
	Surge         string `yaml:"surge"`
	BulkDiscount  string `yaml:"bulk_discount"`
	SurgeHour     int    `yaml:"surge_hour"`
	BulkThreshold int    `yaml:"bulk_threshold"`
	Precision     int32  `yaml:"precision"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type SupplierConfig struct {
	Name                 string         `yaml:"name"`
	HTTPAddr             string         `yaml:"http_addr"`
	GRPCAddr             string         `yaml:"grpc_addr"`
	WalletAddress        string         `yaml:"wallet_address"`
	Currency             string         `yaml:"currency"`
	InvoiceTTL           time.Duration  `yaml:"invoice_ttl"`
	ProofRetention       time.Duration  `yaml:"proof_retention"`
	VerifyOnChain        bool           `yaml:"verify_on_chain"`
	RejectReplayedProofs bool           `yaml:"reject_replayed_proofs"`
	Capabilities         []string       `yaml:"capabilities"`
	EstimatedDelivery    string         `yaml:"estimated_delivery"`
	Database             DatabaseConfig `yaml:"database"`
	Pricing              PricingConfig  `yaml:"pricing"`
}

type MarketConfig struct {
	Season         string  `yaml:"season"`
	SupplierRating float64 `yaml:"supplier_rating"`
	MarketTrend    string  `yaml:"market_trend"`
}

type AgentConfig struct {
	HTTPAddr          string        `yaml:"http_addr"`
	Item              string        `yaml:"item"`
	InitialStock      int           `yaml:"initial_stock"`
	WatchThreshold    int           `yaml:"watch_threshold"`
	ExecuteThreshold  int           `yaml:"execute_threshold"`
	SaleInterval      time.Duration `yaml:"sale_interval"`
	SaleUnits         int           `yaml:"sale_units"`
	ActivityCapacity  int           `yaml:"activity_capacity"`
	PrivateKey        string        `yaml:"private_key"`
	SupplierTransport string        `yaml:"supplier_transport"`
	SupplierURL       string        `yaml:"supplier_url"`
	SupplierGRPC      string        `yaml:"supplier_grpc"`
	AdvisorURL        string        `yaml:"advisor_url"`
	AdvisorTimeout    time.Duration `yaml:"advisor_timeout"`
	BreakerFailures   int           `yaml:"breaker_failures"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown"`
	FallbackSuppliers []string      `yaml:"fallback_suppliers"`
	ProposedPrice     string        `yaml:"proposed_price"`
	SettlementDelay   time.Duration `yaml:"settlement_delay"`
	Market            MarketConfig  `yaml:"market"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Chain: ChainConfig{
			Name:           "Base Sepolia",
			GasLimit:       21000,
			PollInterval:   2 * time.Second,
			ConfirmTimeout: 2 * time.Minute,
		},
		Redis: RedisConfig{PoolSize: 100},
		Supplier: SupplierConfig{
			Name:              "Quick Supply Co.",
			HTTPAddr:          ":3001",
			GRPCAddr:          ":50051",
			Currency:          "ETH",
			InvoiceTTL:        15 * time.Minute,
			ProofRetention:    30 * 24 * time.Hour,
			Capabilities:      []string{"restock", "negotiate"},
			EstimatedDelivery: "24h",
			Pricing: PricingConfig{
				Base:          "0.0001",
				Surge:         "0.00002",
				BulkDiscount:  "0.00001",
				SurgeHour:     17,
				BulkThreshold: 100,
				Precision:     6,
			},
		},
		Agent: AgentConfig{
			HTTPAddr:          ":3000",
			Item:              "Rice",
			InitialStock:      20,
			WatchThreshold:    15,
			ExecuteThreshold:  10,
			SaleInterval:      1500 * time.Millisecond,
			SaleUnits:         1,
			ActivityCapacity:  5,
			SupplierTransport: TransportHTTP,
			SupplierURL:       "http://localhost:3001",
			SupplierGRPC:      "localhost:50051",
			AdvisorTimeout:    5 * time.Second,
			BreakerFailures:   3,
			BreakerCooldown:   30 * time.Second,
			ProposedPrice:     "0.0001",
			SettlementDelay:   2 * time.Second,
			Market: MarketConfig{
				Season:         "normal",
				SupplierRating: 4.5,
				MarketTrend:    "stable",
			},
		},
	}
}

// Load layers the YAML file at path (optional) over the defaults, then
// applies .env and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("RPC_URL", &c.Chain.RPCURL)
	str("SUPPLIER_WALLET_ADDRESS", &c.Supplier.WalletAddress)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("AGENT_PRIVATE_KEY", &c.Agent.PrivateKey)
	str("SUPPLIER_URL", &c.Agent.SupplierURL)
	str("SUPPLIER_GRPC", &c.Agent.SupplierGRPC)
	str("ADVISOR_URL", &c.Agent.AdvisorURL)

	// A Postgres URL wins over a MySQL DSN when both are set.
	if v, ok := lookup("MYSQL_DSN"); ok && v != "" {
		c.Supplier.Database = DatabaseConfig{Driver: "mysql", DSN: v}
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Supplier.Database = DatabaseConfig{Driver: "postgres", DSN: v}
	}
	if v, ok := lookup("FALLBACK_SUPPLIERS"); ok && v != "" {
		c.Agent.FallbackSuppliers = strings.Split(v, ",")
	}
	if v, ok := lookup("INITIAL_STOCK"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: INITIAL_STOCK: %v", ErrInvalidConfig, err)
		}
		c.Agent.InitialStock = n
	}
	return nil
}

// ValidateSupplier checks what the supplier binary cannot start without.
func (c *Config) ValidateSupplier() error {
	s := c.Supplier
	if s.HTTPAddr == "" {
		return fmt.Errorf("%w: supplier.http_addr is required", ErrInvalidConfig)
	}
	if !common.IsHexAddress(s.WalletAddress) {
		return fmt.Errorf("%w: supplier wallet address %q (SUPPLIER_WALLET_ADDRESS)", ErrInvalidConfig, s.WalletAddress)
	}
	if s.VerifyOnChain && c.Chain.RPCURL == "" {
		return fmt.Errorf("%w: verify_on_chain needs RPC_URL", ErrInvalidConfig)
	}
	if _, err := s.Pricing.Pricing(); err != nil {
		return err
	}
	return nil
}

// ValidateAgent checks the agent's shape. Missing credentials are not an
// error here: the agent runs and each workflow fails on its own.
func (c *Config) ValidateAgent() error {
	a := c.Agent
	switch {
	case a.HTTPAddr == "":
		return fmt.Errorf("%w: agent.http_addr is required", ErrInvalidConfig)
	case a.Item == "":
		return fmt.Errorf("%w: agent.item is required", ErrInvalidConfig)
	case a.InitialStock < 0:
		return fmt.Errorf("%w: agent.initial_stock must not be negative", ErrInvalidConfig)
	case a.ExecuteThreshold > a.WatchThreshold:
		return fmt.Errorf("%w: execute_threshold %d above watch_threshold %d",
			ErrInvalidConfig, a.ExecuteThreshold, a.WatchThreshold)
	}
	switch a.SupplierTransport {
	case TransportHTTP:
		if a.SupplierURL == "" {
			return fmt.Errorf("%w: SUPPLIER_URL is required", ErrInvalidConfig)
		}
	case TransportGRPC:
		if a.SupplierGRPC == "" {
			return fmt.Errorf("%w: agent.supplier_grpc is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown supplier transport %q", ErrInvalidConfig, a.SupplierTransport)
	}
	return nil
}

// MissingCredentials names the unset settings that make every settlement
// fail with configuration missing.
func (c *Config) MissingCredentials() []string {
	var missing []string
	if c.Agent.PrivateKey == "" {
		missing = append(missing, "AGENT_PRIVATE_KEY")
	}
	if c.Chain.RPCURL == "" {
		missing = append(missing, "RPC_URL")
	}
	return missing
}

func (p PricingConfig) Pricing() (service.Pricing, error) {
	parse := func(name, v string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: pricing.%s %q", ErrInvalidConfig, name, v)
		}
		return d, nil
	}
	base, err := parse("base", p.Base)
	if err != nil {
		return service.Pricing{}, err
	}
	surge, err := parse("surge", p.Surge)
	if err != nil {
		return service.Pricing{}, err
	}
	discount, err := parse("bulk_discount", p.BulkDiscount)
	if err != nil {
		return service.Pricing{}, err
	}
	return service.Pricing{
		Base:          base,
		Surge:         surge,
		BulkDiscount:  discount,
		SurgeHour:     p.SurgeHour,
		BulkThreshold: p.BulkThreshold,
		Precision:     p.Precision,
	}, nil
}

func (m MarketConfig) Market() decision.Market {
	return decision.Market{Season: m.Season, SupplierRating: m.SupplierRating, MarketTrend: m.MarketTrend}
}

// NewLogger builds the process logger from log.level and log.format.
func NewLogger(c LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
