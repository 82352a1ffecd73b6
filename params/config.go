package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Transport struct {
	Kind          string // "libp2p" or "memory"
	ListenAddr    string
	Bootstrap     []string
	Topic         string
	InboundBuffer int
	// PublishRate caps offers per second; zero disables the limiter.
	PublishRate  float64
	PublishBurst int
}

type Pipeline struct {
	PollBatch     int
	PollInterval  time.Duration
	RetryBound    int
	RetryBackoff  time.Duration
	MaxInFlight   int64
	ShutdownGrace time.Duration
}

type Ledger struct {
	// RPCURL empty selects the simulated gateway.
	RPCURL          string
	PrivateKeyHex   string
	ContractAddress string
	ChainID         int64 // 0 = ask the node
	ReceiptPoll     time.Duration
	ReceiptTimeout  time.Duration
	SimLatency      time.Duration
	// FixedPointDecimals is the power of ten applied to quantity and price
	// before they are sent to the contract.
	FixedPointDecimals int32
}

type Pricing struct {
	Table   map[string]string // asset -> reference price, decimal text
	Default string
}

type Node struct {
	APIAddr        string
	LogFile        string
	LogLevel       string
	InflightDBPath string // empty = no journal
}

type Config struct {
	Transport Transport
	Pipeline  Pipeline
	Ledger    Ledger
	Pricing   Pricing
	Node      Node
}

func Default() Config {
	return Config{
		Transport: Transport{
			Kind:          "libp2p",
			ListenAddr:    "/ip4/127.0.0.1/tcp/40123",
			Topic:         "tradewire-orders-10",
			InboundBuffer: 4096,
			PublishRate:   0,
			PublishBurst:  64,
		},
		Pipeline: Pipeline{
			PollBatch:     10,
			PollInterval:  100 * time.Millisecond,
			RetryBound:    50,
			RetryBackoff:  100 * time.Millisecond,
			MaxInFlight:   1024,
			ShutdownGrace: 5 * time.Second,
		},
		Ledger: Ledger{
			ReceiptPoll:        time.Second,
			ReceiptTimeout:     2 * time.Minute,
			FixedPointDecimals: 18,
		},
		Pricing: Pricing{
			Table: map[string]string{
				"BITCOIN":  "30000",
				"ETHEREUM": "2000",
			},
			Default: "1000",
		},
		Node: Node{
			APIAddr:  ":8080",
			LogFile:  "data/node.log",
			LogLevel: "info",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	// transport
	cfg.Transport.Kind = getEnv("TRANSPORT", cfg.Transport.Kind)
	cfg.Transport.ListenAddr = getEnv("TRANSPORT_LISTEN", cfg.Transport.ListenAddr)
	cfg.Transport.Topic = getEnv("TRANSPORT_TOPIC", cfg.Transport.Topic)
	if bs := os.Getenv("TRANSPORT_BOOTSTRAP"); bs != "" {
		cfg.Transport.Bootstrap = splitList(bs)
	}
	cfg.Transport.InboundBuffer = getInt("TRANSPORT_INBOUND_BUFFER", cfg.Transport.InboundBuffer)
	cfg.Transport.PublishBurst = getInt("TRANSPORT_PUBLISH_BURST", cfg.Transport.PublishBurst)
	if r := os.Getenv("TRANSPORT_PUBLISH_RATE"); r != "" {
		if f, err := strconv.ParseFloat(r, 64); err == nil {
			cfg.Transport.PublishRate = f
		}
	}

	// pipeline
	cfg.Pipeline.PollBatch = getInt("POLL_BATCH", cfg.Pipeline.PollBatch)
	cfg.Pipeline.PollInterval = getMillis("POLL_INTERVAL_MS", cfg.Pipeline.PollInterval)
	cfg.Pipeline.RetryBound = getInt("PUBLISH_RETRY_BOUND", cfg.Pipeline.RetryBound)
	cfg.Pipeline.RetryBackoff = getMillis("PUBLISH_RETRY_BACKOFF_MS", cfg.Pipeline.RetryBackoff)
	cfg.Pipeline.MaxInFlight = int64(getInt("MAX_IN_FLIGHT", int(cfg.Pipeline.MaxInFlight)))
	cfg.Pipeline.ShutdownGrace = getMillis("SHUTDOWN_GRACE_MS", cfg.Pipeline.ShutdownGrace)

	// ledger
	cfg.Ledger.RPCURL = getEnv("LEDGER_RPC_URL", cfg.Ledger.RPCURL)
	cfg.Ledger.PrivateKeyHex = getEnv("LEDGER_PRIVATE_KEY", cfg.Ledger.PrivateKeyHex)
	cfg.Ledger.ContractAddress = getEnv("LEDGER_CONTRACT", cfg.Ledger.ContractAddress)
	cfg.Ledger.ChainID = int64(getInt("LEDGER_CHAIN_ID", int(cfg.Ledger.ChainID)))
	cfg.Ledger.ReceiptPoll = getMillis("LEDGER_RECEIPT_POLL_MS", cfg.Ledger.ReceiptPoll)
	cfg.Ledger.ReceiptTimeout = getMillis("LEDGER_RECEIPT_TIMEOUT_MS", cfg.Ledger.ReceiptTimeout)
	cfg.Ledger.SimLatency = getMillis("LEDGER_SIM_LATENCY_MS", cfg.Ledger.SimLatency)
	cfg.Ledger.FixedPointDecimals = int32(getInt("FIXED_POINT_DECIMALS", int(cfg.Ledger.FixedPointDecimals)))

	// pricing, e.g. PRICE_TABLE="BITCOIN=30000,ETHEREUM=2000"
	if table := os.Getenv("PRICE_TABLE"); table != "" {
		cfg.Pricing.Table = make(map[string]string)
		for _, kv := range splitList(table) {
			asset, price, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			cfg.Pricing.Table[strings.ToUpper(strings.TrimSpace(asset))] = strings.TrimSpace(price)
		}
	}
	cfg.Pricing.Default = getEnv("PRICE_DEFAULT", cfg.Pricing.Default)

	// node
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	cfg.Node.InflightDBPath = getEnv("INFLIGHT_DB_PATH", cfg.Node.InflightDBPath)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMillis(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
