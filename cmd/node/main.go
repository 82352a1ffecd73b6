package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradewire/params"
	"github.com/uhyunpark/tradewire/pkg/api"
	"github.com/uhyunpark/tradewire/pkg/ledger"
	"github.com/uhyunpark/tradewire/pkg/metrics"
	"github.com/uhyunpark/tradewire/pkg/order"
	"github.com/uhyunpark/tradewire/pkg/pipeline"
	"github.com/uhyunpark/tradewire/pkg/storage"
	"github.com/uhyunpark/tradewire/pkg/transport"
	"github.com/uhyunpark/tradewire/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	// Log sink for the front-end: every log line is also streamed on /ws
	hub := api.NewHub()
	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.LogLevel, hub)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	hub.SetLogger(sugar)
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	prices, err := order.NewPriceBook(cfg.Pricing.Table, cfg.Pricing.Default)
	if err != nil {
		sugar.Fatalw("price_table_invalid", "err", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sup := pipeline.NewSupervisor(pipeline.SupervisorConfig{
		PollInterval:  cfg.Pipeline.PollInterval,
		ShutdownGrace: cfg.Pipeline.ShutdownGrace,
		Publish: pipeline.PublishConfig{
			RetryBound:   cfg.Pipeline.RetryBound,
			RetryBackoff: cfg.Pipeline.RetryBackoff,
		},
		Consume: pipeline.ConsumeConfig{
			PollBatch:          cfg.Pipeline.PollBatch,
			MaxInFlight:        cfg.Pipeline.MaxInFlight,
			FixedPointDecimals: cfg.Ledger.FixedPointDecimals,
		},
	}, openers(cfg, sugar), prices, sugar, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Transport, then ledger, then polling. Any init failure is fatal.
	if err := sup.Start(ctx); err != nil {
		sugar.Fatalw("pipeline_init_failed", "err", err)
	}
	pub := sup.Publisher()

	apiServer := api.NewServer(pub, hub, reg, sugar)
	go func() {
		if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
			sugar.Errorw("api_server_failed", "err", err)
		}
	}()

	// Console front-end: one command per line, each handled independently.
	go readCommands(ctx, pub, sugar)

	sugar.Infow("node_ready",
		"transport", cfg.Transport.Kind,
		"topic", cfg.Transport.Topic,
		"ledger_simulated", cfg.Ledger.RPCURL == "",
		"api_addr", cfg.Node.APIAddr)

	<-ctx.Done()
	sugar.Info("shutdown_requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
	if err := sup.Stop(); err != nil {
		sugar.Warnw("pipeline_shutdown_failed", "err", err)
	}
}

func openers(cfg params.Config, sugar *zap.SugaredLogger) pipeline.Openers {
	o := pipeline.Openers{
		Transport: func(ctx context.Context) (transport.Transport, error) {
			if cfg.Transport.Kind == "memory" {
				return transport.NewMemory(cfg.Transport.InboundBuffer), nil
			}
			return transport.NewLibp2p(ctx, transport.Libp2pConfig{
				ListenAddr:    cfg.Transport.ListenAddr,
				Bootstrap:     cfg.Transport.Bootstrap,
				Topic:         cfg.Transport.Topic,
				InboundBuffer: cfg.Transport.InboundBuffer,
				PublishRate:   cfg.Transport.PublishRate,
				PublishBurst:  cfg.Transport.PublishBurst,
				Logger:        sugar,
			})
		},
		Ledger: func(ctx context.Context) (ledger.Gateway, error) {
			if cfg.Ledger.RPCURL == "" {
				sugar.Warnw("ledger_simulated", "reason", "LEDGER_RPC_URL not set")
				return ledger.NewSimulated(cfg.Ledger.SimLatency), nil
			}
			return ledger.DialEth(ctx, ledger.EthConfig{
				RPCURL:          cfg.Ledger.RPCURL,
				PrivateKeyHex:   cfg.Ledger.PrivateKeyHex,
				ContractAddress: cfg.Ledger.ContractAddress,
				ChainID:         cfg.Ledger.ChainID,
				ReceiptPoll:     cfg.Ledger.ReceiptPoll,
				ReceiptTimeout:  cfg.Ledger.ReceiptTimeout,
				Logger:          sugar,
			})
		},
	}
	if cfg.Node.InflightDBPath != "" {
		o.Journal = func() (storage.Journal, error) {
			return storage.OpenPebbleJournal(cfg.Node.InflightDBPath)
		}
	}
	return o
}

func readCommands(ctx context.Context, pub *pipeline.Publisher, sugar *zap.SugaredLogger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// Submit logs its own outcome.
		go func(cmd string) { _ = pub.Submit(ctx, cmd) }(line)
	}
	if err := scanner.Err(); err != nil {
		sugar.Warnw("console_read_failed", "err", err)
	}
}
