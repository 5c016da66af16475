package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"curve-indexer/internal/chain"
	"curve-indexer/internal/chain/evm"
	"curve-indexer/internal/chain/solana"
	"curve-indexer/internal/config"
	"curve-indexer/internal/fanout"
	"curve-indexer/internal/ingestion"
	"curve-indexer/internal/ledger"
	"curve-indexer/internal/observability"
	"curve-indexer/internal/storage"
	"curve-indexer/internal/storage/clickhouse"
	"curve-indexer/internal/storage/memory"
	"curve-indexer/internal/storage/migrations"
	pgstore "curve-indexer/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides config)")

	flag.Parse()

	logger := log.New(os.Stdout, "[indexer] ", log.LstdFlags|log.Lshortfile)

	// .env is optional; environment overrides the config file either way.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Printf("Warning: could not load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	networks, invalid := cfg.ValidNetworks()
	for name, verr := range invalid {
		logger.Printf("Skipping network %s: %v", name, verr)
	}
	if len(networks) == 0 {
		logger.Fatal("No valid networks configured")
	}

	curveValues, err := cfg.Curve.Parse()
	if err != nil {
		logger.Fatalf("Parse curve config: %v", err)
	}

	// Start metrics server if enabled
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, logger, cfg, networks, curveValues, *useMemory)

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

func run(ctx context.Context, logger *log.Logger, cfg *config.Config, networks []config.ChainDescriptor, curveValues config.CurveValues, useMemory bool) error {
	// Stores: Postgres by default, in-memory with -use-memory.
	var (
		poolStore    storage.PoolStore
		tradeStore   storage.TradeStore
		holderStore  storage.HolderStore
		requestStore storage.CreationRequestStore
		cursorStore  storage.CursorStore
		tradeWriter  storage.TradeWriter
	)
	if useMemory {
		pools := memory.NewPoolStore()
		trades := memory.NewTradeStore()
		holders := memory.NewHolderStore()
		poolStore = pools
		tradeStore = trades
		holderStore = holders
		requestStore = memory.NewCreationRequestStore()
		cursorStore = memory.NewCursorStore()
		tradeWriter = memory.NewTradeWriter(trades, pools, holders)
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}

		poolStore = pgstore.NewPoolStore(pool)
		tradeStore = pgstore.NewTradeStore(pool)
		holderStore = pgstore.NewHolderStore(pool)
		requestStore = pgstore.NewCreationRequestStore(pool)
		cursorStore = pgstore.NewCursorStore(pool)
		tradeWriter = pgstore.NewTradeWriter(pool)
	}

	// Tick archival into ClickHouse is optional.
	var (
		ticks    ledger.TickSink
		archiver *ledger.TickArchiver
	)
	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("run clickhouse migrations: %w", err)
		}
		defer conn.Close()

		archiver = ledger.NewTickArchiver(clickhouse.NewTickStore(conn), logger)
		go archiver.Run(ctx)
		defer archiver.Wait()
		ticks = archiver
	}

	// Fan-out: in-process hub always, Redis bridge when configured.
	hub := fanout.NewHub(logger)
	defer hub.Close()

	publisher := multiPublisher{hub}
	if cfg.RedisAddr != "" {
		bridge, err := fanout.NewRedisBridge(ctx, fanout.RedisBridgeOptions{
			Addr:   cfg.RedisAddr,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		go bridge.Run(ctx)
		defer bridge.Wait()
		publisher = append(publisher, bridge)
	}

	ldgr, err := ledger.New(ledger.Options{
		Pools:       poolStore,
		Trades:      tradeStore,
		Holders:     holderStore,
		Requests:    requestStore,
		TradeWrites: tradeWriter,
		Params: ledger.CurveParams{
			InitialVirtualEth:   curveValues.InitialVirtualEth,
			InitialVirtualToken: curveValues.InitialVirtualToken,
			TotalSupply:         curveValues.TotalSupply,
			TargetMarketCap:     curveValues.TargetMarketCap,
		},
		Publisher: publisher,
		Ticks:     ticks,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}

	ingestors := make([]*ingestion.Ingestor, 0, len(networks))
	for _, desc := range networks {
		adapter, err := buildAdapter(ctx, desc, logger)
		if err != nil {
			logger.Printf("Skipping network %s: %v", desc.Network, err)
			continue
		}
		defer adapter.Close()

		ingestors = append(ingestors, &ingestion.Ingestor{
			Network: desc.Network,
			Backfiller: ingestion.NewBackfiller(ingestion.BackfillOptions{
				Adapter:       adapter,
				Ledger:        ldgr,
				Cursors:       cursorStore,
				ChunkSize:     desc.ChunkSize,
				StartPosition: desc.StartPosition,
				Logger:        logger,
			}),
			Live: ingestion.NewLiveFollower(ingestion.LiveOptions{
				Adapter: adapter,
				Ledger:  ldgr,
				Cursors: cursorStore,
				Logger:  logger,
			}),
		})
	}
	if len(ingestors) == 0 {
		return fmt.Errorf("no network could be started")
	}

	logger.Printf("Starting ingestion for %d network(s)...", len(ingestors))
	return ingestion.NewManager(ingestors, logger).Run(ctx)
}

// buildAdapter constructs the chain adapter matching the descriptor's family.
func buildAdapter(ctx context.Context, desc config.ChainDescriptor, logger *log.Logger) (chain.Adapter, error) {
	price, err := desc.PriceUSD()
	if err != nil {
		return nil, fmt.Errorf("parse eth_price_usd: %w", err)
	}
	source := chain.NewStaticPriceSource(price)

	switch desc.Kind {
	case config.KindEVM:
		return evm.NewAdapter(ctx, evm.AdapterOptions{
			Network:     desc.Network,
			RPCEndpoint: desc.RPCEndpoint,
			WSEndpoint:  desc.WSEndpoint,
			Contract:    desc.Contract,
			RatePerSec:  desc.RatePerSec,
			Price:       source,
			Logger:      logger,
		})
	case config.KindSolana:
		return solana.NewAdapter(solana.AdapterOptions{
			Network:     desc.Network,
			RPCEndpoint: desc.RPCEndpoint,
			WSEndpoint:  desc.WSEndpoint,
			ProgramID:   desc.Contract,
			Vault:       desc.Vault,
			Price:       source,
			Logger:      logger,
		})
	default:
		return nil, fmt.Errorf("unknown chain kind %q", desc.Kind)
	}
}

// multiPublisher fans one update out to every configured publisher.
type multiPublisher []ledger.Publisher

func (m multiPublisher) Publish(u ledger.Update) {
	for _, p := range m {
		p.Publish(u)
	}
}
