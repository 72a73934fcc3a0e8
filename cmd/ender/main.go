package main

import (
	"PerpIndexer/internal/cache"
	"PerpIndexer/internal/candles"
	"PerpIndexer/internal/config"
	"PerpIndexer/internal/core"
	"PerpIndexer/internal/handler"
	"PerpIndexer/internal/ingestion"
	"PerpIndexer/internal/observability"
	"PerpIndexer/internal/outbound"
	"PerpIndexer/internal/persistence"
	"PerpIndexer/internal/query"
	"PerpIndexer/internal/reference"
	"PerpIndexer/internal/server"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type options struct {
	ConfigPath string `long:"config" env:"ENDER_CONFIG" description:"Path to the YAML config file (defaults and ENDER_* overrides apply without one)"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	opts := options{}
	if _, err := flags.Parse(&opts); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		log.Fatalf("FATAL: parse flags: %v", err)
	}

	log.Println("INFO: ender starting...")

	// --- Config ---
	cfg, err := config.LoadAndValidate(opts.ConfigPath)
	if err != nil {
		log.Fatalf("FATAL: load config: %v", err)
	}
	logger := observability.NewLoggerWithLevel("ender", observability.ParseLogLevel(cfg.Log.Level))

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("FATAL: postgres open: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("FATAL: postgres ping: %v", err)
	}
	log.Println("INFO: Postgres connected")

	// --- Run SQL migrations ---
	if !cfg.Postgres.SkipMigrations {
		migrator := persistence.NewMigrator(cfg.Postgres.DSN, cfg.Postgres.MigrationsDir)
		if err := migrator.Up(ctx); err != nil {
			log.Fatalf("FATAL: run migrations: %v", err)
		}
		log.Println("INFO: migrations applied")
	}

	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()
	st := persistence.NewStore(db, metrics)

	// --- Reference data ---
	markets := reference.NewPerpetualMarkets(st, metrics, logger)
	if err := markets.Refresh(ctx); err != nil {
		log.Fatalf("FATAL: load perpetual markets: %v", err)
	}
	log.Printf("INFO: loaded %d perpetual markets", len(markets.All()))

	// --- Caches: warm from the committed state ---
	heightCache := cache.NewHeightCache()
	priceCache := cache.NewPriceCache()
	candleCache := cache.NewCandleCache()
	resyncer := cache.NewResyncer(st, heightCache, priceCache, candleCache, metrics, logger)
	if err := resyncer.Resync(ctx); err != nil {
		log.Fatalf("FATAL: warm caches: %v", err)
	}
	healthChecker.SetLastBlock(heightCache.Get())
	log.Printf("INFO: caches warm at height %q", heightCache.Get())

	// --- Redis (optional) ---
	var midPrices candles.MidPriceSource
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("FATAL: redis: %v", err)
		}
		defer rdb.Close()
		midPrices = cache.NewRedisMidPriceSource(rdb, cfg.Redis.MidPriceKey, cfg.Redis.Timeout, logger)
		log.Println("INFO: Redis connected")
	} else {
		log.Println("WARN: redis.addr not set, candles carry no orderbook mid prices")
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("FATAL: nats connect: %v", err)
	}
	defer nc.Close()
	log.Println("INFO: NATS connected")

	subCfg := cfg.NATS.Subscriber()
	if err := ingestion.EnsureStreams(ctx, js, subCfg, cfg.NATS.OutboundStream, outbound.Topics); err != nil {
		log.Fatalf("FATAL: ensure NATS streams: %v", err)
	}

	// --- Block engine ---
	processor := core.NewBlockProcessor(core.ProcessorDeps{
		Store: st,
		Registry: handler.DefaultRegistry(handler.Deps{
			Markets: markets,
			Prices:  priceCache,
			Logger:  logger,
		}),
		Scheduler:   core.NewScheduler(metrics, logger),
		Gate:        core.NewHeightGate(heightCache, resyncer, metrics, logger),
		Candles:     candles.NewGenerator(markets, candleCache, midPrices, metrics, logger),
		HeightCache: heightCache,
		CandleCache: candleCache,
		Resyncer:    resyncer,
		Publisher:   ingestion.NewNATSPublisher(js),
		Outbound:    cfg.Outbound.Aggregator(),
		Health:      healthChecker,
		Metrics:     metrics,
		Logger:      logger,
	})

	subscriber := ingestion.NewBlockSubscriber(js, subCfg, processor.HandleMessage, logger)
	if err := subscriber.Subscribe(ctx); err != nil {
		log.Fatalf("FATAL: nats subscribe: %v", err)
	}

	// --- Background goroutines ---
	errChan := make(chan error, 4)

	// 1. Reference refresher
	go func() {
		if err := markets.Run(ctx, cfg.Reference.RefreshInterval); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("reference refresher: %w", err)
		}
	}()

	// 2. Query servers
	grpcServer := server.NewGRPCServer(cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, &server.ServerDeps{
		QueryService:  query.NewQueryService(heightCache, priceCache, candleCache, markets),
		HealthChecker: healthChecker,
		Metrics:       metrics,
	})
	go func() {
		errChan <- grpcServer.StartGRPC(ctx)
	}()
	go func() {
		errChan <- grpcServer.StartHTTPGateway(ctx)
	}()

	// 3. Prometheus metrics server
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		log.Printf("INFO: Metrics server listening on %s/metrics", cfg.Server.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	// Caches are warm and the consumer is subscribed.
	grpcServer.SetServing(true)

	log.Printf("INFO: ender ready (height=%q, grpc=%s, http=%s, metrics=%s)",
		heightCache.Get(), cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, cfg.Server.MetricsAddr)

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		log.Printf("INFO: received signal %s, shutting down...", sig)
	case err := <-errChan:
		log.Printf("ERROR: goroutine failed: %v, shutting down...", err)
	}

	// --- Graceful shutdown ---
	// Stop taking blocks first so the in-flight block commits or rolls back
	// before the connections go away.
	grpcServer.SetServing(false)
	subscriber.Stop()
	cancel()

	if err := nc.Drain(); err != nil {
		log.Printf("WARN: nats drain: %v", err)
	}

	log.Println("INFO: ender shutdown complete")
}
