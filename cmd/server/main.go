// Package main runs the gateway HTTP service: the transaction pipeline, the
// price oracle, the activity log and the optional cron jobs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pol-gateway/internal/activity"
	"pol-gateway/internal/api"
	"pol-gateway/internal/config"
	"pol-gateway/internal/contracts"
	"pol-gateway/internal/events"
	"pol-gateway/internal/evm"
	"pol-gateway/internal/idempotency"
	"pol-gateway/internal/lock"
	"pol-gateway/internal/observability"
	"pol-gateway/internal/oracle"
	"pol-gateway/internal/pipeline"
	"pol-gateway/internal/scheduler"
	sig "pol-gateway/internal/signal"
	"pol-gateway/internal/storage"
	chstore "pol-gateway/internal/storage/clickhouse"
	"pol-gateway/internal/storage/memory"
	"pol-gateway/internal/storage/migrations"
	pgstore "pol-gateway/internal/storage/postgres"
	"pol-gateway/internal/storage/sqlite"
	"pol-gateway/internal/wallet"
)

// app holds the wired components and their cleanup hooks.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	pipeline  *pipeline.Pipeline
	oracle    *oracle.Oracle
	signal    *sig.Signal
	activity  *activity.Log
	records   storage.TransactionRecordStore
	scheduler *scheduler.Scheduler
	signer    *wallet.Signer
	cleanups  []func()
}

func main() {
	envFile := flag.String("env-file", envOr("ENV_FILE", ".env"), "Path to .env file")
	configPath := flag.String("config", envOr("CONFIG_FILE", "config.yaml"), "Path to YAML or JSON config file")
	flag.Parse()

	bootLog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	if err := config.LoadDotEnv(*envFile); err != nil {
		bootLog.Fatal().Err(err).Msg("load env file")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("set up logging")
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("start gateway")
	}
	defer a.close()

	if a.scheduler != nil {
		a.scheduler.Start()
	}

	gin.SetMode(gin.ReleaseMode)
	handler := api.New(api.Deps{
		Operations: a.pipeline,
		Prices:     a.oracle,
		Insights:   a.signal,
		Activity:   a.activity,
		Records:    a.records,
		Wallet:     a.signer.Address(),
		ChainID:    cfg.Network.ChainID,
		Logger:     logger,
	})
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Channel to signal completion
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		s := <-sigCh
		logger.Info().Str("signal", s.String()).Msg("initiating graceful shutdown")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		go func() {
			select {
			case s := <-sigCh:
				logger.Warn().Str("signal", s.String()).Msg("second signal, forcing immediate shutdown")
				os.Exit(1)
			case <-done:
			}
		}()

		if a.scheduler != nil {
			a.scheduler.Stop(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown")
		}
		cancel()
	}()

	logger.Info().
		Str("addr", srv.Addr).
		Str("wallet", a.signer.Address().Hex()).
		Int64("chain_id", cfg.Network.ChainID).
		Str("storage", cfg.Storage.Backend).
		Msg("gateway listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("http server")
	}
	<-ctx.Done()
	close(done)
	logger.Info().Msg("shutdown complete")
}

// build wires every component from cfg. On error, everything opened so far
// is closed.
func build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	client := evm.NewHTTPClient(cfg.Network.PolygonRPCURL,
		evm.WithTimeout(cfg.Network.RPCTimeout),
		evm.WithMaxRetries(cfg.Network.RPCMaxRetries),
		evm.WithRateLimit(cfg.Network.RPCRateLimit),
		evm.WithObserver(func(method string, d time.Duration, err error) {
			observability.RecordRPCCall(method, d.Seconds(), err)
		}),
	)

	chainID := big.NewInt(cfg.Network.ChainID)
	remoteID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if remoteID.Cmp(chainID) != 0 {
		return nil, fmt.Errorf("node reports chain id %s, configured %s", remoteID, chainID)
	}

	a.signer, err = wallet.NewSigner(cfg.Wallet.PrivateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	if cfg.Wallet.Address != "" && common.HexToAddress(cfg.Wallet.Address) != a.signer.Address() {
		return nil, fmt.Errorf("wallet.address %s does not match the private key", cfg.Wallet.Address)
	}

	var (
		locker lock.Locker = lock.NewLocal()
		idem   idempotency.Store
	)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.cleanups = append(a.cleanups, func() { rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		locker = lock.NewRedis(rdb, "pol-gateway:lock:")
		idem = idempotency.NewRedis(rdb, "pol-gateway:idem:")
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("using redis for locks and idempotency")
	}
	nonces := wallet.NewNonceManager(client, locker, a.signer.Address(), cfg.Redis.LockTTL)

	a.activity, err = activity.New(cfg.Activity.File)
	if err != nil {
		return nil, err
	}
	a.signal = sig.New(a.activity)

	routerABI, err := contracts.LoadABI(cfg.Uniswap.RouterABIPath, contracts.RouterABI)
	if err != nil {
		return nil, err
	}
	feedABI, err := contracts.LoadABI(cfg.Uniswap.PriceFeedABIPath, contracts.PriceFeedABI)
	if err != nil {
		return nil, err
	}
	erc20ABI, err := contracts.LoadABI("", contracts.ERC20ABI)
	if err != nil {
		return nil, err
	}
	router, err := contracts.NewRouter(client, common.HexToAddress(cfg.Contracts.RouterAddress), routerABI)
	if err != nil {
		return nil, err
	}
	tokens, err := contracts.NewTokens(client, erc20ABI)
	if err != nil {
		return nil, err
	}
	polFeed, err := contracts.NewPriceFeed(client, common.HexToAddress(cfg.Contracts.PriceFeedAddress), feedABI)
	if err != nil {
		return nil, err
	}
	daiFeed, err := contracts.NewPriceFeed(client, common.HexToAddress(cfg.Contracts.DAIPriceFeedAddress), feedABI)
	if err != nil {
		return nil, err
	}

	prices, err := a.priceStore(ctx)
	if err != nil {
		return nil, err
	}
	a.oracle = oracle.New(polFeed, daiFeed, oracle.WithStore(prices), oracle.WithLogger(logger))

	a.records, err = a.recordStore(ctx)
	if err != nil {
		return nil, err
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.Kafka.Enabled {
		k := events.NewKafka(events.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		a.cleanups = append(a.cleanups, func() { k.Close() })
		publisher = k
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing transaction events")
	}

	a.pipeline, err = pipeline.New(pipeline.Config{
		POL:             common.HexToAddress(cfg.Contracts.POLAddress),
		DAI:             common.HexToAddress(cfg.Contracts.DAIAddress),
		Deadline:        cfg.Pipeline.Deadline,
		ConfirmTimeout:  cfg.Pipeline.ConfirmTimeout,
		PollInterval:    cfg.Pipeline.PollInterval,
		MaxPollInterval: cfg.Pipeline.MaxPollInterval,
		SubmitRetries:   cfg.Pipeline.SubmitRetries,
		SlippageBps:     cfg.Pipeline.SlippageBps,
		GasMultiplier:   cfg.Pipeline.GasMultiplier,
		IdempotencyTTL:  cfg.Redis.IdempotencyTTL,
	}, pipeline.Deps{
		Client:      client,
		Router:      router,
		Tokens:      tokens,
		Signer:      a.signer,
		Nonces:      nonces,
		Activity:    a.activity,
		Signal:      a.signal,
		Records:     a.records,
		Idempotency: idem,
		Publisher:   publisher,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Network.WSURL != "" {
		ws, err := evm.NewWSClient(ctx, cfg.Network.WSURL, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("connect websocket: %w", err)
		}
		a.cleanups = append(a.cleanups, func() { ws.Close() })
		if err := a.pipeline.WatchHeads(ctx, ws); err != nil {
			return nil, err
		}
	}

	a.scheduler, err = a.schedule(ctx)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// priceStore keeps oracle samples in ClickHouse when configured, in memory otherwise.
func (a *app) priceStore(ctx context.Context) (storage.PriceSampleStore, error) {
	if a.cfg.Storage.ClickhouseDSN == "" {
		return memory.NewPriceSampleStore(), nil
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, a.cfg.Storage.ClickhouseDSN)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: %w", err)
	}
	a.cleanups = append(a.cleanups, func() { conn.Close() })
	return storage.NewInstrumentedPrices(chstore.NewPriceSampleStore(conn), "clickhouse"), nil
}

func (a *app) recordStore(ctx context.Context) (storage.TransactionRecordStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, a.cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.cleanups = append(a.cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		return storage.NewInstrumentedRecords(pgstore.NewTransactionRecordStore(pool), "postgres"), nil
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(a.cfg.Storage.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		db, err := sqlite.Open(a.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.cleanups = append(a.cleanups, func() { db.Close() })
		return storage.NewInstrumentedRecords(sqlite.NewTransactionRecordStore(db), "sqlite"), nil
	default:
		return memory.NewTransactionRecordStore(), nil
	}
}

func (a *app) schedule(ctx context.Context) (*scheduler.Scheduler, error) {
	sc := a.cfg.Schedule
	if sc.PriceSnapshotCron == "" && sc.AutoRebalanceCron == "" {
		return nil, nil
	}
	s := scheduler.New(ctx, a.oracle, a.pipeline, a.logger.With().Str("component", "scheduler").Logger())
	n, err := s.Register(scheduler.Config{
		PriceSnapshotCron: sc.PriceSnapshotCron,
		AutoRebalanceCron: sc.AutoRebalanceCron,
		AutoRebalance: pipeline.RebalanceRequest{
			TokenA:  sc.AutoRebalance.TokenA,
			TokenB:  sc.AutoRebalance.TokenB,
			AmountA: decimal.NewFromFloat(sc.AutoRebalance.AmountA),
			AmountB: decimal.NewFromFloat(sc.AutoRebalance.AmountB),
		},
		JobTimeout: a.cfg.Pipeline.ConfirmTimeout + time.Minute,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info().Int("jobs", n).Msg("scheduled jobs registered")
	return s, nil
}

// close runs cleanups in reverse order.
func (a *app) close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

// newLogger builds the root logger: console or JSON on stdout, teed into
// cfg.File when set.
func newLogger(cfg config.LoggingConfig) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("logging.level: %w", err)
	}
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	closeFn := func() {}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, f)
		closeFn = func() { f.Close() }
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Str("service", "pol-gateway").Logger()
	return logger, closeFn, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
