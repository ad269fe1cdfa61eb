package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"YieldKeeper/internal/advisory"
	"YieldKeeper/internal/collector"
	"YieldKeeper/internal/config"
	"YieldKeeper/internal/executor"
	"YieldKeeper/internal/logger"
	"YieldKeeper/internal/metrics"
	"YieldKeeper/internal/notifier"
	"YieldKeeper/internal/recorder"
	"YieldKeeper/internal/scheduler"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	log := logger.For("main")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatal().Err(err).Msg("init logger")
	}
	log = logger.For("main")
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}
	log.Info().Str("config", cfgPath).Msg("YieldKeeper starting...")

	strategies := cfg.StrategySet()
	if len(strategies) == 0 {
		log.Warn().Msg("no strategies configured, every cycle will be skipped")
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init chain client
	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Fatal().Err(err).Msg("dial rpc")
	}
	defer client.Close()
	chainID, err := client.ChainID(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("query chain id")
	}

	key, err := executor.ParsePrivateKey(cfg.Chain.PrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("load keeper key")
	}
	vault := common.HexToAddress(cfg.Chain.VaultAddress)

	// Init reader, advisory client and submitter
	fetcher := collector.NewEVMFetcher(client, vault, cfg.Chain.RPS)
	col := collector.NewCollector(fetcher, cfg.Chain.ReadTimeout.Std())
	adv := advisory.NewClient(cfg.Advisory.URL, cfg.Advisory.Timeout.Std(), cfg.Proxy)
	sub := executor.NewSubmitter(client, key, vault, executor.Options{
		Confirmations: cfg.Chain.Confirmations,
		Timeout:       cfg.Chain.TxTimeout.Std(),
		GasLimit:      cfg.Chain.GasLimit,
	})
	log.Info().
		Str("chain_id", chainID.String()).
		Str("vault", vault.Hex()).
		Str("keeper", sub.From().Hex()).
		Uint64("confirmations", sub.Confirmations()).
		Str("advisory", cfg.Advisory.URL).
		Str("data_source", fetcher.Name()).
		Msg("chain connected")

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}
	defer rec.Close()

	deps := scheduler.Deps{
		Chain:    col,
		Advisor:  adv,
		Executor: sub,
		Recorder: rec,
	}

	// Init Telegram notifier
	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		deps.Reporter = tn
	}

	// Init scheduler
	sched, err := scheduler.New(ctx, cfg.ScheduleSpec(), strategies, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("register rebalance task")
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, logger.For("metrics")); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	sched.Start()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("Telegram polling started")
	}

	log.Info().Str("schedule", cfg.ScheduleSpec()).Msg("YieldKeeper is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, waiting for in-flight cycle...")
	cancel()
	sched.Stop()
	log.Info().Msg("YieldKeeper stopped")
}
