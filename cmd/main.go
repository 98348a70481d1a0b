package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquid-node/config"
	"liquid-node/db"
	"liquid-node/differ"
	"liquid-node/features"
	"liquid-node/handlers"
	"liquid-node/logger"
	"liquid-node/metrics"
	"liquid-node/models"
	"liquid-node/repository"
	"liquid-node/routers"
	"liquid-node/signature"
	"liquid-node/updater"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "liquid-node",
	Short: "run a node keeping liquid block and microblock state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "config/config.yaml", "path to the config file")
	rootCmd.AddCommand(genesisCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	if err := logger.InitLogger(logger.Options{
		File:     cfg.Log.AppLogFile,
		Level:    cfg.Log.Level,
		Encoding: cfg.Log.Encoding,
		Fields:   map[string]string{"service": "liquid-node"},
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Logger.Sync() }()

	logger.Logger.Info("Starting liquid node...")

	// Connect to LevelDB
	ldb, err := db.NewLevelDB(cfg.LevelDB.Path)
	if err != nil {
		logger.Logger.Error("Failed to open leveldb", zap.Error(err))
		return err
	}
	defer ldb.Close()

	repo, err := repository.NewChainRepository(ldb, repository.FeatureSettings{CheckPeriod: cfg.Features.CheckPeriod}, cfg.LevelDB.BlockCache)
	if err != nil {
		logger.Logger.Error("Failed to open chain repository", zap.Error(err))
		return err
	}
	logger.Logger.Info("Loaded durable chain", zap.Int("height", repo.Height()))

	tracker := features.NewTracker(features.Settings{
		CheckPeriod:               cfg.Features.CheckPeriod,
		ActivationThreshold:       cfg.Features.ActivationThreshold,
		AutoShutdownOnUnsupported: cfg.Features.AutoShutdownOnUnsupported,
		Implemented:               cfg.Features.Implemented,
	}, repo, features.WithShutdownHook(func() {
		_ = logger.Logger.Sync()
		_ = ldb.Close()
		os.Exit(features.UnsupportedFeatureExitCode)
	}))

	u := updater.New(repo,
		differ.New(differ.Settings{
			MaxTxAheadMillis:  cfg.Differ.MaxTxAheadMillis,
			MaxTxBehindMillis: cfg.Differ.MaxTxBehindMillis,
		}),
		signature.NewEd25519Verifier(),
		tracker,
		updater.WithMetrics(metrics.NewUpdaterCollector(prometheus.DefaultRegisterer)),
	)

	tips, unsubscribe := u.Subscribe(64)
	defer unsubscribe()
	go logTips(tips)

	// Setup router
	r := mux.NewRouter()
	routers.RegisterRoutes(r, handlers.NewHandler(u), prometheus.DefaultGatherer)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Error("Server stopped", zap.Error(err))
		}
	}()

	logger.Logger.Info("Server running on port", zap.Int("port", cfg.Server.Port))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Logger.Info("Shutdown signal received, exiting...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func logTips(tips <-chan models.BlockID) {
	log := logger.Component("tips")
	for id := range tips {
		log.Debug("New liquid tip", zap.String("block_id", string(id)))
	}
}
