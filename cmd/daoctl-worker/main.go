package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	surreal "github.com/surrealdb/surrealdb.go"

	"github.com/aibtcdev/daoctl/internal/clients"
	"github.com/aibtcdev/daoctl/internal/common"
	"github.com/aibtcdev/daoctl/internal/platform"
	"github.com/aibtcdev/daoctl/internal/storage/queuestore"
	"github.com/aibtcdev/daoctl/internal/tasks"
)

// healthLogInterval is how often the running Manager's health snapshot is
// logged to stderr. There is no HTTP surface to poll it from (spec.md
// Non-goals: no HTTP/REST API).
const healthLogInterval = 60 * time.Second

func main() {
	configPath := os.Getenv("DAOCTL_CONFIG")

	config, err := common.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := common.NewLogger(config.Logging.Level)
	platformLogger := common.NewPlatformLogger(logger)

	common.PrintBanner(config, logger)

	ctx, cancel := context.WithTimeout(context.Background(), config.Storage.Queue.GetTimeout())
	store, err := connectQueueStore(ctx, config, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect queue store")
	}

	blockchainClient := clients.NewBlockchainClient(
		config.Clients.Blockchain.RPCEndpoint,
		config.Clients.Blockchain.RateLimit,
		config.Clients.Blockchain.FundingSigningKey,
		config.Clients.Blockchain.GetTimeout(),
	)

	var aiClient clients.AIClient
	if config.Clients.AI.APIKey != "" {
		aiClient, err = clients.NewAIClient(context.Background(), config.Clients.AI.APIKey, config.Clients.AI.Model)
		if err != nil {
			logger.Error().Err(err).Msg("AI client unavailable, proposal_summary will stay disabled")
		}
	}

	socialClient := clients.NewSocialClient(config.Clients.Social.Endpoint, config.Clients.Social.APIKey, config.Clients.Social.APISecret)

	tasks.Configure(blockchainClient, aiClient, socialClient, store, config.Clients.Blockchain.TreasuryWallet)

	registry := platform.DefaultRegistry()
	if err := platform.ApplyOverlay(registry, common.EnvConfigSource{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply job type overlay")
	}
	if err := registry.FinalizeDiscovery(); err != nil {
		logger.Fatal().Err(err).Msg("failed to finalize task discovery")
	}

	managerCfg := platform.ManagerConfig{
		WorkerCount:        config.Worker.Workers,
		ShutdownGraceful:   time.Duration(config.Worker.GracefulShutdownSeconds) * time.Second,
		DeadLetterCapacity: config.Worker.DeadLetterCapacity,
		MonitoringMode:     platform.ParseMonitoringMode(config.Worker.MonitoringDedupMode),
	}

	manager, err := platform.NewManager(registry, platform.NewSystemClock(), platformLogger, managerCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build job execution manager")
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	if err := manager.Start(runCtx); err != nil {
		runCancel()
		logger.Fatal().Err(err).Msg("failed to start job execution manager")
	}

	healthTicker := time.NewTicker(healthLogInterval)
	defer healthTicker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

loop:
	for {
		select {
		case <-healthTicker.C:
			logHealth(logger, manager)
		case <-sigChan:
			logger.Info().Msg("shutdown signal received")
			break loop
		}
	}

	runCancel()
	manager.Stop()
	common.PrintShutdownBanner(logger)
}

func connectQueueStore(ctx context.Context, config *common.Config, logger *common.Logger) (queuestore.Store, error) {
	qc := config.Storage.Queue
	db, err := surreal.New(qc.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", qc.Endpoint, err)
	}
	if qc.Username != "" {
		if _, err := db.SignIn(ctx, map[string]interface{}{"user": qc.Username, "pass": qc.Password}); err != nil {
			return nil, fmt.Errorf("sign in: %w", err)
		}
	}
	if err := db.Use(ctx, qc.Namespace, qc.Database); err != nil {
		return nil, fmt.Errorf("select namespace/database: %w", err)
	}
	return queuestore.NewSurrealStore(db, logger), nil
}

func logHealth(logger *common.Logger, manager *platform.Manager) {
	h := manager.Health()
	logger.Info().
		Str("status", h.Overall.String()).
		Int("busy", h.Workers.Busy).
		Int("idle", h.Workers.Idle).
		Int("dead_letter_depth", h.DeadLetterDepth).
		Msg("health snapshot")
}
