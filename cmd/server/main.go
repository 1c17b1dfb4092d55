package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/auragrid/arbiter-server-go/internal/abilities"
	"github.com/auragrid/arbiter-server-go/internal/config"
	"github.com/auragrid/arbiter-server-go/internal/game"
	"github.com/auragrid/arbiter-server-go/internal/game/board"
	"github.com/auragrid/arbiter-server-go/internal/game/rules"
	"github.com/auragrid/arbiter-server-go/internal/repository"
	"github.com/auragrid/arbiter-server-go/internal/server"
	"github.com/auragrid/arbiter-server-go/internal/session"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting arbiter server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	if cfg.Session.Secret == "" {
		logger.Warn("session secret not configured; tokens are signed with an empty key")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Persistence is optional: with no database URL the engine runs purely
	// in memory and anti-cheat records do not survive restarts.
	var (
		store        game.SnapshotStore
		records      game.RecordStore
		enforcer     *repository.RestrictionRepository
		restrictions server.RestrictionChecker
	)
	if cfg.Database.URL != "" {
		db, dbErr := repository.NewDB(ctx, cfg.Database, logger)
		if dbErr != nil {
			logger.Fatal("failed to connect to database", zap.Error(dbErr))
		}
		defer db.Close()

		stats := db.Stats()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)

		store = repository.NewMatchRepository(db)
		records = repository.NewAntiCheatRepository(db)
		enforcer = repository.NewRestrictionRepository(db)
		restrictions = enforcer
	} else {
		logger.Warn("no database configured; running without persistence")
	}

	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
			logger.Warn("redis unreachable; rate limiting fails open", zap.Error(pingErr))
		}
		pingCancel()
		defer redisClient.Close()
	}

	sessionMgr := session.NewManager(cfg.Session.Secret, cfg.Session.TTL, logger)
	logger.Info("session manager initialized", zap.Duration("ttl", cfg.Session.TTL))

	var recorder *game.ReplayRecorder
	if cfg.Replay.Enabled {
		recorder = game.NewReplayRecorder(logger, cfg.Replay.Dir)
		logger.Info("replay recorder initialized", zap.String("dir", cfg.Replay.Dir))
	}

	hub := server.NewHub(logger)

	opts := game.Options{
		Grid:              board.Grid{Width: cfg.Match.GridWidth, Height: cfg.Match.GridHeight},
		TurnTimeLimit:     cfg.Match.TurnTimeLimit,
		TurnCap:           cfg.Match.TurnCap,
		MaxAura:           cfg.Match.MaxAura,
		AuraRegen:         cfg.Match.AuraRegen,
		MaxActionsPerTurn: cfg.AntiCheat.MaxActionsPerTurn,
		MinSubmitInterval: cfg.AntiCheat.MinSubmitInterval,
		RequirePath:       cfg.Match.RequirePath,
	}

	// A nil *RestrictionRepository must stay a nil interface.
	var penaltyEnforcer rules.PenaltyEnforcer
	if enforcer != nil {
		penaltyEnforcer = enforcer
	}

	manager := game.NewManager(opts, abilities.DefaultCatalog(), store, records, recorder, hub, penaltyEnforcer, logger)
	logger.Info("match manager initialized",
		zap.Int("grid_width", opts.Grid.Width),
		zap.Int("grid_height", opts.Grid.Height),
		zap.Duration("turn_time_limit", opts.TurnTimeLimit),
	)

	srv := server.NewServer(cfg, manager, sessionMgr, hub, restrictions, redisClient, logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: srv.Router(),
	}

	go func() {
		logger.Info("starting http server", zap.String("address", cfg.Server.Address))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(serveErr))
		}
	}()

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}

	logger.Info("arbiter server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
