package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/boardgames/wonders-server-go/internal/bot"
	"github.com/boardgames/wonders-server-go/internal/catalog"
	"github.com/boardgames/wonders-server-go/internal/config"
	"github.com/boardgames/wonders-server-go/internal/game"
	"github.com/boardgames/wonders-server-go/internal/repository"
	"github.com/boardgames/wonders-server-go/internal/server"
)

var (
	configPath   = flag.String("config", "config/config.yaml", "path to configuration file")
	hashPassword = flag.String("hash-password", "", "print the bcrypt hash of a password for auth.admin_password_hash and exit")
	version      = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	if *hashPassword != "" {
		hash, err := server.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting wonders server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	if cfg.Auth.AdminPasswordHash == "" {
		logger.Warn("admin password not configured; admin RPC access disabled")
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("jwt secret not configured; players choose their own ids")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Storage: Postgres when configured, otherwise in memory
	var store game.Store = game.NewMemoryStore()
	var catalogStore *repository.CatalogStore
	if cfg.Database.URL != "" {
		db, err := repository.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to prepare database", zap.Error(err))
		}

		stats := db.Stats()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)
		store = repository.NewGameStore(db)
		catalogStore = repository.NewCatalogStore(db)
	} else {
		logger.Warn("database url not configured; games are kept in memory only")
	}

	cat, source, err := loadCatalog(ctx, cfg.Game.CatalogFile, catalogStore)
	if err != nil {
		logger.Fatal("failed to load catalog", zap.Error(err))
	}
	logger.Info("catalog loaded",
		zap.String("source", source),
		zap.Int("cards", len(cat.Cards)),
		zap.Int("wonders", len(cat.Wonders)),
	)

	// Initialize game manager
	rules := game.Rules{
		StartingCoins: cfg.Game.StartingCoins,
		DiscardBonus:  cfg.Game.DiscardBonus,
		RoundTimeout:  cfg.Game.RoundTimeout,
	}
	gameMgr := game.NewManager(cat, store, rules, logger)
	gameMgr.SetBotLauncher(bot.Launcher(cfg.Game.BotDelay, logger))
	logger.Info("game manager initialized",
		zap.Int("starting_coins", rules.StartingCoins),
		zap.Int("discard_bonus", rules.DiscardBonus),
		zap.Duration("round_timeout", rules.RoundTimeout),
	)

	grpcServer, healthServer := server.NewGRPCServer(server.GRPCOptions{
		Manager:              gameMgr,
		Version:              version,
		AdminPasswordHash:    cfg.Auth.AdminPasswordHash,
		MaxConcurrentStreams: cfg.Server.GRPC.MaxConcurrentStreams,
		Logger:               logger,
	})

	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}

	// Start gRPC server
	go func() {
		logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
		if serveErr := grpcServer.Serve(lis); serveErr != nil {
			logger.Error("gRPC server error", zap.Error(serveErr))
		}
	}()

	issuer := server.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	hub := server.NewHub(gameMgr, issuer, cfg.Server.WebSocket, cfg.Game.DefaultMaxPlayers, logger)
	httpServer := &http.Server{
		Addr: cfg.Server.HTTP.Address,
		Handler: server.NewRouter(server.RouterOptions{
			Hub:               hub,
			Manager:           gameMgr,
			Issuer:            issuer,
			WebSocketPath:     cfg.Server.WebSocket.Path,
			PublicURL:         cfg.Server.PublicURL,
			DefaultMaxPlayers: cfg.Game.DefaultMaxPlayers,
			Logger:            logger,
		}),
		ReadHeaderTimeout: cfg.Server.HTTP.ReadTimeout,
	}

	// Start HTTP and WebSocket server
	go func() {
		logger.Info("starting HTTP server",
			zap.String("address", cfg.Server.HTTP.Address),
			zap.String("websocket_path", cfg.Server.WebSocket.Path),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	logger.Info("wonders server initialized",
		zap.String("version", version),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.String("http_address", cfg.Server.HTTP.Address),
	)

	// Wait for termination signal
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	hub.Close()

	if err := gameMgr.Shutdown(shutdownCtx); err != nil {
		logger.Warn("games did not stop in time", zap.Error(err))
	}
	cancel()

	grpcServer.GracefulStop()

	logger.Info("wonders server stopped")
}

// loadCatalog prefers an explicit file, then a catalog stored in the
// database, then the embedded default.
func loadCatalog(ctx context.Context, path string, stored *repository.CatalogStore) (*catalog.Catalog, string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read catalog %s: %w", path, err)
		}
		cat, err := catalog.Parse(data)
		if err != nil {
			return nil, "", err
		}
		return cat, path, nil
	}

	if stored != nil {
		cat, err := stored.Load(ctx)
		if err != nil {
			return nil, "", err
		}
		if cat != nil {
			return cat, "database", nil
		}
	}

	cat, err := catalog.Default()
	if err != nil {
		return nil, "", err
	}
	return cat, "embedded", nil
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
