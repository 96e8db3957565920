package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZJUSCT/CSArena/internal/api/admin"
	"github.com/ZJUSCT/CSArena/internal/api/user"
	"github.com/ZJUSCT/CSArena/internal/config"
	"github.com/ZJUSCT/CSArena/internal/contest"
	"github.com/ZJUSCT/CSArena/internal/database"
	"github.com/ZJUSCT/CSArena/internal/pubsub"
	"github.com/ZJUSCT/CSArena/internal/scoring"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var Version = "dev-build"

func main() {

	fmt.Fprintf(os.Stderr, "ZJUSCT CSArena %s - Live Contest Scoring\n\n", Version)

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// config
	var configPath string
	flag.StringVar(&configPath, "c", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// logger
	var zcfg zap.Config
	if cfg.Logger.Level == "debug" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.Logger.File != "" {
		zcfg.OutputPaths = append(zcfg.OutputPaths, cfg.Logger.File)
	}
	logger, err := zcfg.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// database
	db, err := database.Init(cfg.Storage.Driver, cfg.Storage.Database)
	if err != nil {
		zap.S().Fatalf("failed to initialize database: %v", err)
	}
	zap.S().Infof("database initialized successfully (%s)", cfg.Storage.Driver)

	penalty, err := scoring.RuleByName(cfg.Scoring.PenaltyRule, cfg.Scoring.RejectedAttemptPenalty)
	if err != nil {
		zap.S().Fatalf("invalid scoring config: %v", err)
	}

	// events
	broker := pubsub.NewBroker()
	var publisher pubsub.Publisher = broker
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			zap.S().Fatalf("failed to connect to redis at %s: %v", cfg.Redis.Addr, err)
		}
		publisher = pubsub.NewRedisPublisher(client, cfg.Redis.Channel)
		go func() {
			if err := pubsub.NewRedisRelay(client, cfg.Redis.Channel, broker).Run(ctx); err != nil {
				zap.S().Fatalf("redis relay stopped: %v", err)
			}
		}()
		zap.S().Infof("events fan out through redis channel %s", cfg.Redis.Channel)
	}

	svc := contest.NewService(db, publisher, contest.WithPenaltyRule(penalty))

	// seed contests, teams, problems and jury accounts
	if cfg.Seed != "" {
		seed, err := contest.LoadSeed(cfg.Seed)
		if err != nil {
			zap.S().Fatalf("failed to load seed %s: %v", cfg.Seed, err)
		}
		if err := svc.ApplySeed(ctx, seed); err != nil {
			zap.S().Fatalf("failed to apply seed: %v", err)
		}
		zap.S().Infof("applied seed with %d contests and %d users", len(seed.Contests), len(seed.Users))
	}

	// API routers
	servers := []*http.Server{{Addr: cfg.Listen, Handler: user.NewUserRouter(cfg, svc, broker)}}
	if cfg.Admin.Enabled {
		servers = append(servers, &http.Server{Addr: cfg.Admin.Listen, Handler: admin.NewAdminRouter(cfg, svc, broker)})
	}

	// start servers
	for _, srv := range servers {
		go func(srv *http.Server) {
			zap.S().Infof("starting server at %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zap.S().Fatalf("failed to start server at %s: %v", srv.Addr, err)
			}
		}(srv)
	}

	// graceful shutdown
	<-ctx.Done()
	zap.S().Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.S().Errorf("server at %s forced to shutdown: %v", srv.Addr, err)
		}
	}
}
