package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Kerhoff/DailyCast/internal/api"
	"github.com/Kerhoff/DailyCast/internal/cache"
	"github.com/Kerhoff/DailyCast/internal/collaborator"
	"github.com/Kerhoff/DailyCast/internal/config"
	"github.com/Kerhoff/DailyCast/internal/handlers"
	"github.com/Kerhoff/DailyCast/internal/metrics"
	"github.com/Kerhoff/DailyCast/internal/repository/postgres"
	"github.com/Kerhoff/DailyCast/internal/service"
	"github.com/Kerhoff/DailyCast/internal/telegram"
	"github.com/Kerhoff/DailyCast/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.LogLevel, cfg.LogFormat)
	l.Info("Starting DailyCast...")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := config.NewDatabase(ctx, cfg.DatabaseURL, l)
	if err != nil {
		l.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(cfg.MigrationsPath); err != nil {
		l.Fatalf("Failed to run migrations: %v", err)
	}

	// Repositories
	tx := postgres.NewTxManager(db.DB)
	repos := service.Repositories{
		Channels:     postgres.NewChannelRepository(db.DB),
		MessageTypes: postgres.NewMessageTypeRepository(db.DB),
		Cells:        postgres.NewContentCellRepository(db.DB),
		ChannelUsers: postgres.NewChannelUserRepository(db.DB),
		Groups:       postgres.NewGroupRepository(db.DB),
		Memberships:  postgres.NewMembershipRepository(db.DB),
		Transitions:  postgres.NewTransitionRepository(db.DB),
		Jobs:         postgres.NewDeliveryJobRepository(db.DB),
	}

	m := metrics.New()

	opts := []service.Option{
		service.WithMetrics(m),
		service.WithLanguage(cfg.Generator.Language),
		service.WithGenerator(collaborator.NewGenerator(collaborator.ClientConfig{
			BaseURL: cfg.Generator.BaseURL,
			APIKey:  cfg.Generator.APIKey,
			Timeout: cfg.Generator.Timeout,
			Retries: cfg.Generator.Retries,
		}, l)),
		service.WithSynthesizer(collaborator.NewSpeech(collaborator.ClientConfig{
			BaseURL: cfg.Speech.BaseURL,
			APIKey:  cfg.Speech.APIKey,
			Timeout: cfg.Speech.Timeout,
			Retries: cfg.Speech.Retries,
		}, l)),
		service.WithVoices(service.Voices{
			Mom:   cfg.Speech.MomVoice,
			Child: cfg.Speech.ChildVoice,
			Speed: cfg.Speech.Speed,
		}),
	}

	// Estimate cache
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(ctx, cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			l.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		opts = append(opts, service.WithEstimateCache(cache.NewEstimateStore(rdb, cfg.Redis.EstimateTTL)))
	} else {
		l.Warn("REDIS_ADDR not set, audience estimates are not cached")
	}

	// Service layer
	svc := service.New(l, tx, repos, opts...)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		svc.StartLifecycleCutover(ctx, cfg.Scheduling.CutoverInterval)
		return nil
	})

	// Telegram bot
	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(cfg.Telegram.Token, l)
		if err != nil {
			l.Fatalf("Failed to create Telegram bot: %v", err)
		}

		start := handlers.NewStartHandler(svc, cfg.Telegram.ChannelID, l)
		bot.RegisterCommand("start", start)
		bot.RegisterContact(start)
		bot.RegisterCommand("stop", handlers.NewStopHandler(svc, cfg.Telegram.ChannelID, l))
		bot.RegisterCommand("level", handlers.NewLevelHandler(svc, cfg.Telegram.ChannelID, l))
		bot.RegisterCommand("help", handlers.NewHelpHandler(l))

		g.Go(func() error { return bot.Start(ctx) })
		g.Go(func() error {
			svc.StartDispatchWorker(ctx, bot, cfg.Scheduling.DispatchInterval)
			return nil
		})
	} else {
		logger.WithFields(l, logrus.Fields{"component": "dispatch"}).Warn("TELEGRAM_TOKEN not set, scheduled jobs will not be dispatched")
	}

	// HTTP servers
	apiServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewServer(svc, db, l).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + cfg.PrometheusPort,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	for _, srv := range []*http.Server{apiServer, metricsServer} {
		g.Go(func() error {
			l.Infof("HTTP server listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	l.Info("DailyCast started successfully")

	if err := g.Wait(); err != nil {
		l.Errorf("DailyCast stopped with error: %v", err)
		return
	}

	l.Info("DailyCast stopped")
}
