package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/trailhub/trailhub-api/internal/config"
	"github.com/trailhub/trailhub-api/internal/database"
	"github.com/trailhub/trailhub-api/internal/handler"
	"github.com/trailhub/trailhub-api/internal/middleware"
	"github.com/trailhub/trailhub-api/internal/queue"
	"github.com/trailhub/trailhub-api/internal/repository"
	"github.com/trailhub/trailhub-api/internal/router"
	"github.com/trailhub/trailhub-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cacheCfg, err := config.LoadCacheConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	redisCfg, err := config.LoadRedisConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
	err = database.Migrate(migrateCtx, db)
	cancel()
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// Redis backs rate limiting and the response cache; both switch off
	// when it is unreachable.
	rdb := config.NewRedisClient(redisCfg)
	if rdb == nil {
		log.Printf("redis unavailable at %s; rate limiting and caching disabled", redisCfg.Address())
	} else {
		defer rdb.Close()
	}

	// ── Repositories and services ─────────────────────────────────────────
	store := repository.NewStore(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	events := repository.NewEventRepo(db)
	requests := repository.NewJoinRequestRepo(db)
	participants := repository.NewParticipantRepo(db)
	notifications := repository.NewNotificationRepo(db)

	var publisher queue.Publisher
	if cfg.RabbitURL != "" {
		publisher = queue.NewAMQPPublisher(cfg.RabbitURL, cfg.ActivityQueue)
	}

	eventSvc := service.NewEventService(events)
	joinSvc := service.NewJoinService(store, events, requests, participants, notifications, publisher)
	inboxSvc := service.NewNotificationService(notifications)

	// ── HTTP ──────────────────────────────────────────────────────────────
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.Logger())

	limiter := middleware.NewTokenBucket(rlCfg, rdb)
	cache := middleware.NewRedisCache(cacheCfg, rdb)

	eventHandler := handler.NewEventHandler(eventSvc)
	joinHandler := handler.NewJoinHandler(joinSvc)

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret, limiter)
	router.RegisterPublic(e, eventHandler, cfg.JWTSecret, limiter, cache)
	router.RegisterMember(e, joinHandler, handler.NewNotificationHandler(inboxSvc), cfg.JWTSecret, limiter)
	router.RegisterOrganizer(e, eventHandler, joinHandler, cfg.JWTSecret, limiter)
	router.RegisterAdmin(e, eventHandler, cfg.JWTSecret)

	// ── Background consumer ───────────────────────────────────────────────
	if cfg.ConsumerEnabled && cfg.RabbitURL != "" {
		consumer := &queue.ActivityConsumer{URL: cfg.RabbitURL, Queue: cfg.ActivityQueue, LogDir: cfg.ActivityLogDir}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("activity consumer stopped: %v", err)
			}
		}()
	}

	// ── Start server with graceful shutdown ───────────────────────────────
	e.Server.ReadTimeout = 15 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("shutting down server…")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		os.Exit(1)
	}
	log.Println("server stopped")
}
