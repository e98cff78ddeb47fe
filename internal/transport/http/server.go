package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"homefeed/internal/cache"
	"homefeed/internal/config"
	"homefeed/internal/database"
	"homefeed/internal/handler"
	"homefeed/internal/queue"
	"homefeed/internal/redis"
	"homefeed/internal/repository"
	"homefeed/internal/service"
	"homefeed/internal/worker"
)

// Run wires every layer together and serves until SIGINT/SIGTERM.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Println("[Server] Database connection OK")

	rdb, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx); err != nil {
		return err
	}
	log.Println("[Server] Redis connection OK")

	// Repositories
	accountRepo := repository.NewAccountRepository(db)
	postRepo := repository.NewPostRepository(db)
	followRepo := repository.NewFollowRepository(db)
	feedRepo := repository.NewFeedEntryRepository(db)

	// Caches
	pageCache := cache.NewTimelineCache(rdb.Client, cfg.TimelineCacheTTL)
	accountCache := cache.NewAccountCache(rdb.Client)

	// Queue
	publisher := queue.NewPublisher(rdb.Client)
	consumer := queue.NewConsumer(rdb.Client)

	// Services
	postService := service.NewPostService(postRepo, accountRepo, feedRepo, publisher, db)
	followService := service.NewFollowService(followRepo, accountRepo, feedRepo, db, publisher)
	feedService := service.NewFeedService(pageCache, accountCache, feedRepo, postRepo, followRepo, accountRepo)
	accountService := service.NewAccountService(accountRepo, postRepo, followRepo, feedRepo, accountCache, publisher, db)

	// Background workers
	jobHandler := worker.NewHandler(followRepo, postRepo, feedRepo, accountRepo, publisher, worker.Config{
		FollowerPageSize: cfg.FollowerPageSize,
		PagesPerJob:      cfg.FanoutPagesPerJob,
		BackfillLimit:    cfg.BackfillLimit,
	})
	jobHandler.SetAccountCache(accountCache)

	manager := worker.NewManager(consumer, jobHandler, feedRepo, worker.ManagerConfig{
		WorkerCount:       cfg.WorkerCount,
		RetentionAge:      cfg.RetentionAge,
		RetentionInterval: cfg.RetentionInterval,
	})
	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer manager.Stop()

	// Handlers
	accountHandler := handler.NewAccountHandler(accountService)
	postHandler := handler.NewPostHandler(postService)
	followHandler := handler.NewFollowHandler(followService)
	feedHandler := handler.NewFeedHandler(feedService)

	router := NewRouter(accountHandler, postHandler, followHandler, feedHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("[Server] Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Println("[Server] Shutdown complete")
	return nil
}
