// The kodejudge API server: accepts submissions, serves results, and
// bridges worker completions to wait-mode callers.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"kodejudge/internal/catalog"
	"kodejudge/internal/config"
	"kodejudge/internal/health"
	"kodejudge/internal/httpapi"
	"kodejudge/internal/logging"
	"kodejudge/internal/middleware"
	"kodejudge/internal/queue"
	"kodejudge/internal/rendezvous"
	"kodejudge/internal/service"
	"kodejudge/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init()
		logging.L().Fatal("load config", zap.Error(err))
	}
	logging.Init()
	defer logging.Sync()
	log := logging.L()

	st, err := store.Open(cfg.PostgresDSN())
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	if err := st.Migrate(); err != nil {
		log.Fatal("migrate database", zap.Error(err))
	}

	cat, err := catalog.Load(st.DB())
	if err != nil {
		log.Fatal("load language catalog", zap.Error(err))
	}
	log.Info("language catalog loaded", zap.Int("languages", cat.Len()))

	q, err := queue.New(cfg.RedisAddr(), cfg.RedisPrefix)
	if err != nil {
		log.Fatal("connect redis", zap.Error(err))
	}
	defer q.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	board := rendezvous.New()
	completions, err := q.SubscribeCompletions(ctx)
	if err != nil {
		log.Fatal("subscribe completions", zap.Error(err))
	}
	go func() {
		for id := range completions {
			board.Publish(id)
		}
	}()

	svc := service.New(st, q, cat, board, cfg.Sandbox, cfg.WaitTimeout)
	hs := health.New(st, q, cat)

	opts := httpapi.Options{Production: cfg.Environment == "production"}
	if cfg.RateLimitEnabled {
		opts.RateLimiter = middleware.NewIPRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	}
	router := httpapi.NewRouter(httpapi.NewHandler(svc, hs, cat), opts)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server stopped cleanly")
}
