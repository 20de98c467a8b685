// The kodejudge worker: pulls submissions off the queue and executes them
// in the sandbox. Runs as a separate process from the API server.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"kodejudge/internal/catalog"
	"kodejudge/internal/config"
	"kodejudge/internal/logging"
	"kodejudge/internal/queue"
	"kodejudge/internal/sandbox"
	"kodejudge/internal/store"
	"kodejudge/internal/worker"
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

	q, err := queue.New(cfg.RedisAddr(), cfg.RedisPrefix)
	if err != nil {
		log.Fatal("connect redis", zap.Error(err))
	}
	defer q.Close()

	useIsolate := sandbox.IsolateAvailable(cfg.IsolateBinary)
	if useIsolate {
		log.Info("using isolate sandbox", zap.String("binary", cfg.IsolateBinary))
	} else {
		log.Warn("isolate not available, falling back to process sandbox")
	}

	newProc := func(slot int) *worker.Processor {
		var runner sandbox.Runner
		if useIsolate {
			runner = sandbox.NewIsolateRunner(cfg.IsolateBinary, slot)
		} else {
			r, err := sandbox.NewProcessRunner()
			if err != nil {
				log.Fatal("init process sandbox", zap.Error(err))
			}
			runner = r
		}
		return worker.NewProcessor(st, cat, runner, q, cfg.Sandbox)
	}

	pool := worker.NewPool(q, cfg.WorkerConcurrency, newProc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("worker pool starting", zap.Int("concurrency", cfg.WorkerConcurrency))
	if err := pool.Run(ctx); err != nil {
		log.Fatal("worker pool failed", zap.Error(err))
	}
	log.Info("worker pool stopped cleanly")
}
