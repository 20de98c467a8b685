package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kodejudge/internal/logging"
	"kodejudge/internal/queue"
)

// dequeueWait bounds each blocking pop so workers notice shutdown.
const dequeueWait = 2 * time.Second

// JobSource is the queue facet the pool needs.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (uuid.UUID, error)
	RecordFailure(ctx context.Context, id uuid.UUID, reason string) error
	RegisterWorker(ctx context.Context, name string) error
	UnregisterWorker(ctx context.Context, name string) error
	SetWorkerState(ctx context.Context, name string, state queue.WorkerState) error
}

// Pool runs N workers, each processing one submission at a time.
type Pool struct {
	jobs        JobSource
	newProc     func(slot int) *Processor
	concurrency int
}

// NewPool builds a pool. newProc is called once per slot so each worker
// gets its own sandbox box id.
func NewPool(jobs JobSource, concurrency int, newProc func(slot int) *Processor) *Pool {
	return &Pool{jobs: jobs, newProc: newProc, concurrency: concurrency}
}

// Run blocks until ctx is cancelled and every worker has drained.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 1; i <= p.concurrency; i++ {
		slot := i
		g.Go(func() error {
			return p.runWorker(ctx, slot)
		})
	}
	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, slot int) error {
	name := fmt.Sprintf("worker-%d", slot)
	log := logging.L().With(zap.String("worker", name))
	proc := p.newProc(slot)

	if err := p.jobs.RegisterWorker(ctx, name); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	defer func() {
		// ctx is already cancelled on shutdown.
		cleanup, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.jobs.UnregisterWorker(cleanup, name); err != nil {
			log.Warn("unregister worker", zap.Error(err))
		}
	}()

	log.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopping")
			return nil
		default:
		}

		id, err := p.jobs.Dequeue(ctx, dequeueWait)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("dequeue failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		if err := p.jobs.SetWorkerState(ctx, name, queue.WorkerBusy); err != nil {
			log.Warn("set busy", zap.Error(err))
		}
		p.processSafely(ctx, log, proc, id)
		if err := p.jobs.SetWorkerState(ctx, name, queue.WorkerIdle); err != nil && ctx.Err() == nil {
			log.Warn("set idle", zap.Error(err))
		}
	}
}

// processSafely isolates a panic to the job that caused it. The submission
// stays PROCESSING and the id is recorded on the failed-job list.
func (p *Pool) processSafely(ctx context.Context, log *zap.Logger, proc *Processor, id uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing",
				zap.String("submission_id", id.String()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			if err := p.jobs.RecordFailure(ctx, id, fmt.Sprint(r)); err != nil {
				log.Error("record failure", zap.Error(err))
			}
		}
	}()

	if err := proc.Process(ctx, id); err != nil {
		log.Error("processing failed",
			zap.String("submission_id", id.String()), zap.Error(err))
		if rerr := p.jobs.RecordFailure(ctx, id, err.Error()); rerr != nil {
			log.Error("record failure", zap.Error(rerr))
		}
	}
}
