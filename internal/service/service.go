// Package service orchestrates the submission lifecycle: validation,
// persistence, enqueueing, and the synchronous wait path.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kodejudge/internal/catalog"
	"kodejudge/internal/config"
	"kodejudge/internal/logging"
	"kodejudge/internal/models"
	"kodejudge/internal/rendezvous"
	"kodejudge/internal/store"
)

// ErrWaitTimeout is returned when a wait-mode call outlives its budget.
// The submission keeps running; the caller can poll for it later.
var ErrWaitTimeout = errors.New("wait timeout")

// ValidationError describes a rejected payload field. Nothing is persisted
// when validation fails. Unprocessable distinguishes a well-formed value
// outside its range (422) from a malformed or unresolvable one (400).
type ValidationError struct {
	Field         string
	Reason        string
	Unprocessable bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Enqueuer is the queue facet the service needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, id uuid.UUID) error
}

// Service is the submission orchestrator shared by the HTTP handlers.
type Service struct {
	store       *store.Store
	queue       Enqueuer
	catalog     *catalog.Catalog
	board       *rendezvous.Board
	limits      config.SandboxDefaults
	waitTimeout time.Duration
}

func New(st *store.Store, q Enqueuer, cat *catalog.Catalog, board *rendezvous.Board, limits config.SandboxDefaults, waitTimeout time.Duration) *Service {
	return &Service{
		store:       st,
		queue:       q,
		catalog:     cat,
		board:       board,
		limits:      limits,
		waitTimeout: waitTimeout,
	}
}

// Create validates, persists and enqueues a submission, returning its id.
// If the enqueue fails the stored row is removed so that a successful
// return always means the job will run.
func (s *Service) Create(ctx context.Context, sub *models.Submission) (uuid.UUID, error) {
	if err := s.validate(sub); err != nil {
		return uuid.Nil, err
	}
	return s.persistAndEnqueue(ctx, sub)
}

// CreateAndWait is the wait-mode create: it blocks until the submission
// reaches a terminal state or the wait budget expires, whichever is first.
// A submission deleted while the caller waits comes back as
// store.ErrNotFound.
func (s *Service) CreateAndWait(ctx context.Context, sub *models.Submission) (*models.Submission, error) {
	if err := s.validate(sub); err != nil {
		return nil, err
	}

	// The waiter must exist before the job is visible to any worker.
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	done, cancel := s.board.Register(sub.ID)
	defer cancel()

	id, err := s.persistAndEnqueue(ctx, sub)
	if err != nil {
		return nil, err
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, s.waitTimeout)
	defer cancelWait()
	s.board.Await(waitCtx, done)

	final, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if final.Status.IsTerminal() {
		return final, nil
	}
	return nil, ErrWaitTimeout
}

// CreateBatch validates every payload up front; one bad entry rejects the
// whole batch with no rows written.
func (s *Service) CreateBatch(ctx context.Context, subs []*models.Submission) ([]uuid.UUID, error) {
	if len(subs) == 0 {
		return nil, &ValidationError{Field: "submissions", Reason: "batch is empty"}
	}
	for i, sub := range subs {
		if err := s.validate(sub); err != nil {
			return nil, fmt.Errorf("submission %d: %w", i, err)
		}
	}

	ids, err := s.store.CreateMany(ctx, subs)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		if err := s.queue.Enqueue(ctx, id); err != nil {
			// Roll back the rows that never made it onto the queue.
			for _, orphan := range ids[i:] {
				if derr := s.store.Delete(ctx, orphan); derr != nil && !errors.Is(derr, store.ErrNotFound) {
					logging.L().Error("rollback after enqueue failure",
						zap.String("submission_id", orphan.String()), zap.Error(derr))
				}
			}
			return nil, fmt.Errorf("enqueue submission %s: %w", id, err)
		}
	}
	return ids, nil
}

// Get fetches one submission.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	return s.store.Get(ctx, id)
}

// GetBatch fetches a batch, input order preserved, missing ids dropped.
func (s *Service) GetBatch(ctx context.Context, ids []uuid.UUID) ([]models.Submission, error) {
	return s.store.GetMany(ctx, ids)
}

// List returns one page ordered newest first.
func (s *Service) List(ctx context.Context, page, pageSize int) (*store.Page, error) {
	return s.store.List(ctx, page, pageSize)
}

// Delete removes a submission. A worker already holding the job keeps
// running; its commit is discarded by the store.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) persistAndEnqueue(ctx context.Context, sub *models.Submission) (uuid.UUID, error) {
	id, err := s.store.Create(ctx, sub)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.queue.Enqueue(ctx, id); err != nil {
		if derr := s.store.Delete(ctx, id); derr != nil && !errors.Is(derr, store.ErrNotFound) {
			logging.L().Error("rollback after enqueue failure",
				zap.String("submission_id", id.String()), zap.Error(derr))
		}
		return uuid.Nil, fmt.Errorf("enqueue submission: %w", err)
	}
	return id, nil
}

func (s *Service) validate(sub *models.Submission) error {
	if sub.SourceCode == nil {
		return &ValidationError{Field: "source_code", Reason: "required"}
	}
	if _, err := s.catalog.Get(sub.LanguageID); err != nil {
		return &ValidationError{Field: "language_id", Reason: fmt.Sprintf("unknown language %d", sub.LanguageID)}
	}

	if n := len(sub.AdditionalFiles); n > s.limits.MaxAdditionalFiles {
		return &ValidationError{
			Field:  "additional_files",
			Reason: fmt.Sprintf("at most %d files allowed, got %d", s.limits.MaxAdditionalFiles, n),
		}
	}
	total := 0
	for _, f := range sub.AdditionalFiles {
		if err := checkFileName(f.Name); err != nil {
			return err
		}
		total += len(f.Content)
	}
	if limit := s.limits.MaxAdditionalFilesSizeKB * 1024; total > limit {
		return &ValidationError{
			Field:  "additional_files",
			Reason: fmt.Sprintf("total size %d exceeds %d bytes", total, limit),
		}
	}

	return validateLimits(sub)
}

func checkFileName(name string) error {
	switch {
	case name == "":
		return &ValidationError{Field: "additional_files", Reason: "file name must not be empty"}
	case strings.ContainsAny(name, `/\`):
		return &ValidationError{Field: "additional_files", Reason: fmt.Sprintf("file name %q must not contain path separators", name)}
	case strings.Contains(name, ".."):
		return &ValidationError{Field: "additional_files", Reason: fmt.Sprintf("file name %q must not contain '..'", name)}
	}
	return nil
}

func validateLimits(sub *models.Submission) error {
	checks := []struct {
		field string
		bad   bool
	}{
		{"cpu_time_limit", sub.CPUTimeLimit != nil && *sub.CPUTimeLimit < 0},
		{"cpu_extra_time", sub.CPUExtraTime != nil && *sub.CPUExtraTime < 0},
		{"wall_time_limit", sub.WallTimeLimit != nil && *sub.WallTimeLimit < 0},
		{"memory_limit", sub.MemoryLimit != nil && *sub.MemoryLimit < 0},
		{"max_processes_and_or_threads", sub.MaxProcesses != nil && *sub.MaxProcesses < 0},
		{"max_file_size", sub.MaxFileSize != nil && *sub.MaxFileSize < 0},
		{"number_of_runs", sub.NumberOfRuns != nil && *sub.NumberOfRuns < 1},
	}
	for _, c := range checks {
		if c.bad {
			return &ValidationError{Field: c.field, Reason: "out of range", Unprocessable: true}
		}
	}
	return nil
}
