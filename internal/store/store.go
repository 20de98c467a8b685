// Package store owns the durable submission records.
//
// All status transitions go through conditional updates so that a row can
// never move backwards out of a terminal state and a worker's write to a
// deleted or already-terminal submission is discarded rather than applied.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"kodejudge/internal/catalog"
	"kodejudge/internal/models"
)

var (
	// ErrNotFound is returned when a submission id does not exist.
	ErrNotFound = errors.New("submission not found")
	// ErrConflict is returned when a status transition would violate
	// monotonic ordering (the row is terminal or was deleted).
	ErrConflict = errors.New("illegal status transition")
	// ErrBadPage is returned for out-of-range pagination parameters.
	ErrBadPage = errors.New("invalid pagination parameters")
)

// Page is one page of a submission listing.
type Page struct {
	Items       []models.Submission `json:"items"`
	TotalItems  int64               `json:"total_items"`
	TotalPages  int64               `json:"total_pages"`
	CurrentPage int                 `json:"current_page"`
	PageSize    int                 `json:"page_size"`
}

// Store is the gorm-backed submission repository.
type Store struct {
	db *gorm.DB
}

// Open connects to PostgreSQL and returns a ready store.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing gorm handle. Used by tests with the sqlite driver.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health probes.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate creates the schema and installs the language seed idempotently.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&models.Language{}, &models.Submission{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, lang := range catalog.Seed() {
		var existing models.Language
		err := s.db.Where("id = ?", lang.ID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := s.db.Create(&lang).Error; err != nil {
				return fmt.Errorf("seed language %q: %w", lang.Name, err)
			}
		case err != nil:
			return err
		default:
			lang.CreatedAt = existing.CreatedAt
			if err := s.db.Save(&lang).Error; err != nil {
				return fmt.Errorf("update language %q: %w", lang.Name, err)
			}
		}
	}
	return nil
}

// Create persists a new submission in PENDING state and returns its id.
func (s *Store) Create(ctx context.Context, sub *models.Submission) (uuid.UUID, error) {
	sub.Status = models.StatusPending
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return uuid.Nil, err
	}
	return sub.ID, nil
}

// CreateMany persists a batch atomically; either every submission is
// created or none are.
func (s *Store) CreateMany(ctx context.Context, subs []*models.Submission) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(subs))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sub := range subs {
			sub.Status = models.StatusPending
			if err := tx.Create(sub).Error; err != nil {
				return err
			}
			ids = append(ids, sub.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Get fetches one submission.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	var sub models.Submission
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetMany fetches a batch of submissions. The result follows the input
// order with duplicates collapsed and missing ids dropped.
func (s *Store) GetMany(ctx context.Context, ids []uuid.UUID) ([]models.Submission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Submission
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Submission, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	out := make([]models.Submission, 0, len(rows))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if sub, ok := byID[id]; ok {
			out = append(out, sub)
		}
	}
	return out, nil
}

// List returns one page ordered by creation time descending.
func (s *Store) List(ctx context.Context, page, pageSize int) (*Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1", ErrBadPage)
	}
	if pageSize < 1 || pageSize > 100 {
		return nil, fmt.Errorf("%w: page_size must be in [1,100]", ErrBadPage)
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Submission{}).Count(&total).Error; err != nil {
		return nil, err
	}

	var items []models.Submission
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	totalPages := (total + int64(pageSize) - 1) / int64(pageSize)
	return &Page{
		Items:       items,
		TotalItems:  total,
		TotalPages:  totalPages,
		CurrentPage: page,
		PageSize:    pageSize,
	}, nil
}

// MarkProcessing transitions a PENDING submission to PROCESSING. The
// conditional update guarantees at most one worker wins the row.
func (s *Store) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Update("status", models.StatusProcessing)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.transitionFailure(ctx, id)
	}
	return nil
}

// Result carries the terminal fields written by a worker commit.
type Result struct {
	Status        models.Status
	Stdout        *string
	Stderr        *string
	CompileOutput *string
	Meta          *models.Meta
}

// UpdateResult commits a terminal result. The update only applies while the
// row is still non-terminal, enforcing monotonic status; a row deleted
// mid-flight yields ErrNotFound and the caller discards the result.
func (s *Store) UpdateResult(ctx context.Context, id uuid.UUID, r Result) error {
	if !r.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrConflict, r.Status)
	}
	res := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND status IN ?", id, []models.Status{models.StatusPending, models.StatusProcessing}).
		Select("status", "stdout", "stderr", "compile_output", "meta").
		Updates(models.Submission{
			Status:        r.Status,
			Stdout:        r.Stdout,
			Stderr:        r.Stderr,
			CompileOutput: r.CompileOutput,
			Meta:          r.Meta,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.transitionFailure(ctx, id)
	}
	return nil
}

// Delete removes a submission. Deleting a row that a worker currently owns
// is allowed; the worker's later commit is discarded by UpdateResult.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Submission{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the total number of stored submissions.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Submission{}).Count(&n).Error
	return n, err
}

// Ping verifies database connectivity and reports the round-trip time.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	var one int
	err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
	return time.Since(start), err
}

// transitionFailure distinguishes a deleted row from an illegal transition.
func (s *Store) transitionFailure(ctx context.Context, id uuid.UUID) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Submission{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}
