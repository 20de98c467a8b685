package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"kodejudge/internal/catalog"
	"kodejudge/internal/config"
	"kodejudge/internal/models"
	"kodejudge/internal/rendezvous"
	"kodejudge/internal/store"
)

type fakeQueue struct {
	ids       []uuid.UUID
	err       error
	onEnqueue func(id uuid.UUID)
}

func (f *fakeQueue) Enqueue(ctx context.Context, id uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, id)
	if f.onEnqueue != nil {
		f.onEnqueue(id)
	}
	return nil
}

func testDefaults() config.SandboxDefaults {
	return config.SandboxDefaults{
		CPUTimeLimit:             2.0,
		WallTimeLimit:            5.0,
		MemoryLimitKB:            128000,
		NumberOfRuns:             1,
		MaxAdditionalFiles:       2,
		MaxAdditionalFilesSizeKB: 1,
	}
}

func newTestService(t *testing.T, q Enqueuer) (*Service, *store.Store, *rendezvous.Board) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	st := store.New(db)
	require.NoError(t, st.Migrate())

	cat := catalog.New(catalog.Seed())
	board := rendezvous.New()
	return New(st, q, cat, board, testDefaults(), 100*time.Millisecond), st, board
}

func validSubmission() *models.Submission {
	return &models.Submission{
		LanguageID: 1,
		SourceCode: []byte("print('hi')"),
	}
}

func TestCreateEnqueues(t *testing.T) {
	q := &fakeQueue{}
	svc, st, _ := newTestService(t, q)
	ctx := context.Background()

	id, err := svc.Create(ctx, validSubmission())
	require.NoError(t, err)
	require.Len(t, q.ids, 1)
	assert.Equal(t, id, q.ids[0])

	sub, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, sub.Status)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeQueue{})
	ctx := context.Background()

	runs := 0
	big := make([]byte, 2048)
	tests := []struct {
		name          string
		sub           *models.Submission
		field         string
		unprocessable bool
	}{
		{
			name:  "missing source",
			sub:   &models.Submission{LanguageID: 1},
			field: "source_code",
		},
		{
			name:  "unknown language",
			sub:   &models.Submission{LanguageID: 999, SourceCode: []byte("x")},
			field: "language_id",
		},
		{
			name: "too many files",
			sub: &models.Submission{LanguageID: 1, SourceCode: []byte("x"), AdditionalFiles: []models.AdditionalFile{
				{Name: "a"}, {Name: "b"}, {Name: "c"},
			}},
			field: "additional_files",
		},
		{
			name: "files too large",
			sub: &models.Submission{LanguageID: 1, SourceCode: []byte("x"), AdditionalFiles: []models.AdditionalFile{
				{Name: "a", Content: big},
			}},
			field: "additional_files",
		},
		{
			name: "path separator in name",
			sub: &models.Submission{LanguageID: 1, SourceCode: []byte("x"), AdditionalFiles: []models.AdditionalFile{
				{Name: "../../etc/passwd"},
			}},
			field: "additional_files",
		},
		{
			name: "backslash in name",
			sub: &models.Submission{LanguageID: 1, SourceCode: []byte("x"), AdditionalFiles: []models.AdditionalFile{
				{Name: `a\b`},
			}},
			field: "additional_files",
		},
		{
			name:          "zero runs",
			sub:           &models.Submission{LanguageID: 1, SourceCode: []byte("x"), NumberOfRuns: &runs},
			field:         "number_of_runs",
			unprocessable: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.sub)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.unprocessable, verr.Unprocessable)
		})
	}
}

func TestCreateEmptySourceAllowed(t *testing.T) {
	q := &fakeQueue{}
	svc, _, _ := newTestService(t, q)

	_, err := svc.Create(context.Background(), &models.Submission{
		LanguageID: 1,
		SourceCode: []byte{},
	})
	require.NoError(t, err)
}

func TestCreateRollsBackOnEnqueueFailure(t *testing.T) {
	q := &fakeQueue{err: errors.New("redis down")}
	svc, st, _ := newTestService(t, q)
	ctx := context.Background()

	_, err := svc.Create(ctx, validSubmission())
	require.Error(t, err)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "failed enqueue must not leave an orphan row")
}

func TestCreateBatchAllOrNothing(t *testing.T) {
	q := &fakeQueue{}
	svc, st, _ := newTestService(t, q)
	ctx := context.Background()

	_, err := svc.CreateBatch(ctx, []*models.Submission{
		validSubmission(),
		{LanguageID: 999, SourceCode: []byte("x")},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "submission 1")

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, q.ids)
}

func TestCreateBatchEnqueuesInOrder(t *testing.T) {
	q := &fakeQueue{}
	svc, _, _ := newTestService(t, q)

	ids, err := svc.CreateBatch(context.Background(), []*models.Submission{
		validSubmission(), validSubmission(), validSubmission(),
	})
	require.NoError(t, err)
	assert.Equal(t, ids, q.ids)
}

func TestCreateAndWaitReturnsTerminal(t *testing.T) {
	var st *store.Store
	var board *rendezvous.Board
	stdout := "hi\n"
	q := &fakeQueue{}
	q.onEnqueue = func(id uuid.UUID) {
		// Stand-in for the worker: commit and announce.
		ctx := context.Background()
		if err := st.MarkProcessing(ctx, id); err != nil {
			panic(err)
		}
		if err := st.UpdateResult(ctx, id, store.Result{
			Status: models.StatusFinished,
			Stdout: &stdout,
			Meta:   &models.Meta{Message: "OK"},
		}); err != nil {
			panic(err)
		}
		board.Publish(id)
	}
	svc, s, b := newTestService(t, q)
	st, board = s, b

	final, err := svc.CreateAndWait(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, final.Status)
	require.NotNil(t, final.Stdout)
	assert.Equal(t, "hi\n", *final.Stdout)
}

func TestCreateAndWaitTimesOut(t *testing.T) {
	q := &fakeQueue{}
	svc, st, _ := newTestService(t, q)

	start := time.Now()
	_, err := svc.CreateAndWait(context.Background(), validSubmission())
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)

	// The job itself survives the timeout.
	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCreateAndWaitDeletedMidWait(t *testing.T) {
	var st *store.Store
	var board *rendezvous.Board
	q := &fakeQueue{}
	q.onEnqueue = func(id uuid.UUID) {
		ctx := context.Background()
		if err := st.Delete(ctx, id); err != nil {
			panic(err)
		}
		board.Publish(id)
	}
	svc, s, b := newTestService(t, q)
	st, board = s, b

	_, err := svc.CreateAndWait(context.Background(), validSubmission())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetDelegates(t *testing.T) {
	q := &fakeQueue{}
	svc, _, _ := newTestService(t, q)
	ctx := context.Background()

	id, err := svc.Create(ctx, validSubmission())
	require.NoError(t, err)

	sub, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, sub.ID)

	_, err = svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, id))
	assert.ErrorIs(t, svc.Delete(ctx, id), store.ErrNotFound)
}
