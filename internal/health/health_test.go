package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kodejudge/internal/queue"
)

type fakeDB struct {
	err   error
	count int64
}

func (f *fakeDB) Ping(ctx context.Context) (time.Duration, error) {
	return 2 * time.Millisecond, f.err
}

func (f *fakeDB) Count(ctx context.Context) (int64, error) {
	return f.count, nil
}

type fakeQueue struct {
	pingErr error
	size    int64
	failed  int64
	workers []queue.WorkerInfo
}

func (f *fakeQueue) Ping(ctx context.Context) (time.Duration, error) {
	return time.Millisecond, f.pingErr
}
func (f *fakeQueue) Size(ctx context.Context) (int64, error)        { return f.size, nil }
func (f *fakeQueue) FailedCount(ctx context.Context) (int64, error) { return f.failed, nil }
func (f *fakeQueue) ListWorkers(ctx context.Context) ([]queue.WorkerInfo, error) {
	return f.workers, nil
}
func (f *fakeQueue) Name() string { return "kodejudge_submission_queue" }

type fakeCatalog struct{ n int }

func (f fakeCatalog) Len() int { return f.n }

func idleBusy() []queue.WorkerInfo {
	return []queue.WorkerInfo{
		{Name: "worker-1", State: queue.WorkerIdle},
		{Name: "worker-2", State: queue.WorkerBusy},
	}
}

func TestCheckDatabase(t *testing.T) {
	svc := New(&fakeDB{}, &fakeQueue{}, fakeCatalog{})
	report := svc.CheckDatabase(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.NotEmpty(t, report.ResponseTime)

	svc = New(&fakeDB{err: errors.New("connection refused")}, &fakeQueue{}, fakeCatalog{})
	report = svc.CheckDatabase(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Contains(t, report.Error, "connection refused")
}

func TestCheckRedis(t *testing.T) {
	svc := New(&fakeDB{}, &fakeQueue{}, fakeCatalog{})
	report := svc.CheckRedis(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, "PONG", report.Ping)

	svc = New(&fakeDB{}, &fakeQueue{pingErr: errors.New("no route")}, fakeCatalog{})
	report = svc.CheckRedis(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Empty(t, report.Ping)
}

func TestCheckWorkersStatus(t *testing.T) {
	tests := []struct {
		name  string
		queue *fakeQueue
		want  string
	}{
		{name: "healthy", queue: &fakeQueue{workers: idleBusy()}, want: StatusHealthy},
		{name: "no workers", queue: &fakeQueue{}, want: StatusNoWorkers},
		{name: "high load", queue: &fakeQueue{workers: idleBusy(), size: 101}, want: StatusHighLoad},
		{name: "degraded by failures", queue: &fakeQueue{workers: idleBusy(), failed: 11}, want: StatusDegraded},
		{name: "load trumps failures", queue: &fakeQueue{workers: idleBusy(), size: 200, failed: 50}, want: StatusHighLoad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(&fakeDB{}, tt.queue, fakeCatalog{})
			report := svc.CheckWorkers(context.Background())
			assert.Equal(t, tt.want, report.Status)
		})
	}
}

func TestCheckWorkersCounts(t *testing.T) {
	svc := New(&fakeDB{}, &fakeQueue{workers: idleBusy(), size: 3, failed: 1}, fakeCatalog{})
	report := svc.CheckWorkers(context.Background())
	assert.Equal(t, 2, report.WorkersTotal)
	assert.Equal(t, 1, report.WorkersBusy)
	assert.Equal(t, 1, report.WorkersIdle)
	assert.Equal(t, int64(3), report.QueueSize)
	assert.Equal(t, int64(1), report.FailedJobs)
	assert.Equal(t, "kodejudge_submission_queue", report.QueueName)
}

func TestOverall(t *testing.T) {
	svc := New(&fakeDB{}, &fakeQueue{workers: idleBusy()}, fakeCatalog{})
	assert.Equal(t, StatusHealthy, svc.Overall(context.Background()).Status)

	svc = New(&fakeDB{err: errors.New("down")}, &fakeQueue{workers: idleBusy()}, fakeCatalog{})
	assert.Equal(t, StatusUnhealthy, svc.Overall(context.Background()).Status)

	svc = New(&fakeDB{}, &fakeQueue{}, fakeCatalog{})
	assert.Equal(t, StatusDegraded, svc.Overall(context.Background()).Status)
}

func TestProcessInfo(t *testing.T) {
	svc := New(&fakeDB{count: 42}, &fakeQueue{}, fakeCatalog{n: 12})
	info := svc.ProcessInfo(context.Background())
	assert.Equal(t, 12, info.Languages)
	assert.Equal(t, int64(42), info.Submissions)
	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.Uptime)
}
