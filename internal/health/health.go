// Package health probes the judge's dependencies and summarizes worker
// pool state for the /health endpoints.
package health

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"kodejudge/internal/metrics"
	"kodejudge/internal/queue"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusNoWorkers = "no_workers"
	StatusHighLoad  = "high_load"
)

// Load thresholds for the worker report.
const (
	highLoadQueueSize  = 100
	degradedFailedJobs = 10
)

// DatabaseProbe is the store facet health checks need.
type DatabaseProbe interface {
	Ping(ctx context.Context) (time.Duration, error)
	Count(ctx context.Context) (int64, error)
}

// QueueProbe is the queue facet health checks need.
type QueueProbe interface {
	Ping(ctx context.Context) (time.Duration, error)
	Size(ctx context.Context) (int64, error)
	FailedCount(ctx context.Context) (int64, error)
	ListWorkers(ctx context.Context) ([]queue.WorkerInfo, error)
	Name() string
}

// LanguageCounter reports how many languages the catalog holds.
type LanguageCounter interface {
	Len() int
}

// DependencyReport is the probe result for one backing service. Ping is
// set only for redis and carries the raw PING reply.
type DependencyReport struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Ping         string `json:"ping,omitempty"`
	Error        string `json:"error,omitempty"`
}

// WorkerReport summarizes the worker registry and queue pressure.
type WorkerReport struct {
	QueueName    string `json:"queue_name"`
	QueueSize    int64  `json:"queue_size"`
	WorkersTotal int    `json:"workers_total"`
	WorkersBusy  int    `json:"workers_busy"`
	WorkersIdle  int    `json:"workers_idle"`
	FailedJobs   int64  `json:"failed_jobs"`
	Status       string `json:"status"`
}

// Report is the aggregate /health/ body.
type Report struct {
	Status   string           `json:"status"`
	Database DependencyReport `json:"database"`
	Redis    DependencyReport `json:"redis"`
	Workers  WorkerReport     `json:"workers"`
}

// Info is the static process information body.
type Info struct {
	Version     string `json:"version"`
	GoVersion   string `json:"go_version"`
	Uptime      string `json:"uptime"`
	Languages   int    `json:"languages"`
	Submissions int64  `json:"submissions"`
}

// Service runs the probes.
type Service struct {
	db      DatabaseProbe
	queue   QueueProbe
	catalog LanguageCounter
	started time.Time
}

func New(db DatabaseProbe, q QueueProbe, cat LanguageCounter) *Service {
	return &Service{db: db, queue: q, catalog: cat, started: time.Now()}
}

// CheckDatabase probes PostgreSQL.
func (s *Service) CheckDatabase(ctx context.Context) DependencyReport {
	return probe(ctx, s.db.Ping)
}

// CheckRedis probes Redis.
func (s *Service) CheckRedis(ctx context.Context) DependencyReport {
	report := probe(ctx, s.queue.Ping)
	if report.Status == StatusHealthy {
		report.Ping = "PONG"
	}
	return report
}

// CheckWorkers reports registry state and queue pressure. Worker status
// degrades when nobody is registered, the queue backs up, or the
// failed-job list grows.
func (s *Service) CheckWorkers(ctx context.Context) WorkerReport {
	report := WorkerReport{QueueName: s.queue.Name(), Status: StatusHealthy}

	size, err := s.queue.Size(ctx)
	if err != nil {
		report.Status = StatusUnhealthy
		return report
	}
	report.QueueSize = size

	failed, err := s.queue.FailedCount(ctx)
	if err != nil {
		report.Status = StatusUnhealthy
		return report
	}
	report.FailedJobs = failed

	workers, err := s.queue.ListWorkers(ctx)
	if err != nil {
		report.Status = StatusUnhealthy
		return report
	}
	report.WorkersTotal = len(workers)
	for _, w := range workers {
		if w.State == queue.WorkerBusy {
			report.WorkersBusy++
		} else {
			report.WorkersIdle++
		}
	}

	switch {
	case report.WorkersTotal == 0:
		report.Status = StatusNoWorkers
	case report.QueueSize > highLoadQueueSize:
		report.Status = StatusHighLoad
	case report.FailedJobs > degradedFailedJobs:
		report.Status = StatusDegraded
	}

	metrics.Get().QueueDepth.Set(float64(report.QueueSize))
	metrics.Get().FailedJobs.Set(float64(report.FailedJobs))
	return report
}

// Overall aggregates the individual probes into one report.
func (s *Service) Overall(ctx context.Context) Report {
	report := Report{
		Database: s.CheckDatabase(ctx),
		Redis:    s.CheckRedis(ctx),
		Workers:  s.CheckWorkers(ctx),
	}

	switch {
	case report.Database.Status == StatusUnhealthy || report.Redis.Status == StatusUnhealthy:
		report.Status = StatusUnhealthy
	case report.Workers.Status != StatusHealthy:
		report.Status = StatusDegraded
	default:
		report.Status = StatusHealthy
	}
	return report
}

// ProcessInfo returns version and uptime information.
func (s *Service) ProcessInfo(ctx context.Context) Info {
	info := Info{
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Languages: s.catalog.Len(),
	}
	if n, err := s.db.Count(ctx); err == nil {
		info.Submissions = n
	}
	return info
}

func probe(ctx context.Context, ping func(context.Context) (time.Duration, error)) DependencyReport {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rtt, err := ping(probeCtx)
	if err != nil {
		return DependencyReport{Status: StatusUnhealthy, Error: err.Error()}
	}
	return DependencyReport{
		Status:       StatusHealthy,
		ResponseTime: fmt.Sprintf("%.2fms", float64(rtt.Microseconds())/1000),
	}
}
