// Package worker pulls submission ids off the queue and drives each one
// through compile, execute and commit.
package worker

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
	"kodejudge/internal/metrics"
	"kodejudge/internal/models"
	"kodejudge/internal/sandbox"
	"kodejudge/internal/store"
)

// Completer is the queue facet the processor needs to announce results.
type Completer interface {
	PublishCompletion(ctx context.Context, id uuid.UUID) error
}

// Processor executes one submission end to end.
type Processor struct {
	store    *store.Store
	catalog  *catalog.Catalog
	runner   sandbox.Runner
	complete Completer
	defaults config.SandboxDefaults
}

func NewProcessor(st *store.Store, cat *catalog.Catalog, runner sandbox.Runner, complete Completer, defaults config.SandboxDefaults) *Processor {
	return &Processor{
		store:    st,
		catalog:  cat,
		runner:   runner,
		complete: complete,
		defaults: defaults,
	}
}

// Process runs the full pipeline for one dequeued id. A missing or already
// terminal row is discarded silently; only infrastructure failures return
// an error.
func (p *Processor) Process(ctx context.Context, id uuid.UUID) error {
	log := logging.L().With(zap.String("submission_id", id.String()))

	sub, err := p.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("submission deleted before processing, discarding")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load submission: %w", err)
	}

	switch err := p.store.MarkProcessing(ctx, id); {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrConflict):
		log.Info("submission no longer pending, discarding")
		return nil
	case err != nil:
		return fmt.Errorf("mark processing: %w", err)
	}

	result := p.evaluate(ctx, log, sub)
	return p.commit(ctx, log, id, result)
}

// evaluate produces the terminal result without touching the store.
func (p *Processor) evaluate(ctx context.Context, log *zap.Logger, sub *models.Submission) store.Result {
	lang, err := p.catalog.Get(sub.LanguageID)
	if err != nil {
		return errorResult("Unknown language")
	}

	files, err := materialize(lang, sub)
	if err != nil {
		return errorResult(err.Error())
	}
	limits := p.effectiveLimits(sub)

	if lang.CompileCommand != nil {
		compileOut, err := p.compile(ctx, *lang.CompileCommand, files, limits)
		if err != nil {
			log.Warn("compile step failed", zap.Error(err))
			return errorResult(err.Error())
		}
		if compileOut != nil {
			return store.Result{Status: models.StatusError, CompileOutput: compileOut}
		}
	}

	argv, err := sandbox.SplitCommand(lang.RunCommand)
	if err != nil {
		return errorResult(err.Error())
	}

	start := time.Now()
	res, err := p.runner.Run(ctx, sandbox.Spec{
		Argv:   argv,
		Files:  files,
		Stdin:  sub.Stdin,
		Limits: limits,
	})
	metrics.ObserveSandboxRun(lang.Name, time.Since(start))
	if err != nil {
		log.Error("sandbox failure", zap.Error(err))
		return errorResult(err.Error())
	}

	meta := &models.Meta{
		Time:     res.Time,
		Memory:   res.MemoryKB,
		ExitCode: res.ExitCode,
		Signal:   res.Signal,
		Message:  res.Message,
	}
	if sub.ExpectedOutput != nil {
		matches := string(res.Stdout) == string(sub.ExpectedOutput)
		meta.OutputMatches = &matches
	}

	stdout := string(res.Stdout)
	stderr := string(res.Stderr)
	return store.Result{
		Status: models.StatusFinished,
		Stdout: &stdout,
		Stderr: &stderr,
		Meta:   meta,
	}
}

// compile runs the compile command. It returns a non-nil compile output
// when compilation failed, and an error only for sandbox infrastructure
// failures.
func (p *Processor) compile(ctx context.Context, command string, files []sandbox.NamedFile, limits sandbox.Limits) (*string, error) {
	argv, err := sandbox.SplitCommand(command)
	if err != nil {
		return nil, err
	}

	// Compilation ignores the per-run repetition and stderr redirection.
	compileLimits := limits
	compileLimits.NumberOfRuns = 1
	compileLimits.RedirectStderrToStdout = false

	res, err := p.runner.Run(ctx, sandbox.Spec{Argv: argv, Files: files, Limits: compileLimits})
	if err != nil {
		return nil, err
	}
	if res.OK() {
		return nil, nil
	}
	out := string(res.Stderr)
	if out == "" {
		out = string(res.Stdout)
	}
	if out == "" {
		out = res.Message
	}
	return &out, nil
}

func (p *Processor) commit(ctx context.Context, log *zap.Logger, id uuid.UUID, result store.Result) error {
	switch err := p.store.UpdateResult(ctx, id, result); {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrConflict):
		log.Info("submission deleted mid-flight, result discarded")
		return nil
	case err != nil:
		return fmt.Errorf("commit result: %w", err)
	}

	metrics.SubmissionFinished(string(result.Status))
	if err := p.complete.PublishCompletion(ctx, id); err != nil {
		log.Warn("publish completion", zap.Error(err))
	}
	log.Info("submission committed", zap.String("status", string(result.Status)))
	return nil
}

// materialize lays out the source plus additional files for the sandbox.
// File names are checked again here: the catalog seed or an old row could
// carry names the current validation would refuse.
func materialize(lang models.Language, sub *models.Submission) ([]sandbox.NamedFile, error) {
	files := []sandbox.NamedFile{{Name: lang.SourceFileName, Content: sub.SourceCode}}
	for _, f := range sub.AdditionalFiles {
		if f.Name == "" || strings.ContainsAny(f.Name, `/\`) || strings.Contains(f.Name, "..") {
			return nil, fmt.Errorf("unsafe file name %q", f.Name)
		}
		files = append(files, sandbox.NamedFile{Name: f.Name, Content: f.Content})
	}
	return files, nil
}

func (p *Processor) effectiveLimits(sub *models.Submission) sandbox.Limits {
	d := p.defaults
	l := sandbox.Limits{
		CPUTime:                d.CPUTimeLimit,
		CPUExtraTime:           d.CPUExtraTime,
		WallTime:               d.WallTimeLimit,
		MemoryKB:               d.MemoryLimitKB,
		MaxProcesses:           d.MaxProcesses,
		MaxFileKB:              d.MaxFileSizeKB,
		NumberOfRuns:           d.NumberOfRuns,
		PerProcessTime:         d.PerProcessTimeLimit,
		PerProcessMemory:       d.PerProcessMemoryLimit,
		RedirectStderrToStdout: d.RedirectStderrToStdout,
		EnableNetwork:          d.EnableNetwork,
	}
	if sub.CPUTimeLimit != nil {
		l.CPUTime = *sub.CPUTimeLimit
	}
	if sub.CPUExtraTime != nil {
		l.CPUExtraTime = *sub.CPUExtraTime
	}
	if sub.WallTimeLimit != nil {
		l.WallTime = *sub.WallTimeLimit
	}
	if sub.MemoryLimit != nil {
		l.MemoryKB = *sub.MemoryLimit
	}
	if sub.MaxProcesses != nil {
		l.MaxProcesses = *sub.MaxProcesses
	}
	if sub.MaxFileSize != nil {
		l.MaxFileKB = *sub.MaxFileSize
	}
	if sub.NumberOfRuns != nil {
		l.NumberOfRuns = *sub.NumberOfRuns
	}
	if sub.PerProcessTimeLimit != nil {
		l.PerProcessTime = *sub.PerProcessTimeLimit
	}
	if sub.PerProcessMemoryLimit != nil {
		l.PerProcessMemory = *sub.PerProcessMemoryLimit
	}
	if sub.RedirectStderrToStdout != nil {
		l.RedirectStderrToStdout = *sub.RedirectStderrToStdout
	}
	if sub.EnableNetwork != nil {
		l.EnableNetwork = *sub.EnableNetwork
	}
	return l
}

// errorResult builds an ERROR commit with the diagnostic in stderr.
func errorResult(diagnostic string) store.Result {
	return store.Result{
		Status: models.StatusError,
		Stderr: &diagnostic,
	}
}
