// Package sandbox executes untrusted commands under OS-level resource
// isolation and returns captured output plus a telemetry record.
//
// The primary implementation shells out to isolate(1); ProcessRunner is a
// development fallback with weaker isolation. Both honor the same Spec and
// produce the same Result shape, so the worker is agnostic to the backend.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Result messages. The worker copies these verbatim into meta.message.
const (
	MessageOK  = "OK"
	MessageTLE = "Time limit exceeded"
	MessageMLE = "Memory limit exceeded"
	MessageRE  = "Runtime error"
)

// ErrInternal marks a failure of the sandbox itself (missing binary, bad
// permissions) as opposed to a failure of the sandboxed program. The worker
// translates it to submission status ERROR.
var ErrInternal = errors.New("sandbox internal error")

// Limits caps the resources available to one invocation.
type Limits struct {
	CPUTime      float64 // user+system seconds across the process tree
	CPUExtraTime float64 // grace beyond CPUTime before the force kill
	WallTime     float64 // seconds from spawn
	MemoryKB     int     // total RSS/anon memory of the process tree
	MaxProcesses int
	MaxFileKB    int // per-file write cap inside the scratch dir
	NumberOfRuns int // sequential runs; >= 1

	PerProcessTime         bool
	PerProcessMemory       bool
	RedirectStderrToStdout bool
	EnableNetwork          bool
}

// NamedFile is a file materialized in the scratch directory before the run.
type NamedFile struct {
	Name    string
	Content []byte
}

// Spec describes one sandbox invocation.
type Spec struct {
	Argv   []string
	Files  []NamedFile
	Stdin  []byte
	Limits Limits
}

// Result is the telemetry record of a completed invocation. ExitCode is set
// iff the process exited normally; Signal is set iff it was killed.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	Time     float64
	MemoryKB int
	ExitCode *int
	Signal   *string
	Message  string
}

// OK reports whether the program ran to a clean zero exit.
func (r *Result) OK() bool {
	return r.Signal == nil && r.ExitCode != nil && *r.ExitCode == 0
}

// Runner executes one command under isolation.
type Runner interface {
	Run(ctx context.Context, spec Spec) (*Result, error)
}

// runRepeated executes once per Limits.NumberOfRuns, reporting the slowest
// time and maximum memory across runs; stdout and stderr come from the last
// run. A non-OK run is reported immediately and further runs are skipped.
func runRepeated(ctx context.Context, spec Spec, once func(context.Context, Spec) (*Result, error)) (*Result, error) {
	runs := spec.Limits.NumberOfRuns
	if runs < 1 {
		runs = 1
	}

	var agg *Result
	for i := 0; i < runs; i++ {
		res, err := once(ctx, spec)
		if err != nil {
			return nil, err
		}
		if agg == nil {
			agg = res
		} else {
			if res.Time > agg.Time {
				agg.Time = res.Time
			}
			if res.MemoryKB > agg.MemoryKB {
				agg.MemoryKB = res.MemoryKB
			}
			agg.Stdout = res.Stdout
			agg.Stderr = res.Stderr
			agg.ExitCode = res.ExitCode
			agg.Signal = res.Signal
			agg.Message = res.Message
		}
		if !res.OK() {
			break
		}
	}
	return agg, nil
}

// SplitCommand splits a catalog command string into argv, honoring single
// and double quotes. Commands are executed directly, not through a shell.
func SplitCommand(cmd string) ([]string, error) {
	var (
		argv    []string
		current strings.Builder
		quote   rune
		started bool
	)
	for _, r := range cmd {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			started = true
		case r == ' ' || r == '\t':
			if started {
				argv = append(argv, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unbalanced quote in command %q", cmd)
	}
	if started {
		argv = append(argv, current.String())
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return argv, nil
}
