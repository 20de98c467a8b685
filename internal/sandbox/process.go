package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const maxCapturedOutput = 1 << 20 // 1MB per stream

// ProcessRunner executes commands as ordinary child processes with
// ulimit-style resource caps. It is a development fallback for machines
// without isolate; the wall clock, process group kill and rusage telemetry
// match the isolate backend's Result shape, but isolation is much weaker.
type ProcessRunner struct {
	baseDir string
}

// NewProcessRunner creates the scratch area for all runs.
func NewProcessRunner() (*ProcessRunner, error) {
	base := filepath.Join(os.TempDir(), "kodejudge-sandbox")
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create scratch dir: %v", ErrInternal, err)
	}
	return &ProcessRunner{baseDir: base}, nil
}

// Run executes the spec, repeating per NumberOfRuns.
func (r *ProcessRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	return runRepeated(ctx, spec, r.runOnce)
}

func (r *ProcessRunner) runOnce(ctx context.Context, spec Spec) (*Result, error) {
	dir, err := os.MkdirTemp(r.baseDir, "run-")
	if err != nil {
		return nil, fmt.Errorf("%w: scratch dir: %v", ErrInternal, err)
	}
	defer os.RemoveAll(dir)

	for _, f := range spec.Files {
		if err := os.WriteFile(filepath.Join(dir, f.Name), f.Content, 0o644); err != nil {
			return nil, fmt.Errorf("%w: write %s: %v", ErrInternal, f.Name, err)
		}
	}

	l := spec.Limits
	wall := time.Duration(l.WallTime * float64(time.Second))
	if wall <= 0 {
		wall = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, wall)
	defer cancel()

	cmd := exec.Command("/bin/bash", "-c", r.shellCommand(spec.Argv, l))
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(spec.Stdin)
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + dir,
		"TMPDIR=" + dir,
		"LANG=C.UTF-8",
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &cappedWriter{w: &stdout, limit: maxCapturedOutput}
	if l.RedirectStderrToStdout {
		cmd.Stderr = cmd.Stdout
	} else {
		cmd.Stderr = &cappedWriter{w: &stderr, limit: maxCapturedOutput}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start: %v", ErrInternal, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timedOut := false
	var waitErr error
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		timedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
		killGroup(cmd)
		waitErr = <-done
	}

	res := &Result{
		Stdout: stdout.Bytes(),
		Time:   time.Since(start).Seconds(),
	}
	if !l.RedirectStderrToStdout {
		res.Stderr = stderr.Bytes()
	}
	if cmd.ProcessState != nil {
		if ru, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage); ok {
			res.MemoryKB = int(ru.Maxrss)
			res.Time = float64(ru.Utime.Nano()+ru.Stime.Nano()) / 1e9
		}
	}

	classifyProcessExit(res, l, waitErr, timedOut)
	return res, nil
}

// shellCommand wraps argv in a bash invocation that applies ulimit caps
// before exec'ing the real command.
func (r *ProcessRunner) shellCommand(argv []string, l Limits) string {
	var b strings.Builder
	cpuSecs := int(l.CPUTime + l.CPUExtraTime + 0.999)
	if cpuSecs < 1 {
		cpuSecs = 1
	}
	fmt.Fprintf(&b, "ulimit -t %d", cpuSecs)
	if l.MemoryKB > 0 {
		fmt.Fprintf(&b, " -v %d", l.MemoryKB)
	}
	if l.MaxProcesses > 0 {
		fmt.Fprintf(&b, " -u %d", l.MaxProcesses)
	}
	if l.MaxFileKB > 0 {
		fmt.Fprintf(&b, " -f %d", l.MaxFileKB*2) // ulimit -f counts 512-byte blocks
	}
	b.WriteString(" 2>/dev/null; exec")
	for _, arg := range argv {
		b.WriteString(" ")
		b.WriteString(shellQuote(arg))
	}
	return b.String()
}

func classifyProcessExit(res *Result, l Limits, waitErr error, timedOut bool) {
	if timedOut {
		sig := signalName(syscall.SIGKILL)
		res.Signal = &sig
		res.Message = MessageTLE
		return
	}
	if waitErr == nil {
		code := 0
		res.ExitCode = &code
		res.Message = MessageOK
		return
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			sig := signalName(status.Signal())
			res.Signal = &sig
			switch status.Signal() {
			case syscall.SIGXCPU:
				res.Message = MessageTLE
			case syscall.SIGKILL, syscall.SIGSEGV:
				if l.MemoryKB > 0 && res.MemoryKB >= l.MemoryKB {
					res.Message = MessageMLE
				} else {
					res.Message = MessageRE
				}
			default:
				res.Message = MessageRE
			}
			return
		}
		code := exitErr.ExitCode()
		res.ExitCode = &code
		res.Message = MessageRE
		return
	}

	code := 1
	res.ExitCode = &code
	res.Message = MessageRE
}

// killGroup kills the whole process group: SIGTERM, short grace, SIGKILL.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		cmd.Process.Kill()
		return
	}
	syscall.Kill(-pgid, syscall.SIGTERM)
	time.Sleep(100 * time.Millisecond)
	syscall.Kill(-pgid, syscall.SIGKILL)
}

// cappedWriter discards data past its limit so a runaway program cannot
// exhaust memory through captured output.
type cappedWriter struct {
	w       io.Writer
	limit   int
	written int
}

func (cw *cappedWriter) Write(p []byte) (int, error) {
	if cw.written >= cw.limit {
		return len(p), nil
	}
	remaining := cw.limit - cw.written
	chunk := p
	if len(chunk) > remaining {
		chunk = chunk[:remaining]
	}
	n, err := cw.w.Write(chunk)
	cw.written += n
	if err != nil {
		return n, err
	}
	return len(p), nil
}

func shellQuote(arg string) string {
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
