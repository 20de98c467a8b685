package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"kodejudge/internal/logging"
)

const (
	stdinFile  = "stdin.txt"
	stdoutFile = "stdout.txt"
	stderrFile = "stderr.txt"
	metaFile   = "meta.txt"
)

// IsolateRunner executes commands inside an isolate(1) box. Each runner
// owns one box id for its lifetime, so one runner maps to one worker slot.
type IsolateRunner struct {
	binary string
	boxID  int
}

// NewIsolateRunner returns a runner bound to the given box id.
func NewIsolateRunner(binary string, boxID int) *IsolateRunner {
	return &IsolateRunner{binary: binary, boxID: boxID}
}

// Available reports whether the isolate binary can be invoked.
func IsolateAvailable(binary string) bool {
	out, err := exec.Command(binary, "--version").CombinedOutput()
	return err == nil && len(out) > 0
}

// Run executes the spec, repeating per NumberOfRuns.
func (r *IsolateRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	return runRepeated(ctx, spec, r.runOnce)
}

func (r *IsolateRunner) runOnce(ctx context.Context, spec Spec) (*Result, error) {
	boxPath, err := r.initBox(ctx)
	if err != nil {
		return nil, err
	}
	defer r.cleanupBox()

	for _, f := range spec.Files {
		if err := os.WriteFile(filepath.Join(boxPath, f.Name), f.Content, 0o644); err != nil {
			return nil, fmt.Errorf("%w: write %s: %v", ErrInternal, f.Name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(boxPath, stdinFile), spec.Stdin, 0o644); err != nil {
		return nil, fmt.Errorf("%w: write stdin: %v", ErrInternal, err)
	}

	metaPath := filepath.Join(filepath.Dir(boxPath), metaFile)
	args := r.runArgs(spec.Limits, metaPath)
	args = append(args, "--run", "--")
	args = append(args, spec.Argv...)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var isolateStderr bytes.Buffer
	cmd.Stderr = &isolateStderr

	runErr := cmd.Run()

	metaData, err := os.ReadFile(metaPath)
	if err != nil {
		// No meta file means isolate itself never ran the program.
		return nil, fmt.Errorf("%w: %s", ErrInternal, strings.TrimSpace(isolateStderr.String()))
	}
	meta := parseIsolateMeta(string(metaData))
	if meta.Status == "XX" {
		return nil, fmt.Errorf("%w: %s", ErrInternal, meta.Message)
	}
	if runErr != nil && meta.Status == "" {
		return nil, fmt.Errorf("%w: %v: %s", ErrInternal, runErr, strings.TrimSpace(isolateStderr.String()))
	}

	res := meta.classify(spec.Limits)
	res.Stdout = readBoxFile(boxPath, stdoutFile)
	if spec.Limits.RedirectStderrToStdout {
		res.Stderr = nil
	} else {
		res.Stderr = readBoxFile(boxPath, stderrFile)
	}
	return &res, nil
}

// initBox runs isolate --init and returns the box working directory.
func (r *IsolateRunner) initBox(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, fmt.Sprintf("--box-id=%d", r.boxID), "--init")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: isolate init: %v", ErrInternal, err)
	}
	return filepath.Join(strings.TrimSpace(string(out)), "box"), nil
}

func (r *IsolateRunner) cleanupBox() {
	cmd := exec.Command(r.binary, fmt.Sprintf("--box-id=%d", r.boxID), "--cleanup")
	if err := cmd.Run(); err != nil {
		logging.L().Warn("isolate cleanup failed", zap.Int("box_id", r.boxID), zap.Error(err))
	}
}

func (r *IsolateRunner) runArgs(l Limits, metaPath string) []string {
	args := []string{
		fmt.Sprintf("--box-id=%d", r.boxID),
		fmt.Sprintf("--meta=%s", metaPath),
		"--full-env",
		fmt.Sprintf("--time=%g", l.CPUTime),
		fmt.Sprintf("--extra-time=%g", l.CPUExtraTime),
		fmt.Sprintf("--wall-time=%g", l.WallTime),
		fmt.Sprintf("--mem=%d", l.MemoryKB),
		fmt.Sprintf("--processes=%d", l.MaxProcesses),
		fmt.Sprintf("--fsize=%d", l.MaxFileKB),
	}
	if l.PerProcessTime {
		args = append(args, "--cg-timing")
	}
	if l.PerProcessMemory {
		args = append(args, "--cg-mem")
	}
	if l.EnableNetwork {
		args = append(args, "--share-net")
	}
	args = append(args, "--stdin="+stdinFile, "--stdout="+stdoutFile)
	if l.RedirectStderrToStdout {
		args = append(args, "--stderr="+stdoutFile)
	} else {
		args = append(args, "--stderr="+stderrFile)
	}
	return args
}

func readBoxFile(boxPath, name string) []byte {
	data, err := os.ReadFile(filepath.Join(boxPath, name))
	if err != nil {
		return nil
	}
	return data
}
