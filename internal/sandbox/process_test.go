package sandbox

import (
	"context"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProcessRunner(t *testing.T) *ProcessRunner {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("process sandbox requires linux")
	}
	if _, err := os.Stat("/bin/bash"); err != nil {
		t.Skip("process sandbox requires /bin/bash")
	}
	r, err := NewProcessRunner()
	require.NoError(t, err)
	return r
}

func processLimits() Limits {
	return Limits{
		CPUTime:      2,
		WallTime:     10,
		NumberOfRuns: 1,
	}
}

func TestProcessRunnerEchoesStdin(t *testing.T) {
	r := newProcessRunner(t)

	res, err := r.Run(context.Background(), Spec{
		Argv:   []string{"/bin/cat"},
		Stdin:  []byte("hello\n"),
		Limits: processLimits(),
	})
	require.NoError(t, err)
	assert.Equal(t, MessageOK, res.Message)
	require.NotNil(t, res.ExitCode)
	assert.Zero(t, *res.ExitCode)
	assert.Nil(t, res.Signal)
	assert.Equal(t, "hello\n", string(res.Stdout))
	assert.Empty(t, res.Stderr)
}

func TestProcessRunnerMaterializesFiles(t *testing.T) {
	r := newProcessRunner(t)

	res, err := r.Run(context.Background(), Spec{
		Argv: []string{"/bin/cat", "data.txt"},
		Files: []NamedFile{
			{Name: "data.txt", Content: []byte("from the scratch dir")},
		},
		Limits: processLimits(),
	})
	require.NoError(t, err)
	assert.Equal(t, MessageOK, res.Message)
	assert.Equal(t, "from the scratch dir", string(res.Stdout))
}

func TestProcessRunnerWallTimeKill(t *testing.T) {
	r := newProcessRunner(t)

	limits := processLimits()
	limits.WallTime = 0.5
	start := time.Now()
	res, err := r.Run(context.Background(), Spec{
		Argv:   []string{"/bin/sleep", "10"},
		Limits: limits,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, MessageTLE, res.Message)
	require.NotNil(t, res.Signal)
	assert.Equal(t, "SIGKILL", *res.Signal)
	assert.Nil(t, res.ExitCode)
}

func TestProcessRunnerNonZeroExit(t *testing.T) {
	r := newProcessRunner(t)

	res, err := r.Run(context.Background(), Spec{
		Argv:   []string{"/bin/sh", "-c", "exit 3"},
		Limits: processLimits(),
	})
	require.NoError(t, err)
	assert.Equal(t, MessageRE, res.Message)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 3, *res.ExitCode)
}

func TestProcessRunnerStderrStreams(t *testing.T) {
	r := newProcessRunner(t)
	spec := Spec{
		Argv:   []string{"/bin/sh", "-c", "echo out; echo err >&2"},
		Limits: processLimits(),
	}

	res, err := r.Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "out\n", string(res.Stdout))
	assert.Equal(t, "err\n", string(res.Stderr))

	spec.Limits.RedirectStderrToStdout = true
	res, err = r.Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "out\nerr\n", string(res.Stdout))
	assert.Empty(t, res.Stderr)
}

func TestProcessRunnerFileSizeCap(t *testing.T) {
	r := newProcessRunner(t)

	limits := processLimits()
	limits.MaxFileKB = 1
	res, err := r.Run(context.Background(), Spec{
		Argv:   []string{"/bin/sh", "-c", "head -c 1000000 /dev/zero > big.bin"},
		Limits: limits,
	})
	require.NoError(t, err)
	assert.NotEqual(t, MessageOK, res.Message)
}

func TestCappedWriterTruncates(t *testing.T) {
	var buf []byte
	cw := &cappedWriter{w: writerFunc(func(p []byte) (int, error) {
		buf = append(buf, p...)
		return len(p), nil
	}), limit: 5}

	n, err := cw.Write([]byte("abcdefgh"))
	require.NoError(t, err)
	assert.Equal(t, 8, n, "writer reports full length so the child keeps running")
	assert.Equal(t, "abcde", string(buf))

	n, err = cw.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcde", string(buf))
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
