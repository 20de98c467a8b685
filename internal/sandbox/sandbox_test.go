package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name    string
		cmd     string
		want    []string
		wantErr bool
	}{
		{name: "simple", cmd: "python3 main.py", want: []string{"python3", "main.py"}},
		{name: "flags", cmd: "gcc -O2 -o main main.c", want: []string{"gcc", "-O2", "-o", "main", "main.c"}},
		{name: "double quotes", cmd: `sqlite3 ":memory:" ".read main.sql"`, want: []string{"sqlite3", ":memory:", ".read main.sql"}},
		{name: "single quotes", cmd: `sh -c 'echo hi'`, want: []string{"sh", "-c", "echo hi"}},
		{name: "extra spaces", cmd: "  node   main.js  ", want: []string{"node", "main.js"}},
		{name: "empty", cmd: "", wantErr: true},
		{name: "unbalanced quote", cmd: `echo "oops`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitCommand(tt.cmd)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunRepeatedAggregation(t *testing.T) {
	zero := 0
	results := []*Result{
		{Stdout: []byte("run1"), Time: 0.5, MemoryKB: 1000, ExitCode: &zero, Message: MessageOK},
		{Stdout: []byte("run2"), Time: 1.2, MemoryKB: 800, ExitCode: &zero, Message: MessageOK},
		{Stdout: []byte("run3"), Time: 0.3, MemoryKB: 2000, ExitCode: &zero, Message: MessageOK},
	}
	calls := 0
	once := func(ctx context.Context, spec Spec) (*Result, error) {
		res := results[calls]
		calls++
		return res, nil
	}

	spec := Spec{Limits: Limits{NumberOfRuns: 3}}
	res, err := runRepeated(context.Background(), spec, once)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1.2, res.Time, "slowest run wins")
	assert.Equal(t, 2000, res.MemoryKB, "max memory wins")
	assert.Equal(t, []byte("run3"), res.Stdout, "last run's output wins")
}

func TestRunRepeatedStopsOnFailure(t *testing.T) {
	zero, one := 0, 1
	results := []*Result{
		{Time: 0.5, ExitCode: &zero, Message: MessageOK},
		{Time: 0.6, ExitCode: &one, Message: MessageRE},
		{Time: 0.7, ExitCode: &zero, Message: MessageOK},
	}
	calls := 0
	once := func(ctx context.Context, spec Spec) (*Result, error) {
		res := results[calls]
		calls++
		return res, nil
	}

	res, err := runRepeated(context.Background(), Spec{Limits: Limits{NumberOfRuns: 3}}, once)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "stops after the failing run")
	assert.Equal(t, MessageRE, res.Message)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 1, *res.ExitCode)
}

func TestRunRepeatedDefaultsToOneRun(t *testing.T) {
	calls := 0
	zero := 0
	once := func(ctx context.Context, spec Spec) (*Result, error) {
		calls++
		return &Result{ExitCode: &zero, Message: MessageOK}, nil
	}
	_, err := runRepeated(context.Background(), Spec{}, once)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRunRepeatedPropagatesError(t *testing.T) {
	once := func(ctx context.Context, spec Spec) (*Result, error) {
		return nil, ErrInternal
	}
	_, err := runRepeated(context.Background(), Spec{Limits: Limits{NumberOfRuns: 2}}, once)
	require.True(t, errors.Is(err, ErrInternal))
}
