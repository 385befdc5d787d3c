package ytdlp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rashadk/media-courier/internal/pipeline"
)

type runResult struct {
	stdout string
	stderr string
	err    error
}

// scriptedRun replays one result per invocation, repeating the last.
func scriptedRun(t *testing.T, results []runResult, calls *int, gotArgs *[]string) runFunc {
	t.Helper()
	return func(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
		if gotArgs != nil {
			*gotArgs = args
		}
		i := *calls
		if i >= len(results) {
			i = len(results) - 1
		}
		*calls++
		r := results[i]
		return []byte(r.stdout), []byte(r.stderr), r.err
	}
}

func newTestFetcher(run runFunc) *Fetcher {
	f := New(Config{Retries: 3, RetryDelay: time.Millisecond}, zap.NewNop())
	f.run = run
	return f
}

func writeOutput(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o600))
	return path
}

func TestFetchReturnsReportedPaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeOutput(t, dir, "clip.mp4")
	calls := 0
	f := newTestFetcher(scriptedRun(t, []runResult{{stdout: path + "\n"}}, &calls, nil))

	result, err := f.Fetch(context.Background(), pipeline.FetchRequest{
		URL:       "https://media.example.com/v/42",
		OutputDir: dir,
	})
	require.NoError(t, err)
	require.Equal(t, []string{path}, result.Paths)
	require.Equal(t, 1, calls)
}

func TestFetchRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeOutput(t, dir, "clip.mp4")
	calls := 0
	f := newTestFetcher(scriptedRun(t, []runResult{
		{stderr: "ERROR: connection reset by peer", err: errors.New("exit status 1")},
		{stderr: "ERROR: network unreachable", err: errors.New("exit status 1")},
		{stdout: path + "\n"},
	}, &calls, nil))

	result, err := f.Fetch(context.Background(), pipeline.FetchRequest{
		URL:       "https://media.example.com/v/42",
		OutputDir: dir,
	})
	require.NoError(t, err)
	require.Equal(t, []string{path}, result.Paths)
	require.Equal(t, 3, calls)
}

func TestFetchExhaustsRetriesOnTransient(t *testing.T) {
	t.Parallel()

	calls := 0
	f := newTestFetcher(scriptedRun(t, []runResult{
		{stderr: "ERROR: request timed out", err: errors.New("exit status 1")},
	}, &calls, nil))

	_, err := f.Fetch(context.Background(), pipeline.FetchRequest{
		URL: "https://media.example.com/v/42",
	})
	var transient *pipeline.TransientFetchError
	require.ErrorAs(t, err, &transient)
	require.Equal(t, 3, calls)
}

func TestFetchHardToolFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	f := newTestFetcher(scriptedRun(t, []runResult{
		{stderr: "ERROR: unsupported url", err: errors.New("exit status 1")},
	}, &calls, nil))

	_, err := f.Fetch(context.Background(), pipeline.FetchRequest{
		URL: "https://media.example.com/v/42",
	})
	var terr *pipeline.ToolError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, pipeline.StateFetching, terr.Stage)
	require.Equal(t, 1, calls)
}

func TestFetchEmptyOutputIsIntegrityError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "empty.mp4")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	calls := 0
	f := newTestFetcher(scriptedRun(t, []runResult{{stdout: path + "\n"}}, &calls, nil))

	_, err := f.Fetch(context.Background(), pipeline.FetchRequest{
		URL:       "https://media.example.com/v/42",
		OutputDir: dir,
	})
	var ierr *pipeline.IntegrityError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, path, ierr.Path)
}

func TestFetchMissingOutputIsIntegrityError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	missing := filepath.Join(dir, "never-written.mp4")
	calls := 0
	f := newTestFetcher(scriptedRun(t, []runResult{{stdout: missing + "\n"}}, &calls, nil))

	_, err := f.Fetch(context.Background(), pipeline.FetchRequest{
		URL:       "https://media.example.com/v/42",
		OutputDir: dir,
	})
	var ierr *pipeline.IntegrityError
	require.ErrorAs(t, err, &ierr)
}

func TestFetchNoPathsReported(t *testing.T) {
	t.Parallel()

	calls := 0
	f := newTestFetcher(scriptedRun(t, []runResult{{stdout: "\n\n"}}, &calls, nil))

	_, err := f.Fetch(context.Background(), pipeline.FetchRequest{
		URL: "https://media.example.com/v/42",
	})
	var terr *pipeline.ToolError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, pipeline.StateFetching, terr.Stage)
}

func TestFetchBatchPartialSuccess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p1 := writeOutput(t, dir, "item1.mp4")
	p2 := writeOutput(t, dir, "item2.mp4")
	calls := 0
	f := newTestFetcher(scriptedRun(t, []runResult{
		{
			stdout: p1 + "\n" + p2 + "\n",
			stderr: "ERROR: item3 is unavailable",
			err:    errors.New("exit status 1"),
		},
	}, &calls, nil))

	result, err := f.Fetch(context.Background(), pipeline.FetchRequest{
		URL:       "https://media.example.com/playlist/7",
		Batch:     true,
		OutputDir: dir,
	})
	require.NoError(t, err)
	require.Equal(t, []string{p1, p2}, result.Paths)
	require.Equal(t, 1, calls, "partial collection success must not retry")
}

func TestFetchBuildArgs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeOutput(t, dir, "clip.mp4")
	tests := []struct {
		name        string
		req         pipeline.FetchRequest
		wantPresent []string
		wantAbsent  []string
	}{
		{
			name: "video with format",
			req: pipeline.FetchRequest{
				URL:       "https://media.example.com/v/1",
				Format:    pipeline.Quality480.FormatExpr(),
				OutputDir: dir,
			},
			wantPresent: []string{"-f", pipeline.Quality480.FormatExpr(), "--merge-output-format", "--no-playlist"},
			wantAbsent:  []string{"-x", "--yes-playlist"},
		},
		{
			name: "audio only",
			req: pipeline.FetchRequest{
				URL:       "https://media.example.com/v/1",
				AudioOnly: true,
				OutputDir: dir,
			},
			wantPresent: []string{"-x", "--audio-format", "mp3"},
			wantAbsent:  []string{"--merge-output-format"},
		},
		{
			name: "batch",
			req: pipeline.FetchRequest{
				URL:       "https://media.example.com/playlist/7",
				Batch:     true,
				OutputDir: dir,
			},
			wantPresent: []string{"--yes-playlist", "--ignore-errors"},
			wantAbsent:  []string{"--no-playlist"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			var gotArgs []string
			f := newTestFetcher(scriptedRun(t, []runResult{{stdout: path + "\n"}}, &calls, &gotArgs))

			_, err := f.Fetch(context.Background(), tt.req)
			require.NoError(t, err)
			joined := strings.Join(gotArgs, " ")
			for _, want := range tt.wantPresent {
				require.Contains(t, joined, want)
			}
			for _, not := range tt.wantAbsent {
				require.NotContains(t, joined, not)
			}
			require.Equal(t, tt.req.URL, gotArgs[len(gotArgs)-1], "URL is always the final argument")
		})
	}
}
