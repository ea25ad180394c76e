package schedule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/docsearch/internal/chunker"
	"github.com/dshills/docsearch/internal/indexer"
	"github.com/dshills/docsearch/internal/llm"
	"github.com/dshills/docsearch/internal/llm/llmtest"
	"github.com/dshills/docsearch/internal/storage"
)

type countingJob struct {
	runs  atomic.Int32
	block chan struct{}
	err   error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
		}
	}
	return j.err
}

func TestAddJob(t *testing.T) {
	s := NewCronScheduler(zaptest.NewLogger(t))
	require.NoError(t, s.AddJob(&countingJob{}, "*/5 * * * *"))
	require.NoError(t, s.AddJob(&countingJob{}, ""), "empty spec disables the job")
	assert.Equal(t, 1, s.Jobs())

	assert.Error(t, s.AddJob(&countingJob{}, "not a spec"))
	assert.Error(t, s.AddJob(&countingJob{}, "* * * * * *"), "seconds field is not accepted")
	require.NoError(t, s.AddJob(&countingJob{}, "@hourly"))
}

func TestWrap_SkipsOverlappingRuns(t *testing.T) {
	s := NewCronScheduler(zaptest.NewLogger(t))
	s.ctx = context.Background()
	job := &countingJob{block: make(chan struct{})}
	run := s.wrap(job, "@every 1m")

	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	run() // Returns immediately while the first run holds the guard
	assert.Equal(t, int32(1), job.runs.Load())

	close(job.block)
	<-done
	run()
	assert.Equal(t, int32(2), job.runs.Load())
}

func TestWrap_ErrorDoesNotStopLaterRuns(t *testing.T) {
	s := NewCronScheduler(zaptest.NewLogger(t))
	job := &countingJob{err: errors.New("boom")}
	run := s.wrap(job, "@every 1m")
	run()
	run()
	assert.Equal(t, int32(2), job.runs.Load())
}

func TestRunStopsWithContext(t *testing.T) {
	s := NewCronScheduler(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func newIndexer(t *testing.T) (*indexer.Indexer, *storage.SQLiteStorage, string) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := llmtest.New(t, 16, "embed-test")
	client := llm.New(llm.Config{BaseURL: srv.URL}, nil, zaptest.NewLogger(t))
	ch, err := chunker.New(200, 40)
	require.NoError(t, err)
	idx := indexer.New(store, ch, client, indexer.Config{EmbedModel: "embed-test"}, zaptest.NewLogger(t))

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("# A\n\nalpha"), 0o644))
	_, err = idx.AddCollection(context.Background(), "notes", root, "")
	require.NoError(t, err)
	return idx, store, root
}

func TestRefreshJob(t *testing.T) {
	idx, store, _ := newIndexer(t)
	ctx := context.Background()
	job := &RefreshJob{Indexer: idx, Logger: zaptest.NewLogger(t)}
	assert.Equal(t, JobRefresh, job.Name())

	require.NoError(t, job.Run(ctx))
	n, err := store.CountNeedsEmbedding(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// A held lock is not a failure
	require.True(t, idx.Lock().TryAcquire())
	assert.NoError(t, job.Run(ctx))
	idx.Lock().Release()
}

func TestCleanupJob(t *testing.T) {
	idx, _, _ := newIndexer(t)
	job := &CleanupJob{Indexer: idx}
	assert.Equal(t, JobCleanup, job.Name())
	assert.NoError(t, job.Run(context.Background()))
}

func TestRegister(t *testing.T) {
	idx, _, _ := newIndexer(t)
	s := NewCronScheduler(zaptest.NewLogger(t))
	require.NoError(t, Register(s, idx, "*/15 * * * *", "", nil))
	assert.Equal(t, 1, s.Jobs())
	assert.Error(t, Register(NewCronScheduler(nil), idx, "bad", "", nil))
}
