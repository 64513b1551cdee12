package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patronemptor/titlesvc/internal/id/uuid"
	"github.com/patronemptor/titlesvc/internal/storage/memory"
	"github.com/patronemptor/titlesvc/internal/titles"
)

type fakeQueue struct {
	mu    sync.Mutex
	items []titles.Task
}

func (q *fakeQueue) Enqueue(_ context.Context, task titles.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, task)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (titles.Task, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			task := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return task, nil
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return titles.Task{}, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

type fakeFetcher struct {
	mu    sync.Mutex
	body  []byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingBlobStore struct{}

func (failingBlobStore) EnsureBucket(context.Context) error { return nil }

func (failingBlobStore) Put(context.Context, []byte) (string, error) {
	return "", titles.ErrWriteFailed
}

func newTestStores(t *testing.T) (*memory.RecordStore, *memory.BlobStore) {
	t.Helper()
	return memory.NewRecordStore(), memory.NewBlobStore(uuid.New())
}

func TestWorker_Run_ProcessesPendingRecord(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records, blobs := newTestStores(t)
	require.NoError(t, records.Create(ctx, "req-1", "http://x/page"))

	queue := &fakeQueue{items: []titles.Task{{ReqID: "req-1"}}}
	fetcher := &fakeFetcher{body: []byte("<html><title> Hi There </title></html>")}

	w := New(queue, records, blobs, fetcher, zap.NewNop())
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		rec, err := records.Get(ctx, "req-1")
		return err == nil && rec.State == titles.StateProcessed
	}, time.Second, 10*time.Millisecond)

	rec, err := records.Get(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, "http://x/page", rec.URL)
	require.Equal(t, "Hi There", rec.Title)
	require.NotEmpty(t, rec.BlobURL)
	require.Equal(t, 1, blobs.Len())
}

func TestWorker_Process_DuplicateDeliveryIsNoOp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	records, blobs := newTestStores(t)
	require.NoError(t, records.Create(ctx, "req-1", "http://x/page"))

	fetcher := &fakeFetcher{body: []byte("<title>Example</title>")}
	w := New(nil, records, blobs, fetcher, zap.NewNop())

	w.Process(ctx, titles.Task{ReqID: "req-1"})
	first, err := records.Get(ctx, "req-1")
	require.NoError(t, err)

	w.Process(ctx, titles.Task{ReqID: "req-1"})
	second, err := records.Get(ctx, "req-1")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, fetcher.callCount())
	require.Equal(t, 1, blobs.Len())
}

func TestWorker_Process_FetchFailureMarksFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	records, blobs := newTestStores(t)
	require.NoError(t, records.Create(ctx, "req-1", "http://x/down"))

	fetcher := &fakeFetcher{err: titles.ErrFetchFailed}
	w := New(nil, records, blobs, fetcher, zap.NewNop())

	w.Process(ctx, titles.Task{ReqID: "req-1"})

	rec, err := records.Get(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, titles.StateFailed, rec.State)
	require.Empty(t, rec.Title)
	require.Empty(t, rec.BlobURL)
	require.Zero(t, blobs.Len())
}

func TestWorker_Process_MissingTitleMarksFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	records, blobs := newTestStores(t)
	require.NoError(t, records.Create(ctx, "req-1", "http://x/notitle"))

	fetcher := &fakeFetcher{body: []byte("<html><body>plain</body></html>")}
	w := New(nil, records, blobs, fetcher, zap.NewNop())

	w.Process(ctx, titles.Task{ReqID: "req-1"})

	rec, err := records.Get(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, titles.StateFailed, rec.State)
	require.Zero(t, blobs.Len())
}

func TestWorker_Process_BlobFailureMarksFailedWithoutPartialWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	records, _ := newTestStores(t)
	require.NoError(t, records.Create(ctx, "req-1", "http://x/page"))

	fetcher := &fakeFetcher{body: []byte("<title>Example</title>")}
	w := New(nil, records, failingBlobStore{}, fetcher, zap.NewNop())

	w.Process(ctx, titles.Task{ReqID: "req-1"})

	rec, err := records.Get(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, titles.StateFailed, rec.State)
	require.Empty(t, rec.Title)
	require.Empty(t, rec.BlobURL)
}

func TestWorker_Process_UnknownRecordTerminates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	records, blobs := newTestStores(t)
	fetcher := &fakeFetcher{body: []byte("<title>never fetched</title>")}
	w := New(nil, records, blobs, fetcher, zap.NewNop())

	w.Process(ctx, titles.Task{ReqID: "ghost"})

	require.Zero(t, fetcher.callCount())
	_, err := records.Get(ctx, "ghost")
	require.True(t, errors.Is(err, titles.ErrNotFound))
}

func TestWorker_Process_ConcurrentDeliverySettlesConsistently(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	records, blobs := newTestStores(t)
	require.NoError(t, records.Create(ctx, "req-1", "http://x/page"))

	fetcher := &fakeFetcher{body: []byte("<title>Example</title>")}
	w := New(nil, records, blobs, fetcher, zap.NewNop())

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Process(ctx, titles.Task{ReqID: "req-1"})
		}()
	}
	wg.Wait()

	rec, err := records.Get(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, titles.StateProcessed, rec.State)
	require.Equal(t, "Example", rec.Title)
	require.NotEmpty(t, rec.BlobURL)
	// Both invocations may have fetched, but the record holds one
	// consistent set of terminal fields.
	require.Contains(t, rec.BlobURL, "memory://")
}
