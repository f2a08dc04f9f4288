package writer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/logdock/logdock/internal/engine"
	"github.com/logdock/logdock/internal/logrecord"
)

// fakeEngine records every UpsertDocuments call and can be configured to
// fail a fixed number of times before succeeding, or fail permanently.
type fakeEngine struct {
	mu          sync.Mutex
	batches     [][]*logrecord.Record
	failTimes   int
	permanent   bool
	calls       int
}

func (f *fakeEngine) EnsureIndex(context.Context) error { return nil }

func (f *fakeEngine) UpsertDocuments(_ context.Context, records []*logrecord.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.permanent {
		return &engine.EngineError{Status: 400, Err: errBad}
	}
	if f.calls <= f.failTimes {
		return &engine.EngineError{Status: 503, Err: errTransient}
	}

	cp := append([]*logrecord.Record(nil), records...)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeEngine) Search(context.Context, engine.Query) (*engine.Result, error) { return nil, nil }
func (f *fakeEngine) DeleteByFilter(context.Context, string) error                 { return nil }

func (f *fakeEngine) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

var (
	errBad       = errBadT{}
	errTransient = errTransientT{}
)

type errBadT struct{}

func (errBadT) Error() string { return "bad request" }

type errTransientT struct{}

func (errTransientT) Error() string { return "service unavailable" }

func newTestRecord(t *testing.T, id string) *logrecord.Record {
	t.Helper()
	n := logrecord.NewNormalizer()
	rec, err := n.Normalize([]byte(`{"id":"` + id + `","project":"p","level":"info","message":"m"}`))
	require.NoError(t, err)
	return rec
}

func TestWriter_FlushesOnSize(t *testing.T) {
	ch := make(chan *logrecord.Record, MaxBatchSize+1)
	fe := &fakeEngine{}
	w := New(ch, fe)

	svc := w.NewService()
	require.NoError(t, svc.StartAsync(context.Background()))
	require.NoError(t, svc.AwaitRunning(context.Background()))

	for i := 0; i < MaxBatchSize; i++ {
		ch <- newTestRecord(t, "")
	}

	require.Eventually(t, func() bool {
		return fe.recordCount() == MaxBatchSize
	}, 2*time.Second, 10*time.Millisecond)

	svc.StopAsync()
	require.NoError(t, svc.AwaitTerminated(context.Background()))
}

func TestWriter_FlushesOnAge(t *testing.T) {
	ch := make(chan *logrecord.Record, 8)
	fe := &fakeEngine{}
	w := New(ch, fe)

	svc := w.NewService()
	require.NoError(t, svc.StartAsync(context.Background()))
	require.NoError(t, svc.AwaitRunning(context.Background()))

	ch <- newTestRecord(t, "only-one")

	require.Eventually(t, func() bool {
		return fe.recordCount() == 1
	}, MaxBatchAge+2*time.Second, 10*time.Millisecond)

	svc.StopAsync()
	require.NoError(t, svc.AwaitTerminated(context.Background()))
}

func TestWriter_RetriesTransientThenSucceeds(t *testing.T) {
	ch := make(chan *logrecord.Record, 8)
	fe := &fakeEngine{failTimes: 2}
	w := New(ch, fe)

	svc := w.NewService()
	require.NoError(t, svc.StartAsync(context.Background()))
	require.NoError(t, svc.AwaitRunning(context.Background()))

	ch <- newTestRecord(t, "retry-me")

	require.Eventually(t, func() bool {
		return fe.recordCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	svc.StopAsync()
	require.NoError(t, svc.AwaitTerminated(context.Background()))
}

func TestWriter_DropsPermanentErrorsWithoutRetry(t *testing.T) {
	ch := make(chan *logrecord.Record, 8)
	fe := &fakeEngine{permanent: true}
	w := New(ch, fe)

	svc := w.NewService()
	require.NoError(t, svc.StartAsync(context.Background()))
	require.NoError(t, svc.AwaitRunning(context.Background()))

	ch <- newTestRecord(t, "dropped")

	require.Eventually(t, func() bool {
		fe.mu.Lock()
		defer fe.mu.Unlock()
		return fe.calls == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, fe.recordCount())

	svc.StopAsync()
	require.NoError(t, svc.AwaitTerminated(context.Background()))
}

func TestWriter_FinalFlushOnShutdown(t *testing.T) {
	ch := make(chan *logrecord.Record, 8)
	fe := &fakeEngine{}
	w := New(ch, fe)

	svc := w.NewService()
	require.NoError(t, svc.StartAsync(context.Background()))
	require.NoError(t, svc.AwaitRunning(context.Background()))

	ch <- newTestRecord(t, "a")
	ch <- newTestRecord(t, "b")
	close(ch)

	svc.StopAsync()
	require.NoError(t, svc.AwaitTerminated(context.Background()))

	require.Equal(t, 2, fe.recordCount())
}
