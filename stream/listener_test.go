package stream_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/docrepo/store"
	"github.com/jacentio/docrepo/store/memstore"
	"github.com/jacentio/docrepo/store/sqlite"
	"github.com/jacentio/docrepo/stream"
)

// --- Delivery Tests ---

func TestListenerDeliversInsertAndUpdate(t *testing.T) {
	ctx := context.Background()
	l, members := startListener(t, testConfig())
	ch, _ := collect(l)

	m := members.CreateNew()
	m.Title = "first"
	require.NoError(t, members.Save(ctx))

	got := receive(t, ch)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, "first", got.Title)
	assert.NotSame(t, m, got)

	m.Title = "second"
	require.NoError(t, members.Save(ctx))

	got = receive(t, ch)
	assert.Equal(t, "second", got.Title)
}

func TestListenerIgnoresDeletes(t *testing.T) {
	ctx := context.Background()
	l, members := startListener(t, testConfig())
	ch, _ := collect(l)

	m := members.CreateNew()
	require.NoError(t, members.Save(ctx))
	receive(t, ch)

	require.NoError(t, members.Delete(ctx, m))
	require.NoError(t, members.Save(ctx))
	expectNone(t, ch)
}

func TestListenerPerHandlerCopies(t *testing.T) {
	ctx := context.Background()
	l, members := startListener(t, testConfig())

	first := make(chan *Member, 1)
	second := make(chan *Member, 1)
	l.Subscribe(func(_ context.Context, m *Member) error {
		m.Title = "mutated"
		first <- m
		return nil
	})
	l.Subscribe(func(_ context.Context, m *Member) error {
		second <- m
		return nil
	})

	m := members.CreateNew()
	m.Title = "original"
	require.NoError(t, members.Save(ctx))

	a := receive(t, first)
	b := receive(t, second)
	assert.NotSame(t, a, b)
	assert.Equal(t, "mutated", a.Title)
	assert.Equal(t, "original", b.Title)
}

func TestListenerOrdersChangesPerDocument(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Workers = 4
	l, members := startListener(t, cfg)

	var mu sync.Mutex
	seen := make(map[string][]string)
	done := make(chan struct{}, 64)
	l.Subscribe(func(_ context.Context, m *Member) error {
		mu.Lock()
		seen[m.ID] = append(seen[m.ID], m.Title)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	a := members.CreateNew()
	b := members.CreateNew()
	require.NoError(t, members.Save(ctx))
	writes := 2
	for _, title := range []string{"1", "2", "3"} {
		a.Title = title
		b.Title = title
		require.NoError(t, members.Save(ctx))
		writes += 2
	}
	for range writes {
		receive(t, done)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"", "1", "2", "3"}, seen[a.ID])
	assert.Equal(t, []string{"", "1", "2", "3"}, seen[b.ID])
}

// --- Failure Isolation Tests ---

func TestHandlerFailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	l, members := startListener(t, testConfig())

	l.Subscribe(func(context.Context, *Member) error {
		return errors.New("boom")
	})
	l.Subscribe(func(context.Context, *Member) error {
		panic("handler exploded")
	})
	ch, _ := collect(l)

	m := members.CreateNew()
	require.NoError(t, members.Save(ctx))
	assert.Equal(t, m.ID, receive(t, ch).ID)

	var handlerErrs []*stream.HandlerError
	for len(handlerErrs) < 2 {
		err := receive(t, l.Errors())
		var he *stream.HandlerError
		require.ErrorAs(t, err, &he)
		assert.Equal(t, m.ID, he.DocumentID)
		handlerErrs = append(handlerErrs, he)
	}

	// The failing handlers keep receiving.
	m.Title = "again"
	require.NoError(t, members.Save(ctx))
	assert.Equal(t, "again", receive(t, ch).Title)

	state := l.State().(stream.State)
	assert.GreaterOrEqual(t, state.Failed, int64(2))
	assert.NotEmpty(t, state.LastError)
}

func TestQueueFullDropsAndReports(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.QueueSize = 1
	l, members := startListener(t, cfg)

	release := make(chan struct{})
	var calls atomic.Int32
	l.Subscribe(func(context.Context, *Member) error {
		calls.Add(1)
		<-release
		return nil
	})

	for range 5 {
		members.CreateNew()
	}
	require.NoError(t, members.Save(ctx))

	err := receive(t, l.Errors())
	assert.ErrorIs(t, err, stream.ErrQueueFull)
	close(release)

	assert.Eventually(t, func() bool {
		return l.State().(stream.State).Dropped > 0
	}, time.Second, 10*time.Millisecond)
}

// --- Lifecycle Tests ---

func TestStartIsIdempotent(t *testing.T) {
	l, _ := startListener(t, testConfig())
	require.NoError(t, l.Start(context.Background()))
	assert.Equal(t, stream.StatusRunning, l.Status())
}

func TestStopThenStart(t *testing.T) {
	l, _ := startListener(t, testConfig())
	require.NoError(t, l.Stop(context.Background()))
	assert.Equal(t, stream.StatusStopped, l.Status())
	assert.ErrorIs(t, l.Start(context.Background()), stream.ErrListenerStopped)
}

func TestStopDrainsQueuedDeliveries(t *testing.T) {
	ctx := context.Background()
	l, members := startListener(t, testConfig())

	var delivered atomic.Int32
	l.Subscribe(func(context.Context, *Member) error {
		time.Sleep(5 * time.Millisecond)
		delivered.Add(1)
		return nil
	})

	for range 3 {
		members.CreateNew()
	}
	require.NoError(t, members.Save(ctx))
	require.Eventually(t, func() bool {
		return l.State().(stream.State).Dispatched == 3
	}, time.Second, time.Millisecond)

	require.NoError(t, l.Stop(ctx))
	assert.Equal(t, int32(3), delivered.Load())
	assert.Equal(t, 0, l.Subscriptions())
}

func TestContextCancelStopsListener(t *testing.T) {
	client := memstore.New(memstore.DefaultConfig())
	l := stream.NewListener(newMembers(client), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool {
		return l.Status() == stream.StatusStopped
	}, time.Second, time.Millisecond)
	require.NoError(t, l.Stop(context.Background()))
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	l, members := startListener(t, testConfig())
	ch, unsubscribe := collect(l)
	assert.Equal(t, 1, l.Subscriptions())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, l.Subscriptions())

	members.CreateNew()
	require.NoError(t, members.Save(ctx))
	expectNone(t, ch)
}

func TestStartUnsupportedBackend(t *testing.T) {
	ctx := context.Background()
	client, err := sqlite.Open(ctx, sqlite.DefaultConfig())
	require.NoError(t, err)
	defer client.Close(ctx)

	l := stream.NewListener(newMembers(client), testConfig())
	err = l.Start(ctx)
	assert.ErrorIs(t, err, store.ErrWatchUnsupported)
	assert.Equal(t, stream.StatusIdle, l.Status())
}

// --- Dispatch Tests ---

func TestDispatchLooksUpMissingImage(t *testing.T) {
	ctx := context.Background()
	client := memstore.New(memstore.DefaultConfig())
	members := newMembers(client)
	l := stream.NewListener(newMembers(client), testConfig())
	ch, _ := collect(l)

	m := members.CreateNew()
	m.Title = "stored"
	require.NoError(t, members.Save(ctx))

	require.NoError(t, l.Dispatch(ctx, store.ChangeEvent{Operation: store.OperationUpdate, DocumentID: m.ID}))
	assert.Equal(t, "stored", receive(t, ch).Title)

	// Deleted before the lookup: nothing to deliver.
	require.NoError(t, l.Dispatch(ctx, store.ChangeEvent{Operation: store.OperationUpdate, DocumentID: "gone"}))
	expectNone(t, ch)

	require.NoError(t, l.Stop(ctx))
}

func TestDispatchWithoutSubscribers(t *testing.T) {
	client := memstore.New(memstore.DefaultConfig())
	l := stream.NewListener(newMembers(client), testConfig())
	err := l.Dispatch(context.Background(), store.ChangeEvent{Operation: store.OperationInsert, DocumentID: "x"})
	assert.NoError(t, err)
	assert.Zero(t, l.State().(stream.State).Dispatched)
}

// --- Observer Tests ---

type countingObserver struct {
	events, deliveries, failures, reconnects atomic.Int32
}

func (o *countingObserver) ObserveEvent(string, store.Operation) { o.events.Add(1) }
func (o *countingObserver) ObserveReconnect(string)              { o.reconnects.Add(1) }
func (o *countingObserver) ObserveDelivery(_ string, err error) {
	o.deliveries.Add(1)
	if err != nil {
		o.failures.Add(1)
	}
}

func TestObserver(t *testing.T) {
	ctx := context.Background()
	obs := &countingObserver{}
	cfg := testConfig()
	cfg.Observer = obs
	l, members := startListener(t, cfg)
	ch, _ := collect(l)
	l.Subscribe(func(context.Context, *Member) error { return errors.New("nope") })

	members.CreateNew()
	require.NoError(t, members.Save(ctx))
	receive(t, ch)

	assert.Eventually(t, func() bool {
		return obs.deliveries.Load() == 2 && obs.failures.Load() == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), obs.events.Load())
}
