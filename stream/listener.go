package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/lifecycle"

	"github.com/jacentio/docrepo/repository"
	"github.com/jacentio/docrepo/store"
)

// Handler receives a freshly decoded copy of a changed document.
// Each handler gets its own copy; mutating it affects nothing else.
type Handler[P any] func(ctx context.Context, doc P) error

// Status is the lifecycle position of a Listener.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Listener watches a repository's collection and fans changed documents out
// to its subscriptions.
type Listener[T any, P repository.DocumentOf[T]] struct {
	repo   *repository.Repository[T, P]
	config Config
	logger *slog.Logger

	// base outlives Start's context so queued deliveries drain on shutdown.
	base   context.Context
	cancel context.CancelFunc

	// startMu serializes Start and Stop.
	startMu sync.Mutex
	started bool
	status  atomic.Int32
	done    chan struct{}

	mu     sync.RWMutex
	subs   map[uint64]*subscription[T, P]
	nextID uint64

	workers sync.WaitGroup
	errs    chan error

	lastErr    atomic.Pointer[string]
	dispatched atomic.Int64
	failed     atomic.Int64
	dropped    atomic.Int64
	reconnects atomic.Int64
}

// NewListener creates an idle listener for repo. Handlers may be subscribed
// before or after Start.
func NewListener[T any, P repository.DocumentOf[T]](repo *repository.Repository[T, P], config Config) *Listener[T, P] {
	config.validate()
	base, cancel := context.WithCancel(context.Background())
	return &Listener[T, P]{
		repo:   repo,
		config: config,
		logger: config.Logger.With("collection", repo.CollectionName()),
		base:   base,
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[uint64]*subscription[T, P]),
		errs:   make(chan error, config.ErrorBuffer),
	}
}

// Repository returns the repository whose collection is watched.
func (l *Listener[T, P]) Repository() *repository.Repository[T, P] {
	return l.repo
}

// Status reports the listener's lifecycle position.
func (l *Listener[T, P]) Status() Status {
	return Status(l.status.Load())
}

// Errors returns failed deliveries and watch errors. Errors arriving while the
// channel is full are logged and discarded.
func (l *Listener[T, P]) Errors() <-chan error {
	return l.errs
}

// Start opens the change stream and begins delivering events until ctx is
// done or Stop is called. Starting a running listener is a no-op; starting a
// stopped one returns ErrListenerStopped.
//
// The first stream is opened before Start returns, so writes made after a
// successful Start are observed. A collection that cannot be watched fails
// with store.ErrWatchUnsupported and leaves the listener idle.
func (l *Listener[T, P]) Start(ctx context.Context) error {
	l.startMu.Lock()
	defer l.startMu.Unlock()

	switch l.Status() {
	case StatusRunning:
		return nil
	case StatusStopped:
		return ErrListenerStopped
	}

	cs, err := l.open(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(l.base, cancel)
	l.started = true
	l.status.Store(int32(StatusRunning))
	l.logger.Info("listener started", "database", l.repo.DatabaseName())

	lifecycle.Go(runCtx, func(ctx context.Context) error {
		defer stop()
		defer cancel()
		l.run(ctx, cs)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		l.report(fmt.Errorf("listener panic: %w", err))
	}))
	return nil
}

// Stop ends the watch, closes every subscription and waits for queued
// deliveries to drain. It returns ctx.Err() if ctx ends first. A stopped
// listener cannot be restarted.
func (l *Listener[T, P]) Stop(ctx context.Context) error {
	l.startMu.Lock()
	started := l.started
	l.status.Store(int32(StatusStopped))
	l.cancel()
	l.startMu.Unlock()

	if !started {
		l.closeSubscriptions()
	}

	finished := make(chan struct{})
	go func() {
		if started {
			<-l.done
		}
		l.workers.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// open resolves the collection and opens a stream of write events.
func (l *Listener[T, P]) open(ctx context.Context) (store.ChangeStream, error) {
	coll, err := l.repo.Collection(ctx)
	if err != nil {
		return nil, err
	}
	w, ok := coll.(store.Watcher)
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", coll.Name(), store.ErrWatchUnsupported)
	}
	return w.Watch(ctx, store.WriteOperations...)
}

// run consumes the stream, reopening it with backoff after failures.
func (l *Listener[T, P]) run(ctx context.Context, cs store.ChangeStream) {
	defer close(l.done)
	defer l.closeSubscriptions()

	retries := 0
	for {
		if cs == nil {
			var err error
			cs, err = l.open(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, store.ErrWatchUnsupported) {
					l.report(err)
					return
				}
				retries++
				l.report(fmt.Errorf("reopen watch: %w", err))
				if !l.sleep(ctx, retries) {
					return
				}
				continue
			}
			l.reconnects.Add(1)
			l.config.Observer.ObserveReconnect(l.repo.CollectionName())
			l.logger.Info("watch reopened", "retries", retries)
		}

		ev, err := cs.Next(ctx)
		if err != nil {
			if closeErr := cs.Close(context.WithoutCancel(ctx)); closeErr != nil {
				l.logger.Debug("close change stream", "error", closeErr)
			}
			cs = nil
			if ctx.Err() != nil {
				return
			}
			retries++
			l.report(fmt.Errorf("watch: %w", err))
			if !l.sleep(ctx, retries) {
				return
			}
			continue
		}
		retries = 0

		if err := l.Dispatch(ctx, ev); err != nil {
			l.report(err)
		}
	}
}

// sleep waits out the backoff for retries. It returns false if ctx ended.
func (l *Listener[T, P]) sleep(ctx context.Context, retries int) bool {
	t := time.NewTimer(backoff(retries, l.config.RetryInitial, l.config.RetryMax))
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Dispatch delivers one change event to every subscription. Delete events and
// events arriving with no subscribers are ignored. Events without a document
// image are resolved by identity; a document deleted in the meantime is
// skipped.
//
// Dispatch does not require Start and is how externally received events (see
// LambdaHandler) enter the listener.
func (l *Listener[T, P]) Dispatch(ctx context.Context, ev store.ChangeEvent) error {
	if ev.Operation == store.OperationDelete {
		return nil
	}
	if l.Subscriptions() == 0 {
		return nil
	}

	rec := ev.Document
	if rec == nil {
		coll, err := l.repo.Collection(ctx)
		if err != nil {
			return err
		}
		rec, err = coll.FindByID(ctx, ev.DocumentID)
		if errors.Is(err, store.ErrNotFound) {
			l.logger.Debug("changed document gone before lookup", "id", ev.DocumentID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup %s: %w", ev.DocumentID, err)
		}
	}

	l.dispatched.Add(1)
	l.config.Observer.ObserveEvent(l.repo.CollectionName(), ev.Operation)

	d := delivery{id: ev.DocumentID, rec: rec}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.subs {
		if !s.enqueue(d) {
			l.dropped.Add(1)
			l.report(&HandlerError{Subscription: s.id, DocumentID: d.id, Err: ErrQueueFull})
		}
	}
	return nil
}

// Subscribe registers h and returns a function that removes it. Removing a
// subscription lets its queued deliveries finish. Subscribing to a stopped
// listener returns a no-op unsubscribe.
func (l *Listener[T, P]) Subscribe(h Handler[P]) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Status() == StatusStopped {
		return func() {}
	}

	l.nextID++
	s := newSubscription(l, l.nextID, h)
	l.subs[s.id] = s
	s.start()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if _, ok := l.subs[s.id]; ok {
				delete(l.subs, s.id)
				s.close()
			}
		})
	}
}

// Subscriptions returns the number of active subscriptions.
func (l *Listener[T, P]) Subscriptions() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}

// closeSubscriptions marks the listener stopped and closes every queue. Both
// happen under mu so Subscribe cannot add a queue nobody will close.
func (l *Listener[T, P]) closeSubscriptions() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.Store(int32(StatusStopped))
	for id, s := range l.subs {
		delete(l.subs, id)
		s.close()
	}
}

// report logs err and offers it on the Errors channel.
func (l *Listener[T, P]) report(err error) {
	msg := err.Error()
	l.lastErr.Store(&msg)
	l.logger.Warn("listener error", "error", err)
	select {
	case l.errs <- err:
	default:
		l.logger.Debug("error channel full, discarding", "error", err)
	}
}
