package stream

import (
	"context"
	"fmt"

	"github.com/aretw0/lifecycle"

	"github.com/jacentio/docrepo/internal/shard"
	"github.com/jacentio/docrepo/repository"
	"github.com/jacentio/docrepo/store"
)

type delivery struct {
	id  string
	rec store.Record
}

// subscription runs one handler on its own workers. Deliveries for the same
// document always land on the same worker.
type subscription[T any, P repository.DocumentOf[T]] struct {
	id       uint64
	listener *Listener[T, P]
	handler  Handler[P]
	queues   []chan delivery
}

func newSubscription[T any, P repository.DocumentOf[T]](l *Listener[T, P], id uint64, h Handler[P]) *subscription[T, P] {
	queues := make([]chan delivery, l.config.Workers)
	for i := range queues {
		queues[i] = make(chan delivery, l.config.QueueSize)
	}
	return &subscription[T, P]{
		id:       id,
		listener: l,
		handler:  h,
		queues:   queues,
	}
}

func (s *subscription[T, P]) start() {
	for _, q := range s.queues {
		s.listener.workers.Add(1)
		lifecycle.Go(s.listener.base, func(context.Context) error {
			defer s.listener.workers.Done()
			for d := range q {
				s.invoke(d)
			}
			return nil
		}, lifecycle.WithErrorHandler(func(err error) {
			s.listener.report(fmt.Errorf("subscription %d worker: %w", s.id, err))
		}))
	}
}

// enqueue hands d to its worker without blocking. Callers hold the
// listener's read lock.
func (s *subscription[T, P]) enqueue(d delivery) bool {
	q := s.queues[shard.For(d.id, len(s.queues))]
	select {
	case q <- d:
		return true
	default:
		return false
	}
}

// close stops accepting deliveries. Callers hold the listener's write lock.
func (s *subscription[T, P]) close() {
	for _, q := range s.queues {
		close(q)
	}
}

// invoke runs the handler for d. A panicking handler fails only this
// delivery.
func (s *subscription[T, P]) invoke(d delivery) {
	l := s.listener
	err := s.safeHandle(l.base, d)
	l.config.Observer.ObserveDelivery(l.repo.CollectionName(), err)
	if err != nil {
		l.failed.Add(1)
		l.report(&HandlerError{Subscription: s.id, DocumentID: d.id, Err: err})
	}
}

func (s *subscription[T, P]) safeHandle(ctx context.Context, d delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handle(ctx, d)
}

func (s *subscription[T, P]) handle(ctx context.Context, d delivery) error {
	doc := P(new(T))
	if err := d.rec.Decode(doc); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return s.handler(ctx, doc)
}
