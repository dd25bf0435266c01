package stream

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jacentio/docrepo/repository"
)

type stopper interface {
	Stop(ctx context.Context) error
}

// Registry holds at most one running listener per document type.
type Registry struct {
	ctx    context.Context
	config Config

	// mu serializes listener creation so concurrent first requests for a
	// type start exactly one listener.
	mu        sync.Mutex
	listeners map[reflect.Type]stopper
}

// NewRegistry creates a registry whose listeners run until ctx is done or
// Shutdown is called.
func NewRegistry(ctx context.Context, config Config) *Registry {
	return &Registry{
		ctx:       ctx,
		config:    config,
		listeners: make(map[reflect.Type]stopper),
	}
}

// Subscribing returns the listener for T, creating and starting it over repo
// on first request. Later calls return the same listener whatever repository
// they pass. A listener that fails to start is not kept, so a later call
// retries.
func Subscribing[T any, P repository.DocumentOf[T]](reg *Registry, repo *repository.Repository[T, P]) (*Listener[T, P], error) {
	typ := reflect.TypeFor[T]()

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if existing, ok := reg.listeners[typ]; ok {
		l, ok := existing.(*Listener[T, P])
		if !ok {
			return nil, fmt.Errorf("listener for %s registered with a different document pointer type", typ)
		}
		if l.Status() != StatusStopped {
			return l, nil
		}
		delete(reg.listeners, typ)
	}

	l := NewListener(repo, reg.config)
	if err := l.Start(reg.ctx); err != nil {
		return nil, fmt.Errorf("start listener for %s: %w", typ, err)
	}
	reg.listeners[typ] = l
	return l, nil
}

// Subscribe registers h on the listener for T, starting it if needed.
func Subscribe[T any, P repository.DocumentOf[T]](reg *Registry, repo *repository.Repository[T, P], h Handler[P]) (unsubscribe func(), err error) {
	l, err := Subscribing(reg, repo)
	if err != nil {
		return nil, err
	}
	return l.Subscribe(h), nil
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Shutdown stops every listener concurrently and empties the registry.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	listeners := r.listeners
	r.listeners = make(map[reflect.Type]stopper)
	r.mu.Unlock()

	var g errgroup.Group
	for typ, l := range listeners {
		g.Go(func() error {
			if err := l.Stop(ctx); err != nil {
				return fmt.Errorf("stop listener for %s: %w", typ, err)
			}
			return nil
		})
	}
	return g.Wait()
}
