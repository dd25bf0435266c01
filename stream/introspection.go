package stream

import (
	"github.com/aretw0/introspection"

	"github.com/jacentio/docrepo/repository"
)

// State is the observable state of a Listener.
type State struct {
	Database      string `json:"database"`
	Collection    string `json:"collection"`
	Status        string `json:"status"`
	Subscriptions int    `json:"subscriptions"`
	Dispatched    int64  `json:"dispatched"`
	Failed        int64  `json:"failed"`
	Dropped       int64  `json:"dropped"`
	Reconnects    int64  `json:"reconnects"`
	LastError     string `json:"last_error,omitempty"`
}

// State implements introspection.Introspectable.
func (l *Listener[T, P]) State() any {
	s := State{
		Database:      l.repo.DatabaseName(),
		Collection:    l.repo.CollectionName(),
		Status:        l.Status().String(),
		Subscriptions: l.Subscriptions(),
		Dispatched:    l.dispatched.Load(),
		Failed:        l.failed.Load(),
		Dropped:       l.dropped.Load(),
		Reconnects:    l.reconnects.Load(),
	}
	if msg := l.lastErr.Load(); msg != nil {
		s.LastError = *msg
	}
	return s
}

// ComponentType implements introspection.Component.
func (l *Listener[T, P]) ComponentType() string {
	return "listener"
}

var (
	_ introspection.Introspectable = (*Listener[repository.Base, *repository.Base])(nil)
	_ introspection.Component      = (*Listener[repository.Base, *repository.Base])(nil)
)
