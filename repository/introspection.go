package repository

import "github.com/aretw0/introspection"

// State is the observable state of a Repository.
type State struct {
	Database   string `json:"database"`
	Collection string `json:"collection"`
	ReadOnly   bool   `json:"read_only"`
	Tracked    int    `json:"tracked"`
	Snapshots  int    `json:"snapshots"`
}

// State implements introspection.Introspectable.
func (r *Repository[T, P]) State() any {
	tracked, snapshots := r.tracker.counts()
	return State{
		Database:   r.DatabaseName(),
		Collection: r.CollectionName(),
		ReadOnly:   r.config.ReadOnly,
		Tracked:    tracked,
		Snapshots:  snapshots,
	}
}

// ComponentType implements introspection.Component.
func (r *Repository[T, P]) ComponentType() string {
	return "repository"
}

var (
	_ introspection.Introspectable = (*Repository[Base, *Base])(nil)
	_ introspection.Component      = (*Repository[Base, *Base])(nil)
)
