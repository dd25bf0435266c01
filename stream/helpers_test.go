package stream_test

import (
	"context"
	"testing"
	"time"

	"github.com/jacentio/docrepo/repository"
	"github.com/jacentio/docrepo/store"
	"github.com/jacentio/docrepo/store/memstore"
	"github.com/jacentio/docrepo/stream"
)

type Member struct {
	repository.Base
	Title    string `json:"title"`
	UserName string `json:"user_name"`
}

type Group struct {
	repository.Base
	Name string `json:"name"`
}

func newMembers(client store.Client) *repository.Repository[Member, *Member] {
	return repository.New[Member](client, repository.DefaultConfig())
}

func testConfig() stream.Config {
	cfg := stream.DefaultConfig()
	cfg.RetryInitial = time.Millisecond
	cfg.RetryMax = 10 * time.Millisecond
	return cfg
}

// startListener returns a running listener over a fresh in-memory store and
// the repository used to write to it.
func startListener(t *testing.T, cfg stream.Config) (*stream.Listener[Member, *Member], *repository.Repository[Member, *Member]) {
	t.Helper()
	client := memstore.New(memstore.DefaultConfig())
	l := stream.NewListener(newMembers(client), cfg)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Stop(ctx)
	})
	return l, newMembers(client)
}

// collect subscribes a handler that forwards received documents to a channel.
func collect(l *stream.Listener[Member, *Member]) (<-chan *Member, func()) {
	ch := make(chan *Member, 16)
	unsubscribe := l.Subscribe(func(_ context.Context, m *Member) error {
		ch <- m
		return nil
	})
	return ch, unsubscribe
}

func receive[V any](t *testing.T, ch <-chan V) V {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		var zero V
		return zero
	}
}

func expectNone[V any](t *testing.T, ch <-chan V) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected delivery: %+v", v)
	case <-time.After(100 * time.Millisecond):
	}
}
