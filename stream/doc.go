// Package stream delivers document changes to subscribers.
//
// A Listener watches one repository's collection for inserts, updates and
// replaces and hands each changed document to every subscribed Handler.
// Handlers run on their own workers: a slow, failing or panicking handler
// never blocks or stops delivery to the others, and failures are reported on
// the listener's Errors channel instead of being dropped.
//
// A Registry keeps at most one listener per document type and starts it on
// first request:
//
//	reg := stream.NewRegistry(ctx, stream.DefaultConfig())
//	defer reg.Shutdown(context.Background())
//
//	listener, err := stream.Subscribing(reg, members)
//	if err != nil {
//		return err
//	}
//	unsubscribe := listener.Subscribe(func(ctx context.Context, m *Member) error {
//		slog.Info("member changed", "id", m.ID)
//		return nil
//	})
//	defer unsubscribe()
//
// Collections without a change feed (SQLite) fail to start with
// store.ErrWatchUnsupported. For DynamoDB tables whose stream is consumed by
// AWS Lambda, LambdaHandler feeds stream records to a listener that is never
// started.
package stream
