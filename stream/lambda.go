package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	lru "github.com/hashicorp/golang-lru"

	"github.com/jacentio/docrepo/store"
	"github.com/jacentio/docrepo/store/dynamo"
)

// Dispatcher accepts change events. Listener implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev store.ChangeEvent) error
}

// LambdaHandler feeds DynamoDB stream batches delivered to AWS Lambda into a
// Dispatcher. Lambda redelivers whole batches on failure; records already
// dispatched by this instance are recognized by event ID and skipped.
type LambdaHandler struct {
	target Dispatcher
	logger *slog.Logger
	seen   *lru.ARCCache
}

// NewLambdaHandler creates a handler remembering up to dedupe event IDs.
func NewLambdaHandler(target Dispatcher, dedupe int, logger *slog.Logger) (*LambdaHandler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dedupe < 1 {
		dedupe = 10_000
	}
	seen, err := lru.NewARC(dedupe)
	if err != nil {
		return nil, fmt.Errorf("dedupe cache: %w", err)
	}
	return &LambdaHandler{target: target, logger: logger, seen: seen}, nil
}

// Handle dispatches every record of the batch and reports the ones that
// failed so Lambda retries only those. Pass it to lambda.Start.
func (h *LambdaHandler) Handle(ctx context.Context, batch events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	var resp events.DynamoDBEventResponse
	for _, rec := range batch.Records {
		if rec.EventID != "" && h.seen.Contains(rec.EventID) {
			h.logger.Debug("skipping redelivered record", "event_id", rec.EventID)
			continue
		}

		ev, ok, err := dynamo.LambdaEvent(rec)
		if err != nil {
			h.logger.Error("failed to convert stream record", "event_id", rec.EventID, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, failure(rec))
			continue
		}
		if ok {
			if err := h.target.Dispatch(ctx, ev); err != nil {
				h.logger.Error("failed to dispatch stream record", "event_id", rec.EventID, "id", ev.DocumentID, "error", err)
				resp.BatchItemFailures = append(resp.BatchItemFailures, failure(rec))
				continue
			}
		}
		if rec.EventID != "" {
			h.seen.Add(rec.EventID, struct{}{})
		}
	}
	return resp, nil
}

func failure(rec events.DynamoDBEventRecord) events.DynamoDBBatchItemFailure {
	return events.DynamoDBBatchItemFailure{ItemIdentifier: rec.Change.SequenceNumber}
}
