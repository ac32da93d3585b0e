package pipeline

import (
	"context"

	"minisiem/pkg/models"
)

// BulkWriter delivers alert batches to the search backend.
type BulkWriter interface {
	WriteBatch(ctx context.Context, events []models.Event) error
	Close() error
}

// Notifier forwards single alerts to a downstream consumer.
type Notifier interface {
	SendAlert(ctx context.Context, event models.Event) error
	Close() error
}

// DeadLetterWriter keeps a copy of batches the bulk writer gave up on.
type DeadLetterWriter interface {
	Archive(ctx context.Context, events []models.Event) error
	Close() error
}
