// Package ports declares the interfaces the application layer depends on,
// implemented by the infrastructure adapters.
package ports

import (
	"context"
	"time"

	"cardvault/domain/card"
	"cardvault/domain/events"
)

// CardPage is one page of a listing query with its continuation cursor.
// An empty cursor means the listing is exhausted.
type CardPage struct {
	Cards      []*card.Card
	NextCursor string
}

// CardRepository is the store client: conditional point reads/writes, the
// two index listings, and the expiration sweep. Every mutation commits the
// record, its derived index entries, and exactly one change record as a
// single logical write.
type CardRepository interface {
	// Get returns the card or a NOT_FOUND error.
	Get(ctx context.Context, id string) (*card.Card, error)

	// Create persists a new card with version 1, failing with
	// ALREADY_EXISTS when the id is taken.
	Create(ctx context.Context, c *card.Card) (*card.Card, error)

	// Update re-reads the record, fails with VERSION_CONFLICT unless the
	// stored version equals expectedVersion, applies mutate, bumps the
	// version and persists atomically.
	Update(ctx context.Context, id string, expectedVersion int64, mutate func(*card.Card) error) (*card.Card, error)

	// Put overwrites a card unconditionally. Reserved for internal repair
	// tooling; regular writers must go through Update.
	Put(ctx context.Context, c *card.Card) error

	// Delete removes the card and its index entries, guarded by the same
	// version rule as Update.
	Delete(ctx context.Context, id string, expectedVersion int64) error

	// QueryByOwner lists one owner's cards newest first.
	QueryByOwner(ctx context.Context, ownerID string, cursor string, limit int32) (*CardPage, error)

	// QueryByCategory lists cards in a category ordered by value ascending,
	// optionally bounded by an inclusive value range.
	QueryByCategory(ctx context.Context, category string, valueRange *card.ValueRange, cursor string, limit int32) (*CardPage, error)

	// ExpireSweep removes every record whose expiry has elapsed and returns
	// the number removed by this invocation. Safe to run concurrently with
	// itself; each record is removed at most once across all instances.
	ExpireSweep(ctx context.Context, now time.Time) (int, error)
}

// PendingChange is an undelivered change record claimed from the outbox.
type PendingChange struct {
	Change        events.ChangeRecord
	Attempts      int
	NextAttemptAt time.Time

	// Storage handle for the delivery bookkeeping updates.
	PK string
	SK string
}

// Outbox is the durable queue of committed-but-undelivered changes.
type Outbox interface {
	// PendingChanges returns pending changes oldest enqueue first,
	// including ones still backing off. The caller owns due-filtering:
	// delivering around a not-yet-due change would reorder a card's
	// changes, so a backing-off change must park everything behind it.
	PendingChanges(ctx context.Context, limit int32) ([]*PendingChange, error)

	// MarkDelivered records a successful delivery; the change leaves the
	// pending queue permanently.
	MarkDelivered(ctx context.Context, pc *PendingChange) error

	// MarkFailed records a failed attempt and schedules the next one at
	// nextAttempt. Returns true when the change was dead-lettered instead
	// because the attempt bound was reached.
	MarkFailed(ctx context.Context, pc *PendingChange, deliveryErr error, nextAttempt time.Time) (deadLettered bool, err error)
}

// ChangePublisher forwards one change record to the downstream consumers.
// Delivery is at-least-once; consumers deduplicate on the dedupe token.
type ChangePublisher interface {
	Publish(ctx context.Context, change events.ChangeRecord) error
}

// UploadPresigner issues presigned upload URLs against the object-storage
// collaborator. The bucket itself is outside this system's boundary.
type UploadPresigner interface {
	PresignUpload(ctx context.Context, ownerID, contentType string) (url string, objectKey string, err error)
}
