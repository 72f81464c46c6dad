// Package events defines the change records propagated to downstream
// consumers for every committed mutation.
package events

import (
	"fmt"
	"time"

	"cardvault/domain/card"
)

// Kind identifies the mutation a change record describes.
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
	KindExpired Kind = "expired"
)

// ChangeRecord is the unit of at-least-once propagation. PostImage is the
// full record after the mutation; for deletes and expirations it is the
// last known image. Consumers deduplicate on the (id, version) token.
type ChangeRecord struct {
	CardID     string     `json:"id"`
	Kind       Kind       `json:"kind"`
	Version    int64      `json:"version"`
	PostImage  *card.Card `json:"postImage,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}

// DedupeToken returns the idempotency key consumers use to discard
// duplicate deliveries.
func (c ChangeRecord) DedupeToken() string {
	return fmt.Sprintf("%s#%d", c.CardID, c.Version)
}

// NewChange builds a change record from a committed mutation's image.
func NewChange(kind Kind, image *card.Card, occurredAt time.Time) ChangeRecord {
	return ChangeRecord{
		CardID:     image.ID,
		Kind:       kind,
		Version:    image.Version,
		PostImage:  image,
		OccurredAt: occurredAt,
	}
}
