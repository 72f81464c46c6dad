package dynamodb

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"cardvault/domain/card"
	apperrors "cardvault/pkg/errors"
	"cardvault/pkg/utils"
)

// Single-table layout. Cards live under CARD#<id>/METADATA with two derived
// index projections; change records live under OUTBOX#<id>/CHANGE#<version>
// and borrow GSI2 as their delivery queue. Index attributes are recomputed
// from the record on every write, so the primary image and both orderings
// commit together.
const (
	entityCard   = "CARD"
	entityChange = "CHANGE"

	skMetadata = "METADATA"

	cardKeyPrefix     = "CARD#"
	ownerKeyPrefix    = "OWNER#"
	createdKeyPrefix  = "CREATED#"
	categoryKeyPrefix = "CATEGORY#"
	valueKeyPrefix    = "VALUE#"
	outboxKeyPrefix   = "OUTBOX#"
	changeKeyPrefix   = "CHANGE#"
)

// primaryKey returns the table key for a card id.
func primaryKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: cardKeyPrefix + id},
		"SK": &types.AttributeValueMemberS{Value: skMetadata},
	}
}

// ownerIndexKey derives the GSI1 key ordering one owner's cards by creation
// time, card id breaking ties.
func ownerIndexKey(c *card.Card) (pk, sk string) {
	pk = ownerKeyPrefix + c.OwnerID
	sk = fmt.Sprintf("%s%s#%s%s", createdKeyPrefix, utils.FormatSortable(c.CreatedAt), cardKeyPrefix, c.ID)
	return pk, sk
}

// categoryIndexKey derives the GSI2 key ordering a category's cards by
// estimated value, card id breaking ties. Cards without a category carry no
// GSI2 attributes and stay out of the index entirely.
func categoryIndexKey(c *card.Card) (pk, sk string, ok bool) {
	if c.Category == "" {
		return "", "", false
	}
	pk = categoryKeyPrefix + c.Category
	sk = fmt.Sprintf("%s%s#%s%s", valueKeyPrefix, encodeValueMedian(c.ValueMedian), cardKeyPrefix, c.ID)
	return pk, sk, true
}

// encodeValueMedian zero-pads the value so lexicographic sort-key order
// equals numeric order.
func encodeValueMedian(v int64) string {
	return fmt.Sprintf("%012d", v)
}

// valueRangeBounds converts an inclusive numeric range into sort-key bounds.
// Upper bounds end with "$", which sorts after "#", so every tie-breaking id
// suffix at the max value is included. The unbounded top is "VALUE$", one
// past every "VALUE#..." entry.
func valueRangeBounds(r *card.ValueRange) (lo, hi string) {
	lo = valueKeyPrefix
	hi = "VALUE$"
	if r == nil {
		return lo, hi
	}
	if r.Min != nil {
		lo = valueKeyPrefix + encodeValueMedian(*r.Min)
	}
	if r.Max != nil {
		hi = valueKeyPrefix + encodeValueMedian(*r.Max) + "$"
	}
	return lo, hi
}

// checkImmutable rejects updates that try to move a card to another owner
// or rewrite its creation identity; both orderings depend on those fields.
func checkImmutable(current, next *card.Card) error {
	if next.ID != current.ID {
		return apperrors.NewImmutableFieldError("id")
	}
	if next.OwnerID != current.OwnerID {
		return apperrors.NewImmutableFieldError("ownerId")
	}
	if !next.CreatedAt.Equal(current.CreatedAt) {
		return apperrors.NewImmutableFieldError("createdAt")
	}
	return nil
}

// outboxKey returns the table key for one change record. The zero-padded
// version makes per-card change order equal sort-key order.
func outboxKey(cardID string, version int64) (pk, sk string) {
	return outboxKeyPrefix + cardID, fmt.Sprintf("%s%010d", changeKeyPrefix, version)
}

// outboxQueuePK partitions change records by delivery status on GSI2.
func outboxQueuePK(status string) string {
	return outboxKeyPrefix + status
}

// outboxQueueSK orders queued changes by enqueue time for fair draining.
func outboxQueueSK(enqueuedAt time.Time, cardID string) string {
	return fmt.Sprintf("%s%s#%s", changeKeyPrefix, utils.FormatSortable(enqueuedAt), cardID)
}
