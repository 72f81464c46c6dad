package dynamodb

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"cardvault/domain/card"
	apperrors "cardvault/pkg/errors"
	"cardvault/pkg/utils"
)

// cardItem is the wire representation of a card. Key attributes are derived
// from the record by the planner functions in keys.go; ExpireAt is stored as
// epoch seconds so the table's TTL policy can act on it.
type cardItem struct {
	PK          string                 `dynamodbav:"PK"`
	SK          string                 `dynamodbav:"SK"`
	GSI1PK      string                 `dynamodbav:"GSI1PK"`
	GSI1SK      string                 `dynamodbav:"GSI1SK"`
	GSI2PK      string                 `dynamodbav:"GSI2PK,omitempty"`
	GSI2SK      string                 `dynamodbav:"GSI2SK,omitempty"`
	EntityType  string                 `dynamodbav:"EntityType"`
	CardID      string                 `dynamodbav:"CardID"`
	OwnerID     string                 `dynamodbav:"OwnerID"`
	Category    string                 `dynamodbav:"Category,omitempty"`
	ValueMedian int64                  `dynamodbav:"ValueMedian"`
	Status      string                 `dynamodbav:"Status"`
	Payload     map[string]interface{} `dynamodbav:"Payload,omitempty"`
	CreatedAt   string                 `dynamodbav:"CreatedAt"`
	UpdatedAt   string                 `dynamodbav:"UpdatedAt"`
	ExpireAt    int64                  `dynamodbav:"ExpireAt,omitempty"`
	Version     int64                  `dynamodbav:"Version"`
}

// encodeCard validates the record and serializes it with derived index
// attributes. Pure; the caller owns key conditions and persistence.
func encodeCard(c *card.Card) (map[string]types.AttributeValue, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
		return nil, apperrors.NewValidationError("timestamps must be set before encoding")
	}
	if c.Version < 1 {
		return nil, apperrors.NewValidationError("version must be at least 1")
	}

	item := cardItem{
		PK:          cardKeyPrefix + c.ID,
		SK:          skMetadata,
		EntityType:  entityCard,
		CardID:      c.ID,
		OwnerID:     c.OwnerID,
		Category:    c.Category,
		ValueMedian: c.ValueMedian,
		Status:      string(c.Status),
		Payload:     c.Payload,
		CreatedAt:   utils.FormatSortable(c.CreatedAt),
		UpdatedAt:   utils.FormatSortable(c.UpdatedAt),
		Version:     c.Version,
	}

	item.GSI1PK, item.GSI1SK = ownerIndexKey(c)
	if pk, sk, ok := categoryIndexKey(c); ok {
		item.GSI2PK, item.GSI2SK = pk, sk
	}
	if c.ExpireAt != nil {
		item.ExpireAt = c.ExpireAt.Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, apperrors.NewValidationError("failed to marshal card").WithCause(err)
	}
	return av, nil
}

// decodeCard deserializes a stored item back into a card. Missing or
// malformed required attributes surface as CORRUPT_RECORD; nothing is
// silently defaulted.
func decodeCard(av map[string]types.AttributeValue) (*card.Card, error) {
	var item cardItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, apperrors.NewCorruptRecordError("stored card does not unmarshal").WithCause(err)
	}

	if item.CardID == "" || item.OwnerID == "" {
		return nil, apperrors.NewCorruptRecordError("stored card is missing its identity attributes")
	}
	if item.Version < 1 {
		return nil, apperrors.NewCorruptRecordError(fmt.Sprintf("stored card %s has version %d", item.CardID, item.Version))
	}
	status := card.Status(item.Status)
	if !status.Valid() {
		return nil, apperrors.NewCorruptRecordError(fmt.Sprintf("stored card %s has status %q", item.CardID, item.Status))
	}

	createdAt, err := utils.ParseSortable(item.CreatedAt)
	if err != nil {
		return nil, apperrors.NewCorruptRecordError(fmt.Sprintf("stored card %s has createdAt %q", item.CardID, item.CreatedAt))
	}
	updatedAt, err := utils.ParseSortable(item.UpdatedAt)
	if err != nil {
		return nil, apperrors.NewCorruptRecordError(fmt.Sprintf("stored card %s has updatedAt %q", item.CardID, item.UpdatedAt))
	}

	c := &card.Card{
		ID:          item.CardID,
		OwnerID:     item.OwnerID,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		Category:    item.Category,
		ValueMedian: item.ValueMedian,
		Status:      status,
		Payload:     item.Payload,
		Version:     item.Version,
	}
	if item.ExpireAt > 0 {
		t := time.Unix(item.ExpireAt, 0).UTC()
		c.ExpireAt = &t
	}

	return c, nil
}
