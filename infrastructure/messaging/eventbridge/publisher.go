// Package eventbridge forwards committed change records to the downstream
// analysis, pricing and notification consumers via an EventBridge bus.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"cardvault/domain/card"
	"cardvault/domain/events"
	apperrors "cardvault/pkg/errors"
)

// changeDetail is the wire shape consumers receive. DedupeToken is the
// (id, version) idempotency key; delivery is at-least-once.
type changeDetail struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Version     int64      `json:"version"`
	PostImage   *card.Card `json:"postImage,omitempty"`
	DedupeToken string     `json:"dedupeToken"`
}

// Client is the subset of the EventBridge API the publisher uses.
type Client interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher implements ports.ChangePublisher on EventBridge.
type Publisher struct {
	client       Client
	eventBusName string
	source       string
	logger       *zap.Logger
}

// NewPublisher creates an EventBridge change publisher.
func NewPublisher(client Client, eventBusName, source string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:       client,
		eventBusName: eventBusName,
		source:       source,
		logger:       logger,
	}
}

// Publish sends one change record to the bus. Any failure is returned as
// DELIVERY_FAILED so the outbox worker can retry or dead-letter it.
func (p *Publisher) Publish(ctx context.Context, change events.ChangeRecord) error {
	detail, err := json.Marshal(changeDetail{
		ID:          change.CardID,
		Kind:        string(change.Kind),
		Version:     change.Version,
		PostImage:   change.PostImage,
		DedupeToken: change.DedupeToken(),
	})
	if err != nil {
		return apperrors.NewDeliveryFailedError("failed to marshal change detail", err)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				EventBusName: aws.String(p.eventBusName),
				Source:       aws.String(p.source),
				DetailType:   aws.String(fmt.Sprintf("card.%s", change.Kind)),
				Detail:       aws.String(string(detail)),
				Time:         aws.Time(change.OccurredAt),
			},
		},
	})
	if err != nil {
		return apperrors.NewDeliveryFailedError("failed to put change event", err)
	}

	if result.FailedEntryCount > 0 {
		entry := result.Entries[0]
		p.logger.Warn("Change event rejected by bus",
			zap.String("cardID", change.CardID),
			zap.Int64("version", change.Version),
			zap.String("errorCode", aws.ToString(entry.ErrorCode)),
			zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
		)
		return apperrors.NewDeliveryFailedError(
			fmt.Sprintf("change event rejected: %s", aws.ToString(entry.ErrorCode)), nil)
	}

	p.logger.Debug("Change event published",
		zap.String("cardID", change.CardID),
		zap.String("kind", string(change.Kind)),
		zap.Int64("version", change.Version),
	)

	return nil
}
