package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"cardvault/application/ports"
	"cardvault/domain/card"
	"cardvault/domain/events"
	apperrors "cardvault/pkg/errors"
	"cardvault/pkg/utils"
)

// Change delivery statuses. Pending and dead changes occupy their own GSI2
// partitions so the delivery worker and operators can list them; delivered
// changes leave the queue but stay under the card's outbox partition as an
// audit trail of commit order.
const (
	changeStatusPending   = "pending"
	changeStatusDelivered = "delivered"
	changeStatusDead      = "dead"
)

// changeItem is the wire representation of one committed mutation awaiting
// delivery. It is written in the same transaction as the mutation itself.
type changeItem struct {
	PK            string `dynamodbav:"PK"`
	SK            string `dynamodbav:"SK"`
	GSI2PK        string `dynamodbav:"GSI2PK"`
	GSI2SK        string `dynamodbav:"GSI2SK"`
	EntityType    string `dynamodbav:"EntityType"`
	CardID        string `dynamodbav:"CardID"`
	Kind          string `dynamodbav:"Kind"`
	Version       int64  `dynamodbav:"Version"`
	PostImage     string `dynamodbav:"PostImage"`
	DedupeToken   string `dynamodbav:"DedupeToken"`
	ChangeStatus  string `dynamodbav:"ChangeStatus"`
	Attempts      int    `dynamodbav:"Attempts"`
	EnqueuedAt    string `dynamodbav:"EnqueuedAt"`
	NextAttemptAt int64  `dynamodbav:"NextAttemptAt"`
	LastError     string `dynamodbav:"LastError,omitempty"`
	DeliveredAt   string `dynamodbav:"DeliveredAt,omitempty"`
}

// buildChangePut constructs the transact item enqueueing one change record.
// The put is unconditional: (cardID, version) is unique because the guarded
// card write in the same transaction enforces the version sequence.
func buildChangePut(tableName string, change events.ChangeRecord) (types.TransactWriteItem, error) {
	image, err := json.Marshal(change.PostImage)
	if err != nil {
		return types.TransactWriteItem{}, apperrors.NewInternalError("failed to marshal change post-image").WithCause(err)
	}

	pk, sk := outboxKey(change.CardID, change.Version)
	item := changeItem{
		PK:            pk,
		SK:            sk,
		GSI2PK:        outboxQueuePK(changeStatusPending),
		GSI2SK:        outboxQueueSK(change.OccurredAt, change.CardID),
		EntityType:    entityChange,
		CardID:        change.CardID,
		Kind:          string(change.Kind),
		Version:       change.Version,
		PostImage:     string(image),
		DedupeToken:   change.DedupeToken(),
		ChangeStatus:  changeStatusPending,
		Attempts:      0,
		EnqueuedAt:    utils.FormatSortable(change.OccurredAt),
		NextAttemptAt: change.OccurredAt.Unix(),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return types.TransactWriteItem{}, apperrors.NewInternalError("failed to marshal change record").WithCause(err)
	}

	return types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(tableName),
			Item:      av,
		},
	}, nil
}

// OutboxStore implements ports.Outbox over the same table as the cards.
type OutboxStore struct {
	client      Client
	tableName   string
	queueIndex  string
	maxAttempts int
	logger      *zap.Logger
}

// NewOutboxStore creates the outbox adapter. queueIndex is the GSI holding
// the status partitions; maxAttempts bounds the delivery retry loop.
func NewOutboxStore(client Client, tableName, queueIndex string, maxAttempts int, logger *zap.Logger) *OutboxStore {
	return &OutboxStore{
		client:      client,
		tableName:   tableName,
		queueIndex:  queueIndex,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// PendingChanges returns pending changes oldest first. Backing-off changes
// are included with their NextAttemptAt so the caller can park everything
// queued behind them instead of delivering around them.
func (s *OutboxStore) PendingChanges(ctx context.Context, limit int32) ([]*ports.PendingChange, error) {
	input := &awsdynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(s.queueIndex),
		KeyConditionExpression: aws.String("GSI2PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: outboxQueuePK(changeStatusPending)},
		},
		ScanIndexForward: aws.Bool(true),
		Limit:            aws.Int32(limit),
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, apperrors.NewDatabaseError("query pending changes", err)
	}

	pending := make([]*ports.PendingChange, 0, len(result.Items))
	for _, raw := range result.Items {
		pc, err := s.decodePending(raw)
		if err != nil {
			// A change that does not decode can never deliver. Move it to
			// the dead partition so it stops blocking the queue and waits
			// for an operator instead.
			s.logger.Error("Corrupt change record in outbox, dead-lettering", zap.Error(err))
			s.deadLetterRaw(ctx, raw, err)
			continue
		}
		pending = append(pending, pc)
	}

	return pending, nil
}

// deadLetterRaw moves an undecodable change record out of the pending queue.
// Best-effort: if the update fails the record is retried next tick.
func (s *OutboxStore) deadLetterRaw(ctx context.Context, raw map[string]types.AttributeValue, decodeErr error) {
	pk, okPK := raw["PK"].(*types.AttributeValueMemberS)
	sk, okSK := raw["SK"].(*types.AttributeValueMemberS)
	if !okPK || !okSK {
		s.logger.Error("Corrupt change record has no usable key; leaving in place")
		return
	}

	_, err := s.client.UpdateItem(ctx, &awsdynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk.Value},
			"SK": &types.AttributeValueMemberS{Value: sk.Value},
		},
		UpdateExpression: aws.String("SET ChangeStatus = :status, GSI2PK = :queue, LastError = :lastErr"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: changeStatusDead},
			":queue":   &types.AttributeValueMemberS{Value: outboxQueuePK(changeStatusDead)},
			":lastErr": &types.AttributeValueMemberS{Value: decodeErr.Error()},
		},
	})
	if err != nil {
		s.logger.Error("Failed to dead-letter corrupt change record",
			zap.String("pk", pk.Value),
			zap.String("sk", sk.Value),
			zap.Error(err),
		)
	}
}

func (s *OutboxStore) decodePending(raw map[string]types.AttributeValue) (*ports.PendingChange, error) {
	var item changeItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, apperrors.NewCorruptRecordError("stored change does not unmarshal").WithCause(err)
	}
	if item.CardID == "" || item.Version < 1 {
		return nil, apperrors.NewCorruptRecordError("stored change is missing identity attributes")
	}

	var image *card.Card
	if item.PostImage != "" {
		image = &card.Card{}
		if err := json.Unmarshal([]byte(item.PostImage), image); err != nil {
			return nil, apperrors.NewCorruptRecordError(
				fmt.Sprintf("change %s#%d has an unreadable post-image", item.CardID, item.Version)).WithCause(err)
		}
	}

	occurredAt, err := utils.ParseSortable(item.EnqueuedAt)
	if err != nil {
		return nil, apperrors.NewCorruptRecordError(
			fmt.Sprintf("change %s#%d has enqueuedAt %q", item.CardID, item.Version, item.EnqueuedAt))
	}

	return &ports.PendingChange{
		Change: events.ChangeRecord{
			CardID:     item.CardID,
			Kind:       events.Kind(item.Kind),
			Version:    item.Version,
			PostImage:  image,
			OccurredAt: occurredAt,
		},
		Attempts:      item.Attempts,
		NextAttemptAt: time.Unix(item.NextAttemptAt, 0).UTC(),
		PK:            item.PK,
		SK:            item.SK,
	}, nil
}

func (s *OutboxStore) changeKey(pc *ports.PendingChange) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pc.PK},
		"SK": &types.AttributeValueMemberS{Value: pc.SK},
	}
}

// MarkDelivered moves a change out of the pending queue.
func (s *OutboxStore) MarkDelivered(ctx context.Context, pc *ports.PendingChange) error {
	_, err := s.client.UpdateItem(ctx, &awsdynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              s.changeKey(pc),
		UpdateExpression: aws.String("SET ChangeStatus = :status, GSI2PK = :queue, DeliveredAt = :at"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: changeStatusDelivered},
			":queue":  &types.AttributeValueMemberS{Value: outboxQueuePK(changeStatusDelivered)},
			":at":     &types.AttributeValueMemberS{Value: utils.NowRFC3339()},
		},
	})
	if err != nil {
		return apperrors.NewDatabaseError("mark change delivered", err)
	}
	return nil
}

// MarkFailed bumps the attempt counter and either schedules the next try or
// dead-letters the change when the bound is reached. Dead-lettered changes
// are never dropped; they wait in their own partition for an operator.
func (s *OutboxStore) MarkFailed(ctx context.Context, pc *ports.PendingChange, deliveryErr error, nextAttempt time.Time) (bool, error) {
	attempts := pc.Attempts + 1
	deadLettered := attempts >= s.maxAttempts

	update := "SET Attempts = :attempts, NextAttemptAt = :next, LastError = :lastErr"
	values := map[string]types.AttributeValue{
		":attempts": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", attempts)},
		":next":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", nextAttempt.Unix())},
		":lastErr":  &types.AttributeValueMemberS{Value: deliveryErr.Error()},
	}
	if deadLettered {
		update += ", ChangeStatus = :status, GSI2PK = :queue"
		values[":status"] = &types.AttributeValueMemberS{Value: changeStatusDead}
		values[":queue"] = &types.AttributeValueMemberS{Value: outboxQueuePK(changeStatusDead)}
	}

	_, err := s.client.UpdateItem(ctx, &awsdynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.changeKey(pc),
		UpdateExpression:          aws.String(update),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return false, apperrors.NewDatabaseError("mark change failed", err)
	}

	pc.Attempts = attempts
	pc.NextAttemptAt = nextAttempt
	return deadLettered, nil
}
