package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"cardvault/application/ports"
	"cardvault/domain/card"
	"cardvault/domain/events"
	apperrors "cardvault/pkg/errors"
)

// CardRepository implements ports.CardRepository on a single DynamoDB table.
//
// Concurrency is optimistic only: every mutation is a conditional write on
// the stored version, and the losing writer gets VERSION_CONFLICT instead of
// blocking. Each mutation transacts the card item together with its outbox
// change record, so the primary image, both index projections, and the
// change enqueue commit as one logical write.
type CardRepository struct {
	client        Client
	tableName     string
	ownerIndex    string
	categoryIndex string
	ttlEnabled    bool
	logger        *zap.Logger
}

// NewCardRepository creates the store client.
func NewCardRepository(client Client, tableName, ownerIndex, categoryIndex string, ttlEnabled bool, logger *zap.Logger) *CardRepository {
	return &CardRepository{
		client:        client,
		tableName:     tableName,
		ownerIndex:    ownerIndex,
		categoryIndex: categoryIndex,
		ttlEnabled:    ttlEnabled,
		logger:        logger,
	}
}

// Get retrieves a card by id.
func (r *CardRepository) Get(ctx context.Context, id string) (*card.Card, error) {
	if id == "" {
		return nil, apperrors.NewValidationError("id cannot be empty")
	}

	result, err := r.client.GetItem(ctx, &awsdynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       primaryKey(id),
	})
	if err != nil {
		return nil, opError("get card", err)
	}
	if result.Item == nil {
		return nil, apperrors.NewNotFoundError("card")
	}

	return decodeCard(result.Item)
}

// Create persists a new card with version 1. The put is guarded on key
// absence, and the created change record rides the same transaction.
func (r *CardRepository) Create(ctx context.Context, c *card.Card) (*card.Card, error) {
	now := time.Now().UTC()
	stored := c.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Version = 1

	av, err := encodeCard(stored)
	if err != nil {
		return nil, err
	}
	changePut, err := buildChangePut(r.tableName, events.NewChange(events.KindCreated, stored.Clone(), now))
	if err != nil {
		return nil, err
	}

	_, err = r.client.TransactWriteItems(ctx, &awsdynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(r.tableName),
					Item:                av,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			changePut,
		},
	})
	if err != nil {
		if isConditionalFailure(err) {
			return nil, apperrors.NewAlreadyExistsError("card")
		}
		return nil, opError("create card", err)
	}

	r.logger.Debug("Card created",
		zap.String("cardID", stored.ID),
		zap.String("ownerID", stored.OwnerID),
	)

	return stored, nil
}

// Update applies mutate to the current record under the optimistic version
// rule. The store never retries a lost race on the caller's behalf.
func (r *CardRepository) Update(ctx context.Context, id string, expectedVersion int64, mutate func(*card.Card) error) (*card.Card, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, apperrors.NewVersionConflictError("card", expectedVersion)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := checkImmutable(current, next); err != nil {
		return nil, err
	}

	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now().UTC()
	if next.UpdatedAt.Before(next.CreatedAt) {
		next.UpdatedAt = next.CreatedAt
	}

	if err := r.commitWrite(ctx, next, expectedVersion, events.KindUpdated); err != nil {
		return nil, err
	}

	return next, nil
}

// commitWrite transacts a version-guarded put of the card with its change
// record. The guard re-checks the version at commit time, so two writers
// that both passed the read-phase check still race safely here.
func (r *CardRepository) commitWrite(ctx context.Context, next *card.Card, expectedVersion int64, kind events.Kind) error {
	av, err := encodeCard(next)
	if err != nil {
		return err
	}
	changePut, err := buildChangePut(r.tableName, events.NewChange(kind, next.Clone(), next.UpdatedAt))
	if err != nil {
		return err
	}

	_, err = r.client.TransactWriteItems(ctx, &awsdynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:                aws.String(r.tableName),
					Item:                     av,
					ConditionExpression:      aws.String("#version = :expected"),
					ExpressionAttributeNames: map[string]string{"#version": "Version"},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
					},
				},
			},
			changePut,
		},
	})
	if err != nil {
		if isConditionalFailure(err) {
			return apperrors.NewVersionConflictError("card", expectedVersion)
		}
		return opError("update card", err)
	}

	r.logger.Debug("Card updated",
		zap.String("cardID", next.ID),
		zap.Int64("version", next.Version),
		zap.String("kind", string(kind)),
	)

	return nil
}

// Put overwrites a card unconditionally and enqueues an updated change.
// Reserved for internal repair tooling; it bypasses the version guard but
// still propagates the mutation downstream.
func (r *CardRepository) Put(ctx context.Context, c *card.Card) error {
	stored := c.Clone()
	stored.UpdatedAt = time.Now().UTC()

	av, err := encodeCard(stored)
	if err != nil {
		return err
	}
	changePut, err := buildChangePut(r.tableName, events.NewChange(events.KindUpdated, stored.Clone(), stored.UpdatedAt))
	if err != nil {
		return err
	}

	_, err = r.client.TransactWriteItems(ctx, &awsdynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: aws.String(r.tableName), Item: av}},
			changePut,
		},
	})
	if err != nil {
		return opError("put card", err)
	}

	r.logger.Warn("Card overwritten unconditionally",
		zap.String("cardID", stored.ID),
		zap.Int64("version", stored.Version),
	)

	return nil
}

// Delete removes the card under the version rule. The deleted change record
// carries the last known image; consumers must tolerate the primary record
// being gone by the time it arrives.
func (r *CardRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return apperrors.NewVersionConflictError("card", expectedVersion)
	}

	now := time.Now().UTC()
	image := current.Clone()
	image.Version = expectedVersion + 1
	changePut, err := buildChangePut(r.tableName, events.NewChange(events.KindDeleted, image, now))
	if err != nil {
		return err
	}

	_, err = r.client.TransactWriteItems(ctx, &awsdynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName:                aws.String(r.tableName),
					Key:                      primaryKey(id),
					ConditionExpression:      aws.String("#version = :expected"),
					ExpressionAttributeNames: map[string]string{"#version": "Version"},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
					},
				},
			},
			changePut,
		},
	})
	if err != nil {
		if isConditionalFailure(err) {
			return apperrors.NewVersionConflictError("card", expectedVersion)
		}
		return opError("delete card", err)
	}

	r.logger.Debug("Card deleted",
		zap.String("cardID", id),
		zap.Int64("version", expectedVersion),
	)

	return nil
}

// QueryByOwner lists one owner's cards newest first, id breaking timestamp
// ties, with an opaque continuation cursor.
func (r *CardRepository) QueryByOwner(ctx context.Context, ownerID string, cursor string, limit int32) (*ports.CardPage, error) {
	if ownerID == "" {
		return nil, apperrors.NewValidationError("ownerId cannot be empty")
	}

	startKey, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	keyCond := expression.Key("GSI1PK").Equal(expression.Value(ownerKeyPrefix + ownerID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build owner query").WithCause(err)
	}

	result, err := r.client.Query(ctx, &awsdynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.ownerIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false), // newest first
		Limit:                     aws.Int32(limit),
		ExclusiveStartKey:         startKey,
	})
	if err != nil {
		return nil, opError("query by owner", err)
	}

	return r.buildPage(result.Items, result.LastEvaluatedKey)
}

// QueryByCategory lists a category's cards by ascending value within the
// requested inclusive range.
func (r *CardRepository) QueryByCategory(ctx context.Context, category string, valueRange *card.ValueRange, cursor string, limit int32) (*ports.CardPage, error) {
	if category == "" {
		return nil, apperrors.NewValidationError("category cannot be empty")
	}
	if err := valueRange.Validate(); err != nil {
		return nil, err
	}

	startKey, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	lo, hi := valueRangeBounds(valueRange)
	keyCond := expression.Key("GSI2PK").Equal(expression.Value(categoryKeyPrefix + category)).
		And(expression.Key("GSI2SK").Between(expression.Value(lo), expression.Value(hi)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build category query").WithCause(err)
	}

	result, err := r.client.Query(ctx, &awsdynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.categoryIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true), // ascending by value
		Limit:                     aws.Int32(limit),
		ExclusiveStartKey:         startKey,
	})
	if err != nil {
		return nil, opError("query by category", err)
	}

	return r.buildPage(result.Items, result.LastEvaluatedKey)
}

func (r *CardRepository) buildPage(items []map[string]types.AttributeValue, lastKey map[string]types.AttributeValue) (*ports.CardPage, error) {
	cards := make([]*card.Card, 0, len(items))
	for _, raw := range items {
		c, err := decodeCard(raw)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}

	next, err := encodeCursor(lastKey)
	if err != nil {
		return nil, err
	}

	return &ports.CardPage{Cards: cards, NextCursor: next}, nil
}

// ExpireSweep removes every card whose expiry has elapsed. Each removal is
// re-guarded at commit, so concurrent sweep instances remove a record at
// most once between them; a record already gone simply fails the guard and
// is not counted.
func (r *CardRepository) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	if !r.ttlEnabled {
		return 0, nil
	}

	filter := expression.Name("EntityType").Equal(expression.Value(entityCard)).
		And(expression.Name("ExpireAt").LessThanEqual(expression.Value(now.Unix())))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build sweep filter").WithCause(err)
	}

	removed := 0
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Scan(ctx, &awsdynamodb.ScanInput{
			TableName:                 aws.String(r.tableName),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return removed, opError("scan expired cards", err)
		}

		for _, raw := range result.Items {
			expired, err := decodeCard(raw)
			if err != nil {
				r.logger.Error("Corrupt record found by sweep", zap.Error(err))
				continue
			}
			ok, err := r.removeExpired(ctx, expired, now)
			if err != nil {
				return removed, err
			}
			if ok {
				removed++
			}
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	if removed > 0 {
		r.logger.Info("Expiration sweep removed records", zap.Int("count", removed))
	}

	return removed, nil
}

// removeExpired deletes one expired card and enqueues its expired change.
// Losing the guard to a concurrent sweep or writer is not an error.
func (r *CardRepository) removeExpired(ctx context.Context, expired *card.Card, now time.Time) (bool, error) {
	image := expired.Clone()
	image.Version = expired.Version + 1
	changePut, err := buildChangePut(r.tableName, events.NewChange(events.KindExpired, image, now))
	if err != nil {
		return false, err
	}

	_, err = r.client.TransactWriteItems(ctx, &awsdynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName:                aws.String(r.tableName),
					Key:                      primaryKey(expired.ID),
					ConditionExpression:      aws.String("#version = :version AND ExpireAt <= :now"),
					ExpressionAttributeNames: map[string]string{"#version": "Version"},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expired.Version)},
						":now":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
					},
				},
			},
			changePut,
		},
	})
	if err != nil {
		if isConditionalFailure(err) {
			return false, nil
		}
		return false, opError("remove expired card", err)
	}

	return true, nil
}

// opError maps a store call failure to the taxonomy: a blown context
// deadline is a TIMEOUT the caller may retry, everything else is DATABASE.
func opError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(operation)
	}
	return apperrors.NewDatabaseError(operation, err)
}

// isConditionalFailure detects a failed condition on either a single write
// or any item of a cancelled transaction.
func isConditionalFailure(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return true
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}
