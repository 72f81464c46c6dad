package dynamodb

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cardvault/domain/card"
	apperrors "cardvault/pkg/errors"
)

// fakeClient is an in-memory DynamoDB double. It stores items under PK|SK
// and evaluates the condition expressions the repository actually writes, so
// the guard semantics under test are the real ones.
type fakeClient struct {
	items map[string]map[string]types.AttributeValue

	queryOutputs []*awsdynamodb.QueryOutput
	queryInputs  []*awsdynamodb.QueryInput
	scanOutputs  []*awsdynamodb.ScanOutput
	updateInputs []*awsdynamodb.UpdateItemInput

	getErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(av map[string]types.AttributeValue) string {
	pk := av["PK"].(*types.AttributeValueMemberS).Value
	sk := av["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func attrN(av map[string]types.AttributeValue, name string) (int64, bool) {
	n, ok := av[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	return v, err == nil
}

func (f *fakeClient) GetItem(_ context.Context, params *awsdynamodb.GetItemInput, _ ...func(*awsdynamodb.Options)) (*awsdynamodb.GetItemOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	item := f.items[itemKey(params.Key)]
	return &awsdynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeClient) PutItem(_ context.Context, params *awsdynamodb.PutItemInput, _ ...func(*awsdynamodb.Options)) (*awsdynamodb.PutItemOutput, error) {
	f.items[itemKey(params.Item)] = params.Item
	return &awsdynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) UpdateItem(_ context.Context, params *awsdynamodb.UpdateItemInput, _ ...func(*awsdynamodb.Options)) (*awsdynamodb.UpdateItemOutput, error) {
	f.updateInputs = append(f.updateInputs, params)
	return &awsdynamodb.UpdateItemOutput{}, nil
}

func (f *fakeClient) DeleteItem(_ context.Context, params *awsdynamodb.DeleteItemInput, _ ...func(*awsdynamodb.Options)) (*awsdynamodb.DeleteItemOutput, error) {
	delete(f.items, itemKey(params.Key))
	return &awsdynamodb.DeleteItemOutput{}, nil
}

func (f *fakeClient) Query(_ context.Context, params *awsdynamodb.QueryInput, _ ...func(*awsdynamodb.Options)) (*awsdynamodb.QueryOutput, error) {
	f.queryInputs = append(f.queryInputs, params)
	if len(f.queryOutputs) == 0 {
		return &awsdynamodb.QueryOutput{}, nil
	}
	out := f.queryOutputs[0]
	f.queryOutputs = f.queryOutputs[1:]
	return out, nil
}

func (f *fakeClient) Scan(_ context.Context, params *awsdynamodb.ScanInput, _ ...func(*awsdynamodb.Options)) (*awsdynamodb.ScanOutput, error) {
	if len(f.scanOutputs) == 0 {
		return &awsdynamodb.ScanOutput{}, nil
	}
	out := f.scanOutputs[0]
	f.scanOutputs = f.scanOutputs[1:]
	return out, nil
}

func (f *fakeClient) TransactWriteItems(_ context.Context, params *awsdynamodb.TransactWriteItemsInput, _ ...func(*awsdynamodb.Options)) (*awsdynamodb.TransactWriteItemsOutput, error) {
	// Evaluate every condition before applying anything, the way the real
	// transaction does.
	failed := false
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	for i, item := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: strPtrT("None")}
		switch {
		case item.Put != nil:
			if !f.checkCondition(itemKey(item.Put.Item), item.Put.ConditionExpression, item.Put.ExpressionAttributeValues) {
				reasons[i].Code = strPtrT("ConditionalCheckFailed")
				failed = true
			}
		case item.Delete != nil:
			if !f.checkCondition(itemKey(item.Delete.Key), item.Delete.ConditionExpression, item.Delete.ExpressionAttributeValues) {
				reasons[i].Code = strPtrT("ConditionalCheckFailed")
				failed = true
			}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	for _, item := range params.TransactItems {
		switch {
		case item.Put != nil:
			f.items[itemKey(item.Put.Item)] = item.Put.Item
		case item.Delete != nil:
			delete(f.items, itemKey(item.Delete.Key))
		}
	}
	return &awsdynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeClient) checkCondition(key string, cond *string, values map[string]types.AttributeValue) bool {
	if cond == nil {
		return true
	}
	stored, exists := f.items[key]

	switch *cond {
	case "attribute_not_exists(PK)":
		return !exists
	case "#version = :expected":
		if !exists {
			return false
		}
		storedVersion, _ := attrN(stored, "Version")
		expected, _ := attrN(values, ":expected")
		return storedVersion == expected
	case "#version = :version AND ExpireAt <= :now":
		if !exists {
			return false
		}
		storedVersion, _ := attrN(stored, "Version")
		expected, _ := attrN(values, ":version")
		expireAt, hasExpiry := attrN(stored, "ExpireAt")
		now, _ := attrN(values, ":now")
		return storedVersion == expected && hasExpiry && expireAt <= now
	}
	return true
}

func strPtrT(s string) *string {
	return &s
}

func newTestRepo(client *fakeClient) *CardRepository {
	return NewCardRepository(client, "cardvault", "OwnerIndex", "CategoryIndex", true, zap.NewNop())
}

func newPendingCard(id string) *card.Card {
	c, _ := card.New(id, "user-1", map[string]interface{}{"name": "Charizard"})
	return c
}

func TestCardRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	repo := newTestRepo(client)

	created, err := repo.Create(ctx, newPendingCard("card-a"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	got, err := repo.Get(ctx, "card-a")
	require.NoError(t, err)
	assert.Equal(t, "card-a", got.ID)
	assert.Equal(t, int64(1), got.Version)

	// The change record committed in the same transaction.
	_, ok := client.items["OUTBOX#card-a|CHANGE#0000000001"]
	assert.True(t, ok)
}

func TestCardRepository_Create_AlreadyExists(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(newFakeClient())

	_, err := repo.Create(ctx, newPendingCard("card-a"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newPendingCard("card-a"))
	assert.True(t, apperrors.IsAlreadyExists(err))
}

func TestCardRepository_Get_NotFound(t *testing.T) {
	repo := newTestRepo(newFakeClient())

	_, err := repo.Get(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCardRepository_Get_DeadlineMapsToTimeout(t *testing.T) {
	client := newFakeClient()
	client.getErr = context.DeadlineExceeded
	repo := newTestRepo(client)

	_, err := repo.Get(context.Background(), "card-a")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTimeout))
}

func TestCardRepository_Get_StoreFailureMapsToDatabase(t *testing.T) {
	client := newFakeClient()
	client.getErr = errors.New("throughput exceeded")
	repo := newTestRepo(client)

	_, err := repo.Get(context.Background(), "card-a")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDatabase))
}

func TestCardRepository_Update(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	repo := newTestRepo(client)

	created, err := repo.Create(ctx, newPendingCard("card-a"))
	require.NoError(t, err)

	updated, err := repo.Update(ctx, "card-a", created.Version, func(c *card.Card) error {
		c.Category = "pokemon"
		c.ValueMedian = 12500
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "pokemon", updated.Category)

	// Change records accumulate per version.
	_, ok := client.items["OUTBOX#card-a|CHANGE#0000000002"]
	assert.True(t, ok)
}

func TestCardRepository_Update_StaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(newFakeClient())

	created, err := repo.Create(ctx, newPendingCard("card-a"))
	require.NoError(t, err)

	_, err = repo.Update(ctx, "card-a", created.Version, func(c *card.Card) error {
		c.ValueMedian = 100
		return nil
	})
	require.NoError(t, err)

	// A second writer still holding version 1 must lose without side effects.
	_, err = repo.Update(ctx, "card-a", created.Version, func(c *card.Card) error {
		c.ValueMedian = 200
		return nil
	})
	assert.True(t, apperrors.IsVersionConflict(err))

	got, err := repo.Get(ctx, "card-a")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.ValueMedian)
	assert.Equal(t, int64(2), got.Version)
}

func TestCardRepository_Update_ImmutableFields(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(newFakeClient())

	created, err := repo.Create(ctx, newPendingCard("card-a"))
	require.NoError(t, err)

	_, err = repo.Update(ctx, "card-a", created.Version, func(c *card.Card) error {
		c.OwnerID = "user-2"
		return nil
	})
	assert.True(t, apperrors.IsImmutableField(err))
}

func TestCardRepository_Delete(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	repo := newTestRepo(client)

	created, err := repo.Create(ctx, newPendingCard("card-a"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "card-a", created.Version))

	_, err = repo.Get(ctx, "card-a")
	assert.True(t, apperrors.IsNotFound(err))

	// The deleted change carries the last image at version+1.
	_, ok := client.items["OUTBOX#card-a|CHANGE#0000000002"]
	assert.True(t, ok)
}

func TestCardRepository_Delete_StaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(newFakeClient())

	_, err := repo.Create(ctx, newPendingCard("card-a"))
	require.NoError(t, err)

	err = repo.Delete(ctx, "card-a", 7)
	assert.True(t, apperrors.IsVersionConflict(err))
}

func TestCardRepository_QueryByOwner_UsesOwnerIndexNewestFirst(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	repo := newTestRepo(client)

	av, err := encodeCard(testCard("card-a"))
	require.NoError(t, err)
	client.queryOutputs = []*awsdynamodb.QueryOutput{{Items: []map[string]types.AttributeValue{av}}}

	page, err := repo.QueryByOwner(ctx, "user-1", "", 25)
	require.NoError(t, err)
	require.Len(t, page.Cards, 1)
	assert.Empty(t, page.NextCursor)

	require.Len(t, client.queryInputs, 1)
	input := client.queryInputs[0]
	assert.Equal(t, "OwnerIndex", *input.IndexName)
	assert.False(t, *input.ScanIndexForward)
	assert.Equal(t, int32(25), *input.Limit)
}

func TestCardRepository_QueryByOwner_ReturnsCursorForMorePages(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	repo := newTestRepo(client)

	av, err := encodeCard(testCard("card-a"))
	require.NoError(t, err)
	client.queryOutputs = []*awsdynamodb.QueryOutput{{
		Items: []map[string]types.AttributeValue{av},
		LastEvaluatedKey: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "CARD#card-a"},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	}}

	page, err := repo.QueryByOwner(ctx, "user-1", "", 1)
	require.NoError(t, err)
	assert.NotEmpty(t, page.NextCursor)

	// Feeding the cursor back resumes from the returned key.
	client.queryOutputs = []*awsdynamodb.QueryOutput{{}}
	_, err = repo.QueryByOwner(ctx, "user-1", page.NextCursor, 1)
	require.NoError(t, err)
	require.Len(t, client.queryInputs, 2)
	assert.NotNil(t, client.queryInputs[1].ExclusiveStartKey)
}

func TestCardRepository_QueryByCategory_UsesCategoryIndexAscending(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	repo := newTestRepo(client)

	client.queryOutputs = []*awsdynamodb.QueryOutput{{}}

	min := int64(1000)
	_, err := repo.QueryByCategory(ctx, "pokemon", &card.ValueRange{Min: &min}, "", 10)
	require.NoError(t, err)

	require.Len(t, client.queryInputs, 1)
	input := client.queryInputs[0]
	assert.Equal(t, "CategoryIndex", *input.IndexName)
	assert.True(t, *input.ScanIndexForward)
}

func TestCardRepository_QueryByCategory_InvalidRange(t *testing.T) {
	repo := newTestRepo(newFakeClient())

	min := int64(500)
	max := int64(100)
	_, err := repo.QueryByCategory(context.Background(), "pokemon", &card.ValueRange{Min: &min, Max: &max}, "", 10)
	assert.True(t, apperrors.IsValidation(err))
}

func TestCardRepository_InvalidCursor(t *testing.T) {
	repo := newTestRepo(newFakeClient())

	_, err := repo.QueryByOwner(context.Background(), "user-1", "garbage!!", 10)
	assert.True(t, apperrors.IsValidation(err))
}

func TestCardRepository_ExpireSweep(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	repo := newTestRepo(client)

	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	created, err := repo.Create(ctx, newPendingCard("card-a"))
	require.NoError(t, err)
	expired, err := repo.Update(ctx, "card-a", created.Version, func(c *card.Card) error {
		c.ExpireAt = &past
		return nil
	})
	require.NoError(t, err)

	expiredAV, err := encodeCard(expired)
	require.NoError(t, err)
	client.scanOutputs = []*awsdynamodb.ScanOutput{{Items: []map[string]types.AttributeValue{expiredAV}}}

	removed, err := repo.ExpireSweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "card-a")
	assert.True(t, apperrors.IsNotFound(err))

	// The expired change is enqueued at version+1.
	_, ok := client.items["OUTBOX#card-a|CHANGE#0000000003"]
	assert.True(t, ok)
}

func TestCardRepository_ExpireSweep_ConcurrentRemovalNotCounted(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	repo := newTestRepo(client)

	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	c := testCard("card-a")
	c.ExpireAt = &past
	av, err := encodeCard(c)
	require.NoError(t, err)

	// The scan sees the record, but another sweep instance removed it before
	// our guarded delete commits.
	client.scanOutputs = []*awsdynamodb.ScanOutput{{Items: []map[string]types.AttributeValue{av}}}

	removed, err := repo.ExpireSweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestCardRepository_ExpireSweep_DisabledIsNoop(t *testing.T) {
	client := newFakeClient()
	repo := NewCardRepository(client, "cardvault", "OwnerIndex", "CategoryIndex", false, zap.NewNop())

	removed, err := repo.ExpireSweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Empty(t, client.scanOutputs)
}
