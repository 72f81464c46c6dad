package dynamodb

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardvault/domain/card"
	apperrors "cardvault/pkg/errors"
)

func TestEncodeDecodeCard_RoundTrip(t *testing.T) {
	expireAt := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c := testCard("card-a")
	c.Category = "pokemon"
	c.ValueMedian = 12500
	c.Status = card.StatusValued
	c.Payload = map[string]interface{}{"name": "Charizard", "set": "base"}
	c.ExpireAt = &expireAt
	c.Version = 3

	av, err := encodeCard(c)
	require.NoError(t, err)

	decoded, err := decodeCard(av)
	require.NoError(t, err)

	assert.Equal(t, c.ID, decoded.ID)
	assert.Equal(t, c.OwnerID, decoded.OwnerID)
	assert.Equal(t, c.Category, decoded.Category)
	assert.Equal(t, c.ValueMedian, decoded.ValueMedian)
	assert.Equal(t, c.Status, decoded.Status)
	assert.Equal(t, c.Version, decoded.Version)
	assert.True(t, c.CreatedAt.Equal(decoded.CreatedAt))
	assert.True(t, c.UpdatedAt.Equal(decoded.UpdatedAt))
	require.NotNil(t, decoded.ExpireAt)
	assert.True(t, expireAt.Equal(*decoded.ExpireAt))
	assert.Equal(t, "Charizard", decoded.Payload["name"])
}

func TestEncodeCard_DerivesIndexAttributes(t *testing.T) {
	c := testCard("card-a")
	c.Category = "pokemon"
	c.ValueMedian = 100

	av, err := encodeCard(c)
	require.NoError(t, err)

	assert.Equal(t, "CARD#card-a", av["PK"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "METADATA", av["SK"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "OWNER#user-1", av["GSI1PK"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "CATEGORY#pokemon", av["GSI2PK"].(*types.AttributeValueMemberS).Value)
}

func TestEncodeCard_NoCategoryStaysOutOfGSI2(t *testing.T) {
	av, err := encodeCard(testCard("card-a"))
	require.NoError(t, err)

	_, hasPK := av["GSI2PK"]
	_, hasSK := av["GSI2SK"]
	assert.False(t, hasPK)
	assert.False(t, hasSK)
}

func TestEncodeCard_RejectsUnversioned(t *testing.T) {
	c := testCard("card-a")
	c.Version = 0

	_, err := encodeCard(c)
	assert.True(t, apperrors.IsValidation(err))
}

func TestEncodeCard_RejectsZeroTimestamps(t *testing.T) {
	c := testCard("card-a")
	c.CreatedAt = time.Time{}
	c.UpdatedAt = time.Time{}

	_, err := encodeCard(c)
	assert.True(t, apperrors.IsValidation(err))
}

func TestDecodeCard_CorruptRecords(t *testing.T) {
	base := func() map[string]types.AttributeValue {
		av, err := encodeCard(testCard("card-a"))
		require.NoError(t, err)
		return av
	}

	t.Run("missing identity", func(t *testing.T) {
		av := base()
		delete(av, "CardID")
		_, err := decodeCard(av)
		assert.True(t, apperrors.IsCorruptRecord(err))
	})

	t.Run("invalid status", func(t *testing.T) {
		av := base()
		av["Status"] = &types.AttributeValueMemberS{Value: "archived"}
		_, err := decodeCard(av)
		assert.True(t, apperrors.IsCorruptRecord(err))
	})

	t.Run("version below one", func(t *testing.T) {
		av := base()
		av["Version"] = &types.AttributeValueMemberN{Value: "0"}
		_, err := decodeCard(av)
		assert.True(t, apperrors.IsCorruptRecord(err))
	})

	t.Run("unparseable timestamp", func(t *testing.T) {
		av := base()
		av["CreatedAt"] = &types.AttributeValueMemberS{Value: "yesterday"}
		_, err := decodeCard(av)
		assert.True(t, apperrors.IsCorruptRecord(err))
	})
}
