package dynamodb

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "cardvault/pkg/errors"
)

func TestCursor_RoundTrip(t *testing.T) {
	lastKey := map[string]types.AttributeValue{
		"PK":     &types.AttributeValueMemberS{Value: "CARD#card-a"},
		"SK":     &types.AttributeValueMemberS{Value: "METADATA"},
		"GSI1PK": &types.AttributeValueMemberS{Value: "OWNER#user-1"},
		"GSI1SK": &types.AttributeValueMemberS{Value: "CREATED#2026-03-14T09:26:53.000000000Z#CARD#card-a"},
	}

	cursor, err := encodeCursor(lastKey)
	require.NoError(t, err)
	assert.NotEmpty(t, cursor)

	decoded, err := decodeCursor(cursor)
	require.NoError(t, err)
	require.Len(t, decoded, 4)
	assert.Equal(t, "CARD#card-a", decoded["PK"].(*types.AttributeValueMemberS).Value)
}

func TestCursor_EmptyMeansExhausted(t *testing.T) {
	cursor, err := encodeCursor(nil)
	require.NoError(t, err)
	assert.Empty(t, cursor)

	decoded, err := decodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecodeCursor_Garbage(t *testing.T) {
	for _, cursor := range []string{"not base64!!", "bm90IGpzb24"} {
		_, err := decodeCursor(cursor)
		assert.True(t, apperrors.IsValidation(err), "cursor %q", cursor)
	}
}
