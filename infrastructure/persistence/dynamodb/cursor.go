package dynamodb

import (
	"encoding/base64"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	apperrors "cardvault/pkg/errors"
)

// Cursors are the base64 of the last-evaluated composite key. They are
// opaque to callers and strictly forward-only; a stale cursor still yields a
// consistent continuation because it names a key position, not an offset.

// encodeCursor packs a query's last-evaluated key into an opaque cursor.
// Returns "" when the page exhausted the listing.
func encodeCursor(lastKey map[string]types.AttributeValue) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}

	keys := make(map[string]string, len(lastKey))
	for name, attr := range lastKey {
		s, ok := attr.(*types.AttributeValueMemberS)
		if !ok {
			return "", apperrors.NewInternalError("unexpected non-string attribute in page key")
		}
		keys[name] = s.Value
	}

	raw, err := json.Marshal(keys)
	if err != nil {
		return "", apperrors.NewInternalError("failed to encode cursor").WithCause(err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// decodeCursor unpacks a caller-supplied cursor into an exclusive start key.
// An empty cursor starts the listing from the top; anything unparseable is a
// validation error, not a silent restart.
func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid cursor")
	}
	var keys map[string]string
	if err := json.Unmarshal(raw, &keys); err != nil || len(keys) == 0 {
		return nil, apperrors.NewValidationError("invalid cursor")
	}

	startKey := make(map[string]types.AttributeValue, len(keys))
	for name, value := range keys {
		startKey[name] = &types.AttributeValueMemberS{Value: value}
	}
	return startKey, nil
}
