package card

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "cardvault/pkg/errors"
)

func statusPtr(s Status) *Status {
	return &s
}

func int64Ptr(n int64) *int64 {
	return &n
}

func strPtr(s string) *string {
	return &s
}

func TestNew_Valid(t *testing.T) {
	c, err := New("card-1", "user-1", map[string]interface{}{"name": "Charizard"})

	assert.NoError(t, err)
	assert.Equal(t, "card-1", c.ID)
	assert.Equal(t, "user-1", c.OwnerID)
	assert.Equal(t, StatusPending, c.Status)
	assert.Zero(t, c.Version)
}

func TestNew_MissingIdentity(t *testing.T) {
	_, err := New("", "user-1", nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = New("card-1", "", nil)
	assert.True(t, apperrors.IsValidation(err))
}

func TestValidate_NegativeValue(t *testing.T) {
	c, _ := New("card-1", "user-1", nil)
	c.ValueMedian = -1

	assert.True(t, apperrors.IsValidation(c.Validate()))
}

func TestValidate_UpdatedBeforeCreated(t *testing.T) {
	c, _ := New("card-1", "user-1", nil)
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt.Add(-time.Second)

	assert.True(t, apperrors.IsValidation(c.Validate()))
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusAnalyzing.Terminal())
	assert.True(t, StatusValued.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestApply_FieldPatch(t *testing.T) {
	c, _ := New("card-1", "user-1", nil)

	err := c.Apply(Patch{
		Category:    strPtr("pokemon"),
		ValueMedian: int64Ptr(12500),
		Status:      statusPtr(StatusAnalyzing),
	})

	assert.NoError(t, err)
	assert.Equal(t, "pokemon", c.Category)
	assert.Equal(t, int64(12500), c.ValueMedian)
	assert.Equal(t, StatusAnalyzing, c.Status)
}

func TestApply_NilPointersLeaveFieldsUntouched(t *testing.T) {
	c, _ := New("card-1", "user-1", nil)
	c.Category = "pokemon"
	c.ValueMedian = 500

	err := c.Apply(Patch{})

	assert.NoError(t, err)
	assert.Equal(t, "pokemon", c.Category)
	assert.Equal(t, int64(500), c.ValueMedian)
}

func TestApply_TerminalStatusRequiresReprocess(t *testing.T) {
	c, _ := New("card-1", "user-1", nil)
	c.Status = StatusValued

	err := c.Apply(Patch{Status: statusPtr(StatusAnalyzing)})

	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, StatusValued, c.Status)
}

func TestApply_SameTerminalStatusIsNoop(t *testing.T) {
	c, _ := New("card-1", "user-1", nil)
	c.Status = StatusValued

	err := c.Apply(Patch{Status: statusPtr(StatusValued), ValueMedian: int64Ptr(999)})

	assert.NoError(t, err)
	assert.Equal(t, int64(999), c.ValueMedian)
}

func TestApply_UnknownStatus(t *testing.T) {
	c, _ := New("card-1", "user-1", nil)

	err := c.Apply(Patch{Status: statusPtr(Status("archived"))})

	assert.True(t, apperrors.IsValidation(err))
}

func TestReprocess(t *testing.T) {
	c, _ := New("card-1", "user-1", nil)
	c.Status = StatusFailed

	assert.NoError(t, c.Reprocess())
	assert.Equal(t, StatusPending, c.Status)

	// Only terminal statuses are eligible.
	err := c.Reprocess()
	assert.True(t, apperrors.IsValidation(err))
}

func TestExpired(t *testing.T) {
	now := time.Now()
	c, _ := New("card-1", "user-1", nil)

	assert.False(t, c.Expired(now))

	past := now.Add(-time.Minute)
	c.ExpireAt = &past
	assert.True(t, c.Expired(now))

	future := now.Add(time.Minute)
	c.ExpireAt = &future
	assert.False(t, c.Expired(now))

	// The expiry instant itself counts as expired.
	c.ExpireAt = &now
	assert.True(t, c.Expired(now))
}

func TestClone_PayloadIsolation(t *testing.T) {
	c, _ := New("card-1", "user-1", map[string]interface{}{"name": "Pikachu"})

	cp := c.Clone()
	cp.Payload["name"] = "Raichu"
	cp.Category = "pokemon"

	assert.Equal(t, "Pikachu", c.Payload["name"])
	assert.Empty(t, c.Category)
}

func TestValueRange_Validate(t *testing.T) {
	var nilRange *ValueRange
	assert.NoError(t, nilRange.Validate())

	assert.NoError(t, (&ValueRange{Min: int64Ptr(100), Max: int64Ptr(200)}).Validate())
	assert.NoError(t, (&ValueRange{Min: int64Ptr(100)}).Validate())

	err := (&ValueRange{Min: int64Ptr(200), Max: int64Ptr(100)}).Validate()
	assert.True(t, apperrors.IsValidation(err))

	err = (&ValueRange{Min: int64Ptr(-1)}).Validate()
	assert.True(t, apperrors.IsValidation(err))
}
