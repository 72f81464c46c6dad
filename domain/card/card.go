// Package card defines the Card record, the sole entity of the metadata
// store, together with its lifecycle and schema invariants.
package card

import (
	"fmt"
	"time"

	apperrors "cardvault/pkg/errors"
)

// Status is the lifecycle state of a card's analysis.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAnalyzing Status = "analyzing"
	StatusValued    Status = "valued"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAnalyzing, StatusValued, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s only transitions via an explicit reprocess
// request. The store never retries analysis implicitly.
func (s Status) Terminal() bool {
	return s == StatusValued || s == StatusFailed
}

// Card is one catalogued item and its analysis/pricing state.
// ID, OwnerID and CreatedAt are immutable after creation; Version and
// UpdatedAt are managed by the store on every write.
type Card struct {
	ID          string                 `json:"id"`
	OwnerID     string                 `json:"ownerId"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	Category    string                 `json:"category,omitempty"`
	ValueMedian int64                  `json:"valueMedian"` // estimated value in cents
	Status      Status                 `json:"status"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	ExpireAt    *time.Time             `json:"expireAt,omitempty"`
	Version     int64                  `json:"version"`
}

// New creates a card in its initial state. The store assigns Version and
// timestamps on create; they are zero here.
func New(id, ownerID string, payload map[string]interface{}) (*Card, error) {
	c := &Card{
		ID:      id,
		OwnerID: ownerID,
		Status:  StatusPending,
		Payload: payload,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the schema invariants shared by every write path.
func (c *Card) Validate() error {
	if c.ID == "" {
		return apperrors.NewValidationError("id cannot be empty")
	}
	if c.OwnerID == "" {
		return apperrors.NewValidationError("ownerId cannot be empty")
	}
	if c.ValueMedian < 0 {
		return apperrors.NewValidationError("valueMedian cannot be negative")
	}
	if !c.Status.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown status %q", c.Status))
	}
	if !c.UpdatedAt.IsZero() && c.UpdatedAt.Before(c.CreatedAt) {
		return apperrors.NewValidationError("updatedAt cannot precede createdAt")
	}
	return nil
}

// Patch is a field-level mutation used by the analysis and pricing
// collaborators. Nil pointers leave the field untouched.
type Patch struct {
	Category    *string
	ValueMedian *int64
	Status      *Status
	Payload     map[string]interface{}
	ExpireAt    *time.Time
}

// Apply mutates the card in place, enforcing the lifecycle rule that a
// terminal status changes only through Reprocess.
func (c *Card) Apply(p Patch) error {
	if p.Status != nil && *p.Status != c.Status {
		if !p.Status.Valid() {
			return apperrors.NewValidationError(fmt.Sprintf("unknown status %q", *p.Status))
		}
		if c.Status.Terminal() {
			return apperrors.NewValidationError(
				fmt.Sprintf("status %q is terminal; request reprocessing to reset it", c.Status))
		}
		c.Status = *p.Status
	}
	if p.Category != nil {
		c.Category = *p.Category
	}
	if p.ValueMedian != nil {
		if *p.ValueMedian < 0 {
			return apperrors.NewValidationError("valueMedian cannot be negative")
		}
		c.ValueMedian = *p.ValueMedian
	}
	if p.Payload != nil {
		c.Payload = p.Payload
	}
	if p.ExpireAt != nil {
		c.ExpireAt = p.ExpireAt
	}
	return nil
}

// Reprocess is the explicit transition out of a terminal status back to
// pending, used when an operator or caller requests a fresh analysis.
func (c *Card) Reprocess() error {
	if !c.Status.Terminal() {
		return apperrors.NewValidationError(
			fmt.Sprintf("card in status %q is not eligible for reprocessing", c.Status))
	}
	c.Status = StatusPending
	return nil
}

// Expired reports whether the card is past its expiry at the given instant.
func (c *Card) Expired(now time.Time) bool {
	return c.ExpireAt != nil && !c.ExpireAt.After(now)
}

// Clone returns a deep-enough copy for post-images: the payload map is
// copied one level so later mutations don't leak into change records.
func (c *Card) Clone() *Card {
	cp := *c
	if c.Payload != nil {
		cp.Payload = make(map[string]interface{}, len(c.Payload))
		for k, v := range c.Payload {
			cp.Payload[k] = v
		}
	}
	if c.ExpireAt != nil {
		t := *c.ExpireAt
		cp.ExpireAt = &t
	}
	return &cp
}

// ValueRange bounds a category query by estimated value. Nil ends are
// unbounded; bounds are inclusive.
type ValueRange struct {
	Min *int64
	Max *int64
}

// Validate rejects inverted or negative ranges.
func (r *ValueRange) Validate() error {
	if r == nil {
		return nil
	}
	if r.Min != nil && *r.Min < 0 {
		return apperrors.NewValidationError("value range min cannot be negative")
	}
	if r.Max != nil && *r.Max < 0 {
		return apperrors.NewValidationError("value range max cannot be negative")
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return apperrors.NewValidationError("value range min cannot exceed max")
	}
	return nil
}
