// Package services hosts the application façade the transport layer calls.
// It owns authorization, id assignment, and the mapping from caller intent
// to repository operations; storage semantics live in the repository.
package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cardvault/application/ports"
	"cardvault/domain/card"
	"cardvault/pkg/auth"
	apperrors "cardvault/pkg/errors"
	"cardvault/pkg/observability"
)

// CardService exposes the store operations to the HTTP layer.
type CardService struct {
	repo      ports.CardRepository
	presigner ports.UploadPresigner
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    *zap.Logger
}

// NewCardService creates the card application service.
func NewCardService(
	repo ports.CardRepository,
	presigner ports.UploadPresigner,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
	logger *zap.Logger,
) *CardService {
	return &CardService{
		repo:      repo,
		presigner: presigner,
		metrics:   metrics,
		tracer:    tracer,
		logger:    logger,
	}
}

// CreateCard catalogs a new card owned by the calling principal. The id is
// assigned server-side; callers never choose ids.
func (s *CardService) CreateCard(ctx context.Context, payload map[string]interface{}) (*card.Card, error) {
	principal, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	c, err := card.New(uuid.New().String(), principal.UserID, payload)
	if err != nil {
		return nil, err
	}

	var created *card.Card
	err = s.tracer.Capture(ctx, "CreateCard", func(ctx context.Context) error {
		created, err = s.repo.Create(ctx, c)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Card created",
		zap.String("cardID", created.ID),
		zap.String("ownerID", created.OwnerID),
	)
	return created, nil
}

// GetCard returns a card the caller owns.
func (s *CardService) GetCard(ctx context.Context, id string) (*card.Card, error) {
	principal, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var c *card.Card
	err = s.tracer.Capture(ctx, "GetCard", func(ctx context.Context) error {
		c, err = s.repo.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.authorize(principal, c); err != nil {
		return nil, err
	}
	return c, nil
}

// PatchCard applies a field-level patch under optimistic concurrency. The
// caller supplies the version it read; a stale version yields
// VERSION_CONFLICT without side effects.
func (s *CardService) PatchCard(ctx context.Context, id string, expectedVersion int64, patch card.Patch) (*card.Card, error) {
	principal, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var updated *card.Card
	err = s.tracer.Capture(ctx, "PatchCard", func(ctx context.Context) error {
		updated, err = s.repo.Update(ctx, id, expectedVersion, func(c *card.Card) error {
			if err := s.authorize(principal, c); err != nil {
				return err
			}
			return c.Apply(patch)
		})
		return err
	})
	if err != nil {
		if apperrors.IsVersionConflict(err) {
			s.metrics.Count(ctx, observability.MetricVersionConflicts, 1)
		}
		return nil, err
	}

	s.logger.Info("Card updated",
		zap.String("cardID", updated.ID),
		zap.Int64("version", updated.Version),
	)
	return updated, nil
}

// RequestReprocess resets a terminal card back to pending so the analysis
// pipeline picks it up again.
func (s *CardService) RequestReprocess(ctx context.Context, id string, expectedVersion int64) (*card.Card, error) {
	principal, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var updated *card.Card
	err = s.tracer.Capture(ctx, "RequestReprocess", func(ctx context.Context) error {
		updated, err = s.repo.Update(ctx, id, expectedVersion, func(c *card.Card) error {
			if err := s.authorize(principal, c); err != nil {
				return err
			}
			return c.Reprocess()
		})
		return err
	})
	if err != nil {
		if apperrors.IsVersionConflict(err) {
			s.metrics.Count(ctx, observability.MetricVersionConflicts, 1)
		}
		return nil, err
	}

	s.logger.Info("Card queued for reprocessing", zap.String("cardID", updated.ID))
	return updated, nil
}

// DeleteCard removes a card the caller owns, guarded by its version.
func (s *CardService) DeleteCard(ctx context.Context, id string, expectedVersion int64) error {
	principal, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return err
	}

	return s.tracer.Capture(ctx, "DeleteCard", func(ctx context.Context) error {
		c, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorize(principal, c); err != nil {
			return err
		}

		if err := s.repo.Delete(ctx, id, expectedVersion); err != nil {
			if apperrors.IsVersionConflict(err) {
				s.metrics.Count(ctx, observability.MetricVersionConflicts, 1)
			}
			return err
		}

		s.logger.Info("Card deleted", zap.String("cardID", id))
		return nil
	})
}

// ListCards pages through the calling principal's cards, newest first.
func (s *CardService) ListCards(ctx context.Context, cursor string, limit int32) (*ports.CardPage, error) {
	principal, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var page *ports.CardPage
	err = s.tracer.Capture(ctx, "ListCards", func(ctx context.Context) error {
		page, err = s.repo.QueryByOwner(ctx, principal.UserID, cursor, limit)
		return err
	})
	return page, err
}

// SearchByCategory pages through a category by ascending estimated value,
// optionally bounded by an inclusive value range in cents.
func (s *CardService) SearchByCategory(ctx context.Context, category string, valueRange *card.ValueRange, cursor string, limit int32) (*ports.CardPage, error) {
	if _, err := auth.PrincipalFromContext(ctx); err != nil {
		return nil, err
	}
	if category == "" {
		return nil, apperrors.NewValidationError("category cannot be empty")
	}
	if err := valueRange.Validate(); err != nil {
		return nil, err
	}

	var page *ports.CardPage
	var err error
	err = s.tracer.Capture(ctx, "SearchByCategory", func(ctx context.Context) error {
		page, err = s.repo.QueryByCategory(ctx, category, valueRange, cursor, limit)
		return err
	})
	return page, err
}

// IssueUploadURL returns a presigned upload URL for a card image, scoped to
// the calling principal's prefix.
func (s *CardService) IssueUploadURL(ctx context.Context, contentType string) (url string, objectKey string, err error) {
	principal, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return "", "", err
	}
	if contentType == "" {
		return "", "", apperrors.NewValidationError("contentType cannot be empty")
	}

	err = s.tracer.Capture(ctx, "IssueUploadURL", func(ctx context.Context) error {
		url, objectKey, err = s.presigner.PresignUpload(ctx, principal.UserID, contentType)
		return err
	})
	return url, objectKey, err
}

// authorize restricts card access to its owner. Ownership failures read as
// NOT_FOUND so callers cannot probe for other owners' ids.
func (s *CardService) authorize(principal auth.Principal, c *card.Card) error {
	if c.OwnerID != principal.UserID {
		return apperrors.NewNotFoundError("card")
	}
	return nil
}
