// Package s3 issues presigned upload URLs against the image bucket. The
// bucket and its lifecycle are provisioned outside this service; only the
// upload handshake crosses the boundary here.
package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "cardvault/pkg/errors"
)

// Presigner implements ports.UploadPresigner with S3 presigned PUTs.
type Presigner struct {
	presign *awss3.PresignClient
	bucket  string
	ttl     time.Duration
	logger  *zap.Logger
}

// NewPresigner creates an upload presigner for the given bucket.
func NewPresigner(client *awss3.Client, bucket string, ttl time.Duration, logger *zap.Logger) *Presigner {
	return &Presigner{
		presign: awss3.NewPresignClient(client),
		bucket:  bucket,
		ttl:     ttl,
		logger:  logger,
	}
}

// PresignUpload returns a time-limited upload URL and the object key the
// caller should reference from the card payload after uploading.
func (p *Presigner) PresignUpload(ctx context.Context, ownerID, contentType string) (string, string, error) {
	if p.bucket == "" {
		return "", "", apperrors.NewInternalError("upload bucket is not configured")
	}

	objectKey := fmt.Sprintf("uploads/%s/%s", ownerID, uuid.New().String())

	req, err := p.presign.PresignPutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}, awss3.WithPresignExpires(p.ttl))
	if err != nil {
		return "", "", apperrors.NewDatabaseError("presign upload", err)
	}

	p.logger.Debug("Upload URL issued",
		zap.String("ownerID", ownerID),
		zap.String("objectKey", objectKey),
	)

	return req.URL, objectKey, nil
}
