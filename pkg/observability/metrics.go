package observability

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// Metric names emitted by the store and its background actors. The
// dead-letter count is the operator-visible alarm condition for changes
// that exhausted their delivery retries.
const (
	MetricChangesDelivered    = "ChangesDelivered"
	MetricChangesDeadLettered = "ChangesDeadLettered"
	MetricDeliveryRetries     = "DeliveryRetries"
	MetricRecordsExpired      = "RecordsExpired"
	MetricVersionConflicts    = "VersionConflicts"
)

// Metrics publishes operational counters to CloudWatch. Metric emission is
// best-effort: failures are logged, never returned to the caller.
type Metrics struct {
	client    *cloudwatch.Client
	namespace string
	logger    *zap.Logger
}

// NewMetrics creates a CloudWatch-backed metrics publisher.
func NewMetrics(client *cloudwatch.Client, namespace string, logger *zap.Logger) *Metrics {
	return &Metrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// Count emits a count metric. A nil receiver or client is a no-op so unit
// tests and local runs need no CloudWatch access.
func (m *Metrics) Count(ctx context.Context, name string, value float64) {
	if m == nil || m.client == nil {
		return
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       types.StandardUnitCount,
			},
		},
	})
	if err != nil {
		m.logger.Warn("Failed to publish metric",
			zap.String("metric", name),
			zap.Error(err),
		)
	}
}
