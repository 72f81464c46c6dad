package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"cardvault/application/ports"
	"cardvault/application/propagation"
	"cardvault/application/services"
	"cardvault/infrastructure/config"
	"cardvault/infrastructure/messaging/eventbridge"
	"cardvault/infrastructure/persistence/dynamodb"
	"cardvault/infrastructure/storage/s3"
	"cardvault/pkg/logging"
	"cardvault/pkg/observability"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Environment, cfg.LogLevel)
}

// ProvideAWSConfig loads AWS configuration for the configured region.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client.
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client.
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client.
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideS3Client creates an S3 client.
func ProvideS3Client(awsCfg aws.Config) *awss3.Client {
	return awss3.NewFromConfig(awsCfg)
}

// ProvideCardRepository creates the single-table card repository.
func ProvideCardRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.CardRepository {
	return dynamodb.NewCardRepository(
		client,
		cfg.TableName,
		cfg.OwnerIndexName,
		cfg.CategoryIndexName,
		cfg.TTLEnabled,
		logger,
	)
}

// ProvideOutbox creates the change outbox over the same table.
func ProvideOutbox(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.Outbox {
	return dynamodb.NewOutboxStore(
		client,
		cfg.TableName,
		cfg.CategoryIndexName,
		cfg.OutboxMaxAttempts,
		logger,
	)
}

// ProvideChangePublisher creates the EventBridge change publisher.
func ProvideChangePublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.ChangePublisher {
	return eventbridge.NewPublisher(client, cfg.EventBusName, cfg.EventSource, logger)
}

// ProvideUploadPresigner creates the S3 upload presigner.
func ProvideUploadPresigner(client *awss3.Client, cfg *config.Config, logger *zap.Logger) ports.UploadPresigner {
	return s3.NewPresigner(client, cfg.UploadBucket, cfg.UploadURLTTL, logger)
}

// ProvideMetrics creates the CloudWatch metrics publisher.
func ProvideMetrics(client *awscloudwatch.Client, cfg *config.Config, logger *zap.Logger) *observability.Metrics {
	return observability.NewMetrics(client, cfg.MetricsNamespace, logger)
}

// ProvideTracer creates the X-Ray tracer, or nil when tracing is disabled.
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	if !cfg.EnableTracing {
		return nil
	}
	return observability.NewTracer("cardvault")
}

// ProvideCardService creates the card application service.
func ProvideCardService(
	repo ports.CardRepository,
	presigner ports.UploadPresigner,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
	logger *zap.Logger,
) *services.CardService {
	return services.NewCardService(repo, presigner, metrics, tracer, logger)
}

// ProvideProcessor creates the change delivery processor.
func ProvideProcessor(
	outbox ports.Outbox,
	publisher ports.ChangePublisher,
	metrics *observability.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *propagation.Processor {
	return propagation.NewProcessor(
		outbox,
		publisher,
		metrics,
		logger,
		cfg.OutboxBatchSize,
		cfg.OutboxInterval,
		cfg.OutboxBaseBackoff,
	)
}

// ProvideSweeper creates the expiration sweeper.
func ProvideSweeper(
	repo ports.CardRepository,
	metrics *observability.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *propagation.Sweeper {
	return propagation.NewSweeper(repo, metrics, logger, cfg.SweepInterval)
}
