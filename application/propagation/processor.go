// Package propagation drains the change outbox to the downstream bus and
// runs the expiration sweep. Both loops are owned by the worker process and
// tolerate being run alongside other instances.
package propagation

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"cardvault/application/ports"
	"cardvault/pkg/observability"
)

// Processor periodically claims pending changes and publishes them. Changes
// for the same card are delivered in version order; a failure parks the rest
// of that card's batch until the failed change succeeds or dead-letters.
type Processor struct {
	outbox      ports.Outbox
	publisher   ports.ChangePublisher
	metrics     *observability.Metrics
	logger      *zap.Logger
	batchSize   int32
	interval    time.Duration
	baseBackoff time.Duration

	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewProcessor creates a change delivery processor.
func NewProcessor(
	outbox ports.Outbox,
	publisher ports.ChangePublisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
	batchSize int32,
	interval time.Duration,
	baseBackoff time.Duration,
) *Processor {
	return &Processor{
		outbox:      outbox,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
		batchSize:   batchSize,
		interval:    interval,
		baseBackoff: baseBackoff,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start runs the delivery loop until Stop is called or ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	go func() {
		defer close(p.stoppedChan)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.logger.Info("Change processor started",
			zap.Int32("batchSize", p.batchSize),
			zap.Duration("interval", p.interval),
		)

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopChan:
				return
			case <-ticker.C:
				if err := p.ProcessBatch(ctx); err != nil {
					p.logger.Error("Change batch failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight batch to finish.
func (p *Processor) Stop() {
	close(p.stopChan)
	<-p.stoppedChan
	p.logger.Info("Change processor stopped")
}

// ProcessBatch claims one batch of pending changes and attempts delivery.
func (p *Processor) ProcessBatch(ctx context.Context) error {
	now := time.Now().UTC()

	pending, err := p.outbox.PendingChanges(ctx, p.batchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	for _, group := range groupByCard(pending) {
		p.deliverGroup(ctx, group, now)
	}
	return nil
}

// groupByCard partitions the batch per card, each group sorted by version
// ascending so consumers observe a card's changes in commit order.
func groupByCard(pending []*ports.PendingChange) [][]*ports.PendingChange {
	byCard := make(map[string][]*ports.PendingChange)
	order := make([]string, 0, len(pending))
	for _, pc := range pending {
		id := pc.Change.CardID
		if _, seen := byCard[id]; !seen {
			order = append(order, id)
		}
		byCard[id] = append(byCard[id], pc)
	}

	groups := make([][]*ports.PendingChange, 0, len(order))
	for _, id := range order {
		group := byCard[id]
		sort.Slice(group, func(i, j int) bool {
			return group[i].Change.Version < group[j].Change.Version
		})
		groups = append(groups, group)
	}
	return groups
}

func (p *Processor) deliverGroup(ctx context.Context, group []*ports.PendingChange, now time.Time) {
	for i, pc := range group {
		// A change still backing off parks everything queued behind it:
		// delivering a later version first would break per-card ordering.
		if pc.NextAttemptAt.After(now) {
			if parked := len(group) - i; parked > 1 {
				p.logger.Debug("Card parked behind backing-off change",
					zap.String("cardID", pc.Change.CardID),
					zap.Int64("version", pc.Change.Version),
					zap.Int("parked", parked-1),
				)
			}
			return
		}

		if err := p.publisher.Publish(ctx, pc.Change); err != nil {
			p.handleFailure(ctx, pc, err)
			if skipped := len(group) - i - 1; skipped > 0 {
				p.logger.Debug("Parking later changes for card",
					zap.String("cardID", pc.Change.CardID),
					zap.Int("parked", skipped),
				)
			}
			return
		}

		if err := p.outbox.MarkDelivered(ctx, pc); err != nil {
			// The publish succeeded, so a redelivery is harmless; consumers
			// deduplicate on the token. Stop the group and retry next tick.
			p.logger.Warn("Failed to mark change delivered",
				zap.String("cardID", pc.Change.CardID),
				zap.Int64("version", pc.Change.Version),
				zap.Error(err),
			)
			return
		}

		p.metrics.Count(ctx, observability.MetricChangesDelivered, 1)
	}
}

func (p *Processor) handleFailure(ctx context.Context, pc *ports.PendingChange, deliveryErr error) {
	nextAttempt := time.Now().UTC().Add(p.backoff(pc.Attempts))

	deadLettered, err := p.outbox.MarkFailed(ctx, pc, deliveryErr, nextAttempt)
	if err != nil {
		p.logger.Error("Failed to record delivery failure",
			zap.String("cardID", pc.Change.CardID),
			zap.Int64("version", pc.Change.Version),
			zap.Error(err),
		)
		return
	}

	if deadLettered {
		p.logger.Error("Change dead-lettered",
			zap.String("cardID", pc.Change.CardID),
			zap.Int64("version", pc.Change.Version),
			zap.Int("attempts", pc.Attempts),
			zap.Error(deliveryErr),
		)
		p.metrics.Count(ctx, observability.MetricChangesDeadLettered, 1)
		return
	}

	p.logger.Warn("Change delivery failed, scheduled retry",
		zap.String("cardID", pc.Change.CardID),
		zap.Int64("version", pc.Change.Version),
		zap.Int("attempts", pc.Attempts),
		zap.Time("nextAttempt", nextAttempt),
		zap.Error(deliveryErr),
	)
	p.metrics.Count(ctx, observability.MetricDeliveryRetries, 1)
}

// backoff returns the delay before the next attempt: base doubled per prior
// attempt, capped at five minutes.
func (p *Processor) backoff(attempts int) time.Duration {
	d := p.baseBackoff
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= 5*time.Minute {
			return 5 * time.Minute
		}
	}
	return d
}
