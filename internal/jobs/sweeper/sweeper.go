package sweeper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/contentgate/backend/internal/domain/model"
	"github.com/contentgate/backend/internal/services/delivery"
)

type LedgerScanner interface {
	ExpireDue(ctx context.Context) (int64, error)
	ListStuckPaid(ctx context.Context, grace time.Duration, limit int) ([]model.PaymentRequest, error)
}

type Deliverer interface {
	AttemptDelivery(ctx context.Context, requestID string) error
}

type Job struct {
	ledger    LedgerScanner
	deliverer Deliverer
	grace     time.Duration
	batchSize int
	logger    *zap.Logger
}

func New(ledger LedgerScanner, deliverer Deliverer, grace time.Duration, logger *zap.Logger) *Job {
	if grace <= 0 {
		grace = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		ledger:    ledger,
		deliverer: deliverer,
		grace:     grace,
		batchSize: 50,
		logger:    logger,
	}
}

// Run performs one reconciliation pass: expire overdue requests, then retry
// delivery for paid requests that sat past the grace period. A failed
// redelivery is logged and skipped so one bad request cannot stall the batch.
func (j *Job) Run(ctx context.Context) error {
	if j.ledger == nil {
		return fmt.Errorf("ledger scanner is nil")
	}

	expired, err := j.ledger.ExpireDue(ctx)
	if err != nil {
		return fmt.Errorf("expire due requests: %w", err)
	}
	if expired > 0 {
		j.logger.Info("expired overdue payment requests", zap.Int64("expired", expired))
	}

	if j.deliverer == nil {
		return nil
	}

	stuck, err := j.ledger.ListStuckPaid(ctx, j.grace, j.batchSize)
	if err != nil {
		return fmt.Errorf("list stuck paid requests: %w", err)
	}

	redelivered := 0
	for _, request := range stuck {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := j.deliverer.AttemptDelivery(ctx, request.ID); err != nil {
			if delivery.IsPermanent(err) {
				j.logger.Error("redelivery failed permanently, operator action required",
					zap.Error(err),
					zap.String("request_id", request.ID),
				)
			} else {
				j.logger.Warn("redelivery failed, will retry next pass",
					zap.Error(err),
					zap.String("request_id", request.ID),
				)
			}
			continue
		}
		redelivered++
	}

	if len(stuck) > 0 {
		j.logger.Info("redelivery sweep completed",
			zap.Int("candidates", len(stuck)),
			zap.Int("redelivered", redelivered),
		)
	}

	return nil
}
