package referral

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	pgrepo "github.com/contentgate/backend/internal/repo/postgres"

	"github.com/contentgate/backend/internal/domain/model"
)

var ErrValidation = errors.New("validation error")

type CommissionStore interface {
	CreatePending(ctx context.Context, referrerID, referredID int64, requestID string, amount int64) (model.ReferralCommission, bool, error)
	CreditByRequest(ctx context.Context, requestID string, now time.Time) (model.ReferralCommission, bool, error)
	ReverseByRequest(ctx context.Context, requestID string, now time.Time) (bool, error)
	HasCredited(ctx context.Context, referredID int64) (bool, error)
	StatsByReferrer(ctx context.Context, referrerID int64) (pgrepo.ReferrerStats, error)
}

type UserStore interface {
	FindByID(ctx context.Context, userID int64) (model.User, error)
}

type RequestStore interface {
	CountSettledByUser(ctx context.Context, userID int64, excludeRequestID string) (int64, error)
}

type Config struct {
	CommissionRate float64
}

type Engine struct {
	commissions CommissionStore
	users       UserStore
	requests    RequestStore
	cfg         Config
	logger      *zap.Logger
	now         func() time.Time
}

func NewEngine(commissions CommissionStore, users UserStore, requests RequestStore, cfg Config, logger *zap.Logger) *Engine {
	if cfg.CommissionRate <= 0 || cfg.CommissionRate >= 1 {
		cfg.CommissionRate = 0.20
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		commissions: commissions,
		users:       users,
		requests:    requests,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// OnPaid records a pending commission when a referred user's first request
// ever reaches paid. Any request after the first one earns nothing.
func (e *Engine) OnPaid(ctx context.Context, request model.PaymentRequest) error {
	if e.commissions == nil || e.users == nil || e.requests == nil {
		return fmt.Errorf("referral engine dependencies are not configured")
	}

	user, err := e.users.FindByID(ctx, request.UserID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("load paying user: %w", err)
	}
	if user.ReferrerID == nil {
		return nil
	}

	credited, err := e.commissions.HasCredited(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("check credited commission: %w", err)
	}
	if credited {
		return nil
	}

	settled, err := e.requests.CountSettledByUser(ctx, user.ID, request.ID)
	if err != nil {
		return fmt.Errorf("count earlier purchases: %w", err)
	}
	if settled > 0 {
		return nil
	}

	amount := int64(math.Round(float64(request.Amount) * e.cfg.CommissionRate))
	if amount <= 0 {
		return nil
	}

	commission, created, err := e.commissions.CreatePending(ctx, *user.ReferrerID, user.ID, request.ID, amount)
	if err != nil {
		return fmt.Errorf("create pending commission: %w", err)
	}
	if created {
		e.logger.Info("referral commission recorded",
			zap.String("commission_id", commission.ID),
			zap.Int64("referrer_id", commission.ReferrerID),
			zap.Int64("referred_id", commission.ReferredID),
			zap.Int64("amount", commission.Amount),
		)
	}

	return nil
}

// OnDelivered credits the pending commission once the purchase is fulfilled.
// If the referred user somehow already has a credited commission, the pending
// one is reversed instead of credited a second time.
func (e *Engine) OnDelivered(ctx context.Context, request model.PaymentRequest) error {
	if e.commissions == nil {
		return fmt.Errorf("commission store is nil")
	}

	commission, changed, err := e.commissions.CreditByRequest(ctx, request.ID, e.now().UTC())
	if err != nil {
		if errors.Is(err, pgrepo.ErrCommissionNotFound) {
			return nil
		}
		if errors.Is(err, pgrepo.ErrCommissionAlreadyCredited) {
			if _, reverseErr := e.commissions.ReverseByRequest(ctx, request.ID, e.now().UTC()); reverseErr != nil {
				return fmt.Errorf("reverse conflicting commission: %w", reverseErr)
			}
			e.logger.Warn("pending commission reversed, referred user already credited",
				zap.String("request_id", request.ID),
			)
			return nil
		}
		return fmt.Errorf("credit commission: %w", err)
	}

	if changed {
		e.logger.Info("referral commission credited",
			zap.String("commission_id", commission.ID),
			zap.Int64("referrer_id", commission.ReferrerID),
			zap.Int64("amount", commission.Amount),
		)
	}

	return nil
}

// OnRefunded claws back whatever the refunded request earned, pending or
// credited. Commissions from the user's other requests are untouched.
func (e *Engine) OnRefunded(ctx context.Context, request model.PaymentRequest) error {
	if e.commissions == nil {
		return fmt.Errorf("commission store is nil")
	}

	reversed, err := e.commissions.ReverseByRequest(ctx, request.ID, e.now().UTC())
	if err != nil {
		return fmt.Errorf("reverse commission: %w", err)
	}
	if reversed {
		e.logger.Info("referral commission reversed", zap.String("request_id", request.ID))
	}

	return nil
}

func (e *Engine) Stats(ctx context.Context, referrerID int64) (pgrepo.ReferrerStats, error) {
	if e.commissions == nil {
		return pgrepo.ReferrerStats{}, fmt.Errorf("commission store is nil")
	}
	if referrerID <= 0 {
		return pgrepo.ReferrerStats{}, ErrValidation
	}
	return e.commissions.StatsByReferrer(ctx, referrerID)
}
