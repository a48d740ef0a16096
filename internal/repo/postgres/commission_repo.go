package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contentgate/backend/internal/domain/enums"
	"github.com/contentgate/backend/internal/domain/model"
)

var (
	ErrCommissionNotFound        = errors.New("referral commission not found")
	ErrCommissionAlreadyCredited = errors.New("referred user already has a credited commission")
)

type CommissionRepo struct {
	pool *pgxpool.Pool
}

type ReferrerStats struct {
	ReferrerID     int64
	ReferredUsers  int64
	PendingCount   int64
	PendingAmount  int64
	CreditedCount  int64
	CreditedAmount int64
}

func NewCommissionRepo(pool *pgxpool.Pool) *CommissionRepo {
	return &CommissionRepo{pool: pool}
}

const commissionColumns = `id, referrer_id, referred_id, request_id, amount, status, created_at, updated_at`

// CreatePending records the commission for a request's first payment. A
// request carries at most one commission; replays return the existing row with
// created=false.
func (r *CommissionRepo) CreatePending(ctx context.Context, referrerID, referredID int64, requestID string, amount int64) (model.ReferralCommission, bool, error) {
	if r.pool == nil {
		return model.ReferralCommission{}, false, fmt.Errorf("postgres pool is nil")
	}
	requestID = strings.TrimSpace(requestID)
	if referrerID <= 0 || referredID <= 0 || requestID == "" || amount <= 0 {
		return model.ReferralCommission{}, false, fmt.Errorf("invalid commission create payload")
	}

	commission, err := scanCommission(r.pool.QueryRow(ctx, `
INSERT INTO referral_commissions (id, referrer_id, referred_id, request_id, amount, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 'pending', NOW(), NOW())
ON CONFLICT (request_id) DO NOTHING
RETURNING `+commissionColumns, uuid.NewString(), referrerID, referredID, requestID, amount))
	if err == nil {
		return commission, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.ReferralCommission{}, false, fmt.Errorf("create pending commission: %w", err)
	}

	existing, err := r.FindByRequest(ctx, requestID)
	if err != nil {
		return model.ReferralCommission{}, false, err
	}
	return existing, false, nil
}

// CreditByRequest moves a pending commission to credited. The partial unique
// index on credited rows per referred user turns a second lifetime credit into
// ErrCommissionAlreadyCredited.
func (r *CommissionRepo) CreditByRequest(ctx context.Context, requestID string, now time.Time) (model.ReferralCommission, bool, error) {
	if r.pool == nil {
		return model.ReferralCommission{}, false, fmt.Errorf("postgres pool is nil")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	commission, err := scanCommission(r.pool.QueryRow(ctx, `
UPDATE referral_commissions
SET status = 'credited',
	updated_at = $2
WHERE request_id = $1
  AND status = 'pending'
RETURNING `+commissionColumns, strings.TrimSpace(requestID), now.UTC()))
	if err == nil {
		return commission, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return model.ReferralCommission{}, false, ErrCommissionAlreadyCredited
		}
		return model.ReferralCommission{}, false, fmt.Errorf("credit commission: %w", err)
	}

	existing, err := r.FindByRequest(ctx, requestID)
	if err != nil {
		return model.ReferralCommission{}, false, err
	}
	return existing, false, nil
}

// ReverseByRequest cancels whatever commission the request produced, pending
// or already credited. Reversing a request without a commission is a no-op.
func (r *CommissionRepo) ReverseByRequest(ctx context.Context, requestID string, now time.Time) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE referral_commissions
SET status = 'reversed',
	updated_at = $2
WHERE request_id = $1
  AND status IN ('pending', 'credited')`, strings.TrimSpace(requestID), now.UTC())
	if err != nil {
		return false, fmt.Errorf("reverse commission: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *CommissionRepo) FindByRequest(ctx context.Context, requestID string) (model.ReferralCommission, error) {
	if r.pool == nil {
		return model.ReferralCommission{}, fmt.Errorf("postgres pool is nil")
	}

	commission, err := scanCommission(r.pool.QueryRow(ctx, `
SELECT `+commissionColumns+`
FROM referral_commissions
WHERE request_id = $1
LIMIT 1`, strings.TrimSpace(requestID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ReferralCommission{}, ErrCommissionNotFound
		}
		return model.ReferralCommission{}, fmt.Errorf("find commission by request: %w", err)
	}

	return commission, nil
}

func (r *CommissionRepo) HasCredited(ctx context.Context, referredID int64) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	var exists bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1
	FROM referral_commissions
	WHERE referred_id = $1
	  AND status = 'credited'
)`, referredID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check credited commission: %w", err)
	}

	return exists, nil
}

func (r *CommissionRepo) StatsByReferrer(ctx context.Context, referrerID int64) (ReferrerStats, error) {
	if r.pool == nil {
		return ReferrerStats{}, fmt.Errorf("postgres pool is nil")
	}

	stats := ReferrerStats{ReferrerID: referrerID}
	err := r.pool.QueryRow(ctx, `
SELECT
	COUNT(DISTINCT referred_id),
	COUNT(*) FILTER (WHERE status = 'pending'),
	COALESCE(SUM(amount) FILTER (WHERE status = 'pending'), 0),
	COUNT(*) FILTER (WHERE status = 'credited'),
	COALESCE(SUM(amount) FILTER (WHERE status = 'credited'), 0)
FROM referral_commissions
WHERE referrer_id = $1`, referrerID).Scan(
		&stats.ReferredUsers,
		&stats.PendingCount,
		&stats.PendingAmount,
		&stats.CreditedCount,
		&stats.CreditedAmount,
	)
	if err != nil {
		return ReferrerStats{}, fmt.Errorf("load referrer stats: %w", err)
	}

	return stats, nil
}

func scanCommission(row pgx.Row) (model.ReferralCommission, error) {
	var (
		commission model.ReferralCommission
		status     string
	)
	if err := row.Scan(
		&commission.ID,
		&commission.ReferrerID,
		&commission.ReferredID,
		&commission.RequestID,
		&commission.Amount,
		&status,
		&commission.CreatedAt,
		&commission.UpdatedAt,
	); err != nil {
		return model.ReferralCommission{}, err
	}
	commission.Status = enums.CommissionStatus(status)
	return commission, nil
}
