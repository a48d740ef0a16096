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
	ErrRequestNotFound     = errors.New("payment request not found")
	ErrDuplicateProviderTx = errors.New("provider tx already recorded")
	ErrRequestExpired      = errors.New("payment request expired")
	ErrActiveRequestExists = errors.New("active request for this content already exists")
	ErrInvalidRequestState = errors.New("payment request is in the wrong state")
)

const pgUniqueViolation = "23505"

type RequestRepo struct {
	pool *pgxpool.Pool
}

func NewRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

const requestColumns = `id, user_id, query, content_id, status, amount, currency,
	provider_txn_id, match_attempts, created_at, expires_at, paid_at, delivered_at`

func (r *RequestRepo) Create(ctx context.Context, userID int64, query string, amount int64, currency string, expiresAt time.Time) (model.PaymentRequest, error) {
	if r.pool == nil {
		return model.PaymentRequest{}, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 || amount <= 0 || expiresAt.IsZero() {
		return model.PaymentRequest{}, fmt.Errorf("invalid request create payload")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return model.PaymentRequest{}, fmt.Errorf("currency is required")
	}

	row := r.pool.QueryRow(ctx, `
INSERT INTO payment_requests (id, user_id, query, status, amount, currency, created_at, expires_at)
VALUES ($1, $2, $3, 'pending_match', $4, $5, NOW(), $6)
RETURNING `+requestColumns, uuid.NewString(), userID, strings.TrimSpace(query), amount, currency, expiresAt.UTC())

	request, err := scanRequest(row)
	if err != nil {
		return model.PaymentRequest{}, fmt.Errorf("create payment request: %w", err)
	}

	return request, nil
}

func (r *RequestRepo) FindByID(ctx context.Context, requestID string) (model.PaymentRequest, error) {
	if r.pool == nil {
		return model.PaymentRequest{}, fmt.Errorf("postgres pool is nil")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return model.PaymentRequest{}, ErrRequestNotFound
	}

	request, err := scanRequest(r.pool.QueryRow(ctx, `
SELECT `+requestColumns+`
FROM payment_requests
WHERE id = $1
LIMIT 1`, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PaymentRequest{}, ErrRequestNotFound
		}
		return model.PaymentRequest{}, fmt.Errorf("find payment request: %w", err)
	}

	return request, nil
}

// IncrementMatchAttempts bumps the clarification counter for a request still
// waiting on a match and returns the new value.
func (r *RequestRepo) IncrementMatchAttempts(ctx context.Context, requestID string) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var attempts int
	err := r.pool.QueryRow(ctx, `
UPDATE payment_requests
SET match_attempts = match_attempts + 1
WHERE id = $1
  AND status = 'pending_match'
RETURNING match_attempts`, requestID).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrRequestNotFound
		}
		return 0, fmt.Errorf("increment match attempts: %w", err)
	}

	return attempts, nil
}

// AttachMatch binds a content item to a pending request and moves it to
// awaiting_payment. The partial unique index on (user_id, content_id) for
// non-terminal rows turns a second active request for the same content into
// ErrActiveRequestExists.
func (r *RequestRepo) AttachMatch(ctx context.Context, requestID, contentID string) (model.PaymentRequest, error) {
	if r.pool == nil {
		return model.PaymentRequest{}, fmt.Errorf("postgres pool is nil")
	}
	requestID = strings.TrimSpace(requestID)
	contentID = strings.TrimSpace(contentID)
	if requestID == "" || contentID == "" {
		return model.PaymentRequest{}, fmt.Errorf("invalid attach match payload")
	}

	request, err := scanRequest(r.pool.QueryRow(ctx, `
UPDATE payment_requests
SET content_id = $2,
	status = 'awaiting_payment'
WHERE id = $1
  AND status = 'pending_match'
RETURNING `+requestColumns, requestID, contentID))
	if err == nil {
		return request, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return model.PaymentRequest{}, ErrActiveRequestExists
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.PaymentRequest{}, fmt.Errorf("attach match: %w", err)
	}

	existing, err := r.FindByID(ctx, requestID)
	if err != nil {
		return model.PaymentRequest{}, err
	}
	return existing, ErrInvalidRequestState
}

// ConfirmPaid applies a provider confirmation under a row lock. The loser of
// two concurrent confirmations observes the post-transition state:
// a replayed provider tx id yields ErrDuplicateProviderTx, a confirmation for
// an expired request yields ErrRequestExpired, anything else out of
// awaiting_payment yields ErrInvalidRequestState.
func (r *RequestRepo) ConfirmPaid(ctx context.Context, requestID, providerTxID string, now time.Time) (model.PaymentRequest, error) {
	if r.pool == nil {
		return model.PaymentRequest{}, fmt.Errorf("postgres pool is nil")
	}
	requestID = strings.TrimSpace(requestID)
	providerTxID = strings.TrimSpace(providerTxID)
	if requestID == "" || providerTxID == "" {
		return model.PaymentRequest{}, fmt.Errorf("invalid confirm payload")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var out model.PaymentRequest
	err := WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		current, err := scanRequest(tx.QueryRow(txCtx, `
SELECT `+requestColumns+`
FROM payment_requests
WHERE id = $1
FOR UPDATE`, requestID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrRequestNotFound
			}
			return fmt.Errorf("lock payment request: %w", err)
		}

		switch current.Status {
		case enums.RequestStatusPaid, enums.RequestStatusDelivered:
			if current.ProviderTxID != nil && *current.ProviderTxID == providerTxID {
				out = current
				return ErrDuplicateProviderTx
			}
			out = current
			return ErrInvalidRequestState
		case enums.RequestStatusExpired:
			out = current
			return ErrRequestExpired
		case enums.RequestStatusRefunded:
			out = current
			return ErrInvalidRequestState
		}

		// The sweep may not have visited this row yet. An overdue request is
		// expired here, inside the same lock, so a late confirmation can never
		// resurrect it.
		if now.After(current.ExpiresAt) {
			expired, err := scanRequest(tx.QueryRow(txCtx, `
UPDATE payment_requests
SET status = 'expired'
WHERE id = $1
RETURNING `+requestColumns, requestID))
			if err != nil {
				return fmt.Errorf("expire overdue request: %w", err)
			}
			out = expired
			return ErrRequestExpired
		}

		if current.Status != enums.RequestStatusAwaitingPayment {
			out = current
			return ErrInvalidRequestState
		}

		updated, err := scanRequest(tx.QueryRow(txCtx, `
UPDATE payment_requests
SET status = 'paid',
	provider_txn_id = $2,
	paid_at = $3
WHERE id = $1
RETURNING `+requestColumns, requestID, providerTxID, now.UTC()))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return ErrDuplicateProviderTx
			}
			return fmt.Errorf("mark request paid: %w", err)
		}

		out = updated
		return nil
	})
	if err != nil {
		return out, err
	}

	return out, nil
}

// MarkDelivered sets delivered_at exactly once. The conditional UPDATE is the
// per-request mutual exclusion: of two concurrent attempts only one sees
// changed=true, the other gets the already-delivered row back.
func (r *RequestRepo) MarkDelivered(ctx context.Context, requestID string, now time.Time) (model.PaymentRequest, bool, error) {
	if r.pool == nil {
		return model.PaymentRequest{}, false, fmt.Errorf("postgres pool is nil")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return model.PaymentRequest{}, false, ErrRequestNotFound
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	updated, err := scanRequest(r.pool.QueryRow(ctx, `
UPDATE payment_requests
SET status = 'delivered',
	delivered_at = $2
WHERE id = $1
  AND status = 'paid'
RETURNING `+requestColumns, requestID, now.UTC()))
	if err == nil {
		return updated, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.PaymentRequest{}, false, fmt.Errorf("mark request delivered: %w", err)
	}

	existing, err := r.FindByID(ctx, requestID)
	if err != nil {
		return model.PaymentRequest{}, false, err
	}
	if existing.Status == enums.RequestStatusDelivered {
		return existing, false, nil
	}
	return existing, false, ErrInvalidRequestState
}

func (r *RequestRepo) MarkRefunded(ctx context.Context, requestID string) (model.PaymentRequest, error) {
	if r.pool == nil {
		return model.PaymentRequest{}, fmt.Errorf("postgres pool is nil")
	}

	updated, err := scanRequest(r.pool.QueryRow(ctx, `
UPDATE payment_requests
SET status = 'refunded'
WHERE id = $1
  AND status IN ('paid', 'delivered')
RETURNING `+requestColumns, strings.TrimSpace(requestID)))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.PaymentRequest{}, fmt.Errorf("mark request refunded: %w", err)
	}

	existing, err := r.FindByID(ctx, requestID)
	if err != nil {
		return model.PaymentRequest{}, err
	}
	return existing, ErrInvalidRequestState
}

// ExpireDue moves every overdue non-terminal request to expired and returns
// how many rows changed.
func (r *RequestRepo) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE payment_requests
SET status = 'expired'
WHERE status IN ('pending_match', 'awaiting_payment')
  AND expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire due requests: %w", err)
	}

	return tag.RowsAffected(), nil
}

// ListPaidOlderThan returns requests stuck in paid since before the cutoff,
// oldest first. The sweeper uses it to drive redelivery.
func (r *RequestRepo) ListPaidOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.PaymentRequest, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+requestColumns+`
FROM payment_requests
WHERE status = 'paid'
  AND paid_at <= $1
ORDER BY paid_at ASC
LIMIT $2`, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list paid requests: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (r *RequestRepo) ListPendingDelivery(ctx context.Context) ([]model.PaymentRequest, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+requestColumns+`
FROM payment_requests
WHERE status = 'paid'
ORDER BY paid_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending deliveries: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

// CountSettledByUser counts a user's requests that ever reached paid,
// excluding the given one. Zero means the request at hand is the user's first
// qualifying purchase.
func (r *RequestRepo) CountSettledByUser(ctx context.Context, userID int64, excludeRequestID string) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var count int64
	err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM payment_requests
WHERE user_id = $1
  AND id <> $2
  AND status IN ('paid', 'delivered', 'refunded')`, userID, strings.TrimSpace(excludeRequestID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count settled requests: %w", err)
	}

	return count, nil
}

func (r *RequestRepo) CountsByStatus(ctx context.Context) (map[enums.RequestStatus]int64, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT status, COUNT(*)
FROM payment_requests
GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count requests by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[enums.RequestStatus]int64)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[enums.RequestStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	return counts, nil
}

func collectRequests(rows pgx.Rows) ([]model.PaymentRequest, error) {
	var requests []model.PaymentRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment requests: %w", err)
	}
	return requests, nil
}

func scanRequest(row pgx.Row) (model.PaymentRequest, error) {
	var (
		request model.PaymentRequest
		status  string
	)
	if err := row.Scan(
		&request.ID,
		&request.UserID,
		&request.Query,
		&request.ContentID,
		&status,
		&request.Amount,
		&request.Currency,
		&request.ProviderTxID,
		&request.MatchAttempts,
		&request.CreatedAt,
		&request.ExpiresAt,
		&request.PaidAt,
		&request.DeliveredAt,
	); err != nil {
		return model.PaymentRequest{}, err
	}
	request.Status = enums.RequestStatus(status)
	return request, nil
}
