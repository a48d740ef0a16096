package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contentgate/backend/internal/domain/model"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, telegram_id, username, first_name, referral_code, referrer_id, created_at, updated_at`

// Upsert registers a user on first contact and refreshes the display fields on
// every later one. The referral code is generated once and never changes.
func (r *UserRepo) Upsert(ctx context.Context, telegramID int64, username, firstName string) (model.User, error) {
	if r.pool == nil {
		return model.User{}, fmt.Errorf("postgres pool is nil")
	}
	if telegramID <= 0 {
		return model.User{}, fmt.Errorf("invalid telegram id")
	}

	code := newReferralCode()
	row := r.pool.QueryRow(ctx, `
INSERT INTO users (telegram_id, username, first_name, referral_code, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())
ON CONFLICT (telegram_id) DO UPDATE
SET username = EXCLUDED.username,
	first_name = EXCLUDED.first_name,
	updated_at = NOW()
RETURNING `+userColumns, telegramID, strings.TrimSpace(username), strings.TrimSpace(firstName), code)

	user, err := scanUser(row)
	if err != nil {
		return model.User{}, fmt.Errorf("upsert user: %w", err)
	}

	return user, nil
}

func (r *UserRepo) FindByID(ctx context.Context, userID int64) (model.User, error) {
	if r.pool == nil {
		return model.User{}, fmt.Errorf("postgres pool is nil")
	}

	user, err := scanUser(r.pool.QueryRow(ctx, `
SELECT `+userColumns+`
FROM users
WHERE id = $1
LIMIT 1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("find user by id: %w", err)
	}

	return user, nil
}

func (r *UserRepo) FindByTelegramID(ctx context.Context, telegramID int64) (model.User, error) {
	if r.pool == nil {
		return model.User{}, fmt.Errorf("postgres pool is nil")
	}

	user, err := scanUser(r.pool.QueryRow(ctx, `
SELECT `+userColumns+`
FROM users
WHERE telegram_id = $1
LIMIT 1`, telegramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("find user by telegram id: %w", err)
	}

	return user, nil
}

func (r *UserRepo) FindByReferralCode(ctx context.Context, code string) (model.User, error) {
	if r.pool == nil {
		return model.User{}, fmt.Errorf("postgres pool is nil")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return model.User{}, ErrUserNotFound
	}

	user, err := scanUser(r.pool.QueryRow(ctx, `
SELECT `+userColumns+`
FROM users
WHERE referral_code = $1
LIMIT 1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("find user by referral code: %w", err)
	}

	return user, nil
}

// SetReferrerOnce attaches a referrer only if none was recorded before.
// Self-referrals never apply. Returns false when the field was already set.
func (r *UserRepo) SetReferrerOnce(ctx context.Context, userID, referrerID int64) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 || referrerID <= 0 || userID == referrerID {
		return false, nil
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE users
SET referrer_id = $2,
	updated_at = NOW()
WHERE id = $1
  AND referrer_id IS NULL`, userID, referrerID)
	if err != nil {
		return false, fmt.Errorf("set referrer: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	if err := row.Scan(
		&user.ID,
		&user.TelegramID,
		&user.Username,
		&user.FirstName,
		&user.ReferralCode,
		&user.ReferrerID,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return model.User{}, err
	}
	return user, nil
}

func newReferralCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
