package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pgrepo "github.com/contentgate/backend/internal/repo/postgres"

	"github.com/contentgate/backend/internal/domain/enums"
	"github.com/contentgate/backend/internal/domain/model"
)

var (
	ErrValidation                   = errors.New("validation error")
	ErrRequestNotFound              = errors.New("payment request not found")
	ErrAmbiguousMatch               = errors.New("query did not resolve to a single content item")
	ErrActiveRequestExists          = errors.New("user already has an active request for this content")
	ErrDuplicatePaymentConfirmation = errors.New("payment confirmation already applied")
	ErrStalePaymentConfirmation     = errors.New("payment confirmation arrived after request expiry")
	ErrInvalidTransition            = errors.New("invalid payment request transition")
)

// RequestStore is the durable half of the ledger. All transition methods are
// expected to be atomic and to serialize concurrent writers per request.
type RequestStore interface {
	Create(ctx context.Context, userID int64, query string, amount int64, currency string, expiresAt time.Time) (model.PaymentRequest, error)
	FindByID(ctx context.Context, requestID string) (model.PaymentRequest, error)
	IncrementMatchAttempts(ctx context.Context, requestID string) (int, error)
	AttachMatch(ctx context.Context, requestID, contentID string) (model.PaymentRequest, error)
	ConfirmPaid(ctx context.Context, requestID, providerTxID string, now time.Time) (model.PaymentRequest, error)
	MarkDelivered(ctx context.Context, requestID string, now time.Time) (model.PaymentRequest, bool, error)
	MarkRefunded(ctx context.Context, requestID string) (model.PaymentRequest, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	ListPaidOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.PaymentRequest, error)
	ListPendingDelivery(ctx context.Context) ([]model.PaymentRequest, error)
	CountsByStatus(ctx context.Context) (map[enums.RequestStatus]int64, error)
}

// ReferralHooks is notified after a transition commits. Hooks run outside the
// transition's critical section.
type ReferralHooks interface {
	OnPaid(ctx context.Context, request model.PaymentRequest) error
	OnDelivered(ctx context.Context, request model.PaymentRequest) error
	OnRefunded(ctx context.Context, request model.PaymentRequest) error
}

type Config struct {
	ExpiryWindow    time.Duration
	ResolveAttempts int
}

type Service struct {
	requests RequestStore
	referral ReferralHooks
	cfg      Config
	now      func() time.Time
}

func NewService(requests RequestStore, cfg Config) *Service {
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = 24 * time.Hour
	}
	if cfg.ResolveAttempts <= 0 {
		cfg.ResolveAttempts = 3
	}

	return &Service{
		requests: requests,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *Service) AttachReferral(hooks ReferralHooks) {
	s.referral = hooks
}

func (s *Service) CreateRequest(ctx context.Context, userID int64, query string, amount int64, currency string) (model.PaymentRequest, error) {
	if s.requests == nil {
		return model.PaymentRequest{}, fmt.Errorf("request store is nil")
	}
	if userID <= 0 || amount <= 0 || strings.TrimSpace(currency) == "" {
		return model.PaymentRequest{}, ErrValidation
	}

	expiresAt := s.now().UTC().Add(s.cfg.ExpiryWindow)
	request, err := s.requests.Create(ctx, userID, query, amount, currency, expiresAt)
	if err != nil {
		return model.PaymentRequest{}, fmt.Errorf("create request: %w", err)
	}

	return request, nil
}

func (s *Service) Request(ctx context.Context, requestID string) (model.PaymentRequest, error) {
	if s.requests == nil {
		return model.PaymentRequest{}, fmt.Errorf("request store is nil")
	}

	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrRequestNotFound) {
			return model.PaymentRequest{}, ErrRequestNotFound
		}
		return model.PaymentRequest{}, err
	}

	return request, nil
}

// NoteUnresolved records one more failed attempt to narrow the query down to a
// single item. Past the configured limit the request is considered ambiguous
// and the caller should stop re-prompting.
func (s *Service) NoteUnresolved(ctx context.Context, requestID string) error {
	if s.requests == nil {
		return fmt.Errorf("request store is nil")
	}

	attempts, err := s.requests.IncrementMatchAttempts(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrRequestNotFound) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("note unresolved match: %w", err)
	}

	if attempts >= s.cfg.ResolveAttempts {
		return ErrAmbiguousMatch
	}

	return nil
}

// ResolveMatch moves pending_match to awaiting_payment once exactly one
// content item is settled on, either by a confident matcher result or by an
// explicit user pick.
func (s *Service) ResolveMatch(ctx context.Context, requestID, contentID string) (model.PaymentRequest, error) {
	if s.requests == nil {
		return model.PaymentRequest{}, fmt.Errorf("request store is nil")
	}
	if strings.TrimSpace(contentID) == "" {
		return model.PaymentRequest{}, ErrValidation
	}

	request, err := s.requests.AttachMatch(ctx, requestID, contentID)
	if err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrRequestNotFound):
			return model.PaymentRequest{}, ErrRequestNotFound
		case errors.Is(err, pgrepo.ErrActiveRequestExists):
			return model.PaymentRequest{}, ErrActiveRequestExists
		case errors.Is(err, pgrepo.ErrInvalidRequestState):
			return request, ErrInvalidTransition
		default:
			return model.PaymentRequest{}, fmt.Errorf("resolve match: %w", err)
		}
	}

	return request, nil
}

// ConfirmPayment applies a provider confirmation. Replayed provider tx ids
// come back as ErrDuplicatePaymentConfirmation with no state change; a
// confirmation against an expired request surfaces as
// ErrStalePaymentConfirmation so an operator can reconcile the funds.
func (s *Service) ConfirmPayment(ctx context.Context, requestID, providerTxID string) (model.PaymentRequest, error) {
	if s.requests == nil {
		return model.PaymentRequest{}, fmt.Errorf("request store is nil")
	}
	if strings.TrimSpace(requestID) == "" || strings.TrimSpace(providerTxID) == "" {
		return model.PaymentRequest{}, ErrValidation
	}

	request, err := s.requests.ConfirmPaid(ctx, requestID, providerTxID, s.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrRequestNotFound):
			return model.PaymentRequest{}, ErrRequestNotFound
		case errors.Is(err, pgrepo.ErrDuplicateProviderTx):
			return request, ErrDuplicatePaymentConfirmation
		case errors.Is(err, pgrepo.ErrRequestExpired):
			return request, ErrStalePaymentConfirmation
		case errors.Is(err, pgrepo.ErrInvalidRequestState):
			return request, ErrInvalidTransition
		default:
			return model.PaymentRequest{}, fmt.Errorf("confirm payment: %w", err)
		}
	}

	if s.referral != nil {
		if err := s.referral.OnPaid(ctx, request); err != nil {
			return request, fmt.Errorf("referral on paid: %w", err)
		}
	}

	return request, nil
}

// MarkDelivered is the single place delivered_at gets set. Calling it again
// for an already delivered request reports changed=false and no error.
func (s *Service) MarkDelivered(ctx context.Context, requestID string) (model.PaymentRequest, bool, error) {
	if s.requests == nil {
		return model.PaymentRequest{}, false, fmt.Errorf("request store is nil")
	}

	request, changed, err := s.requests.MarkDelivered(ctx, requestID, s.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrRequestNotFound):
			return model.PaymentRequest{}, false, ErrRequestNotFound
		case errors.Is(err, pgrepo.ErrInvalidRequestState):
			return request, false, ErrInvalidTransition
		default:
			return model.PaymentRequest{}, false, fmt.Errorf("mark delivered: %w", err)
		}
	}

	if changed && s.referral != nil {
		if err := s.referral.OnDelivered(ctx, request); err != nil {
			return request, true, fmt.Errorf("referral on delivered: %w", err)
		}
	}

	return request, changed, nil
}

// Refund is admin-only and claws back any commission the request produced.
func (s *Service) Refund(ctx context.Context, requestID string) (model.PaymentRequest, error) {
	if s.requests == nil {
		return model.PaymentRequest{}, fmt.Errorf("request store is nil")
	}

	request, err := s.requests.MarkRefunded(ctx, requestID)
	if err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrRequestNotFound):
			return model.PaymentRequest{}, ErrRequestNotFound
		case errors.Is(err, pgrepo.ErrInvalidRequestState):
			return request, ErrInvalidTransition
		default:
			return model.PaymentRequest{}, fmt.Errorf("refund request: %w", err)
		}
	}

	if s.referral != nil {
		if err := s.referral.OnRefunded(ctx, request); err != nil {
			return request, fmt.Errorf("referral on refunded: %w", err)
		}
	}

	return request, nil
}

func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	if s.requests == nil {
		return 0, fmt.Errorf("request store is nil")
	}
	return s.requests.ExpireDue(ctx, s.now().UTC())
}

// ListStuckPaid returns paid requests older than the grace period, candidates
// for redelivery.
func (s *Service) ListStuckPaid(ctx context.Context, grace time.Duration, limit int) ([]model.PaymentRequest, error) {
	if s.requests == nil {
		return nil, fmt.Errorf("request store is nil")
	}
	if grace < 0 {
		grace = 0
	}
	return s.requests.ListPaidOlderThan(ctx, s.now().UTC().Add(-grace), limit)
}

func (s *Service) ListPendingDelivery(ctx context.Context) ([]model.PaymentRequest, error) {
	if s.requests == nil {
		return nil, fmt.Errorf("request store is nil")
	}
	return s.requests.ListPendingDelivery(ctx)
}

func (s *Service) CountsByStatus(ctx context.Context) (map[enums.RequestStatus]int64, error) {
	if s.requests == nil {
		return nil, fmt.Errorf("request store is nil")
	}
	return s.requests.CountsByStatus(ctx)
}
