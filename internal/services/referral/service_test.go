package referral

import (
	"context"
	"strconv"
	"testing"
	"time"

	pgrepo "github.com/contentgate/backend/internal/repo/postgres"

	"github.com/contentgate/backend/internal/domain/enums"
	"github.com/contentgate/backend/internal/domain/model"
)

type commissionStoreStub struct {
	nextID    int
	byRequest map[string]model.ReferralCommission
}

func newCommissionStoreStub() *commissionStoreStub {
	return &commissionStoreStub{nextID: 1, byRequest: make(map[string]model.ReferralCommission)}
}

func (s *commissionStoreStub) CreatePending(_ context.Context, referrerID, referredID int64, requestID string, amount int64) (model.ReferralCommission, bool, error) {
	if existing, ok := s.byRequest[requestID]; ok {
		return existing, false, nil
	}
	commission := model.ReferralCommission{
		ID:         "com-" + strconv.Itoa(s.nextID),
		ReferrerID: referrerID,
		ReferredID: referredID,
		RequestID:  requestID,
		Amount:     amount,
		Status:     enums.CommissionStatusPending,
	}
	s.nextID++
	s.byRequest[requestID] = commission
	return commission, true, nil
}

func (s *commissionStoreStub) CreditByRequest(_ context.Context, requestID string, _ time.Time) (model.ReferralCommission, bool, error) {
	commission, ok := s.byRequest[requestID]
	if !ok {
		return model.ReferralCommission{}, false, pgrepo.ErrCommissionNotFound
	}
	if commission.Status == enums.CommissionStatusCredited {
		return commission, false, nil
	}
	for _, other := range s.byRequest {
		if other.ReferredID == commission.ReferredID && other.Status == enums.CommissionStatusCredited {
			return commission, false, pgrepo.ErrCommissionAlreadyCredited
		}
	}
	commission.Status = enums.CommissionStatusCredited
	s.byRequest[requestID] = commission
	return commission, true, nil
}

func (s *commissionStoreStub) ReverseByRequest(_ context.Context, requestID string, _ time.Time) (bool, error) {
	commission, ok := s.byRequest[requestID]
	if !ok || commission.Status == enums.CommissionStatusReversed {
		return false, nil
	}
	commission.Status = enums.CommissionStatusReversed
	s.byRequest[requestID] = commission
	return true, nil
}

func (s *commissionStoreStub) HasCredited(_ context.Context, referredID int64) (bool, error) {
	for _, commission := range s.byRequest {
		if commission.ReferredID == referredID && commission.Status == enums.CommissionStatusCredited {
			return true, nil
		}
	}
	return false, nil
}

func (s *commissionStoreStub) StatsByReferrer(_ context.Context, referrerID int64) (pgrepo.ReferrerStats, error) {
	stats := pgrepo.ReferrerStats{ReferrerID: referrerID}
	for _, commission := range s.byRequest {
		if commission.ReferrerID != referrerID {
			continue
		}
		switch commission.Status {
		case enums.CommissionStatusPending:
			stats.PendingCount++
			stats.PendingAmount += commission.Amount
		case enums.CommissionStatusCredited:
			stats.CreditedCount++
			stats.CreditedAmount += commission.Amount
		}
	}
	return stats, nil
}

type userStoreStub struct {
	users map[int64]model.User
}

func (s *userStoreStub) FindByID(_ context.Context, userID int64) (model.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return model.User{}, pgrepo.ErrUserNotFound
	}
	return user, nil
}

type requestCountStub struct {
	settled map[int64]int64
}

func (s *requestCountStub) CountSettledByUser(_ context.Context, userID int64, _ string) (int64, error) {
	return s.settled[userID], nil
}

func ptrInt64(v int64) *int64 { return &v }

func paidRequest(id string, userID, amount int64) model.PaymentRequest {
	return model.PaymentRequest{
		ID:     id,
		UserID: userID,
		Status: enums.RequestStatusPaid,
		Amount: amount,
	}
}

func newTestEngine(commissions *commissionStoreStub, users *userStoreStub, requests *requestCountStub) *Engine {
	return NewEngine(commissions, users, requests, Config{CommissionRate: 0.20}, nil)
}

func TestOnPaidRecordsCommissionForFirstPurchase(t *testing.T) {
	commissions := newCommissionStoreStub()
	users := &userStoreStub{users: map[int64]model.User{
		10: {ID: 10, ReferrerID: ptrInt64(1)},
	}}
	requests := &requestCountStub{settled: map[int64]int64{}}
	engine := newTestEngine(commissions, users, requests)

	if err := engine.OnPaid(context.Background(), paidRequest("req-1", 10, 500)); err != nil {
		t.Fatalf("on paid: %v", err)
	}

	commission, ok := commissions.byRequest["req-1"]
	if !ok {
		t.Fatalf("commission not recorded")
	}
	if commission.Amount != 100 {
		t.Fatalf("expected 20%% of 500, got %d", commission.Amount)
	}
	if commission.Status != enums.CommissionStatusPending {
		t.Fatalf("commission must start pending, got %s", commission.Status)
	}
}

func TestOnPaidSkipsUserWithoutReferrer(t *testing.T) {
	commissions := newCommissionStoreStub()
	users := &userStoreStub{users: map[int64]model.User{10: {ID: 10}}}
	requests := &requestCountStub{settled: map[int64]int64{}}
	engine := newTestEngine(commissions, users, requests)

	if err := engine.OnPaid(context.Background(), paidRequest("req-1", 10, 500)); err != nil {
		t.Fatalf("on paid: %v", err)
	}
	if len(commissions.byRequest) != 0 {
		t.Fatalf("no commission expected without a referrer")
	}
}

func TestOnPaidSkipsRepeatPurchases(t *testing.T) {
	commissions := newCommissionStoreStub()
	users := &userStoreStub{users: map[int64]model.User{
		10: {ID: 10, ReferrerID: ptrInt64(1)},
	}}
	requests := &requestCountStub{settled: map[int64]int64{10: 2}}
	engine := newTestEngine(commissions, users, requests)

	if err := engine.OnPaid(context.Background(), paidRequest("req-3", 10, 500)); err != nil {
		t.Fatalf("on paid: %v", err)
	}
	if len(commissions.byRequest) != 0 {
		t.Fatalf("repeat purchase must not earn a commission")
	}
}

func TestOnDeliveredCreditsPendingCommission(t *testing.T) {
	commissions := newCommissionStoreStub()
	users := &userStoreStub{users: map[int64]model.User{
		10: {ID: 10, ReferrerID: ptrInt64(1)},
	}}
	requests := &requestCountStub{settled: map[int64]int64{}}
	engine := newTestEngine(commissions, users, requests)

	request := paidRequest("req-1", 10, 500)
	if err := engine.OnPaid(context.Background(), request); err != nil {
		t.Fatalf("on paid: %v", err)
	}
	if err := engine.OnDelivered(context.Background(), request); err != nil {
		t.Fatalf("on delivered: %v", err)
	}

	if commissions.byRequest["req-1"].Status != enums.CommissionStatusCredited {
		t.Fatalf("commission must be credited after delivery")
	}
}

func TestOnDeliveredWithoutCommissionIsNoop(t *testing.T) {
	commissions := newCommissionStoreStub()
	engine := newTestEngine(commissions, &userStoreStub{}, &requestCountStub{})

	if err := engine.OnDelivered(context.Background(), paidRequest("req-x", 10, 500)); err != nil {
		t.Fatalf("on delivered without commission: %v", err)
	}
}

func TestOnDeliveredNeverCreditsSameReferredUserTwice(t *testing.T) {
	commissions := newCommissionStoreStub()
	users := &userStoreStub{users: map[int64]model.User{
		10: {ID: 10, ReferrerID: ptrInt64(1)},
	}}
	requests := &requestCountStub{settled: map[int64]int64{}}
	engine := newTestEngine(commissions, users, requests)

	first := paidRequest("req-1", 10, 500)
	if err := engine.OnPaid(context.Background(), first); err != nil {
		t.Fatalf("first on paid: %v", err)
	}
	if err := engine.OnDelivered(context.Background(), first); err != nil {
		t.Fatalf("first on delivered: %v", err)
	}

	// A second pending commission for the same referred user can only exist
	// through a race; delivery must reverse it instead of crediting.
	if _, _, err := commissions.CreatePending(context.Background(), 1, 10, "req-2", 100); err != nil {
		t.Fatalf("seed racing commission: %v", err)
	}
	second := paidRequest("req-2", 10, 500)
	if err := engine.OnDelivered(context.Background(), second); err != nil {
		t.Fatalf("second on delivered: %v", err)
	}

	if commissions.byRequest["req-1"].Status != enums.CommissionStatusCredited {
		t.Fatalf("first commission must stay credited")
	}
	if commissions.byRequest["req-2"].Status != enums.CommissionStatusReversed {
		t.Fatalf("racing commission must be reversed, got %s", commissions.byRequest["req-2"].Status)
	}
}

func TestOnRefundedReversesCreditedCommission(t *testing.T) {
	commissions := newCommissionStoreStub()
	users := &userStoreStub{users: map[int64]model.User{
		10: {ID: 10, ReferrerID: ptrInt64(1)},
	}}
	requests := &requestCountStub{settled: map[int64]int64{}}
	engine := newTestEngine(commissions, users, requests)

	request := paidRequest("req-1", 10, 500)
	if err := engine.OnPaid(context.Background(), request); err != nil {
		t.Fatalf("on paid: %v", err)
	}
	if err := engine.OnDelivered(context.Background(), request); err != nil {
		t.Fatalf("on delivered: %v", err)
	}
	if err := engine.OnRefunded(context.Background(), request); err != nil {
		t.Fatalf("on refunded: %v", err)
	}

	if commissions.byRequest["req-1"].Status != enums.CommissionStatusReversed {
		t.Fatalf("refund must reverse the commission")
	}
}

func TestStatsAggregatesByStatus(t *testing.T) {
	commissions := newCommissionStoreStub()
	users := &userStoreStub{users: map[int64]model.User{
		10: {ID: 10, ReferrerID: ptrInt64(1)},
		11: {ID: 11, ReferrerID: ptrInt64(1)},
	}}
	requests := &requestCountStub{settled: map[int64]int64{}}
	engine := newTestEngine(commissions, users, requests)

	first := paidRequest("req-1", 10, 500)
	if err := engine.OnPaid(context.Background(), first); err != nil {
		t.Fatalf("on paid: %v", err)
	}
	if err := engine.OnDelivered(context.Background(), first); err != nil {
		t.Fatalf("on delivered: %v", err)
	}
	if err := engine.OnPaid(context.Background(), paidRequest("req-2", 11, 1000)); err != nil {
		t.Fatalf("second on paid: %v", err)
	}

	stats, err := engine.Stats(context.Background(), 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.CreditedCount != 1 || stats.CreditedAmount != 100 {
		t.Fatalf("unexpected credited stats: %+v", stats)
	}
	if stats.PendingCount != 1 || stats.PendingAmount != 200 {
		t.Fatalf("unexpected pending stats: %+v", stats)
	}
}
