package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/contentgate/backend/internal/domain/enums"
	"github.com/contentgate/backend/internal/domain/model"
)

type ledgerStub struct {
	requests      map[string]model.PaymentRequest
	deliveredSets int
}

func (s *ledgerStub) Request(_ context.Context, requestID string) (model.PaymentRequest, error) {
	request, ok := s.requests[requestID]
	if !ok {
		return model.PaymentRequest{}, errors.New("request not found")
	}
	return request, nil
}

func (s *ledgerStub) MarkDelivered(_ context.Context, requestID string) (model.PaymentRequest, bool, error) {
	request, ok := s.requests[requestID]
	if !ok {
		return model.PaymentRequest{}, false, errors.New("request not found")
	}
	if request.Status == enums.RequestStatusDelivered {
		return request, false, nil
	}
	request.Status = enums.RequestStatusDelivered
	now := time.Now().UTC()
	request.DeliveredAt = &now
	s.requests[requestID] = request
	s.deliveredSets++
	return request, true, nil
}

type catalogStub struct {
	items map[string]model.ContentItem
}

func (s *catalogStub) Get(_ context.Context, contentID string) (model.ContentItem, error) {
	item, ok := s.items[contentID]
	if !ok {
		return model.ContentItem{}, errors.New("content not found")
	}
	return item, nil
}

type userStub struct {
	users map[int64]model.User
}

func (s *userStub) FindByID(_ context.Context, userID int64) (model.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return model.User{}, errors.New("user not found")
	}
	return user, nil
}

type storageStub struct {
	err     error
	fetches int
}

func (s *storageStub) Fetch(_ context.Context, _ string) (Object, error) {
	s.fetches++
	if s.err != nil {
		return Object{}, s.err
	}
	return Object{
		Body: io.NopCloser(strings.NewReader("payload")),
		Size: 7,
		Name: "guide.pdf",
	}, nil
}

type senderStub struct {
	err   error
	sends int
	chat  int64
	kind  enums.FileKind
}

func (s *senderStub) SendContent(_ context.Context, chatID int64, _ Object, kind enums.FileKind, _ string) error {
	s.sends++
	s.chat = chatID
	s.kind = kind
	return s.err
}

func contentID(id string) *string { return &id }

func paidFixture() (*ledgerStub, *catalogStub, *userStub) {
	ledger := &ledgerStub{requests: map[string]model.PaymentRequest{
		"req-1": {
			ID:        "req-1",
			UserID:    10,
			ContentID: contentID("item-1"),
			Status:    enums.RequestStatusPaid,
		},
	}}
	catalog := &catalogStub{items: map[string]model.ContentItem{
		"item-1": {ID: "item-1", Name: "Guide", StorageRef: "drive:abc", Kind: enums.FileKindDocument},
	}}
	users := &userStub{users: map[int64]model.User{
		10: {ID: 10, TelegramID: 100500},
	}}
	return ledger, catalog, users
}

func TestAttemptDeliverySendsAndMarksDelivered(t *testing.T) {
	ledger, catalog, users := paidFixture()
	storage := &storageStub{}
	sender := &senderStub{}
	coordinator := NewCoordinator(ledger, catalog, users, storage, sender, nil)

	if err := coordinator.AttemptDelivery(context.Background(), "req-1"); err != nil {
		t.Fatalf("attempt delivery: %v", err)
	}

	if sender.sends != 1 || sender.chat != 100500 {
		t.Fatalf("content must go to the buyer's telegram chat: sends=%d chat=%d", sender.sends, sender.chat)
	}
	if ledger.requests["req-1"].Status != enums.RequestStatusDelivered {
		t.Fatalf("request must be marked delivered")
	}
}

func TestAttemptDeliveryAlreadyDeliveredIsNoop(t *testing.T) {
	ledger, catalog, users := paidFixture()
	request := ledger.requests["req-1"]
	request.Status = enums.RequestStatusDelivered
	ledger.requests["req-1"] = request

	storage := &storageStub{}
	sender := &senderStub{}
	coordinator := NewCoordinator(ledger, catalog, users, storage, sender, nil)

	if err := coordinator.AttemptDelivery(context.Background(), "req-1"); err != nil {
		t.Fatalf("repeat delivery must succeed silently: %v", err)
	}
	if sender.sends != 0 || storage.fetches != 0 {
		t.Fatalf("no work expected for delivered request: sends=%d fetches=%d", sender.sends, storage.fetches)
	}
}

func TestAttemptDeliveryRejectsUnpaidRequest(t *testing.T) {
	ledger, catalog, users := paidFixture()
	request := ledger.requests["req-1"]
	request.Status = enums.RequestStatusAwaitingPayment
	ledger.requests["req-1"] = request

	coordinator := NewCoordinator(ledger, catalog, users, &storageStub{}, &senderStub{}, nil)

	err := coordinator.AttemptDelivery(context.Background(), "req-1")
	if !errors.Is(err, ErrNotPaid) {
		t.Fatalf("expected ErrNotPaid, got %v", err)
	}
}

func TestAttemptDeliveryTransientFailureKeepsRequestPaid(t *testing.T) {
	ledger, catalog, users := paidFixture()
	storage := &storageStub{err: errors.New("upstream timeout")}
	coordinator := NewCoordinator(ledger, catalog, users, storage, &senderStub{}, nil)

	err := coordinator.AttemptDelivery(context.Background(), "req-1")
	if err == nil {
		t.Fatalf("expected fetch failure")
	}
	if IsPermanent(err) {
		t.Fatalf("timeout must be transient, got permanent: %v", err)
	}
	if ledger.requests["req-1"].Status != enums.RequestStatusPaid {
		t.Fatalf("failed delivery must leave the request paid")
	}
}

func TestAttemptDeliveryPermanentFailureIsDistinguished(t *testing.T) {
	ledger, catalog, users := paidFixture()
	storage := &storageStub{err: fmt.Errorf("object gone: %w", ErrDeliveryPermanent)}
	coordinator := NewCoordinator(ledger, catalog, users, storage, &senderStub{}, nil)

	err := coordinator.AttemptDelivery(context.Background(), "req-1")
	if !IsPermanent(err) {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}

func TestRouterDispatchesByScheme(t *testing.T) {
	drive := &storageStub{}
	router := NewRouter()
	router.Register("drive", drive)

	if _, err := router.Fetch(context.Background(), "drive:file-id"); err != nil {
		t.Fatalf("drive fetch: %v", err)
	}
	if drive.fetches != 1 {
		t.Fatalf("drive backend must be hit once, got %d", drive.fetches)
	}

	_, err := router.Fetch(context.Background(), "gopher:whatever")
	if !IsPermanent(err) {
		t.Fatalf("unknown scheme must be permanent, got %v", err)
	}

	_, err = router.Fetch(context.Background(), "no-scheme-here")
	if !IsPermanent(err) {
		t.Fatalf("missing scheme must be permanent, got %v", err)
	}
}

func TestTelegramSenderPicksUploadByKind(t *testing.T) {
	transport := &transportRecorder{}
	sender := NewTelegramSender(transport)

	object := Object{Body: io.NopCloser(strings.NewReader("x")), Name: "a.mp4"}
	if err := sender.SendContent(context.Background(), 1, object, enums.FileKindVideo, "a"); err != nil {
		t.Fatalf("send video: %v", err)
	}
	if err := sender.SendContent(context.Background(), 1, object, enums.FileKindDocument, "a"); err != nil {
		t.Fatalf("send document: %v", err)
	}

	if transport.videos != 1 || transport.documents != 1 {
		t.Fatalf("unexpected transport calls: videos=%d documents=%d", transport.videos, transport.documents)
	}
}

type transportRecorder struct {
	videos    int
	documents int
}

func (r *transportRecorder) SendDocument(_ context.Context, _ int64, _ string, _ io.Reader, _ int64, _ string) error {
	r.documents++
	return nil
}

func (r *transportRecorder) SendVideo(_ context.Context, _ int64, _ string, _ io.Reader, _ int64, _ string) error {
	r.videos++
	return nil
}
