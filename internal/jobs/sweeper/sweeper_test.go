package sweeper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	deliverysvc "github.com/contentgate/backend/internal/services/delivery"

	"github.com/contentgate/backend/internal/domain/model"
)

type scannerStub struct {
	expired     int64
	expireErr   error
	stuck       []model.PaymentRequest
	expireCalls int
	listCalls   int
	lastGrace   time.Duration
	lastLimit   int
}

func (s *scannerStub) ExpireDue(_ context.Context) (int64, error) {
	s.expireCalls++
	return s.expired, s.expireErr
}

func (s *scannerStub) ListStuckPaid(_ context.Context, grace time.Duration, limit int) ([]model.PaymentRequest, error) {
	s.listCalls++
	s.lastGrace = grace
	s.lastLimit = limit
	return s.stuck, nil
}

type delivererStub struct {
	errByRequest map[string]error
	attempts     []string
}

func (d *delivererStub) AttemptDelivery(_ context.Context, requestID string) error {
	d.attempts = append(d.attempts, requestID)
	return d.errByRequest[requestID]
}

func TestRunExpiresThenRedelivers(t *testing.T) {
	scanner := &scannerStub{
		expired: 2,
		stuck: []model.PaymentRequest{
			{ID: "req-1"},
			{ID: "req-2"},
		},
	}
	deliverer := &delivererStub{errByRequest: map[string]error{}}
	job := New(scanner, deliverer, 10*time.Minute, nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run sweep: %v", err)
	}

	if scanner.expireCalls != 1 || scanner.listCalls != 1 {
		t.Fatalf("unexpected scan calls: expire=%d list=%d", scanner.expireCalls, scanner.listCalls)
	}
	if scanner.lastGrace != 10*time.Minute {
		t.Fatalf("unexpected grace: %v", scanner.lastGrace)
	}
	if len(deliverer.attempts) != 2 {
		t.Fatalf("expected 2 delivery attempts, got %v", deliverer.attempts)
	}
}

func TestRunSkipsFailedRedeliveries(t *testing.T) {
	scanner := &scannerStub{
		stuck: []model.PaymentRequest{
			{ID: "req-1"},
			{ID: "req-2"},
			{ID: "req-3"},
		},
	}
	deliverer := &delivererStub{errByRequest: map[string]error{
		"req-1": errors.New("network down"),
		"req-2": fmt.Errorf("object deleted: %w", deliverysvc.ErrDeliveryPermanent),
	}}
	job := New(scanner, deliverer, time.Minute, nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("one bad request must not abort the pass: %v", err)
	}
	if len(deliverer.attempts) != 3 {
		t.Fatalf("every candidate must be attempted, got %v", deliverer.attempts)
	}
}

func TestRunStopsOnExpireError(t *testing.T) {
	scanner := &scannerStub{expireErr: errors.New("db down")}
	deliverer := &delivererStub{errByRequest: map[string]error{}}
	job := New(scanner, deliverer, time.Minute, nil)

	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected expire error to propagate")
	}
	if scanner.listCalls != 0 {
		t.Fatalf("redelivery scan must not run after expire failure")
	}
}

func TestRunWithoutDelivererOnlyExpires(t *testing.T) {
	scanner := &scannerStub{expired: 1}
	job := New(scanner, nil, time.Minute, nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run sweep: %v", err)
	}
	if scanner.listCalls != 0 {
		t.Fatalf("no redelivery scan expected without a deliverer")
	}
}
