package delivery

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/contentgate/backend/internal/domain/enums"
	"github.com/contentgate/backend/internal/domain/model"
)

var (
	ErrNotPaid          = errors.New("request is not paid")
	ErrAlreadyDelivered = errors.New("request is already delivered")
)

type Ledger interface {
	Request(ctx context.Context, requestID string) (model.PaymentRequest, error)
	MarkDelivered(ctx context.Context, requestID string) (model.PaymentRequest, bool, error)
}

type CatalogSource interface {
	Get(ctx context.Context, contentID string) (model.ContentItem, error)
}

type UserSource interface {
	FindByID(ctx context.Context, userID int64) (model.User, error)
}

// Sender pushes the payload to the user over the chat transport.
type Sender interface {
	SendContent(ctx context.Context, chatID int64, object Object, kind enums.FileKind, caption string) error
}

type Coordinator struct {
	ledger  Ledger
	catalog CatalogSource
	users   UserSource
	storage Storage
	sender  Sender
	logger  *zap.Logger
}

func NewCoordinator(ledger Ledger, catalog CatalogSource, users UserSource, storage Storage, sender Sender, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Coordinator{
		ledger:  ledger,
		catalog: catalog,
		users:   users,
		storage: storage,
		sender:  sender,
		logger:  logger,
	}
}

// AttemptDelivery pushes the purchased content to the buyer and records the
// delivery. It is safe to call again for the same request: a request that is
// already delivered is a no-op success, so the payment handler and the sweeper
// can both race on it without double-sending.
func (c *Coordinator) AttemptDelivery(ctx context.Context, requestID string) error {
	request, err := c.ledger.Request(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load request: %w", err)
	}

	switch request.Status {
	case enums.RequestStatusDelivered:
		return nil
	case enums.RequestStatusPaid:
	default:
		return fmt.Errorf("request %s is %s: %w", request.ID, request.Status, ErrNotPaid)
	}

	if request.ContentID == nil {
		return fmt.Errorf("paid request %s has no content attached: %w", request.ID, ErrDeliveryPermanent)
	}

	content, err := c.catalog.Get(ctx, *request.ContentID)
	if err != nil {
		return fmt.Errorf("load content %s: %w", *request.ContentID, err)
	}

	user, err := c.users.FindByID(ctx, request.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", request.UserID, err)
	}

	object, err := c.storage.Fetch(ctx, content.StorageRef)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", content.StorageRef, err)
	}
	defer object.Body.Close()

	if object.Name == "" || object.Name == "." {
		object.Name = content.Name
	}

	if err := c.sender.SendContent(ctx, user.TelegramID, object, content.Kind, content.Name); err != nil {
		return fmt.Errorf("send content to %d: %w", user.TelegramID, err)
	}

	if _, changed, err := c.ledger.MarkDelivered(ctx, request.ID); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	} else if !changed {
		// A concurrent attempt won the transition after our send. The user may
		// have received the file twice, but delivered_at stays from the winner.
		c.logger.Warn("delivery raced, request already marked delivered",
			zap.String("request_id", request.ID),
		)
		return nil
	}

	c.logger.Info("content delivered",
		zap.String("request_id", request.ID),
		zap.String("content_id", content.ID),
		zap.Int64("user_id", user.ID),
	)

	return nil
}
