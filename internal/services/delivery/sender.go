package delivery

import (
	"context"
	"fmt"
	"io"

	"github.com/contentgate/backend/internal/domain/enums"
)

// ChatTransport is the subset of the bot API the sender needs.
type ChatTransport interface {
	SendDocument(ctx context.Context, chatID int64, name string, r io.Reader, size int64, caption string) error
	SendVideo(ctx context.Context, chatID int64, name string, r io.Reader, size int64, caption string) error
}

// TelegramSender pushes fetched objects to the buyer's chat, picking the
// upload method from the content kind.
type TelegramSender struct {
	transport ChatTransport
}

func NewTelegramSender(transport ChatTransport) *TelegramSender {
	return &TelegramSender{transport: transport}
}

func (s *TelegramSender) SendContent(ctx context.Context, chatID int64, object Object, kind enums.FileKind, caption string) error {
	if s.transport == nil {
		return fmt.Errorf("chat transport is nil")
	}

	switch kind {
	case enums.FileKindVideo:
		return s.transport.SendVideo(ctx, chatID, object.Name, object.Body, object.Size, caption)
	default:
		return s.transport.SendDocument(ctx, chatID, object.Name, object.Body, object.Size, caption)
	}
}
