package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Bot struct {
	api        *tgbotapi.BotAPI
	httpClient *http.Client
}

type CommandUpdate struct {
	ChatID    int64
	UserID    int64
	Username  string
	FirstName string
	Command   string
	Args      string
}

type TextUpdate struct {
	ChatID    int64
	UserID    int64
	Username  string
	FirstName string
	Text      string
}

type CallbackUpdate struct {
	CallbackID string
	ChatID     int64
	UserID     int64
	Username   string
	Data       string
}

type DocumentUpdate struct {
	ChatID   int64
	UserID   int64
	Username string
	FileID   string
	FileName string
	Caption  string
}

type PreCheckoutUpdate struct {
	QueryID     string
	UserID      int64
	Payload     string
	TotalAmount int64
	Currency    string
}

type PaymentUpdate struct {
	ChatID           int64
	UserID           int64
	Payload          string
	ProviderChargeID string
	TotalAmount      int64
	Currency         string
}

type Handlers struct {
	OnCommand     func(context.Context, CommandUpdate) error
	OnText        func(context.Context, TextUpdate) error
	OnCallback    func(context.Context, CallbackUpdate) error
	OnDocument    func(context.Context, DocumentUpdate) error
	OnPreCheckout func(context.Context, PreCheckoutUpdate) error
	OnPayment     func(context.Context, PaymentUpdate) error
}

func NewBot(token string) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	return &Bot{
		api: api,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

func (b *Bot) Listen(ctx context.Context, handlers Handlers) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := b.api.GetUpdatesChan(updateCfg)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-updates:
			if update.PreCheckoutQuery != nil && handlers.OnPreCheckout != nil {
				err := handlers.OnPreCheckout(ctx, PreCheckoutUpdate{
					QueryID:     update.PreCheckoutQuery.ID,
					UserID:      update.PreCheckoutQuery.From.ID,
					Payload:     update.PreCheckoutQuery.InvoicePayload,
					TotalAmount: int64(update.PreCheckoutQuery.TotalAmount),
					Currency:    update.PreCheckoutQuery.Currency,
				})
				if err != nil {
					return err
				}
				continue
			}

			if update.Message != nil && update.Message.From != nil {
				if update.Message.SuccessfulPayment != nil && handlers.OnPayment != nil {
					payment := update.Message.SuccessfulPayment
					err := handlers.OnPayment(ctx, PaymentUpdate{
						ChatID:           update.Message.Chat.ID,
						UserID:           update.Message.From.ID,
						Payload:          payment.InvoicePayload,
						ProviderChargeID: payment.ProviderPaymentChargeID,
						TotalAmount:      int64(payment.TotalAmount),
						Currency:         payment.Currency,
					})
					if err != nil {
						return err
					}
					continue
				}

				if update.Message.Document != nil && handlers.OnDocument != nil {
					err := handlers.OnDocument(ctx, DocumentUpdate{
						ChatID:   update.Message.Chat.ID,
						UserID:   update.Message.From.ID,
						Username: update.Message.From.UserName,
						FileID:   update.Message.Document.FileID,
						FileName: update.Message.Document.FileName,
						Caption:  update.Message.Caption,
					})
					if err != nil {
						return err
					}
					continue
				}

				if update.Message.IsCommand() && handlers.OnCommand != nil {
					err := handlers.OnCommand(ctx, CommandUpdate{
						ChatID:    update.Message.Chat.ID,
						UserID:    update.Message.From.ID,
						Username:  update.Message.From.UserName,
						FirstName: update.Message.From.FirstName,
						Command:   update.Message.Command(),
						Args:      update.Message.CommandArguments(),
					})
					if err != nil {
						return err
					}
					continue
				}

				text := strings.TrimSpace(update.Message.Text)
				if text != "" && handlers.OnText != nil {
					err := handlers.OnText(ctx, TextUpdate{
						ChatID:    update.Message.Chat.ID,
						UserID:    update.Message.From.ID,
						Username:  update.Message.From.UserName,
						FirstName: update.Message.From.FirstName,
						Text:      text,
					})
					if err != nil {
						return err
					}
				}
			}

			if update.CallbackQuery != nil && update.CallbackQuery.From != nil && handlers.OnCallback != nil {
				chatID := int64(0)
				if update.CallbackQuery.Message != nil {
					chatID = update.CallbackQuery.Message.Chat.ID
				}
				err := handlers.OnCallback(ctx, CallbackUpdate{
					CallbackID: update.CallbackQuery.ID,
					ChatID:     chatID,
					UserID:     update.CallbackQuery.From.ID,
					Username:   update.CallbackQuery.From.UserName,
					Data:       update.CallbackQuery.Data,
				})
				if err != nil {
					return err
				}
			}
		}
	}
}

func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 {
		return fmt.Errorf("chat id is required")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	_ = ctx
	return nil
}

type KeyboardOption struct {
	Label string
	Data  string
}

func (b *Bot) SendOptions(ctx context.Context, chatID int64, text string, options []KeyboardOption) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if len(options) == 0 {
		return b.SendText(ctx, chatID, text)
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(options))
	for _, option := range options {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(option.Label, option.Data),
		))
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send options message: %w", err)
	}

	_ = ctx
	return nil
}

// SendInvoice issues a payment invoice whose payload carries the payment
// request id, so the provider confirmation can be tied back to the ledger.
func (b *Bot) SendInvoice(ctx context.Context, chatID int64, title, description, payload, providerToken, currency string, amount int64) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 || payload == "" || amount <= 0 {
		return fmt.Errorf("invalid invoice payload")
	}

	invoice := tgbotapi.NewInvoice(
		chatID,
		title,
		description,
		payload,
		providerToken,
		"",
		currency,
		[]tgbotapi.LabeledPrice{{Label: title, Amount: int(amount)}},
	)
	invoice.SuggestedTipAmounts = []int{}

	if _, err := b.api.Send(invoice); err != nil {
		return fmt.Errorf("send invoice: %w", err)
	}

	_ = ctx
	return nil
}

func (b *Bot) SendDocument(ctx context.Context, chatID int64, name string, r io.Reader, size int64, caption string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: name, Reader: r})
	doc.Caption = caption

	if _, err := b.api.Send(doc); err != nil {
		return fmt.Errorf("send document: %w", err)
	}

	_ = ctx
	_ = size
	return nil
}

func (b *Bot) SendVideo(ctx context.Context, chatID int64, name string, r io.Reader, size int64, caption string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	video := tgbotapi.NewVideo(chatID, tgbotapi.FileReader{Name: name, Reader: r})
	video.Caption = caption

	if _, err := b.api.Send(video); err != nil {
		return fmt.Errorf("send video: %w", err)
	}

	_ = ctx
	_ = size
	return nil
}

func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if strings.TrimSpace(callbackID) == "" {
		return nil
	}

	cfg := tgbotapi.NewCallback(callbackID, text)
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}

	_ = ctx
	return nil
}

func (b *Bot) AnswerPreCheckout(ctx context.Context, queryID string, ok bool, errorMessage string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	cfg := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: queryID,
		OK:                 ok,
		ErrorMessage:       errorMessage,
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("answer pre-checkout query: %w", err)
	}

	_ = ctx
	return nil
}

// DownloadFile streams a document the admin uploaded to the bot, used for CSV
// catalog imports.
func (b *Bot) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, string, error) {
	if b == nil || b.api == nil {
		return nil, "", fmt.Errorf("telegram bot is not initialized")
	}
	if strings.TrimSpace(fileID) == "" {
		return nil, "", fmt.Errorf("file id is required")
	}

	tgFile, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, "", fmt.Errorf("get telegram file: %w", err)
	}

	fileURL := tgFile.Link(b.api.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create file request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download telegram file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, "", fmt.Errorf("unexpected telegram file status: %d", resp.StatusCode)
	}

	name := path.Base(strings.TrimSpace(tgFile.FilePath))
	if name == "." || name == "/" || name == "" {
		name = "upload.csv"
	}

	return resp.Body, name, nil
}
