package botapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	tginfra "github.com/contentgate/backend/internal/infra/telegram"
	pgrepo "github.com/contentgate/backend/internal/repo/postgres"
	deliverysvc "github.com/contentgate/backend/internal/services/delivery"
	ledgersvc "github.com/contentgate/backend/internal/services/ledger"
	matchersvc "github.com/contentgate/backend/internal/services/matcher"

	"github.com/contentgate/backend/internal/domain/enums"
	"github.com/contentgate/backend/internal/domain/model"
)

const (
	welcomeText = "Привет! Напиши название материала, который хочешь получить, и я выставлю счёт. После оплаты файл придёт прямо сюда."
	helpText    = "Просто отправь название материала. Команды:\n/start — начать\n/referrals — твоя реферальная статистика"

	notFoundText      = "Ничего похожего не нашлось. Попробуй сформулировать иначе."
	giveUpText        = "Не удалось подобрать материал по этому запросу. Напиши позже или уточни название у поддержки."
	pickText          = "Нашлось несколько вариантов, выбери нужный:"
	activeExistsText  = "У тебя уже есть неоплаченный счёт на этот материал. Оплати его или дождись, пока он истечёт."
	paidThanksText    = "Оплата получена! Отправляю файл."
	deliveryLaterText = "Оплата получена, но отправить файл сейчас не удалось. Я повторю попытку автоматически."
	staleText         = "Этот счёт уже истёк, оплата будет возвращена оператором. Создай новый запрос."
)

func (a *App) handleCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	if a.isAdmin(update.UserID) {
		handled, err := a.handleAdminCommand(ctx, update)
		if handled || err != nil {
			return err
		}
	}

	switch strings.ToLower(strings.TrimSpace(update.Command)) {
	case "start":
		return a.handleStart(ctx, update)
	case "help":
		return a.bot.SendText(ctx, update.ChatID, helpText)
	case "referrals":
		return a.handleReferrals(ctx, update)
	default:
		return nil
	}
}

func (a *App) handleStart(ctx context.Context, update tginfra.CommandUpdate) error {
	user, err := a.userRepo.Upsert(ctx, update.UserID, update.Username, update.FirstName)
	if err != nil {
		return fmt.Errorf("upsert user on start: %w", err)
	}

	// /start <code> is how a referral link lands. The referrer binds once and
	// never changes afterwards.
	if code := strings.TrimSpace(update.Args); code != "" && user.ReferrerID == nil {
		referrer, err := a.userRepo.FindByReferralCode(ctx, code)
		if err != nil {
			if !errors.Is(err, pgrepo.ErrUserNotFound) {
				return fmt.Errorf("find referrer by code: %w", err)
			}
		} else {
			bound, err := a.userRepo.SetReferrerOnce(ctx, user.ID, referrer.ID)
			if err != nil {
				return fmt.Errorf("bind referrer: %w", err)
			}
			if bound {
				a.logger.Info("referral link followed",
					zap.Int64("referred_id", user.ID),
					zap.Int64("referrer_id", referrer.ID),
				)
			}
		}
	}

	text := welcomeText + "\n\nТвоя реферальная ссылка: /start " + user.ReferralCode
	return a.bot.SendText(ctx, update.ChatID, text)
}

func (a *App) handleReferrals(ctx context.Context, update tginfra.CommandUpdate) error {
	user, err := a.userRepo.FindByTelegramID(ctx, update.UserID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return a.bot.SendText(ctx, update.ChatID, "Сначала отправь /start.")
		}
		return err
	}

	stats, err := a.referralEngine.Stats(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("load referral stats: %w", err)
	}

	text := fmt.Sprintf(
		"Приглашено пользователей: %d\nНачислено: %d %s\nОжидает подтверждения: %d %s\n\nТвоя ссылка: /start %s",
		stats.ReferredUsers,
		stats.CreditedAmount, a.cfg.Payments.Currency,
		stats.PendingAmount, a.cfg.Payments.Currency,
		user.ReferralCode,
	)
	return a.bot.SendText(ctx, update.ChatID, text)
}

// handleText treats any plain message as a content query.
func (a *App) handleText(ctx context.Context, update tginfra.TextUpdate) error {
	user, err := a.userRepo.Upsert(ctx, update.UserID, update.Username, update.FirstName)
	if err != nil {
		return fmt.Errorf("upsert user on query: %w", err)
	}

	retryAfter, allowed, err := a.rateLimiter.AllowRequest(ctx, user.ID)
	if err != nil {
		a.logger.Warn("rate limiter unavailable, allowing request", zap.Error(err))
	} else if !allowed {
		return a.bot.SendText(ctx, update.ChatID,
			fmt.Sprintf("Слишком много запросов. Попробуй через %d сек.", retryAfter))
	}

	matches, err := a.matcherService.FindBestMatches(ctx, update.Text, 0)
	if err != nil {
		return fmt.Errorf("match query: %w", err)
	}

	if len(matches) == 0 {
		return a.handleNoMatch(ctx, update.ChatID)
	}

	requestID, err := a.pendingRequestID(ctx, update.ChatID, user.ID, update.Text)
	if err != nil {
		return err
	}

	if best, ok := matchersvc.Confident(matches); ok {
		return a.resolveAndInvoice(ctx, update.ChatID, requestID, best.Item)
	}

	options := make([]tginfra.KeyboardOption, 0, len(matches))
	for _, match := range matches {
		options = append(options, tginfra.KeyboardOption{
			Label: match.Item.Name,
			Data:  "pick:" + requestID + ":" + match.Item.ID,
		})
	}
	return a.bot.SendOptions(ctx, update.ChatID, pickText, options)
}

// pendingRequestID reuses the chat's unresolved request so repeated attempts
// count against one ambiguity budget instead of opening a request per message.
func (a *App) pendingRequestID(ctx context.Context, chatID, userID int64, query string) (string, error) {
	a.pendingMu.Lock()
	existing, ok := a.pendingByChat[chatID]
	a.pendingMu.Unlock()

	if ok {
		request, err := a.ledgerService.Request(ctx, existing)
		if err == nil && request.Status == enums.RequestStatusPendingMatch {
			return existing, nil
		}
	}

	request, err := a.ledgerService.CreateRequest(ctx, userID, query,
		a.cfg.Payments.DefaultAmount, a.cfg.Payments.Currency)
	if err != nil {
		return "", fmt.Errorf("create payment request: %w", err)
	}

	a.pendingMu.Lock()
	a.pendingByChat[chatID] = request.ID
	a.pendingMu.Unlock()

	return request.ID, nil
}

func (a *App) handleNoMatch(ctx context.Context, chatID int64) error {
	a.pendingMu.Lock()
	requestID, ok := a.pendingByChat[chatID]
	a.pendingMu.Unlock()
	if !ok {
		return a.bot.SendText(ctx, chatID, notFoundText)
	}

	if err := a.ledgerService.NoteUnresolved(ctx, requestID); err != nil {
		if errors.Is(err, ledgersvc.ErrAmbiguousMatch) {
			a.pendingMu.Lock()
			delete(a.pendingByChat, chatID)
			a.pendingMu.Unlock()
			return a.bot.SendText(ctx, chatID, giveUpText)
		}
		if !errors.Is(err, ledgersvc.ErrRequestNotFound) {
			return err
		}
	}

	return a.bot.SendText(ctx, chatID, notFoundText)
}

func (a *App) handleCallback(ctx context.Context, update tginfra.CallbackUpdate) error {
	parts := strings.Split(strings.TrimSpace(update.Data), ":")
	if len(parts) != 3 || parts[0] != "pick" {
		return a.bot.AnswerCallback(ctx, update.CallbackID, "Неизвестное действие")
	}
	requestID, contentID := parts[1], parts[2]

	item, err := a.catalogService.Get(ctx, contentID)
	if err != nil {
		return a.bot.AnswerCallback(ctx, update.CallbackID, "Материал не найден")
	}

	if err := a.bot.AnswerCallback(ctx, update.CallbackID, ""); err != nil {
		return err
	}

	return a.resolveAndInvoice(ctx, update.ChatID, requestID, item)
}

func (a *App) resolveAndInvoice(ctx context.Context, chatID int64, requestID string, item model.ContentItem) error {
	request, err := a.ledgerService.ResolveMatch(ctx, requestID, item.ID)
	if err != nil {
		switch {
		case errors.Is(err, ledgersvc.ErrActiveRequestExists):
			a.clearPending(chatID)
			return a.bot.SendText(ctx, chatID, activeExistsText)
		case errors.Is(err, ledgersvc.ErrInvalidTransition):
			// Resolved already, most likely a double tap on the keyboard.
			return nil
		default:
			return fmt.Errorf("resolve match: %w", err)
		}
	}

	a.clearPending(chatID)

	return a.bot.SendInvoice(ctx, chatID,
		item.Name,
		"Доступ к материалу «"+item.Name+"»",
		request.ID,
		a.cfg.Bot.ProviderToken,
		request.Currency,
		request.Amount,
	)
}

func (a *App) clearPending(chatID int64) {
	a.pendingMu.Lock()
	delete(a.pendingByChat, chatID)
	a.pendingMu.Unlock()
}

// handlePreCheckout is the last gate before the provider charges the user.
// Expired or already resolved requests are rejected here so money never moves
// for a request the ledger will refuse.
func (a *App) handlePreCheckout(ctx context.Context, update tginfra.PreCheckoutUpdate) error {
	request, err := a.ledgerService.Request(ctx, update.Payload)
	if err != nil {
		return a.bot.AnswerPreCheckout(ctx, update.QueryID, false, "Запрос не найден, создай новый.")
	}

	if request.Status != enums.RequestStatusAwaitingPayment {
		return a.bot.AnswerPreCheckout(ctx, update.QueryID, false, "Этот счёт уже неактуален.")
	}
	if time.Now().UTC().After(request.ExpiresAt) {
		return a.bot.AnswerPreCheckout(ctx, update.QueryID, false, "Счёт истёк, создай новый запрос.")
	}
	if update.TotalAmount != request.Amount || !strings.EqualFold(update.Currency, request.Currency) {
		return a.bot.AnswerPreCheckout(ctx, update.QueryID, false, "Сумма счёта не совпадает.")
	}

	return a.bot.AnswerPreCheckout(ctx, update.QueryID, true, "")
}

func (a *App) handlePayment(ctx context.Context, update tginfra.PaymentUpdate) error {
	request, err := a.ledgerService.ConfirmPayment(ctx, update.Payload, update.ProviderChargeID)
	if err != nil {
		switch {
		case errors.Is(err, ledgersvc.ErrDuplicatePaymentConfirmation):
			a.logger.Info("duplicate payment confirmation ignored",
				zap.String("request_id", update.Payload),
				zap.String("provider_tx_id", update.ProviderChargeID),
			)
			return nil
		case errors.Is(err, ledgersvc.ErrStalePaymentConfirmation):
			a.logger.Error("payment confirmed after request expiry, refund required",
				zap.String("request_id", update.Payload),
				zap.String("provider_tx_id", update.ProviderChargeID),
			)
			return a.bot.SendText(ctx, update.ChatID, staleText)
		default:
			return fmt.Errorf("confirm payment: %w", err)
		}
	}

	if err := a.bot.SendText(ctx, update.ChatID, paidThanksText); err != nil {
		a.logger.Warn("failed to ack payment in chat", zap.Error(err))
	}

	if err := a.coordinator.AttemptDelivery(ctx, request.ID); err != nil {
		if deliverysvc.IsPermanent(err) {
			a.logger.Error("delivery failed permanently, operator action required",
				zap.Error(err), zap.String("request_id", request.ID))
		} else {
			a.logger.Warn("delivery failed, sweeper will retry",
				zap.Error(err), zap.String("request_id", request.ID))
		}
		return a.bot.SendText(ctx, update.ChatID, deliveryLaterText)
	}

	return nil
}
