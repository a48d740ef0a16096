package botapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	tginfra "github.com/contentgate/backend/internal/infra/telegram"
	catalogsvc "github.com/contentgate/backend/internal/services/catalog"
	deliverysvc "github.com/contentgate/backend/internal/services/delivery"
	ledgersvc "github.com/contentgate/backend/internal/services/ledger"
)

// handleAdminCommand serves operator commands. Returns handled=false for
// commands that should fall through to the regular user flow.
func (a *App) handleAdminCommand(ctx context.Context, update tginfra.CommandUpdate) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(update.Command)) {
	case "addcontent":
		return true, a.adminAddContent(ctx, update.ChatID, update.Args)
	case "list":
		return true, a.adminListContent(ctx, update.ChatID)
	case "pending":
		return true, a.adminListPending(ctx, update.ChatID)
	case "deliver":
		return true, a.adminDeliver(ctx, update.ChatID, update.Args)
	case "refund":
		return true, a.adminRefund(ctx, update.ChatID, update.Args)
	case "stats":
		return true, a.adminStats(ctx, update.ChatID)
	default:
		return false, nil
	}
}

// adminAddContent parses "name | storage ref | kind | alias;alias".
func (a *App) adminAddContent(ctx context.Context, chatID int64, args string) error {
	parts := strings.Split(args, "|")
	if len(parts) < 2 {
		return a.bot.SendText(ctx, chatID,
			"Формат: /addcontent название | ссылка | тип | алиас;алиас")
	}

	in := catalogsvc.UpsertInput{
		Name:       strings.TrimSpace(parts[0]),
		StorageRef: strings.TrimSpace(parts[1]),
	}
	if len(parts) > 2 {
		in.Kind = strings.TrimSpace(parts[2])
	}
	if len(parts) > 3 {
		in.Aliases = strings.Split(parts[3], ";")
	}

	item, err := a.catalogService.Upsert(ctx, in)
	if err != nil {
		if errors.Is(err, catalogsvc.ErrValidation) {
			return a.bot.SendText(ctx, chatID, "Название и ссылка обязательны.")
		}
		return fmt.Errorf("admin add content: %w", err)
	}

	return a.bot.SendText(ctx, chatID,
		fmt.Sprintf("Добавлено: %s (id %s)", item.Name, item.ID))
}

func (a *App) adminListContent(ctx context.Context, chatID int64) error {
	items, err := a.catalogService.List(ctx)
	if err != nil {
		return fmt.Errorf("admin list content: %w", err)
	}
	if len(items) == 0 {
		return a.bot.SendText(ctx, chatID, "Каталог пуст.")
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%s — %s (%s)", item.ID, item.Name, item.Kind))
	}
	return a.bot.SendText(ctx, chatID, strings.Join(lines, "\n"))
}

func (a *App) adminListPending(ctx context.Context, chatID int64) error {
	requests, err := a.ledgerService.ListPendingDelivery(ctx)
	if err != nil {
		return fmt.Errorf("admin list pending: %w", err)
	}
	if len(requests) == 0 {
		return a.bot.SendText(ctx, chatID, "Нет оплаченных запросов без доставки.")
	}

	lines := make([]string, 0, len(requests))
	for _, request := range requests {
		lines = append(lines, fmt.Sprintf("%s — user %d, оплачен %s",
			request.ID, request.UserID, request.PaidAt.Format("02.01 15:04")))
	}
	return a.bot.SendText(ctx, chatID, strings.Join(lines, "\n"))
}

func (a *App) adminDeliver(ctx context.Context, chatID int64, args string) error {
	requestID := strings.TrimSpace(args)
	if requestID == "" {
		return a.bot.SendText(ctx, chatID, "Формат: /deliver <id запроса>")
	}

	if err := a.coordinator.AttemptDelivery(ctx, requestID); err != nil {
		if deliverysvc.IsPermanent(err) {
			return a.bot.SendText(ctx, chatID, "Доставка невозможна: "+err.Error())
		}
		return a.bot.SendText(ctx, chatID, "Доставка не удалась: "+err.Error())
	}

	return a.bot.SendText(ctx, chatID, "Доставлено: "+requestID)
}

func (a *App) adminRefund(ctx context.Context, chatID int64, args string) error {
	requestID := strings.TrimSpace(args)
	if requestID == "" {
		return a.bot.SendText(ctx, chatID, "Формат: /refund <id запроса>")
	}

	request, err := a.ledgerService.Refund(ctx, requestID)
	if err != nil {
		switch {
		case errors.Is(err, ledgersvc.ErrRequestNotFound):
			return a.bot.SendText(ctx, chatID, "Запрос не найден.")
		case errors.Is(err, ledgersvc.ErrInvalidTransition):
			return a.bot.SendText(ctx, chatID, "Вернуть можно только оплаченный или доставленный запрос.")
		default:
			return fmt.Errorf("admin refund: %w", err)
		}
	}

	return a.bot.SendText(ctx, chatID,
		fmt.Sprintf("Возврат оформлен: %s (user %d)", request.ID, request.UserID))
}

func (a *App) adminStats(ctx context.Context, chatID int64) error {
	counts, err := a.ledgerService.CountsByStatus(ctx)
	if err != nil {
		return fmt.Errorf("admin stats: %w", err)
	}

	lines := make([]string, 0, len(counts))
	for status, count := range counts {
		lines = append(lines, fmt.Sprintf("%s: %d", status, count))
	}
	if len(lines) == 0 {
		lines = append(lines, "Запросов пока нет.")
	}
	return a.bot.SendText(ctx, chatID, strings.Join(lines, "\n"))
}

// handleDocument imports a CSV catalog file uploaded by the admin.
func (a *App) handleDocument(ctx context.Context, update tginfra.DocumentUpdate) error {
	if !a.isAdmin(update.UserID) {
		return nil
	}

	body, name, err := a.bot.DownloadFile(ctx, update.FileID)
	if err != nil {
		return fmt.Errorf("download admin upload: %w", err)
	}
	defer body.Close()

	report, err := a.catalogService.ImportCSV(ctx, body)
	if err != nil {
		return a.bot.SendText(ctx, update.ChatID, "Импорт не удался: "+err.Error())
	}

	a.logger.Info("catalog csv imported",
		zap.String("file", name),
		zap.Int("imported", report.Imported),
		zap.Int("failed", report.Failed),
	)

	text := fmt.Sprintf("Импортировано: %d, с ошибками: %d", report.Imported, report.Failed)
	for _, row := range report.Rows {
		if row.Error != "" {
			text += fmt.Sprintf("\nстрока %d: %s", row.Line, row.Error)
		}
	}
	return a.bot.SendText(ctx, update.ChatID, text)
}
