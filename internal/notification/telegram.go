package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ridepool/ridepool/internal/domain"
)

// TelegramNotifier delivers passenger booking messages and system messages
// to an operations chat. All sends are fire-and-forget: delivery failures
// are logged and never propagated to the caller.
type TelegramNotifier struct {
	bot         *tgbotapi.BotAPI
	adminChatID int64
	logger      *slog.Logger
}

// NewTelegramNotifier builds a notifier for the given bot token. An empty
// token disables delivery without failing startup, so environments without
// a bot keep working.
func NewTelegramNotifier(token string, adminChatID int64, logger *slog.Logger) (*TelegramNotifier, error) {
	if token == "" {
		logger.Warn("telegram bot token is empty, notifications disabled")
		return &TelegramNotifier{bot: nil, adminChatID: adminChatID, logger: logger}, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &TelegramNotifier{bot: bot, adminChatID: adminChatID, logger: logger}, nil
}

// BookingCreated messages the passenger that their pending booking was
// admitted. Skipped when the booking carries no chat ID.
func (n *TelegramNotifier) BookingCreated(ctx context.Context, b *domain.Booking) {
	n.send(ctx, b.TelegramChatID, bookingCreatedText(b))
}

// BookingCancelled messages the passenger that their booking was cancelled,
// whether by them or by the expiry job. Skipped when the booking carries no
// chat ID.
func (n *TelegramNotifier) BookingCancelled(ctx context.Context, b *domain.Booking) {
	n.send(ctx, b.TelegramChatID, bookingCancelledText(b))
}

// SystemNotification sends one aggregate message to the admin chat.
func (n *TelegramNotifier) SystemNotification(ctx context.Context, summary string, meta map[string]string) {
	text := summary
	if len(meta) > 0 {
		text += "\n\n" + formatMeta(meta)
	}

	n.send(ctx, &n.adminChatID, text)
}

func bookingCreatedText(b *domain.Booking) string {
	return fmt.Sprintf(
		"Booking confirmed pending payment.\n\nTrip: #%d\nSeats: %d\nBooking: %s",
		b.TripID, b.SeatsBooked, b.ID,
	)
}

func bookingCancelledText(b *domain.Booking) string {
	return fmt.Sprintf(
		"Booking cancelled.\n\nTrip: #%d\nSeats released: %d\nBooking: %s",
		b.TripID, b.SeatsBooked, b.ID,
	)
}

func formatMeta(meta map[string]string) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, meta[k])
	}

	return strings.TrimRight(b.String(), "\n")
}

func (n *TelegramNotifier) send(ctx context.Context, chatID *int64, text string) {
	if n.bot == nil {
		n.logger.Debug("notification skipped (bot disabled)", "text", text)
		return
	}

	if chatID == nil || *chatID == 0 {
		n.logger.Debug("notification skipped (no chat_id)", "text", text)
		return
	}

	if err := ctx.Err(); err != nil {
		n.logger.Debug("notification skipped (context cancelled)", "chat_id", *chatID)
		return
	}

	msg := tgbotapi.NewMessage(*chatID, text)

	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("failed to send telegram notification",
			"chat_id", *chatID,
			"error", err,
		)
	}
}
