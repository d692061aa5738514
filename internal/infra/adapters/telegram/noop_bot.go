package telegram

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/infra/logging"
)

var (
	_ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)
	_ adapter.MembershipChecker  = (*NoopBotAdapter)(nil)
)

// NoopBotAdapter implements adapter.TelegramBotAdapter for local/dev runs.
// It logs messages instead of sending real Telegram messages and treats
// every user as a channel member.
type NoopBotAdapter struct {
	log    *zerolog.Logger
	nextID atomic.Int64
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	return &NoopBotAdapter{log: logging.Component(logger, "noop_telegram")}
}

func (b *NoopBotAdapter) Deliver(ctx context.Context, chatID int64, s adapter.Screen) (adapter.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return adapter.MessageRef{}, err
	}
	b.log.Info().Int64("chat_id", chatID).Str("text", s.Text).Int("rows", len(s.Rows)).Bool("media", s.Media != nil).Msg("deliver")
	return adapter.MessageRef{ChatID: chatID, MessageID: int(b.nextID.Add(1))}, nil
}

func (b *NoopBotAdapter) Edit(ctx context.Context, ref adapter.MessageRef, s adapter.Screen) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("chat_id", ref.ChatID).Int("message_id", ref.MessageID).Str("text", s.Text).Msg("edit")
	return nil
}

func (b *NoopBotAdapter) SendInvoice(ctx context.Context, chatID int64, inv adapter.Invoice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("chat_id", chatID).Str("payload", inv.Payload).Int64("amount", inv.Amount).Msg("invoice")
	return nil
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("chat_id", chatID).Str("text", text).Msg("message")
	return nil
}

func (b *NoopBotAdapter) IsSubscribed(context.Context, int64) (bool, error) { return true, nil }
