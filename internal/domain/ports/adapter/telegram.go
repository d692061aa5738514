// File: internal/domain/ports/adapter/telegram.go
package adapter

import "context"

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// Media is an optional attachment of a screen.
type Media struct {
	PhotoURLs []string
	PNG       []byte
	Caption   string
}

// Screen is a rendered menu: text plus inline keyboard rows.
type Screen struct {
	Text  string
	Rows  [][]InlineButton
	Media *Media
}

// MessageRef identifies a delivered message so it can be edited in place.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Invoice is a Telegram Stars (XTR) invoice for one shop item.
type Invoice struct {
	Payload     string
	Title       string
	Description string
	Amount      int64
}

type TelegramBotAdapter interface {
	Deliver(ctx context.Context, chatID int64, s Screen) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, s Screen) error
	SendInvoice(ctx context.Context, chatID int64, inv Invoice) error
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// MembershipChecker reports whether a user belongs to the required channel.
type MembershipChecker interface {
	IsSubscribed(ctx context.Context, userID int64) (bool, error)
}
