package application

import "context"

// EventKind classifies an inbound chat update.
type EventKind string

const (
	EventCommand     EventKind = "command"
	EventCallback    EventKind = "callback"
	EventText        EventKind = "text"
	EventPreCheckout EventKind = "precheckout"
	EventPayment     EventKind = "payment"
)

// Event is a transport-neutral inbound update. The Telegram adapter builds
// it; the facade never sees tgbotapi types.
type Event struct {
	Kind      EventKind
	UpdateID  int
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string

	Command string // without the slash
	Args    string

	Data       string // callback data
	CallbackID string
	MessageID  int // message the callback belongs to

	Text string

	Payload string // invoice payload (shop item id)
	Amount  int64  // paid amount in XTR
}

// EventHandler is what the transport drives.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev Event) error
	// ValidateInvoice answers a pre-checkout query before Telegram charges.
	ValidateInvoice(ctx context.Context, ev Event) error
}
