package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-ai-stars/internal/application"
)

// toEvent converts an update into a transport-neutral event. ok is false
// for updates the bot does not handle.
func toEvent(up tgbotapi.Update) (ev application.Event, ok bool) {
	ev.UpdateID = up.UpdateID
	switch {
	case up.PreCheckoutQuery != nil:
		q := up.PreCheckoutQuery
		if q.From == nil {
			return ev, false
		}
		ev.Kind = application.EventPreCheckout
		ev.UserID, ev.ChatID = q.From.ID, q.From.ID
		ev.Username, ev.FirstName = q.From.UserName, q.From.FirstName
		ev.CallbackID = q.ID
		ev.Payload = q.InvoicePayload
		ev.Amount = int64(q.TotalAmount)
		return ev, true

	case up.CallbackQuery != nil:
		q := up.CallbackQuery
		if q.From == nil {
			return ev, false
		}
		ev.Kind = application.EventCallback
		ev.UserID, ev.ChatID = q.From.ID, q.From.ID
		ev.Username, ev.FirstName = q.From.UserName, q.From.FirstName
		ev.CallbackID = q.ID
		ev.Data = strings.TrimSpace(q.Data)
		if q.Message != nil {
			ev.MessageID = q.Message.MessageID
			if q.Message.Chat != nil {
				ev.ChatID = q.Message.Chat.ID
			}
		}
		return ev, true

	case up.Message != nil:
		m := up.Message
		if m.From == nil || m.Chat == nil || !m.Chat.IsPrivate() {
			return ev, false
		}
		ev.UserID, ev.ChatID = m.From.ID, m.Chat.ID
		ev.Username, ev.FirstName = m.From.UserName, m.From.FirstName
		switch {
		case m.SuccessfulPayment != nil:
			ev.Kind = application.EventPayment
			ev.Payload = m.SuccessfulPayment.InvoicePayload
			ev.Amount = int64(m.SuccessfulPayment.TotalAmount)
		case m.IsCommand():
			ev.Kind = application.EventCommand
			ev.Command = strings.ToLower(m.Command())
			ev.Args = strings.TrimSpace(m.CommandArguments())
		case strings.TrimSpace(m.Text) != "":
			ev.Kind = application.EventText
			ev.Text = m.Text
		default:
			return ev, false
		}
		return ev, true
	}
	return ev, false
}

// rateKey groups events for the per-user limiter.
func rateKey(ev application.Event) string {
	switch ev.Kind {
	case application.EventCommand:
		return "/" + ev.Command
	case application.EventCallback:
		return "cb"
	default:
		return string(ev.Kind)
	}
}
