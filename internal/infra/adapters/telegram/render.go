package telegram

import (
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-ai-stars/internal/domain/ports/adapter"
)

const (
	starsCurrency = "XTR"
	maxCaption    = 1024
	maxMediaGroup = 10
)

// keyboard builds inline markup. It returns nil for a screen without buttons.
// - If btn.URL is set, the button opens a link
// - Else if btn.Data is set, the button sends callback data
// - Else a safe fallback uses btn.Text as callback data
func keyboard(rows [][]adapter.InlineButton) *tgbotapi.InlineKeyboardMarkup {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, r)
	}
	if len(kbRows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	return &markup
}

func textMessage(chatID int64, s adapter.Screen) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, s.Text)
	if kb := keyboard(s.Rows); kb != nil {
		msg.ReplyMarkup = *kb
	}
	return msg
}

// mediaMessages renders an attachment. The screen text follows as its own
// message unless it fits as the caption of a single photo.
func mediaMessages(chatID int64, s adapter.Screen) (media []tgbotapi.Chattable, trailer *tgbotapi.MessageConfig) {
	m := s.Media
	kb := keyboard(s.Rows)
	caption := m.Caption
	inline := caption == "" && utf8.RuneCountInString(s.Text) <= maxCaption

	switch {
	case len(m.PNG) > 0:
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "image.png", Bytes: m.PNG})
		media = append(media, withCaption(photo, caption, s.Text, inline, kb))
	case len(m.PhotoURLs) == 1:
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(m.PhotoURLs[0]))
		media = append(media, withCaption(photo, caption, s.Text, inline, kb))
	case len(m.PhotoURLs) > 1:
		inline = false
		urls := m.PhotoURLs
		for len(urls) > 0 {
			n := min(len(urls), maxMediaGroup)
			files := make([]interface{}, 0, n)
			for i, u := range urls[:n] {
				p := tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(u))
				if i == 0 && len(media) == 0 {
					p.Caption = truncateRunes(caption, maxCaption)
				}
				files = append(files, p)
			}
			media = append(media, tgbotapi.NewMediaGroup(chatID, files))
			urls = urls[n:]
		}
	}
	if inline || s.Text == "" {
		return media, nil
	}
	msg := textMessage(chatID, s)
	return media, &msg
}

func withCaption(p tgbotapi.PhotoConfig, caption, text string, inline bool, kb *tgbotapi.InlineKeyboardMarkup) tgbotapi.PhotoConfig {
	if inline {
		p.Caption = text
		if kb != nil {
			p.ReplyMarkup = *kb
		}
		return p
	}
	p.Caption = truncateRunes(caption, maxCaption)
	return p
}

func invoiceConfig(chatID int64, inv adapter.Invoice) tgbotapi.InvoiceConfig {
	prices := []tgbotapi.LabeledPrice{{Label: inv.Title, Amount: int(inv.Amount)}}
	cfg := tgbotapi.NewInvoice(chatID, inv.Title, inv.Description, inv.Payload, "", "", starsCurrency, prices)
	// nil tips encode as null, which the API rejects
	cfg.SuggestedTipAmounts = []int{}
	return cfg
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// isMember maps a chat member status to channel membership.
func isMember(m tgbotapi.ChatMember) bool {
	switch m.Status {
	case "creator", "administrator", "member":
		return true
	case "restricted":
		return m.IsMember
	default:
		return false
	}
}
