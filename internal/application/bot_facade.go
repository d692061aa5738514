package application

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"unicode/utf8"

	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/infra/logging"
	"telegram-ai-stars/internal/infra/metrics"
	"telegram-ai-stars/internal/usecase"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ EventHandler = (*BotFacade)(nil)

// BotFacade composes use cases into the inbound dispatch boundary: it is the
// panic boundary, registers users, applies the access gate and routes events.
type BotFacade struct {
	Users      usecase.UserUseCase
	Economy    usecase.EconomyUseCase
	Sessions   usecase.SessionUseCase
	Generation usecase.GenerationUseCase
	Access     usecase.AccessUseCase
	Promos     usecase.PromoUseCase
	Templates  usecase.TemplateUseCase
	Admin      usecase.AdminUseCase
	Broadcast  usecase.BroadcastUseCase
	Stats      usecase.StatsUseCase

	Bot     adapter.TelegramBotAdapter
	Loc     usecase.Localizer
	Catalog *model.Catalog

	AdminID          int64
	MaxMessageLength int

	log *zerolog.Logger
}

// NewBotFacade wires the facade. Use case fields are set by the caller.
func NewBotFacade(bot adapter.TelegramBotAdapter, loc usecase.Localizer, catalog *model.Catalog, adminID int64, maxMessageLength int, logger *zerolog.Logger) *BotFacade {
	if maxMessageLength <= 0 {
		maxMessageLength = 4000
	}
	return &BotFacade{
		Bot:              bot,
		Loc:              loc,
		Catalog:          catalog,
		AdminID:          adminID,
		MaxMessageLength: maxMessageLength,
		log:              logging.Component(logger, "bot_facade"),
	}
}

// request carries one event through the routes.
type request struct {
	ev   Event
	user *model.User
	log  *zerolog.Logger
}

func (r *request) lang() string {
	if r.user == nil {
		return ""
	}
	return r.user.Settings.Language
}

func (f *BotFacade) HandleEvent(ctx context.Context, ev Event) (err error) {
	ctx = logging.WithTraceID(ctx, uuid.NewString())
	ctx = logging.WithTgID(ctx, ev.UserID)
	ctx = logging.WithUpdateID(ctx, ev.UpdateID)
	req := &request{ev: ev, log: logging.With(ctx, f.log)}

	defer func() {
		if r := recover(); r != nil {
			metrics.IncHandlerPanic()
			req.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("event handler panicked")
			f.notify(ctx, req, f.Loc.T(req.lang(), "error.generic"))
			err = nil
		}
	}()

	switch ev.Kind {
	case EventPayment:
		metrics.IncTelegramUpdate("payment", "successful_payment")
	case EventCommand:
		metrics.IncTelegramUpdate("command", ev.Command)
	case EventCallback:
		metrics.IncTelegramUpdate("callback", callbackName(ev.Data))
	default:
		metrics.IncTelegramUpdate(string(ev.Kind), "")
	}

	u, _, err := f.Users.Enter(ctx, ev.UserID, ev.Username, ev.FirstName)
	if err != nil {
		req.log.Error().Err(err).Msg("failed to register user")
		return err
	}
	req.user = u

	if ev.Kind == EventPayment {
		return f.handlePayment(ctx, req)
	}
	if ev.Kind == EventCommand && ev.Command == "start" && strings.TrimSpace(ev.Args) != "" {
		if err := f.Users.AttachReferral(ctx, ev.UserID, ev.Args); err != nil {
			req.log.Info().Err(err).Str("code", ev.Args).Msg("referral not attached")
		}
	}

	wasGated := u.State == model.StateCheckSubscription
	grant, err := f.Access.EnsureAccess(ctx, ev.UserID)
	if err != nil {
		req.log.Error().Err(err).Msg("access check failed")
		return f.fail(ctx, req, err)
	}
	if grant.User != nil {
		req.user = grant.User
	}
	if !grant.Allowed {
		if ev.Kind == EventCallback && ev.Data == usecase.CBRecheck {
			f.notify(ctx, req, f.Loc.T(req.lang(), "error.not_subscribed"))
		}
		screen, err := f.Sessions.Replace(ctx, ev.UserID, model.StateCheckSubscription, nil)
		if err != nil {
			return f.fail(ctx, req, err)
		}
		return f.reply(ctx, req, screen)
	}
	if grant.Referrer != nil {
		f.notifyReferrer(ctx, req, grant.Referrer)
	}
	if wasGated && !(ev.Kind == EventCommand && ev.Command != "start") {
		return f.home(ctx, req)
	}

	switch ev.Kind {
	case EventCommand:
		return f.routeCommand(ctx, req)
	case EventCallback:
		return f.routeCallback(ctx, req)
	case EventText:
		return f.routeText(ctx, req)
	default:
		req.log.Debug().Str("kind", string(ev.Kind)).Msg("event ignored")
		return nil
	}
}

func callbackName(data string) string {
	if i := strings.IndexByte(data, ':'); i >= 0 {
		return data[:i+1]
	}
	return data
}

// ValidateInvoice checks a pre-checkout query against the shop.
func (f *BotFacade) ValidateInvoice(_ context.Context, ev Event) error {
	_, err := f.Economy.ValidatePurchase(ev.Payload, ev.Amount)
	return err
}

func (f *BotFacade) handlePayment(ctx context.Context, req *request) error {
	u, item, err := f.Economy.Purchase(ctx, req.ev.UserID, req.ev.Payload, req.ev.Amount)
	if err != nil {
		req.log.Error().Err(err).Str("payload", req.ev.Payload).Int64("amount", req.ev.Amount).Msg("payment not applied")
		return f.fail(ctx, req, err)
	}
	req.user = u
	f.notify(ctx, req, f.Loc.T(req.lang(), "purchase.ok", item.Title, u.Stars))
	return f.home(ctx, req)
}

func (f *BotFacade) notifyReferrer(ctx context.Context, req *request, referrer *model.User) {
	if !referrer.Settings.Notifications {
		return
	}
	text := f.Loc.T(referrer.Settings.Language, "referral.credited", f.Economy.Config().ReferralBonus, referrer.ReferralBalance)
	if err := f.Bot.SendMessage(ctx, referrer.ID, text); err != nil {
		req.log.Warn().Err(err).Int64("referrer", referrer.ID).Msg("referrer notification failed")
	}
}

func (f *BotFacade) home(ctx context.Context, req *request) error {
	screen, err := f.Sessions.Home(ctx, req.ev.UserID)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	return f.reply(ctx, req, screen)
}

func (f *BotFacade) enter(ctx context.Context, req *request, s model.State, data map[string]string) error {
	screen, err := f.Sessions.Enter(ctx, req.ev.UserID, s, data)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	return f.reply(ctx, req, screen)
}

func (f *BotFacade) show(ctx context.Context, req *request) error {
	screen, err := f.Sessions.Show(ctx, req.ev.UserID)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	return f.reply(ctx, req, screen)
}

// reply edits the callback's message in place when possible and sends a new
// message otherwise. Text longer than MaxMessageLength goes out in chunks,
// the buttons stay on the last one.
func (f *BotFacade) reply(ctx context.Context, req *request, s adapter.Screen) error {
	ev := req.ev
	chunks := SplitMessage(s.Text, f.MaxMessageLength)
	if s.Media == nil && len(chunks) == 1 && ev.Kind == EventCallback && ev.MessageID != 0 {
		err := f.Bot.Edit(ctx, adapter.MessageRef{ChatID: ev.ChatID, MessageID: ev.MessageID}, s)
		if err == nil {
			return nil
		}
		req.log.Debug().Err(err).Msg("edit failed, delivering instead")
	}
	if s.Media == nil && len(chunks) > 1 {
		for _, c := range chunks[:len(chunks)-1] {
			if err := f.Bot.SendMessage(ctx, ev.ChatID, c); err != nil {
				return err
			}
		}
		s.Text = chunks[len(chunks)-1]
	}
	_, err := f.Bot.Deliver(ctx, ev.ChatID, s)
	if err != nil {
		req.log.Error().Err(err).Msg("deliver failed")
	}
	return err
}

func (f *BotFacade) notify(ctx context.Context, req *request, text string) {
	if err := f.Bot.SendMessage(ctx, req.ev.ChatID, text); err != nil {
		req.log.Warn().Err(err).Msg("notify failed")
	}
}

// fail tells the user what went wrong. Only unexpected errors are returned
// to the transport.
func (f *BotFacade) fail(ctx context.Context, req *request, err error) error {
	text, expected := f.errorText(req.lang(), err)
	f.notify(ctx, req, text)
	if expected {
		req.log.Info().Err(err).Msg("request rejected")
		return nil
	}
	req.log.Error().Err(err).Msg("request failed")
	return err
}

// errorText maps an error to a localized message and whether it is an
// expected outcome of user input.
func (f *BotFacade) errorText(lang string, err error) (string, bool) {
	t := func(key string, args ...any) string { return f.Loc.T(lang, key, args...) }
	var (
		ins   *domain.InsufficientStarsError
		daily *domain.DailyBonusClaimedError
		miss  *domain.MissingPlaceholderError
	)
	switch {
	case errors.As(err, &ins):
		return t("error.insufficient", ins.Need, ins.Have), true
	case errors.As(err, &daily):
		return t("error.daily_claimed", daily.Date.Format("2006-01-02")), true
	case errors.As(err, &miss):
		return t("error.missing_placeholder", miss.Field), true
	}
	keys := []struct {
		target error
		key    string
	}{
		{domain.ErrPromptEmpty, "error.prompt_empty"},
		{domain.ErrPromptTooLong, "error.prompt_too_long"},
		{domain.ErrPremiumRequired, "error.premium_required"},
		{domain.ErrGenerationFailed, "error.generation_failed"},
		{domain.ErrReferralInvalid, "error.referral_invalid"},
		{domain.ErrReferralSelf, "error.referral_self"},
		{domain.ErrReferralUsed, "error.referral_used"},
		{domain.ErrPromoNotFound, "error.promo_not_found"},
		{domain.ErrPromoInactive, "error.promo_inactive"},
		{domain.ErrPromoExhausted, "error.promo_exhausted"},
		{domain.ErrPromoAlreadyUsed, "error.promo_used"},
		{domain.ErrUnknownModel, "error.unknown_model"},
		{domain.ErrUnknownShopItem, "error.unknown_item"},
		{domain.ErrUnauthorized, "error.unauthorized"},
		{domain.ErrFieldNotEditable, "error.field_not_editable"},
		{domain.ErrInvalidArgument, "error.invalid_argument"},
		{domain.ErrNotFound, "error.not_found"},
	}
	for _, k := range keys {
		if errors.Is(err, k.target) {
			if k.target == domain.ErrPromptTooLong {
				return t(k.key, f.Economy.Config().MaxPromptLength), true
			}
			return t(k.key), true
		}
	}
	if errors.Is(err, domain.ErrWithdrawTooSmall) {
		return t("error.withdraw_min", f.Economy.Config().WithdrawMin), true
	}
	return t("error.generic"), false
}

// SplitMessage cuts text into pieces of at most limit runes, preferring line
// breaks. It always returns at least one piece.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var out []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
