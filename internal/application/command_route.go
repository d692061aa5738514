package application

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/infra/metrics"
	"telegram-ai-stars/internal/usecase"
)

type commandHandler func(ctx context.Context, req *request) error

// commandRoutes defines all available bot commands and their handlers.
func (f *BotFacade) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":    f.handleStartCommand,
		"menu":     f.handleStartCommand,
		"profile":  f.screenCommand(model.StateProfileMenu),
		"balance":  f.screenCommand(model.StateBalance),
		"shop":     f.screenCommand(model.StateShop),
		"referral": f.screenCommand(model.StateReferral),
		"help":     f.screenCommand(model.StateSupport),
		"daily":    f.handleDailyCommand,
		"promo":    f.handlePromoCommand,
		"cancel":   f.handleCancelCommand,
		"admin":    f.handleAdminLoginCommand,

		// These handlers are wrapped in our adminOnly middleware.
		"logout":       f.adminOnly(f.handleLogoutCommand),
		"user":         f.adminOnly(f.handleInspectUserCommand),
		"edit":         f.adminOnly(f.handleEditUserCommand),
		"promo_create": f.adminOnly(f.handleCreatePromoCommand),
		"broadcast":    f.adminOnly(f.handleBroadcastCommand),
		"stats":        f.adminOnly(f.handleStatsCommand),
		"template_set": f.adminOnly(f.handleTemplateSetCommand),
		"template_del": f.adminOnly(f.handleTemplateDeleteCommand),
	}
}

func (f *BotFacade) routeCommand(ctx context.Context, req *request) error {
	h, ok := f.commandRoutes()[req.ev.Command]
	if !ok {
		f.notify(ctx, req, f.Loc.T(req.lang(), "error.unknown_command"))
		return nil
	}
	return h(ctx, req)
}

// adminOnly requires the admin id and an open password session.
func (f *BotFacade) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, req *request) error {
		if !f.Admin.Authorized(ctx, req.ev.UserID) {
			metrics.IncAdminCommand("/"+req.ev.Command, "unauthorized")
			f.notify(ctx, req, f.Loc.T(req.lang(), "error.unauthorized"))
			return nil
		}
		metrics.IncAdminCommand("/"+req.ev.Command, "authorized")
		return next(ctx, req)
	}
}

func (f *BotFacade) handleStartCommand(ctx context.Context, req *request) error {
	return f.home(ctx, req)
}

func (f *BotFacade) screenCommand(s model.State) commandHandler {
	return func(ctx context.Context, req *request) error {
		return f.enter(ctx, req, s, nil)
	}
}

func (f *BotFacade) handleDailyCommand(ctx context.Context, req *request) error {
	n, u, err := f.Economy.ClaimDailyBonus(ctx, req.ev.UserID)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	f.notify(ctx, req, f.Loc.T(req.lang(), "daily.ok", n, u.Stars))
	return nil
}

func (f *BotFacade) handlePromoCommand(ctx context.Context, req *request) error {
	code := strings.TrimSpace(req.ev.Args)
	if code == "" {
		return f.enter(ctx, req, model.StateActivatePromo, nil)
	}
	return f.redeemPromo(ctx, req, code)
}

func (f *BotFacade) redeemPromo(ctx context.Context, req *request, code string) error {
	pc, u, err := f.Promos.Redeem(ctx, req.ev.UserID, code)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	req.user = u
	switch pc.Kind {
	case model.PromoPremium:
		f.notify(ctx, req, f.Loc.T(req.lang(), "promo.ok_premium", premiumLabel(f, req, u)))
	default:
		f.notify(ctx, req, f.Loc.T(req.lang(), "promo.ok_stars", pc.Value, u.Stars))
	}
	return f.home(ctx, req)
}

func premiumLabel(f *BotFacade, req *request, u *model.User) string {
	if u.PremiumExpiry == nil {
		return f.Loc.T(req.lang(), "status.premium_forever")
	}
	return u.PremiumExpiry.Format("2006-01-02")
}

func (f *BotFacade) handleCancelCommand(ctx context.Context, req *request) error {
	screen, err := f.Sessions.Back(ctx, req.ev.UserID)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	return f.reply(ctx, req, screen)
}

func (f *BotFacade) handleAdminLoginCommand(ctx context.Context, req *request) error {
	if err := f.Admin.Login(ctx, req.ev.UserID, strings.TrimSpace(req.ev.Args)); err != nil {
		metrics.IncAdminCommand("/admin", "unauthorized")
		return f.fail(ctx, req, err)
	}
	metrics.IncAdminCommand("/admin", "authorized")
	f.notify(ctx, req, f.Loc.T(req.lang(), "admin.login_ok"))
	return nil
}

func (f *BotFacade) handleLogoutCommand(ctx context.Context, req *request) error {
	if err := f.Admin.Logout(ctx, req.ev.UserID); err != nil {
		return f.fail(ctx, req, err)
	}
	f.notify(ctx, req, f.Loc.T(req.lang(), "admin.logout_ok"))
	return nil
}

func (f *BotFacade) handleInspectUserCommand(ctx context.Context, req *request) error {
	id, err := strconv.ParseInt(strings.TrimSpace(req.ev.Args), 10, 64)
	if err != nil {
		return f.fail(ctx, req, domain.ErrInvalidArgument)
	}
	u, err := f.Admin.InspectUser(ctx, id)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	f.notify(ctx, req, FormatUser(u))
	return nil
}

// FormatUser is the admin view of a record.
func FormatUser(u *model.User) string {
	premium := "no"
	if u.IsPremium {
		premium = "forever"
		if u.PremiumExpiry != nil {
			premium = "until " + u.PremiumExpiry.Format("2006-01-02")
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "User %d (@%s)\n", u.ID, u.Username)
	fmt.Fprintf(&b, "Stars: %d\nPremium: %s\n", u.Stars, premium)
	fmt.Fprintf(&b, "Referral: %s, balance %d, invited %d\n", u.ReferralCode, u.ReferralBalance, u.ReferralsCount)
	fmt.Fprintf(&b, "Level %d (%d XP), state %s\n", u.Level(), u.XP, u.State)
	fmt.Fprintf(&b, "Images %d, texts %d, avatars %d, logos %d, templates %d\n",
		u.Counters.Images, u.Counters.Texts, u.Counters.Avatars, u.Counters.Logos, u.Counters.Templates)
	fmt.Fprintf(&b, "Last seen: %s", u.LastInteraction.Format("2006-01-02 15:04"))
	return b.String()
}

// /edit <id> <stars|premium_days> <value>
func (f *BotFacade) handleEditUserCommand(ctx context.Context, req *request) error {
	parts := strings.Fields(req.ev.Args)
	if len(parts) != 3 {
		f.notify(ctx, req, f.Loc.T(req.lang(), "admin.edit_usage"))
		return nil
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return f.fail(ctx, req, domain.ErrInvalidArgument)
	}
	u, err := f.Admin.EditUser(ctx, id, parts[1], parts[2])
	if err != nil {
		return f.fail(ctx, req, err)
	}
	f.notify(ctx, req, FormatUser(u))
	return nil
}

// /promo_create <stars|premium> <value> <limit> [code]
func (f *BotFacade) handleCreatePromoCommand(ctx context.Context, req *request) error {
	parts := strings.Fields(req.ev.Args)
	if len(parts) < 3 || len(parts) > 4 {
		f.notify(ctx, req, f.Loc.T(req.lang(), "admin.promo_usage"))
		return nil
	}
	value, err1 := strconv.ParseInt(parts[1], 10, 64)
	limit, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		return f.fail(ctx, req, domain.ErrInvalidArgument)
	}
	code := ""
	if len(parts) == 4 {
		code = parts[3]
	}
	pc, err := f.Promos.Create(ctx, code, model.PromoKind(parts[0]), value, limit)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	f.notify(ctx, req, f.Loc.T(req.lang(), "admin.promo_created", pc.Code))
	return nil
}

func (f *BotFacade) handleBroadcastCommand(ctx context.Context, req *request) error {
	msg := strings.TrimSpace(req.ev.Args)
	if msg == "" {
		f.notify(ctx, req, f.Loc.T(req.lang(), "admin.broadcast_usage"))
		return nil
	}
	job, err := f.Broadcast.BroadcastMessage(ctx, msg)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	f.notify(ctx, req, f.Loc.T(req.lang(), "admin.broadcast_started", job.Recipients, job.ID))
	return nil
}

func (f *BotFacade) handleStatsCommand(ctx context.Context, req *request) error {
	o, err := f.Stats.Overview(ctx)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	f.notify(ctx, req, FormatOverview(o))
	return nil
}

// FormatOverview renders the admin statistics.
func FormatOverview(o usecase.Overview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Users: %d (premium %d, active 24h %d)\n", o.Users, o.Premium, o.ActiveDay)
	fmt.Fprintf(&b, "Stars in circulation: %d\nUnsaved records: %d\n", o.TotalStars, o.DirtyRecords)
	keys := make([]string, 0, len(o.Counters))
	for k := range o.Counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %d\n", k, o.Counters[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

// /template_set <id> <text|image> <title> | <pattern>
func (f *BotFacade) handleTemplateSetCommand(ctx context.Context, req *request) error {
	head, pattern, ok := strings.Cut(req.ev.Args, "|")
	parts := strings.Fields(head)
	if !ok || len(parts) < 2 {
		f.notify(ctx, req, f.Loc.T(req.lang(), "admin.template_usage"))
		return nil
	}
	title := strings.Join(parts[2:], " ")
	tpl, err := f.Templates.Save(ctx, parts[0], title, strings.TrimSpace(pattern), model.TemplateCategory(parts[1]))
	if err != nil {
		return f.fail(ctx, req, err)
	}
	f.notify(ctx, req, f.Loc.T(req.lang(), "admin.template_saved", tpl.ID))
	return nil
}

func (f *BotFacade) handleTemplateDeleteCommand(ctx context.Context, req *request) error {
	id := strings.TrimSpace(req.ev.Args)
	if err := f.Templates.Delete(ctx, id); err != nil {
		return f.fail(ctx, req, err)
	}
	f.notify(ctx, req, f.Loc.T(req.lang(), "admin.template_deleted", id))
	return nil
}
