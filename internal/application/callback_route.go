package application

import (
	"context"
	"strconv"
	"strings"

	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/usecase"
)

type cbHandler func(ctx context.Context, req *request, arg string) error

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

func (f *BotFacade) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		usecase.CBBack:         f.backCBRoute,
		usecase.CBHome:         f.homeCBRoute,
		usecase.CBDaily:        f.dailyCBRoute,
		usecase.CBWithdraw:     f.withdrawCBRoute,
		usecase.CBImprove:      f.improveCBRoute,
		usecase.CBRegenerate:   f.regenerateCBRoute,
		usecase.CBClearContext: f.clearContextCBRoute,
		usecase.CBRecheck:      f.homeCBRoute,
	}
}

// Prefix-match callbacks
func (f *BotFacade) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: usecase.CBNavPrefix, Fn: f.navPrefixCBRoute},
		{Prefix: usecase.CBBuyPrefix, Fn: f.buyPrefixCBRoute},
		{Prefix: usecase.CBImageModelPrefix, Fn: f.imageModelPrefixCBRoute},
		{Prefix: usecase.CBTextModelPrefix, Fn: f.textModelPrefixCBRoute},
		{Prefix: usecase.CBImageCountPrefix, Fn: f.imageCountPrefixCBRoute},
		{Prefix: usecase.CBTemplatePrefix, Fn: f.templatePrefixCBRoute},
		{Prefix: usecase.CBSettingPrefix, Fn: f.settingPrefixCBRoute},
		{Prefix: usecase.CBLangPrefix, Fn: f.langPrefixCBRoute},
	}
}

func (f *BotFacade) routeCallback(ctx context.Context, req *request) error {
	data := req.ev.Data
	if h, ok := f.cbRoutes()[data]; ok {
		return h(ctx, req, "")
	}
	for _, r := range f.cbPrefixRoutes() {
		if strings.HasPrefix(data, r.Prefix) {
			return r.Fn(ctx, req, strings.TrimPrefix(data, r.Prefix))
		}
	}
	req.log.Debug().Str("data", data).Msg("unknown callback")
	return f.show(ctx, req)
}

func (f *BotFacade) backCBRoute(ctx context.Context, req *request, _ string) error {
	screen, err := f.Sessions.Back(ctx, req.ev.UserID)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	return f.reply(ctx, req, screen)
}

func (f *BotFacade) homeCBRoute(ctx context.Context, req *request, _ string) error {
	return f.home(ctx, req)
}

func (f *BotFacade) dailyCBRoute(ctx context.Context, req *request, _ string) error {
	n, u, err := f.Economy.ClaimDailyBonus(ctx, req.ev.UserID)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	f.notify(ctx, req, f.Loc.T(req.lang(), "daily.ok", n, u.Stars))
	return f.show(ctx, req)
}

func (f *BotFacade) withdrawCBRoute(ctx context.Context, req *request, _ string) error {
	n, u, err := f.Economy.WithdrawReferral(ctx, req.ev.UserID)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	f.notify(ctx, req, f.Loc.T(req.lang(), "withdraw.ok", n, u.Stars))
	return f.show(ctx, req)
}

func (f *BotFacade) improveCBRoute(ctx context.Context, req *request, _ string) error {
	f.notify(ctx, req, f.Loc.T(req.lang(), "generation.improving"))
	res, err := f.Generation.Improve(ctx, req.ev.UserID)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	return f.deliverResult(ctx, req, res)
}

func (f *BotFacade) regenerateCBRoute(ctx context.Context, req *request, _ string) error {
	f.notify(ctx, req, f.Loc.T(req.lang(), "generation.processing"))
	res, err := f.Generation.Regenerate(ctx, req.ev.UserID)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	return f.deliverResult(ctx, req, res)
}

func (f *BotFacade) clearContextCBRoute(ctx context.Context, req *request, _ string) error {
	if err := f.Generation.ClearContext(ctx, req.ev.UserID); err != nil {
		return f.fail(ctx, req, err)
	}
	f.notify(ctx, req, f.Loc.T(req.lang(), "context.cleared"))
	return f.show(ctx, req)
}

func (f *BotFacade) navPrefixCBRoute(ctx context.Context, req *request, arg string) error {
	s := model.State(arg)
	if !s.Known() {
		return f.home(ctx, req)
	}
	return f.enter(ctx, req, s, nil)
}

func (f *BotFacade) buyPrefixCBRoute(ctx context.Context, req *request, itemID string) error {
	item, ok := f.Catalog.ShopItem(itemID)
	if !ok {
		return f.fail(ctx, req, domain.ErrUnknownShopItem)
	}
	err := f.Bot.SendInvoice(ctx, req.ev.ChatID, adapter.Invoice{
		Payload:     item.ID,
		Title:       item.Title,
		Description: item.Description,
		Amount:      item.Price,
	})
	if err != nil {
		return f.fail(ctx, req, err)
	}
	return nil
}

func (f *BotFacade) imageModelPrefixCBRoute(ctx context.Context, req *request, key string) error {
	if _, err := f.Users.SetImageModel(ctx, req.ev.UserID, key); err != nil {
		return f.fail(ctx, req, err)
	}
	return f.show(ctx, req)
}

func (f *BotFacade) textModelPrefixCBRoute(ctx context.Context, req *request, key string) error {
	if _, err := f.Users.SetTextModel(ctx, req.ev.UserID, key); err != nil {
		return f.fail(ctx, req, err)
	}
	return f.show(ctx, req)
}

func (f *BotFacade) imageCountPrefixCBRoute(ctx context.Context, req *request, arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return f.fail(ctx, req, domain.ErrInvalidArgument)
	}
	if _, err := f.Users.SetImageCount(ctx, req.ev.UserID, n); err != nil {
		return f.fail(ctx, req, err)
	}
	return f.show(ctx, req)
}

func (f *BotFacade) templatePrefixCBRoute(ctx context.Context, req *request, id string) error {
	return f.enter(ctx, req, model.StateTemplateFill, map[string]string{usecase.StateDataTemplate: id})
}

func (f *BotFacade) settingPrefixCBRoute(ctx context.Context, req *request, name string) error {
	if _, err := f.Users.ToggleSetting(ctx, req.ev.UserID, name); err != nil {
		return f.fail(ctx, req, err)
	}
	return f.show(ctx, req)
}

func (f *BotFacade) langPrefixCBRoute(ctx context.Context, req *request, lang string) error {
	u, err := f.Users.SetLanguage(ctx, req.ev.UserID, lang)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	req.user = u
	return f.show(ctx, req)
}

// routeText consumes free text as input of the current screen.
func (f *BotFacade) routeText(ctx context.Context, req *request) error {
	u := req.user
	text := req.ev.Text
	if kind, ok := model.KindForState(u.State); ok {
		f.notify(ctx, req, f.Loc.T(req.lang(), "generation.processing"))
		res, err := f.Generation.Generate(ctx, u.ID, kind, text)
		if err != nil {
			return f.fail(ctx, req, err)
		}
		return f.deliverResult(ctx, req, res)
	}
	switch u.State {
	case model.StateActivatePromo:
		return f.redeemPromo(ctx, req, text)
	case model.StateTemplateFill:
		f.notify(ctx, req, f.Loc.T(req.lang(), "generation.processing"))
		res, err := f.Generation.GenerateFromTemplate(ctx, u.ID, u.StateData[usecase.StateDataTemplate], text)
		if err != nil {
			return f.fail(ctx, req, err)
		}
		return f.deliverResult(ctx, req, res)
	default:
		return f.show(ctx, req)
	}
}

func (f *BotFacade) deliverResult(ctx context.Context, req *request, res *usecase.Result) error {
	u := res.User
	if u == nil {
		u = req.user
	}
	rc, err := f.Sessions.Context(ctx, u)
	if err != nil {
		return f.fail(ctx, req, err)
	}
	// A result is always a new message so the output stays in the chat.
	req.ev.MessageID = 0
	return f.reply(ctx, req, usecase.ResultScreen(rc, res))
}
