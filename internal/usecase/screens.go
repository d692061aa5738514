package usecase

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"telegram-ai-stars/internal/config"
	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/adapter"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

// RenderContext is everything a screen may read. User is the tentative copy
// of the record being updated.
type RenderContext struct {
	User         *model.User
	Catalog      *model.Catalog
	Economy      config.EconomyConfig
	Templates    []*model.Template
	Achievements []model.Achievement
	BotUsername  string
	Channel      string
	Now          time.Time
	T            func(key string, args ...any) string
}

// RenderFunc builds the screen of one state.
type RenderFunc func(rc RenderContext) (adapter.Screen, error)

// Resolve maps a state to its renderer. Unknown states render the main menu.
func Resolve(s model.State) RenderFunc {
	switch s {
	case model.StateMainMenu:
		return renderMainMenu
	case model.StateGenerateMenu:
		return renderGenerateMenu
	case model.StateProfileMenu:
		return renderProfile
	case model.StateImageGen:
		return renderImagePrompt("image.text", model.KindImage)
	case model.StateAvatarGen:
		return renderImagePrompt("avatar.text", model.KindAvatar)
	case model.StateLogoGen:
		return renderImagePrompt("logo.text", model.KindLogo)
	case model.StateTextGen:
		return renderTextPrompt
	case model.StatePremiumInfo:
		return renderPremium
	case model.StateShop:
		return renderShop
	case model.StateReferral:
		return renderReferral
	case model.StateBalance:
		return renderBalance
	case model.StateActivatePromo:
		return renderPromo
	case model.StateSupport:
		return renderSupport
	case model.StateImageCountSelect:
		return renderImageCount
	case model.StateImageModelSelect:
		return renderImageModels
	case model.StateTextModelSelect:
		return renderTextModels
	case model.StateModelSelect:
		return renderModelSelect
	case model.StateCheckSubscription:
		return renderCheckSubscription
	case model.StateTemplates:
		return renderTemplates
	case model.StateTemplateFill:
		return renderTemplateFill
	case model.StateAchievements:
		return renderAchievements
	case model.StateSettings:
		return renderSettings
	default:
		return renderMainMenu
	}
}

func btn(text, data string) adapter.InlineButton {
	return adapter.InlineButton{Text: text, Data: data}
}

func navRow(rc RenderContext) []adapter.InlineButton {
	return []adapter.InlineButton{btn(rc.T("btn.back"), CBBack), btn(rc.T("btn.home"), CBHome)}
}

func statusText(rc RenderContext) string {
	u := rc.User
	switch days := u.PremiumDaysLeft(rc.Now); {
	case days < 0:
		return rc.T("status.premium_forever")
	case days > 0:
		return rc.T("status.premium_days", days)
	default:
		return rc.T("status.free")
	}
}

func displayName(u *model.User) string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	default:
		return strconv.FormatInt(u.ID, 10)
	}
}

func multiplier(m float64) string {
	return decimal.NewFromFloat(m).String()
}

func renderMainMenu(rc RenderContext) (adapter.Screen, error) {
	u := rc.User
	return adapter.Screen{
		Text: rc.T("main.text", displayName(u), u.Stars, statusText(rc)),
		Rows: [][]adapter.InlineButton{
			{btn(rc.T("btn.generate"), Nav(model.StateGenerateMenu))},
			{btn(rc.T("btn.profile"), Nav(model.StateProfileMenu)), btn(rc.T("btn.balance"), Nav(model.StateBalance))},
			{btn(rc.T("btn.templates"), Nav(model.StateTemplates)), btn(rc.T("btn.achievements"), Nav(model.StateAchievements))},
			{btn(rc.T("btn.shop"), Nav(model.StateShop)), btn(rc.T("btn.premium"), Nav(model.StatePremiumInfo))},
			{btn(rc.T("btn.referral"), Nav(model.StateReferral)), btn(rc.T("btn.promo"), Nav(model.StateActivatePromo))},
			{btn(rc.T("btn.settings"), Nav(model.StateSettings)), btn(rc.T("btn.support"), Nav(model.StateSupport))},
		},
	}, nil
}

func renderGenerateMenu(rc RenderContext) (adapter.Screen, error) {
	u := rc.User
	img, _ := rc.Catalog.ImageModel(u.ImageModel)
	txt, _ := rc.Catalog.TextModel(u.TextModel)
	rows := [][]adapter.InlineButton{
		{btn(rc.T("btn.image"), Nav(model.StateImageGen)), btn(rc.T("btn.text"), Nav(model.StateTextGen))},
		{btn(rc.T("btn.avatar"), Nav(model.StateAvatarGen)), btn(rc.T("btn.logo"), Nav(model.StateLogoGen))},
		{btn(rc.T("btn.models"), Nav(model.StateModelSelect))},
	}
	if u.IsPremium {
		rows = append(rows, []adapter.InlineButton{btn(rc.T("btn.image_count", u.ImageCount), Nav(model.StateImageCountSelect))})
	}
	rows = append(rows, navRow(rc))
	return adapter.Screen{Text: rc.T("generate.text", img.Name, txt.Name), Rows: rows}, nil
}

func renderProfile(rc RenderContext) (adapter.Screen, error) {
	u := rc.User
	c := u.Counters
	return adapter.Screen{
		Text: rc.T("profile.text", u.ID, u.Stars, statusText(rc), u.Level(), u.XP,
			c.Images, c.Texts, c.Avatars, c.Logos, u.ReferralsCount),
		Rows: [][]adapter.InlineButton{
			{btn(rc.T("btn.balance"), Nav(model.StateBalance)), btn(rc.T("btn.daily"), CBDaily)},
			{btn(rc.T("btn.achievements"), Nav(model.StateAchievements))},
			navRow(rc),
		},
	}, nil
}

func costLine(rc RenderContext, cost int64) string {
	if rc.User.IsPremium {
		return rc.T("cost.free")
	}
	return rc.T("cost.stars", cost)
}

func renderImagePrompt(key string, kind model.Kind) RenderFunc {
	return func(rc RenderContext) (adapter.Screen, error) {
		m, ok := rc.Catalog.ImageModel(rc.User.ImageModel)
		if !ok {
			m, _ = rc.Catalog.ImageModel(model.DefaultImageModel)
		}
		cost := ScaledCost(baseCost(rc.Economy, kind), m.Multiplier)
		return adapter.Screen{
			Text: rc.T(key, m.Name, costLine(rc, cost), rc.Economy.MaxPromptLength),
			Rows: [][]adapter.InlineButton{navRow(rc)},
		}, nil
	}
}

func renderTextPrompt(rc RenderContext) (adapter.Screen, error) {
	u := rc.User
	m, ok := rc.Catalog.TextModel(u.TextModel)
	if !ok {
		m, _ = rc.Catalog.TextModel(model.DefaultTextModel)
	}
	cost := rc.T("cost.text", ScaledCost(rc.Economy.TextCostPerUnit, m.Multiplier), rc.Economy.TextWordsPerUnit)
	if u.IsPremium {
		cost = rc.T("cost.free")
	}
	text := rc.T("text.text", m.Name, cost, rc.Economy.MaxPromptLength)
	rows := [][]adapter.InlineButton{}
	if u.IsPremium {
		text += "\n" + rc.T("text.context", model.ContextLength(u.Context), rc.Economy.MaxContextLength)
		rows = append(rows, []adapter.InlineButton{btn(rc.T("btn.clear_context"), CBClearContext)})
	}
	rows = append(rows, navRow(rc))
	return adapter.Screen{Text: text, Rows: rows}, nil
}

func renderPremium(rc RenderContext) (adapter.Screen, error) {
	var rows [][]adapter.InlineButton
	for _, it := range rc.Catalog.Shop {
		if !it.Premium {
			continue
		}
		rows = append(rows, []adapter.InlineButton{btn(rc.T("shop.item", it.Title, it.Price), CBBuyPrefix+it.ID)})
	}
	rows = append(rows, navRow(rc))
	return adapter.Screen{Text: rc.T("premium.text", statusText(rc)), Rows: rows}, nil
}

func renderShop(rc RenderContext) (adapter.Screen, error) {
	var rows [][]adapter.InlineButton
	for _, it := range rc.Catalog.Shop {
		rows = append(rows, []adapter.InlineButton{btn(rc.T("shop.item", it.Title, it.Price), CBBuyPrefix+it.ID)})
	}
	rows = append(rows, navRow(rc))
	return adapter.Screen{Text: rc.T("shop.text", rc.User.Stars), Rows: rows}, nil
}

// ReferralLink is the deep link that attaches code on /start.
func ReferralLink(botUsername, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", strings.TrimPrefix(botUsername, "@"), code)
}

func renderReferral(rc RenderContext) (adapter.Screen, error) {
	u := rc.User
	e := rc.Economy
	link := ReferralLink(rc.BotUsername, u.ReferralCode)
	s := adapter.Screen{
		Text: rc.T("referral.text", link, u.ReferralCode, u.ReferralsCount, u.ReferralBalance,
			e.ReferralBonus, e.RefereeBonus(), e.WithdrawMin),
	}
	if u.ReferralBalance >= e.WithdrawMin && u.ReferralBalance > 0 {
		s.Rows = append(s.Rows, []adapter.InlineButton{btn(rc.T("btn.withdraw", u.ReferralBalance), CBWithdraw)})
	}
	s.Rows = append(s.Rows, navRow(rc))
	if rc.BotUsername != "" {
		png, err := qrcode.Encode(link, qrcode.Medium, 256)
		if err != nil {
			return adapter.Screen{}, fmt.Errorf("referral qr: %w", err)
		}
		s.Media = &adapter.Media{PNG: png}
	}
	return s, nil
}

func renderBalance(rc RenderContext) (adapter.Screen, error) {
	u := rc.User
	loc := rc.Economy.Location()
	next := u.NextDailyBonus(rc.Now, loc)
	daily := rc.T("balance.daily_ready", rc.Economy.DailyBonus)
	if next.After(rc.Now) {
		daily = rc.T("balance.daily_next", next.In(loc).Format("2006-01-02 15:04 MST"))
	}
	return adapter.Screen{
		Text: rc.T("balance.text", u.Stars, u.ReferralBalance, daily),
		Rows: [][]adapter.InlineButton{
			{btn(rc.T("btn.daily"), CBDaily), btn(rc.T("btn.shop"), Nav(model.StateShop))},
			navRow(rc),
		},
	}, nil
}

func renderPromo(rc RenderContext) (adapter.Screen, error) {
	return adapter.Screen{Text: rc.T("promo.text"), Rows: [][]adapter.InlineButton{navRow(rc)}}, nil
}

func renderSupport(rc RenderContext) (adapter.Screen, error) {
	return adapter.Screen{Text: rc.T("support.text"), Rows: [][]adapter.InlineButton{navRow(rc)}}, nil
}

func renderImageCount(rc RenderContext) (adapter.Screen, error) {
	u := rc.User
	if !u.IsPremium {
		return adapter.Screen{}, domain.ErrPremiumRequired
	}
	var rows [][]adapter.InlineButton
	var row []adapter.InlineButton
	for n := 1; n <= rc.Economy.MaxImageCount; n++ {
		label := strconv.Itoa(n)
		if n == u.ImageCount {
			label = "✅ " + label
		}
		row = append(row, btn(label, CBImageCountPrefix+strconv.Itoa(n)))
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, navRow(rc))
	return adapter.Screen{Text: rc.T("count.text", u.ImageCount, rc.Economy.MaxImageCount), Rows: rows}, nil
}

func modelRows(rc RenderContext, ms []model.GenerationModel, current, prefix string) [][]adapter.InlineButton {
	rows := make([][]adapter.InlineButton, 0, len(ms)+1)
	for _, m := range ms {
		label := rc.T("model.item", m.Name, multiplier(m.Multiplier))
		if m.PremiumOnly {
			label = "💎 " + label
		}
		if m.Key == current {
			label = "✅ " + label
		}
		rows = append(rows, []adapter.InlineButton{btn(label, prefix+m.Key)})
	}
	return append(rows, navRow(rc))
}

func renderImageModels(rc RenderContext) (adapter.Screen, error) {
	cur, _ := rc.Catalog.ImageModel(rc.User.ImageModel)
	return adapter.Screen{
		Text: rc.T("image_models.text", cur.Name),
		Rows: modelRows(rc, rc.Catalog.ImageModels, rc.User.ImageModel, CBImageModelPrefix),
	}, nil
}

func renderTextModels(rc RenderContext) (adapter.Screen, error) {
	cur, _ := rc.Catalog.TextModel(rc.User.TextModel)
	return adapter.Screen{
		Text: rc.T("text_models.text", cur.Name),
		Rows: modelRows(rc, rc.Catalog.TextModels, rc.User.TextModel, CBTextModelPrefix),
	}, nil
}

func renderModelSelect(rc RenderContext) (adapter.Screen, error) {
	return adapter.Screen{
		Text: rc.T("models.text"),
		Rows: [][]adapter.InlineButton{
			{btn(rc.T("btn.image_models"), Nav(model.StateImageModelSelect))},
			{btn(rc.T("btn.text_models"), Nav(model.StateTextModelSelect))},
			navRow(rc),
		},
	}, nil
}

// ChannelURL returns a t.me link for public channels and "" for numeric ids.
func ChannelURL(channel string) string {
	if !strings.HasPrefix(channel, "@") {
		return ""
	}
	return "https://t.me/" + strings.TrimPrefix(channel, "@")
}

func renderCheckSubscription(rc RenderContext) (adapter.Screen, error) {
	var rows [][]adapter.InlineButton
	if url := ChannelURL(rc.Channel); url != "" {
		rows = append(rows, []adapter.InlineButton{{Text: rc.T("btn.subscribe"), URL: url}})
	}
	rows = append(rows, []adapter.InlineButton{btn(rc.T("btn.recheck"), CBRecheck)})
	return adapter.Screen{Text: rc.T("check.text", rc.Channel), Rows: rows}, nil
}

func renderTemplates(rc RenderContext) (adapter.Screen, error) {
	text := rc.T("templates.text")
	if len(rc.Templates) == 0 {
		text = rc.T("templates.empty")
	}
	rows := make([][]adapter.InlineButton, 0, len(rc.Templates)+1)
	for _, t := range rc.Templates {
		icon := "📝"
		if t.Category == model.TemplateImage {
			icon = "🎨"
		}
		rows = append(rows, []adapter.InlineButton{btn(icon+" "+t.Title, CBTemplatePrefix+t.ID)})
	}
	rows = append(rows, navRow(rc))
	return adapter.Screen{Text: text, Rows: rows}, nil
}

// StateDataTemplate is the aux key holding the template being filled.
const StateDataTemplate = "template_id"

func renderTemplateFill(rc RenderContext) (adapter.Screen, error) {
	id := rc.User.StateData[StateDataTemplate]
	for _, t := range rc.Templates {
		if t.ID != id {
			continue
		}
		return adapter.Screen{
			Text: rc.T("template_fill.text", t.Title, t.Pattern, strings.Join(t.Placeholders(), ", ")),
			Rows: [][]adapter.InlineButton{navRow(rc)},
		}, nil
	}
	return adapter.Screen{}, fmt.Errorf("template %q: %w", id, domain.ErrNotFound)
}

func renderAchievements(rc RenderContext) (adapter.Screen, error) {
	u := rc.User
	lines := make([]string, 0, len(rc.Achievements))
	for _, a := range rc.Achievements {
		icon := "🔒"
		if _, ok := u.Achievements[a.ID]; ok {
			icon = "✅"
		}
		lines = append(lines, rc.T("achievement.item", icon, a.Title, a.Reward))
	}
	text := rc.T("achievements.text", len(u.Achievements), len(rc.Achievements))
	if len(lines) > 0 {
		text += "\n\n" + strings.Join(lines, "\n")
	}
	return adapter.Screen{Text: text, Rows: [][]adapter.InlineButton{navRow(rc)}}, nil
}

func onOff(rc RenderContext, v bool) string {
	if v {
		return rc.T("toggle.on")
	}
	return rc.T("toggle.off")
}

func renderSettings(rc RenderContext) (adapter.Screen, error) {
	s := rc.User.Settings
	return adapter.Screen{
		Text: rc.T("settings.text"),
		Rows: [][]adapter.InlineButton{
			{btn(rc.T("btn.notifications", onOff(rc, s.Notifications)), CBSettingPrefix+SettingNotifications)},
			{btn(rc.T("btn.auto_translate", onOff(rc, s.AutoTranslate)), CBSettingPrefix+SettingAutoTranslate)},
			{btn("🇬🇧 English", CBLangPrefix+"en"), btn("🇷🇺 Русский", CBLangPrefix+"ru")},
			navRow(rc),
		},
	}, nil
}

// ResultScreen presents a finished generation. Text output goes first so the
// caller can split it; the summary and buttons follow.
func ResultScreen(rc RenderContext, res *Result) adapter.Screen {
	summary := rc.T("result.text", res.ModelName)
	if res.Cost > 0 {
		summary += "\n" + rc.T("result.spent", res.Cost)
	} else if res.User != nil && res.User.IsPremium {
		summary += "\n" + rc.T("result.premium")
	}
	for _, a := range res.Unlocked {
		summary += "\n" + rc.T("result.unlocked", a.Title, a.Reward)
	}

	var rows [][]adapter.InlineButton
	if res.Kind.IsImage() || res.Kind == model.KindImprove {
		rows = append(rows, []adapter.InlineButton{btn(rc.T("btn.improve"), CBImprove), btn(rc.T("btn.regenerate"), CBRegenerate)})
	} else {
		row := []adapter.InlineButton{btn(rc.T("btn.regenerate"), CBRegenerate)}
		if res.User != nil && res.User.IsPremium {
			row = append(row, btn(rc.T("btn.clear_context"), CBClearContext))
		}
		rows = append(rows, row)
	}
	rows = append(rows, []adapter.InlineButton{btn(rc.T("btn.home"), CBHome)})

	if len(res.ImageURLs) > 0 {
		return adapter.Screen{Text: summary, Rows: rows, Media: &adapter.Media{PhotoURLs: res.ImageURLs}}
	}
	return adapter.Screen{Text: res.Text + "\n\n" + summary, Rows: rows}
}
