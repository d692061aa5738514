package usecase

import "telegram-ai-stars/internal/domain/model"

// Callback data understood by the bot facade. Prefixed values carry an
// argument after the colon.
const (
	CBBack         = "back"
	CBHome         = "home"
	CBDaily        = "daily"
	CBWithdraw     = "withdraw"
	CBImprove      = "improve"
	CBRegenerate   = "regen"
	CBClearContext = "ctxclear"
	CBRecheck      = "recheck"

	CBNavPrefix        = "nav:"
	CBBuyPrefix        = "buy:"
	CBImageModelPrefix = "imgmodel:"
	CBTextModelPrefix  = "txtmodel:"
	CBImageCountPrefix = "count:"
	CBTemplatePrefix   = "tpl:"
	CBSettingPrefix    = "set:"
	CBLangPrefix       = "lang:"
)

// Setting names toggled through CBSettingPrefix.
const (
	SettingNotifications = "notifications"
	SettingAutoTranslate = "auto_translate"
)

// Nav returns the callback data that opens a screen.
func Nav(s model.State) string { return CBNavPrefix + string(s) }
