package model

import (
	"fmt"
	"time"
)

// Turn is one entry of a premium user's rolling conversation context.
type Turn struct {
	Role    string `json:"role"` // "user" | "assistant" | "system"
	Content string `json:"content"`
}

// MenuFrame is a saved screen on the back-stack together with its aux data.
type MenuFrame struct {
	State State             `json:"state"`
	Data  map[string]string `json:"data,omitempty"`
}

// Counters track generated items per kind.
type Counters struct {
	Images    int `json:"images"`
	Texts     int `json:"texts"`
	Avatars   int `json:"avatars"`
	Logos     int `json:"logos"`
	Templates int `json:"templates"`
}

type Settings struct {
	Notifications bool   `json:"notifications"`
	Language      string `json:"language"`
	AutoTranslate bool   `json:"auto_translate"`
}

// User is the single persisted record per chat participant.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`

	Stars         int64      `json:"stars"`
	IsPremium     bool       `json:"is_premium"`
	PremiumExpiry *time.Time `json:"premium_expiry"` // nil while premium means forever

	ReferralCode    string `json:"referral_code"`
	ReferralBalance int64  `json:"referral_balance"`
	InvitedBy       string `json:"invited_by,omitempty"`
	PendingReferral string `json:"pending_referral,omitempty"`
	ReferralUsed    bool   `json:"referral_used"`
	ReferralsCount  int    `json:"referrals_count"`

	HasSubscribed bool `json:"has_subscribed"`

	State     State             `json:"state"`
	StateData map[string]string `json:"state_data,omitempty"`
	MenuStack []MenuFrame       `json:"menu_stack,omitempty"`

	Context  []Turn   `json:"context,omitempty"`
	Counters Counters `json:"counters"`
	XP       int64    `json:"xp"`

	Achievements map[string]time.Time `json:"achievements,omitempty"`
	Settings     Settings             `json:"settings"`

	ImageModel string `json:"image_model"`
	TextModel  string `json:"text_model"`
	ImageCount int    `json:"image_count"`
	LastPrompt string `json:"last_prompt,omitempty"`
	LastKind   Kind   `json:"last_kind,omitempty"`

	LastDailyBonus *time.Time `json:"last_daily_bonus,omitempty"`
	AdminUntil     *time.Time `json:"admin_until,omitempty"`

	CreatedAt       time.Time `json:"created_at"`
	LastInteraction time.Time `json:"last_interaction"`
}

// NewUser builds a first-contact record with the starting balance.
func NewUser(id int64, username string, startBalance int64, now time.Time) *User {
	return &User{
		ID:              id,
		Username:        username,
		Stars:           startBalance,
		ReferralCode:    ReferralCodeFor(id, now),
		State:           StateCheckSubscription,
		Settings:        Settings{Notifications: true, Language: "en", AutoTranslate: true},
		ImageModel:      DefaultImageModel,
		TextModel:       DefaultTextModel,
		ImageCount:      1,
		Achievements:    map[string]time.Time{},
		CreatedAt:       now,
		LastInteraction: now,
	}
}

// ReferralCodeFor derives the public referral code of a user.
func ReferralCodeFor(id int64, now time.Time) string {
	return fmt.Sprintf("REF%d%d", id, now.Unix()%10000)
}

// Level is derived from XP, 100 points per level.
func (u *User) Level() int { return 1 + int(u.XP/100) }

// Touch records an interaction.
func (u *User) Touch(now time.Time) { u.LastInteraction = now }

// PremiumDaysLeft returns -1 for forever premium and 0 when not premium.
func (u *User) PremiumDaysLeft(now time.Time) int {
	if !u.IsPremium {
		return 0
	}
	if u.PremiumExpiry == nil {
		return -1
	}
	d := u.PremiumExpiry.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + 24*time.Hour - 1) / (24 * time.Hour))
}

// AdminActive reports whether a password-gated admin session is open.
func (u *User) AdminActive(now time.Time) bool {
	return u.AdminUntil != nil && now.Before(*u.AdminUntil)
}

// CounterValue resolves an achievement counter name.
func (u *User) CounterValue(name string) int {
	switch name {
	case CounterImages:
		return u.Counters.Images
	case CounterTexts:
		return u.Counters.Texts
	case CounterAvatars:
		return u.Counters.Avatars
	case CounterLogos:
		return u.Counters.Logos
	case CounterTemplates:
		return u.Counters.Templates
	case CounterReferrals:
		return u.ReferralsCount
	case CounterLevel:
		return u.Level()
	default:
		return 0
	}
}

// Bump increments the counter of a generation kind and adds XP.
func (u *User) Bump(kind Kind, xp int64) {
	switch kind {
	case KindImage:
		u.Counters.Images++
	case KindText:
		u.Counters.Texts++
	case KindAvatar:
		u.Counters.Avatars++
	case KindLogo:
		u.Counters.Logos++
	}
	u.XP += xp
}

// Clone returns a deep copy; the store hands out clones only.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.PremiumExpiry = cloneTime(u.PremiumExpiry)
	c.LastDailyBonus = cloneTime(u.LastDailyBonus)
	c.AdminUntil = cloneTime(u.AdminUntil)
	c.StateData = cloneMap(u.StateData)
	if u.MenuStack != nil {
		c.MenuStack = make([]MenuFrame, len(u.MenuStack))
		for i, f := range u.MenuStack {
			c.MenuStack[i] = MenuFrame{State: f.State, Data: cloneMap(f.Data)}
		}
	}
	if u.Context != nil {
		c.Context = append([]Turn(nil), u.Context...)
	}
	if u.Achievements != nil {
		c.Achievements = make(map[string]time.Time, len(u.Achievements))
		for k, v := range u.Achievements {
			c.Achievements[k] = v
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
