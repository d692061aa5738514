package model

import (
	"time"
	"unicode/utf8"

	"telegram-ai-stars/internal/domain"
)

// The rules below mutate a single User in place. Callers apply them inside
// a store update so each one is atomic with respect to the record.

// CanAfford reports whether cost can be paid. Premium always passes.
func (u *User) CanAfford(cost int64) bool {
	return u.IsPremium || cost <= 0 || u.Stars >= cost
}

// Charge deducts cost when affordable. Premium succeeds without deduction.
// A failed charge leaves the record untouched.
func (u *User) Charge(cost int64) bool {
	if u.IsPremium || cost <= 0 {
		return true
	}
	if u.Stars < cost {
		return false
	}
	u.Stars -= cost
	return true
}

// RequireStars is Charge with a descriptive error.
func (u *User) RequireStars(cost int64) error {
	if !u.Charge(cost) {
		return &domain.InsufficientStarsError{Need: cost, Have: u.Stars}
	}
	return nil
}

// Credit adds stars; non-positive amounts are ignored.
func (u *User) Credit(amount int64) {
	if amount > 0 {
		u.Stars += amount
	}
}

// CreditReferral pays the referrer once per referee. It returns false when the
// referee already consumed a referral or both sides are the same user.
func CreditReferral(referrer, referee *User, referrerBonus, refereeBonus int64) bool {
	if referrer == nil || referee == nil || referrer.ID == referee.ID || referee.ReferralUsed {
		return false
	}
	referrer.ReferralBalance += referrerBonus
	referrer.ReferralsCount++
	referee.Stars += refereeBonus
	referee.ReferralUsed = true
	referee.InvitedBy = referrer.ReferralCode
	referee.PendingReferral = ""
	return true
}

// ClaimDailyBonus grants amount once per calendar date in loc.
func (u *User) ClaimDailyBonus(now time.Time, loc *time.Location, amount int64) (int64, error) {
	if loc == nil {
		loc = time.UTC
	}
	if u.LastDailyBonus != nil && sameDate(*u.LastDailyBonus, now, loc) {
		y, m, d := u.LastDailyBonus.In(loc).Date()
		return 0, &domain.DailyBonusClaimedError{Date: time.Date(y, m, d, 0, 0, 0, 0, loc)}
	}
	u.Stars += amount
	t := now
	u.LastDailyBonus = &t
	return amount, nil
}

// NextDailyBonus returns the moment the next claim becomes possible.
func (u *User) NextDailyBonus(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if u.LastDailyBonus == nil || !sameDate(*u.LastDailyBonus, now, loc) {
		return now
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

func sameDate(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// GrantPremium turns premium on. days <= 0 means forever. A timed grant
// extends from the later of now and the current expiry, and never shortens
// a forever premium.
func (u *User) GrantPremium(days int, now time.Time) {
	if days <= 0 {
		u.IsPremium = true
		u.PremiumExpiry = nil
		return
	}
	if u.IsPremium && u.PremiumExpiry == nil {
		return
	}
	base := now
	if u.IsPremium && u.PremiumExpiry != nil && u.PremiumExpiry.After(now) {
		base = *u.PremiumExpiry
	}
	exp := base.Add(time.Duration(days) * 24 * time.Hour)
	u.IsPremium = true
	u.PremiumExpiry = &exp
}

// ExpirePremiumIfDue clears a lapsed premium. It reports whether it changed anything.
func (u *User) ExpirePremiumIfDue(now time.Time) bool {
	if !u.IsPremium || u.PremiumExpiry == nil || u.PremiumExpiry.After(now) {
		return false
	}
	u.IsPremium = false
	u.PremiumExpiry = nil
	return true
}

// UnlockAchievement grants the reward once and reports whether it was new.
func (u *User) UnlockAchievement(a Achievement, now time.Time) bool {
	if u.Achievements == nil {
		u.Achievements = map[string]time.Time{}
	}
	if _, ok := u.Achievements[a.ID]; ok {
		return false
	}
	u.Achievements[a.ID] = now
	u.Stars += a.Reward
	return true
}

// WithdrawReferral moves the whole referral balance into stars.
func (u *User) WithdrawReferral(minimum int64) (int64, error) {
	if u.ReferralBalance < minimum || u.ReferralBalance <= 0 {
		return 0, domain.ErrWithdrawTooSmall
	}
	amount := u.ReferralBalance
	u.ReferralBalance = 0
	u.Stars += amount
	return amount, nil
}

// AppendTurn adds a context turn clipped to maxTurn runes, then evicts the
// oldest whole turns until the total is within maxTotal.
func (u *User) AppendTurn(role, content string, maxTurn, maxTotal int) {
	if maxTurn > 0 && utf8.RuneCountInString(content) > maxTurn {
		content = string([]rune(content)[:maxTurn])
	}
	u.Context = append(u.Context, Turn{Role: role, Content: content})
	if maxTotal <= 0 {
		return
	}
	for len(u.Context) > 1 && ContextLength(u.Context) > maxTotal {
		u.Context = u.Context[1:]
	}
}

// ContextLength is the total rune count of all turn contents.
func ContextLength(turns []Turn) int {
	n := 0
	for _, t := range turns {
		n += utf8.RuneCountInString(t.Content)
	}
	return n
}
