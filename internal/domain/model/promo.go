package model

import (
	"strings"
	"time"

	"telegram-ai-stars/internal/domain"
)

type PromoKind string

const (
	PromoStars   PromoKind = "stars"
	PromoPremium PromoKind = "premium" // Value is days, 0 means forever
)

// PromoCode is a redeemable code with a per-user single-use ledger.
type PromoCode struct {
	Code       string              `json:"code"`
	Kind       PromoKind           `json:"kind"`
	Value      int64               `json:"value"`
	UsageLimit int                 `json:"usage_limit"` // 0 means unlimited
	UsageCount int                 `json:"usage_count"`
	UsedBy     map[int64]time.Time `json:"used_by"`
	Active     bool                `json:"active"`
	CreatedAt  time.Time           `json:"created_at"`
}

// NewPromoCode validates and builds an active code.
func NewPromoCode(code string, kind PromoKind, value int64, limit int, now time.Time) (*PromoCode, error) {
	code = NormalizePromoCode(code)
	if code == "" || limit < 0 || value < 0 {
		return nil, domain.ErrInvalidArgument
	}
	switch kind {
	case PromoStars:
		if value == 0 {
			return nil, domain.ErrInvalidArgument
		}
	case PromoPremium:
	default:
		return nil, domain.ErrInvalidArgument
	}
	return &PromoCode{
		Code:       code,
		Kind:       kind,
		Value:      value,
		UsageLimit: limit,
		UsedBy:     map[int64]time.Time{},
		Active:     true,
		CreatedAt:  now,
	}, nil
}

// NormalizePromoCode makes codes case-insensitive.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CheckRedeemable returns the reason userID cannot redeem, or nil.
func (p *PromoCode) CheckRedeemable(userID int64) error {
	if !p.Active {
		return domain.ErrPromoInactive
	}
	if p.UsageLimit > 0 && p.UsageCount >= p.UsageLimit {
		return domain.ErrPromoExhausted
	}
	if _, used := p.UsedBy[userID]; used {
		return domain.ErrPromoAlreadyUsed
	}
	return nil
}

// Redeem applies the code to u and records the use.
func (p *PromoCode) Redeem(u *User, now time.Time) error {
	if err := p.CheckRedeemable(u.ID); err != nil {
		return err
	}
	switch p.Kind {
	case PromoStars:
		u.Credit(p.Value)
	case PromoPremium:
		u.GrantPremium(int(p.Value), now)
	default:
		return domain.ErrInvalidArgument
	}
	if p.UsedBy == nil {
		p.UsedBy = map[int64]time.Time{}
	}
	p.UsedBy[u.ID] = now
	p.UsageCount++
	return nil
}

func (p *PromoCode) Clone() *PromoCode {
	if p == nil {
		return nil
	}
	c := *p
	c.UsedBy = make(map[int64]time.Time, len(p.UsedBy))
	for k, v := range p.UsedBy {
		c.UsedBy[k] = v
	}
	return &c
}
