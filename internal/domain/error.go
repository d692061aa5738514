package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInsufficientStars  = errors.New("insufficient stars")
	ErrPromptEmpty        = errors.New("prompt is empty")
	ErrPromptTooLong      = errors.New("prompt is too long")
	ErrPremiumRequired    = errors.New("premium required")
	ErrGenerationFailed   = errors.New("generation failed")
	ErrDailyBonusClaimed  = errors.New("daily bonus already claimed")
	ErrReferralInvalid    = errors.New("referral code not found")
	ErrReferralSelf       = errors.New("cannot use own referral code")
	ErrReferralUsed       = errors.New("referral already used")
	ErrWithdrawTooSmall   = errors.New("referral balance below withdraw minimum")
	ErrPromoNotFound      = errors.New("promo code not found")
	ErrPromoInactive      = errors.New("promo code is inactive")
	ErrPromoExhausted     = errors.New("promo code usage limit reached")
	ErrPromoAlreadyUsed   = errors.New("promo code already used by this user")
	ErrMissingPlaceholder = errors.New("template placeholder not supplied")
	ErrUnknownModel       = errors.New("unknown model")
	ErrUnknownShopItem    = errors.New("unknown shop item")
	ErrNotSubscribed      = errors.New("channel subscription required")
	ErrFieldNotEditable   = errors.New("field is not editable")
)

// InsufficientStarsError carries the numbers a user needs to self-diagnose.
type InsufficientStarsError struct {
	Need int64
	Have int64
}

func (e *InsufficientStarsError) Error() string {
	return fmt.Sprintf("insufficient stars: need %d, have %d", e.Need, e.Have)
}

func (e *InsufficientStarsError) Unwrap() error { return ErrInsufficientStars }

// DailyBonusClaimedError references the calendar date of the previous claim.
type DailyBonusClaimedError struct {
	Date time.Time
}

func (e *DailyBonusClaimedError) Error() string {
	return "daily bonus already claimed on " + e.Date.Format("2006-01-02")
}

func (e *DailyBonusClaimedError) Unwrap() error { return ErrDailyBonusClaimed }

// MissingPlaceholderError names the template field that had no value.
type MissingPlaceholderError struct {
	Field string
}

func (e *MissingPlaceholderError) Error() string {
	return fmt.Sprintf("template placeholder %q not supplied", e.Field)
}

func (e *MissingPlaceholderError) Unwrap() error { return ErrMissingPlaceholder }
