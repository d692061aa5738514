package model

import "time"

const (
	StatUsersCreated      = "users_created"
	StatStarsSpent        = "stars_spent"
	StatStarsCredited     = "stars_credited"
	StatPromoRedeemed     = "promo_redeemed"
	StatDailyBonus        = "daily_bonus_claimed"
	StatReferrals         = "referrals_credited"
	StatGenerationFailed  = "generation_failures"
	StatPurchases         = "purchases"
	StatUsersSwept        = "users_swept"
	StatGenerationsPrefix = "generations_"
)

// Stats is the aggregate counters document.
type Stats struct {
	Counters  map[string]int64 `json:"counters"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (s *Stats) Inc(key string, n int64) {
	if s.Counters == nil {
		s.Counters = map[string]int64{}
	}
	s.Counters[key] += n
}

func (s *Stats) Get(key string) int64 { return s.Counters[key] }

func (s Stats) Clone() Stats {
	c := Stats{Counters: make(map[string]int64, len(s.Counters)), UpdatedAt: s.UpdatedAt}
	for k, v := range s.Counters {
		c.Counters[k] = v
	}
	return c
}
