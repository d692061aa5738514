package model

import "time"

const (
	CounterImages    = "images"
	CounterTexts     = "texts"
	CounterAvatars   = "avatars"
	CounterLogos     = "logos"
	CounterTemplates = "templates"
	CounterReferrals = "referrals"
	CounterLevel     = "level"
)

// Achievement unlocks once a user counter reaches Threshold and pays Reward once.
type Achievement struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Counter   string `json:"counter"`
	Threshold int    `json:"threshold"`
	Reward    int64  `json:"reward"`
}

// Reached evaluates the unlock condition against u.
func (a Achievement) Reached(u *User) bool {
	return a.Threshold > 0 && u.CounterValue(a.Counter) >= a.Threshold
}

func DefaultAchievements() []Achievement {
	return []Achievement{
		{ID: "first_image", Title: "First image", Counter: CounterImages, Threshold: 1, Reward: 2},
		{ID: "image_master", Title: "Image master", Counter: CounterImages, Threshold: 25, Reward: 15},
		{ID: "first_text", Title: "First text", Counter: CounterTexts, Threshold: 1, Reward: 2},
		{ID: "writer", Title: "Writer", Counter: CounterTexts, Threshold: 50, Reward: 20},
		{ID: "first_avatar", Title: "First avatar", Counter: CounterAvatars, Threshold: 1, Reward: 2},
		{ID: "first_logo", Title: "First logo", Counter: CounterLogos, Threshold: 1, Reward: 2},
		{ID: "templater", Title: "Template user", Counter: CounterTemplates, Threshold: 5, Reward: 5},
		{ID: "first_referral", Title: "First referral", Counter: CounterReferrals, Threshold: 1, Reward: 5},
		{ID: "level_5", Title: "Level 5", Counter: CounterLevel, Threshold: 5, Reward: 10},
	}
}

// EvaluateAchievements unlocks every reached achievement and returns the new ones.
func (u *User) EvaluateAchievements(all []Achievement, now time.Time) []Achievement {
	var unlocked []Achievement
	for _, a := range all {
		if a.Reached(u) && u.UnlockAchievement(a, now) {
			unlocked = append(unlocked, a)
		}
	}
	return unlocked
}
