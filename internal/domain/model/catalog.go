package model

import "time"

const (
	DefaultImageModel = "dalle3"
	DefaultTextModel  = "gpt4"
)

// GenerationModel is a selectable model with a cost multiplier.
// Style is appended to image prompts and prepended to text prompts.
type GenerationModel struct {
	Key         string
	Name        string
	Description string
	Multiplier  float64
	Style       string
	PremiumOnly bool
}

// ShopItem is purchasable with Telegram Stars (XTR).
type ShopItem struct {
	ID          string
	Title       string
	Description string
	Price       int64
	Stars       int64
	PremiumDays int // 0 with Premium set means forever
	Premium     bool
}

// Catalog groups the static data screens and the dispatcher read from.
type Catalog struct {
	ImageModels []GenerationModel
	TextModels  []GenerationModel
	Shop        []ShopItem
}

func (c *Catalog) ImageModel(key string) (GenerationModel, bool) { return find(c.ImageModels, key) }
func (c *Catalog) TextModel(key string) (GenerationModel, bool)  { return find(c.TextModels, key) }

func (c *Catalog) ShopItem(id string) (ShopItem, bool) {
	for _, it := range c.Shop {
		if it.ID == id {
			return it, true
		}
	}
	return ShopItem{}, false
}

func find(ms []GenerationModel, key string) (GenerationModel, bool) {
	for _, m := range ms {
		if m.Key == key {
			return m, true
		}
	}
	return GenerationModel{}, false
}

// DefaultCatalog returns the stock models and shop.
func DefaultCatalog() *Catalog {
	return &Catalog{
		ImageModels: []GenerationModel{
			{Key: "dalle3", Name: "DALL·E 3", Description: "Photographic quality", Multiplier: 1.0,
				Style: "masterpiece, best quality, 8K resolution, cinematic lighting, ultra-detailed, sharp focus"},
			{Key: "midjourney", Name: "Midjourney V6", Description: "Artistic generation with a signature look", Multiplier: 1.2,
				Style: "masterpiece, intricate details, artistic composition, vibrant colors, atmospheric perspective, trending on artstation"},
			{Key: "stablediff", Name: "Stable Diffusion XL", Description: "Fast and highly customizable", Multiplier: 0.8,
				Style: "photorealistic, ultra HD, 32k, detailed texture, realistic lighting, DSLR quality"},
			{Key: "firefly", Name: "Adobe Firefly", Description: "Professional and commercial design", Multiplier: 1.1,
				Style: "commercial quality, professional design, clean composition, vector art, modern aesthetics, brand identity"},
			{Key: "deepseek", Name: "DeepSeek Vision", Description: "Experimental, tech-heavy imagery", Multiplier: 0.9,
				Style: "futuristic, cyberpunk, neon glow, holographic elements, sci-fi aesthetics, digital art"},
			{Key: "playground", Name: "Playground v2.5", Description: "Painterly style", Multiplier: 1.0,
				Style: "dynamic composition, vibrant palette, artistic brushwork, impressionist style, emotional impact"},
		},
		TextModels: []GenerationModel{
			{Key: "gpt4", Name: "GPT-4 Turbo", Description: "General purpose assistant", Multiplier: 1.0,
				Style: "You are an advanced AI assistant. Answer accurately, informatively and creatively."},
			{Key: "claude", Name: "Claude 3 Opus", Description: "Long context and analysis", Multiplier: 1.3,
				Style: "You are a helpful, honest and harmless assistant. Answer in detail."},
			{Key: "gemini", Name: "Gemini Pro", Description: "Concise answers", Multiplier: 0.9,
				Style: "You are a versatile assistant. Answer briefly and to the point."},
			{Key: "mixtral", Name: "Mixtral 8x7B", Description: "Fast open model", Multiplier: 0.7,
				Style: "You are an expert in many fields. Answer professionally and precisely."},
			{Key: "llama3", Name: "Llama 3 70B", Description: "Friendly open model", Multiplier: 0.8,
				Style: "You are a friendly and creative assistant. Answer with humor."},
			{Key: "claude_sonnet_4", Name: "Claude Sonnet 4", Description: "Expert-level analysis", Multiplier: 1.5, PremiumOnly: true,
				Style: "Act as a professional consultant: analyse the problem, propose solutions and warn about risks."},
			{Key: "gemini_2_5", Name: "Gemini 2.5", Description: "Practical answers", Multiplier: 1.4, PremiumOnly: true,
				Style: "Answer briefly but with substance. Use bullet lists and always suggest practical steps."},
			{Key: "grok_3", Name: "Grok 3", Description: "Technically precise with humor", Multiplier: 1.2, PremiumOnly: true,
				Style: "Answer informatively with a touch of irony and modern analogies."},
			{Key: "o3_mini", Name: "o3-mini", Description: "Very fast, very short", Multiplier: 0.9, PremiumOnly: true,
				Style: "Answer as briefly as possible while staying useful. Use bullet points."},
		},
		Shop: []ShopItem{
			{ID: "stars30", Title: "30 Stars", Description: "Stars pack for generations", Price: 30, Stars: 30},
			{ID: "stars50", Title: "50 Stars", Description: "Stars pack", Price: 50, Stars: 50},
			{ID: "stars150", Title: "150 Stars", Description: "Big stars pack", Price: 150, Stars: 150},
			{ID: "stars500", Title: "500 Stars", Description: "Huge stars pack", Price: 500, Stars: 500},
			{ID: "premium_month", Title: "Premium 1 month", Description: "Premium access for 30 days", Price: 600, Premium: true, PremiumDays: 30},
			{ID: "premium_forever", Title: "Premium forever", Description: "Permanent premium access", Price: 1999, Premium: true},
		},
	}
}

// ApplyPurchase credits a paid shop item to the user.
func (u *User) ApplyPurchase(item ShopItem, now time.Time) {
	if item.Stars > 0 {
		u.Stars += item.Stars
	}
	if item.Premium {
		u.GrantPremium(item.PremiumDays, now)
	}
}
