package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"telegram-ai-stars/internal/config"
	"telegram-ai-stars/internal/domain"
	"telegram-ai-stars/internal/domain/model"
	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/domain/ports/repository"
	"telegram-ai-stars/internal/infra/logging"
	"telegram-ai-stars/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const maxRetryDelay = 20 * time.Second

var (
	cyrillicRe = regexp.MustCompile(`[а-яА-ЯёЁ]`)
	wordRe     = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// Result is one finished generation.
type Result struct {
	RequestID string
	Kind      model.Kind
	ModelName string
	Prompt    string
	Text      string
	ImageURLs []string
	Cost      int64
	User      *model.User
	Unlocked  []model.Achievement
}

// RetryPolicy bounds provider calls. Sleep is replaceable in tests.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Compile-time check
var _ GenerationUseCase = (*generationUC)(nil)

// GenerationUseCase validates, prices, calls the providers and settles the cost.
type GenerationUseCase interface {
	Generate(ctx context.Context, userID int64, kind model.Kind, prompt string) (*Result, error)
	GenerateFromTemplate(ctx context.Context, userID int64, templateID, input string) (*Result, error)
	Improve(ctx context.Context, userID int64) (*Result, error)
	Regenerate(ctx context.Context, userID int64) (*Result, error)
	ClearContext(ctx context.Context, userID int64) error
	// Cost is the up-front price of kind for u. Text kinds price the prompt only.
	Cost(u *model.User, kind model.Kind, prompt string) (int64, error)
}

type generationUC struct {
	users        repository.UserRepository
	templates    repository.TemplateRepository
	achievements repository.AchievementRepository
	stats        repository.StatsRepository
	text         adapter.TextGenerator
	images       adapter.ImageGenerator
	catalog      *model.Catalog
	cfg          config.EconomyConfig
	retry        RetryPolicy
	clock        Clock
	log          *zerolog.Logger
}

func NewGenerationUseCase(
	users repository.UserRepository,
	templates repository.TemplateRepository,
	achievements repository.AchievementRepository,
	stats repository.StatsRepository,
	text adapter.TextGenerator,
	images adapter.ImageGenerator,
	catalog *model.Catalog,
	cfg config.EconomyConfig,
	retry RetryPolicy,
	clock Clock,
	logger *zerolog.Logger,
) *generationUC {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.Sleep == nil {
		retry.Sleep = sleepCtx
	}
	return &generationUC{
		users:        users,
		templates:    templates,
		achievements: achievements,
		stats:        stats,
		text:         text,
		images:       images,
		catalog:      catalog,
		cfg:          cfg,
		retry:        retry,
		clock:        clock,
		log:          logging.Component(logger, "generation_uc"),
	}
}

func baseCost(cfg config.EconomyConfig, kind model.Kind) int64 {
	switch kind {
	case model.KindImage:
		return cfg.ImageCost
	case model.KindAvatar:
		return cfg.AvatarCost
	case model.KindLogo:
		return cfg.LogoCost
	case model.KindImprove:
		return cfg.ImproveCost
	case model.KindText:
		return cfg.TextCostPerUnit
	default:
		return 0
	}
}

// ScaledCost is floor(base × multiplier) in decimal arithmetic.
func ScaledCost(base int64, mult float64) int64 {
	return decimal.NewFromInt(base).Mul(decimal.NewFromFloat(mult)).Floor().IntPart()
}

// CountWords counts letter/digit runs in any script.
func CountWords(s string) int { return len(wordRe.FindAllStringIndex(s, -1)) }

// textCost prices words at TextCostPerUnit per started TextWordsPerUnit.
func textCost(cfg config.EconomyConfig, words int, mult float64) int64 {
	per := cfg.TextWordsPerUnit
	if per <= 0 {
		per = 100
	}
	units := int64((words + per - 1) / per)
	if units < 1 {
		units = 1
	}
	return ScaledCost(units*cfg.TextCostPerUnit, mult)
}

func (g *generationUC) resolveModel(u *model.User, kind model.Kind) (model.GenerationModel, error) {
	var (
		m  model.GenerationModel
		ok bool
	)
	if kind == model.KindText {
		if m, ok = g.catalog.TextModel(u.TextModel); !ok {
			m, ok = g.catalog.TextModel(model.DefaultTextModel)
		}
	} else {
		if m, ok = g.catalog.ImageModel(u.ImageModel); !ok {
			m, ok = g.catalog.ImageModel(model.DefaultImageModel)
		}
	}
	if !ok {
		return model.GenerationModel{}, domain.ErrUnknownModel
	}
	if m.PremiumOnly && !u.IsPremium {
		return model.GenerationModel{}, domain.ErrPremiumRequired
	}
	return m, nil
}

func (g *generationUC) Cost(u *model.User, kind model.Kind, prompt string) (int64, error) {
	if u.IsPremium {
		return 0, nil
	}
	if kind == model.KindImprove {
		return g.cfg.ImproveCost, nil
	}
	m, err := g.resolveModel(u, kind)
	if err != nil {
		return 0, err
	}
	if kind == model.KindText {
		return textCost(g.cfg, CountWords(prompt), m.Multiplier), nil
	}
	return ScaledCost(baseCost(g.cfg, kind), m.Multiplier), nil
}

func (g *generationUC) validate(prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", domain.ErrPromptEmpty
	}
	if utf8.RuneCountInString(prompt) > g.cfg.MaxPromptLength {
		return "", domain.ErrPromptTooLong
	}
	return prompt, nil
}

// precheck loads the user and rejects a request it cannot pay for before any
// provider is called.
func (g *generationUC) precheck(ctx context.Context, userID int64, kind model.Kind, prompt string) (*model.User, int64, error) {
	u, err := g.users.FindByID(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	cost, err := g.Cost(u, kind, prompt)
	if err != nil {
		metrics.IncGeneration(string(kind), "rejected")
		return nil, 0, err
	}
	if !u.CanAfford(cost) {
		metrics.PrecheckBlocked(string(kind))
		metrics.IncGeneration(string(kind), "rejected")
		return nil, 0, &domain.InsufficientStarsError{Need: cost, Have: u.Stars}
	}
	return u, cost, nil
}

func (g *generationUC) Generate(ctx context.Context, userID int64, kind model.Kind, prompt string) (*Result, error) {
	defer logging.TraceDuration(g.log, "GenerationUC.Generate")()
	prompt, err := g.validate(prompt)
	if err != nil {
		return nil, err
	}
	if kind == model.KindImprove {
		return nil, domain.ErrInvalidArgument
	}
	u, cost, err := g.precheck(ctx, userID, kind, prompt)
	if err != nil {
		return nil, err
	}
	m, err := g.resolveModel(u, kind)
	if err != nil {
		return nil, err
	}
	res := &Result{RequestID: ulid.Make().String(), Kind: kind, ModelName: m.Name, Prompt: prompt}
	log := g.log.With().Str("request_id", res.RequestID).Str("kind", string(kind)).Int64("tg_id", userID).Logger()

	if kind == model.KindText {
		out, err := g.withRetry(ctx, kind, func(ctx context.Context) (string, error) {
			return g.text.GenerateText(ctx, adapter.TextRequest{
				Model:   m.Key,
				System:  m.Style,
				History: history(u),
				Prompt:  prompt,
			})
		})
		if err != nil {
			return nil, g.failed(ctx, &log, kind, err)
		}
		res.Text = out
	} else {
		subject := g.maybeTranslate(ctx, u, prompt)
		n := 1
		if u.IsPremium && u.ImageCount > 1 {
			n = min(u.ImageCount, g.cfg.MaxImageCount)
		}
		for i := 0; i < n; i++ {
			p := subject + ", " + m.Style
			if n > 1 {
				p = fmt.Sprintf("%s --variant %d", p, i+1)
			}
			url, err := g.withRetry(ctx, kind, func(ctx context.Context) (string, error) {
				return g.images.ImageURL(ctx, p)
			})
			if err != nil {
				return nil, g.failed(ctx, &log, kind, err)
			}
			res.ImageURLs = append(res.ImageURLs, url)
		}
	}

	if err := g.settle(ctx, userID, kind, cost, m, res); err != nil {
		return nil, err
	}
	log.Info().Int64("cost", res.Cost).Msg("generation finished")
	return res, nil
}

func history(u *model.User) []adapter.Message {
	if !u.IsPremium || len(u.Context) == 0 {
		return nil
	}
	out := make([]adapter.Message, 0, len(u.Context))
	for _, t := range u.Context {
		out = append(out, adapter.Message{Role: t.Role, Content: t.Content})
	}
	return out
}

// settle charges and records a successful generation in one store update.
// For text the final cost covers prompt and response words and is capped at
// the balance so it never goes negative.
func (g *generationUC) settle(ctx context.Context, userID int64, kind model.Kind, cost int64, m model.GenerationModel, res *Result) error {
	all, err := g.achievements.ListAchievements(ctx)
	if err != nil {
		return err
	}
	now := g.clock.now()
	u, err := g.users.Update(ctx, userID, func(u *model.User) error {
		charge := cost
		if kind == model.KindText && !u.IsPremium {
			charge = textCost(g.cfg, CountWords(res.Prompt)+CountWords(res.Text), m.Multiplier)
			if charge > u.Stars {
				charge = max(cost, u.Stars)
			}
		}
		if u.IsPremium {
			charge = 0
		}
		if err := u.RequireStars(charge); err != nil {
			return err
		}
		res.Cost = charge
		u.Bump(kind, g.cfg.XPPerGeneration)
		u.LastPrompt = res.Prompt
		if kind != model.KindImprove {
			u.LastKind = kind
		}
		if kind == model.KindText && u.IsPremium {
			u.AppendTurn("user", res.Prompt, g.cfg.MaxTurnLength, g.cfg.MaxContextLength)
			u.AppendTurn("assistant", res.Text, g.cfg.MaxTurnLength, g.cfg.MaxContextLength)
		}
		res.Unlocked = u.EvaluateAchievements(all, now)
		return nil
	})
	if err != nil {
		metrics.IncGeneration(string(kind), "rejected")
		return err
	}
	res.User = u
	bumpStat(ctx, g.stats, g.log, model.StatGenerationsPrefix+string(kind), 1)
	if res.Cost > 0 {
		bumpStat(ctx, g.stats, g.log, model.StatStarsSpent, res.Cost)
		metrics.AddStarsSpent(string(kind), res.Cost)
	}
	metrics.IncGeneration(string(kind), "ok")
	return nil
}

func (g *generationUC) failed(ctx context.Context, log *zerolog.Logger, kind model.Kind, err error) error {
	bumpStat(ctx, g.stats, g.log, model.StatGenerationFailed, 1)
	metrics.IncGeneration(string(kind), "failed")
	log.Warn().Err(err).Msg("generation failed")
	return fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
}

// withRetry retries transient failures with doubling delays. A permanent
// failure or a cancelled context stops immediately.
func (g *generationUC) withRetry(ctx context.Context, kind model.Kind, call func(context.Context) (string, error)) (string, error) {
	delay := g.retry.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= g.retry.MaxAttempts; attempt++ {
		out, err := call(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if adapter.IsPermanent(err) || ctx.Err() != nil || attempt == g.retry.MaxAttempts {
			break
		}
		metrics.IncRetry(string(kind))
		g.log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying provider call")
		if err := g.retry.Sleep(ctx, delay); err != nil {
			return "", err
		}
		delay = min(delay*2, maxRetryDelay)
	}
	return "", lastErr
}

// maybeTranslate turns a Cyrillic prompt into English for image providers.
// Any translation failure keeps the original text.
func (g *generationUC) maybeTranslate(ctx context.Context, u *model.User, prompt string) string {
	if !u.Settings.AutoTranslate || !cyrillicRe.MatchString(prompt) {
		return prompt
	}
	out, err := g.text.GenerateText(ctx, adapter.TextRequest{
		Prompt: "Translate this to English without any additional text: " + prompt,
	})
	out = strings.Trim(strings.TrimSpace(out), `"`)
	if err != nil || out == "" {
		g.log.Debug().Err(err).Msg("translation skipped")
		return prompt
	}
	return out
}

func (g *generationUC) GenerateFromTemplate(ctx context.Context, userID int64, templateID, input string) (*Result, error) {
	defer logging.TraceDuration(g.log, "GenerationUC.GenerateFromTemplate")()
	tpl, err := g.templates.FindByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	prompt, err := tpl.Fill(model.ParseTemplateValues(*tpl, input))
	if err != nil {
		return nil, err
	}
	res, err := g.Generate(ctx, userID, tpl.Kind(), prompt)
	if err != nil {
		return nil, err
	}
	if err := g.templates.IncUsage(ctx, tpl.ID); err != nil {
		g.log.Warn().Err(err).Str("template", tpl.ID).Msg("template usage not recorded")
	}
	all, err := g.achievements.ListAchievements(ctx)
	if err != nil {
		return nil, err
	}
	now := g.clock.now()
	u, err := g.users.Update(ctx, userID, func(u *model.User) error {
		u.Counters.Templates++
		res.Unlocked = append(res.Unlocked, u.EvaluateAchievements(all, now)...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.User = u
	return res, nil
}

func improvementPrompt(original string) string {
	return "Improve the following prompt for image generation by adding: " +
		"1. Concrete visual details " +
		"2. Artistic descriptors " +
		"3. Technical quality parameters\n\n" +
		"Original prompt: " + original
}

// Improve rewrites the last image prompt with the text provider and renders
// it again. An improvement failure falls back to the previous prompt.
func (g *generationUC) Improve(ctx context.Context, userID int64) (*Result, error) {
	defer logging.TraceDuration(g.log, "GenerationUC.Improve")()
	u, cost, err := g.precheck(ctx, userID, model.KindImprove, "")
	if err != nil {
		return nil, err
	}
	if u.LastPrompt == "" || !u.LastKind.IsImage() {
		return nil, domain.ErrPromptEmpty
	}
	m, err := g.resolveModel(u, model.KindImage)
	if err != nil {
		return nil, err
	}
	res := &Result{RequestID: ulid.Make().String(), Kind: model.KindImprove, ModelName: m.Name}
	log := g.log.With().Str("request_id", res.RequestID).Str("kind", string(res.Kind)).Int64("tg_id", userID).Logger()

	improved, err := g.withRetry(ctx, model.KindImprove, func(ctx context.Context) (string, error) {
		return g.text.GenerateText(ctx, adapter.TextRequest{Prompt: improvementPrompt(u.LastPrompt)})
	})
	improved = strings.Trim(strings.TrimSpace(improved), `"`)
	if err != nil || improved == "" {
		log.Debug().Err(err).Msg("prompt improvement skipped")
		improved = u.LastPrompt
	}
	if utf8.RuneCountInString(improved) > g.cfg.MaxPromptLength {
		improved = string([]rune(improved)[:g.cfg.MaxPromptLength])
	}
	res.Prompt = improved

	subject := g.maybeTranslate(ctx, u, improved)
	url, err := g.withRetry(ctx, model.KindImprove, func(ctx context.Context) (string, error) {
		return g.images.ImageURL(ctx, subject)
	})
	if err != nil {
		return nil, g.failed(ctx, &log, model.KindImprove, err)
	}
	res.ImageURLs = []string{url}

	if err := g.settle(ctx, userID, model.KindImprove, cost, m, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (g *generationUC) Regenerate(ctx context.Context, userID int64) (*Result, error) {
	defer logging.TraceDuration(g.log, "GenerationUC.Regenerate")()
	u, err := g.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.LastPrompt == "" || u.LastKind == "" {
		return nil, domain.ErrPromptEmpty
	}
	return g.Generate(ctx, userID, u.LastKind, u.LastPrompt)
}

func (g *generationUC) ClearContext(ctx context.Context, userID int64) error {
	_, err := g.users.Update(ctx, userID, func(u *model.User) error {
		u.Context = nil
		return nil
	})
	return err
}
