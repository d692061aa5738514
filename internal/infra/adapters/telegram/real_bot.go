package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-ai-stars/internal/application"
	"telegram-ai-stars/internal/config"
	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/infra/logging"
	"telegram-ai-stars/internal/infra/metrics"
	red "telegram-ai-stars/internal/infra/redis"
)

var (
	_ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)
	_ adapter.MembershipChecker  = (*RealTelegramBotAdapter)(nil)
)

// botAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(cfg tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Limiter counts events per key in a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RealTelegramBotAdapter polls updates with tgbotapi and drives an
// application.EventHandler. Updates are sharded over workers by user id so
// one user's events are handled in order.
type RealTelegramBotAdapter struct {
	bot         botAPI
	channel     string
	rateLimiter Limiter
	log         *zerolog.Logger

	handler       application.EventHandler
	updateWorkers int

	mu            sync.Mutex
	cancelPolling context.CancelFunc
	stopped       bool
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, channel string, rateLimiter Limiter, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	return newAdapter(bot, cfg.Workers, channel, rateLimiter, logger), nil
}

func newAdapter(bot botAPI, workers int, channel string, rateLimiter Limiter, logger *zerolog.Logger) *RealTelegramBotAdapter {
	if workers <= 0 {
		workers = 5
	}
	return &RealTelegramBotAdapter{
		bot:           bot,
		channel:       channel,
		rateLimiter:   rateLimiter,
		updateWorkers: workers,
		log:           logging.Component(logger, "telegram"),
	}
}

// Username is the bot's @username as reported by getMe.
func (r *RealTelegramBotAdapter) Username() string {
	if b, ok := r.bot.(*tgbotapi.BotAPI); ok {
		return b.Self.UserName
	}
	return ""
}

// SetHandler must be called before StartPolling. The facade needs the
// adapter to send, so the two are wired in two steps.
func (r *RealTelegramBotAdapter) SetHandler(h application.EventHandler) { r.handler = h }

func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if r.handler == nil {
		return errors.New("event handler is nil")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return context.Canceled
	}
	r.cancelPolling = cancel
	r.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	var wg sync.WaitGroup
	shards := make([]chan tgbotapi.Update, r.updateWorkers)
	for i := range shards {
		shards[i] = make(chan tgbotapi.Update, 100)
		wg.Add(1)
		go func(id int, in <-chan tgbotapi.Update) {
			defer wg.Done()
			for up := range in {
				r.handleUpdate(ctx, up)
			}
		}(i, shards[i])
	}
	r.log.Info().Int("workers", r.updateWorkers).Msg("polling started")

	// stop returns once every shard has drained, so no handler is still
	// writing to the store after StartPolling returns.
	stop := func() error {
		r.bot.StopReceivingUpdates()
		for _, s := range shards {
			close(s)
		}
		wg.Wait()
		r.log.Info().Msg("polling stopped")
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return stop()
		case up, ok := <-updates:
			if !ok {
				return stop()
			}
			select {
			case shards[r.shard(up)] <- up:
			case <-ctx.Done():
				return stop()
			}
		}
	}
}

// StopPolling cancels a running StartPolling, or makes a later call return
// at once.
func (r *RealTelegramBotAdapter) StopPolling() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *RealTelegramBotAdapter) shard(up tgbotapi.Update) int {
	var id int64
	if u := up.SentFrom(); u != nil {
		id = u.ID
	} else if up.PreCheckoutQuery != nil && up.PreCheckoutQuery.From != nil {
		id = up.PreCheckoutQuery.From.ID
	}
	if id < 0 {
		id = -id
	}
	return int(id % int64(r.updateWorkers))
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, up tgbotapi.Update) {
	ev, ok := toEvent(up)
	if !ok {
		return
	}
	log := r.log.With().Int("update_id", up.UpdateID).Int64("tg_id", ev.UserID).Str("kind", string(ev.Kind)).Logger()

	switch ev.Kind {
	case application.EventPreCheckout:
		r.answerPreCheckout(ctx, ev, &log)
		return
	case application.EventCallback:
		// Stop telegram spinner when we return
		defer func() {
			if _, err := r.bot.Request(tgbotapi.NewCallback(ev.CallbackID, "")); err != nil {
				log.Debug().Err(err).Msg("callback answer failed")
			}
		}()
	}

	// payments are never rate limited, the stars are already charged
	if ev.Kind != application.EventPayment && !r.allow(ctx, ev, &log) {
		return
	}
	if err := r.handler.HandleEvent(ctx, ev); err != nil {
		log.Error().Err(err).Msg("update handling failed")
	}
}

func (r *RealTelegramBotAdapter) allow(ctx context.Context, ev application.Event, log *zerolog.Logger) bool {
	if r.rateLimiter == nil {
		return true
	}
	allowed, err := r.rateLimiter.Allow(ctx, red.UserCommandKey(ev.UserID, rateKey(ev)))
	if err != nil {
		log.Warn().Err(err).Msg("rate limiter unavailable, allowing")
		return true
	}
	if !allowed {
		metrics.IncRateLimitTriggered()
		log.Info().Msg("rate limit exceeded")
	}
	return allowed
}

func (r *RealTelegramBotAdapter) answerPreCheckout(ctx context.Context, ev application.Event, log *zerolog.Logger) {
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: ev.CallbackID, OK: true}
	if err := r.handler.ValidateInvoice(ctx, ev); err != nil {
		log.Warn().Err(err).Str("payload", ev.Payload).Msg("pre-checkout rejected")
		answer.OK = false
		answer.ErrorMessage = "This item is no longer available."
	}
	if _, err := r.bot.Request(answer); err != nil {
		log.Error().Err(err).Msg("pre-checkout answer failed")
	}
}

func (r *RealTelegramBotAdapter) Deliver(ctx context.Context, chatID int64, s adapter.Screen) (adapter.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return adapter.MessageRef{}, err
	}
	if s.Media == nil {
		m, err := r.bot.Send(textMessage(chatID, s))
		if err != nil {
			return adapter.MessageRef{}, err
		}
		return adapter.MessageRef{ChatID: chatID, MessageID: m.MessageID}, nil
	}

	media, trailer := mediaMessages(chatID, s)
	var ref adapter.MessageRef
	for _, c := range media {
		if group, ok := c.(tgbotapi.MediaGroupConfig); ok {
			if _, err := r.bot.SendMediaGroup(group); err != nil {
				return adapter.MessageRef{}, err
			}
			continue
		}
		m, err := r.bot.Send(c)
		if err != nil {
			return adapter.MessageRef{}, err
		}
		ref = adapter.MessageRef{ChatID: chatID, MessageID: m.MessageID}
	}
	if trailer != nil {
		m, err := r.bot.Send(*trailer)
		if err != nil {
			return adapter.MessageRef{}, err
		}
		ref = adapter.MessageRef{ChatID: chatID, MessageID: m.MessageID}
	}
	return ref, nil
}

func (r *RealTelegramBotAdapter) Edit(ctx context.Context, ref adapter.MessageRef, s adapter.Screen) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Media != nil {
		return errors.New("telegram: media screens cannot be edited in place")
	}
	var c tgbotapi.Chattable
	if kb := keyboard(s.Rows); kb != nil {
		c = tgbotapi.NewEditMessageTextAndMarkup(ref.ChatID, ref.MessageID, s.Text, *kb)
	} else {
		c = tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, s.Text)
	}
	_, err := r.bot.Request(c)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

func (r *RealTelegramBotAdapter) SendInvoice(ctx context.Context, chatID int64, inv adapter.Invoice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.bot.Send(invoiceConfig(chatID, inv))
	return err
}

func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// IsSubscribed checks membership of the configured channel, given as
// @username or numeric chat id.
func (r *RealTelegramBotAdapter) IsSubscribed(ctx context.Context, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if r.channel == "" {
		return true, nil
	}
	who := tgbotapi.ChatConfigWithUser{UserID: userID}
	if id, err := strconv.ParseInt(r.channel, 10, 64); err == nil {
		who.ChatID = id
	} else {
		who.SuperGroupUsername = "@" + strings.TrimPrefix(r.channel, "@")
	}
	m, err := r.bot.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: who})
	if err != nil {
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) && strings.Contains(strings.ToLower(tgErr.Message), "user not found") {
			return false, nil
		}
		return false, fmt.Errorf("get chat member: %w", err)
	}
	return isMember(m), nil
}
