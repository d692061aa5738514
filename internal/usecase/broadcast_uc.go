package usecase

import (
	"context"
	"time"

	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/domain/ports/repository"
	"telegram-ai-stars/internal/infra/metrics"
	"telegram-ai-stars/internal/infra/worker"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Broadcast describes a queued broadcast job.
type Broadcast struct {
	ID         string
	Recipients int
}

type BroadcastUseCase interface {
	// BroadcastMessage queues message for every user except the admin and
	// users who turned notifications off. It returns once the job is started.
	BroadcastMessage(ctx context.Context, message string) (Broadcast, error)
}

type broadcastUC struct {
	users      repository.UserRepository
	bot        adapter.TelegramBotAdapter
	workerPool *worker.Pool
	adminID    int64
	perSecond  int
	log        *zerolog.Logger
}

func NewBroadcastUseCase(
	users repository.UserRepository,
	bot adapter.TelegramBotAdapter,
	pool *worker.Pool,
	adminID int64,
	perSecond int,
	logger *zerolog.Logger,
) BroadcastUseCase {
	if perSecond <= 0 {
		perSecond = 25
	}
	return &broadcastUC{
		users:      users,
		bot:        bot,
		workerPool: pool,
		adminID:    adminID,
		perSecond:  perSecond,
		log:        logger,
	}
}

func (uc *broadcastUC) BroadcastMessage(ctx context.Context, message string) (Broadcast, error) {
	allUsers, err := uc.users.List(ctx)
	if err != nil {
		uc.log.Error().Err(err).Msg("Failed to fetch all users for broadcast")
		return Broadcast{}, err
	}

	var recipients []int64
	for _, user := range allUsers {
		if user.ID != uc.adminID && user.Settings.Notifications {
			recipients = append(recipients, user.ID)
		}
	}
	job := Broadcast{ID: ulid.Make().String(), Recipients: len(recipients)}
	log := uc.log.With().Str("broadcast_id", job.ID).Logger()

	// Throttle to respect Telegram's API limits (approx. 30 messages/sec)
	throttle := time.NewTicker(time.Second / time.Duration(uc.perSecond))
	jobCtx := context.WithoutCancel(ctx)

	go func() {
		defer throttle.Stop()
		log.Info().Int("user_count", len(recipients)).Msg("Starting broadcast job")

		for _, id := range recipients {
			<-throttle.C

			if err := uc.workerPool.SubmitWait(jobCtx, uc.createSendTask(&log, id, message)); err != nil {
				metrics.IncBroadcast("dropped")
				log.Warn().Err(err).Int64("tg_id", id).Msg("Failed to submit broadcast task to worker pool")
			}
		}
		log.Info().Msg("Broadcast job finished queuing all tasks")
	}()

	return job, nil
}

// createSendTask creates a closure for the worker pool to execute.
func (uc *broadcastUC) createSendTask(log *zerolog.Logger, chatID int64, message string) worker.Task {
	return func(ctx context.Context) error {
		if err := uc.bot.SendMessage(ctx, chatID, message); err != nil {
			// Users who blocked the bot end up here.
			metrics.IncBroadcast("failed")
			log.Warn().Err(err).Int64("tg_id", chatID).Msg("Failed to send broadcast message to user")
			return nil
		}
		metrics.IncBroadcast("sent")
		return nil
	}
}
