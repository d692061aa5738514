package sched

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"telegram-ai-stars/internal/infra/logging"

	"github.com/rs/zerolog"
)

// KeepAliveWorker pings the public URL so free hosting does not idle the
// process. It does nothing when url is empty.
type KeepAliveWorker struct {
	interval time.Duration
	url      string
	client   *http.Client
	log      *zerolog.Logger
}

func NewKeepAliveWorker(interval time.Duration, url string, client *http.Client, logger *zerolog.Logger) *KeepAliveWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeepAliveWorker{
		interval: interval,
		url:      url,
		client:   client,
		log:      logging.Component(logger, "KeepAliveWorker"),
	}
}

func (w *KeepAliveWorker) Name() string { return "keepalive" }

func (w *KeepAliveWorker) Run(ctx context.Context) error {
	if w.url == "" {
		w.log.Debug().Msg("no public url, keep-alive disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	w.log.Info().Str("url", w.url).Msg("Starting keep-alive worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping keep-alive worker")
			return ctx.Err()
		case <-ticker.C:
			if err := w.Ping(ctx); err != nil {
				w.log.Warn().Err(err).Msg("keep-alive ping failed")
			}
		}
	}
}

func (w *KeepAliveWorker) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("keep-alive: unexpected status %d", resp.StatusCode)
	}
	return nil
}
