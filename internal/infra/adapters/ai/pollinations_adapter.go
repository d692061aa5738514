package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/infra/metrics"
)

const (
	DefaultPollinationsTextURL  = "https://text.pollinations.ai/prompt/"
	DefaultPollinationsImageURL = "https://image.pollinations.ai/prompt/"

	pollinationsProvider = "pollinations"
	maxErrorBody         = 512
)

var (
	_ adapter.TextGenerator  = (*PollinationsAdapter)(nil)
	_ adapter.ImageGenerator = (*PollinationsAdapter)(nil)
)

// PollinationsAdapter talks to the keyless Pollinations GET endpoints. The
// whole prompt travels in the URL path.
type PollinationsAdapter struct {
	textURL  string
	imageURL string
	prefetch bool
	client   *http.Client
	tokens   adapter.TokenCounter
}

// NewPollinationsAdapter builds the adapter. With prefetch set ImageURL
// downloads the image once so Telegram receives a rendered file.
func NewPollinationsAdapter(textURL, imageURL string, prefetch bool, timeout time.Duration, tokens adapter.TokenCounter) *PollinationsAdapter {
	if textURL == "" {
		textURL = DefaultPollinationsTextURL
	}
	if imageURL == "" {
		imageURL = DefaultPollinationsImageURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PollinationsAdapter{
		textURL:  textURL,
		imageURL: imageURL,
		prefetch: prefetch,
		client:   &http.Client{Timeout: timeout},
		tokens:   tokens,
	}
}

func (p *PollinationsAdapter) GenerateText(ctx context.Context, req adapter.TextRequest) (string, error) {
	prompt := composePrompt(req)
	started := time.Now()
	body, err := p.get(ctx, p.textURL+url.PathEscape(prompt))
	metrics.ObserveCall(pollinationsProvider, started, err == nil)
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(string(body))
	if p.tokens != nil {
		metrics.ObserveTokens(pollinationsProvider, req.Model, p.tokens.CountTokens(req.Model, prompt), p.tokens.CountTokens(req.Model, out))
	}
	return out, nil
}

func (p *PollinationsAdapter) ImageURL(ctx context.Context, prompt string) (string, error) {
	u := p.imageURL + url.PathEscape(prompt) + "?nologo=true"
	if !p.prefetch {
		return u, nil
	}
	started := time.Now()
	_, err := p.get(ctx, u)
	metrics.ObserveCall(pollinationsProvider, started, err == nil)
	if err != nil {
		return "", err
	}
	return u, nil
}

func (p *PollinationsAdapter) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", pollinationsProvider, adapter.ErrTransient, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", pollinationsProvider, adapter.ErrTransient, err)
	}
	if resp.StatusCode >= 300 {
		return nil, &adapter.StatusError{Provider: pollinationsProvider, Code: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}
	return body, nil
}

// composePrompt flattens a request into one text: the style, then the
// history as role-prefixed lines, then the prompt.
func composePrompt(req adapter.TextRequest) string {
	var b strings.Builder
	if req.System != "" {
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}
	for _, m := range req.History {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	if len(req.History) > 0 {
		b.WriteString("user: ")
	}
	b.WriteString(req.Prompt)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
