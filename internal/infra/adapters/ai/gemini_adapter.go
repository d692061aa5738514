package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/infra/metrics"
)

const geminiProvider = "gemini"

var _ adapter.TextGenerator = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	timeout      time.Duration
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, timeout time.Duration) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel, timeout: timeout}, nil
}

func (g *GeminiAdapter) GenerateText(ctx context.Context, req adapter.TextRequest) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	contents := toGenAIHistory(req.History)
	contents = append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))

	var cfg *genai.GenerateContentConfig
	if req.System != "" {
		cfg = &genai.GenerateContentConfig{SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser)}
	}

	started := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.defaultModel, contents, cfg)
	metrics.ObserveCall(geminiProvider, started, err == nil)
	if err != nil {
		return "", classifyGemini(err)
	}
	if resp.UsageMetadata != nil {
		metrics.ObserveTokens(geminiProvider, g.defaultModel, int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%s: %w: empty candidate", geminiProvider, adapter.ErrTransient)
	}
	return text, nil
}

func toGenAIHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs)+1)
	for _, m := range msgs {
		// Gemini has no system role in history; the style goes through SystemInstruction.
		role := genai.Role(genai.RoleUser)
		if r := strings.ToLower(m.Role); r == "assistant" || r == "model" {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}

func classifyGemini(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &adapter.StatusError{Provider: geminiProvider, Code: apiErr.Code, Body: truncate(apiErr.Message, maxErrorBody)}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", geminiProvider, adapter.ErrTransient, err)
}
