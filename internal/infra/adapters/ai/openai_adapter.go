package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"telegram-ai-stars/internal/domain/ports/adapter"
	"telegram-ai-stars/internal/infra/metrics"
)

const openaiProvider = "openai"

// Compile-time assurance this adapter satisfies the port
var _ adapter.TextGenerator = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.TextGenerator with Chat Completions. Any
// OpenAI-compatible gateway works through baseURL.
type OpenAIAdapter struct {
	client openai.Client
	model  string
}

func NewOpenAIAdapter(apiKey, baseURL, model string, timeout time.Duration) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &OpenAIAdapter{client: openai.NewClient(opts...), model: model}, nil
}

func (o *OpenAIAdapter) GenerateText(ctx context.Context, req adapter.TextRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.History {
		switch strings.ToLower(m.Role) {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	started := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: messages,
	})
	metrics.ObserveCall(openaiProvider, started, err == nil)
	if err != nil {
		return "", classifyOpenAI(err)
	}
	metrics.ObserveTokens(openaiProvider, o.model, int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens))
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", fmt.Errorf("%s: %w: no choice content", openaiProvider, adapter.ErrTransient)
}

func classifyOpenAI(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &adapter.StatusError{Provider: openaiProvider, Code: apiErr.StatusCode, Body: truncate(apiErr.Message, maxErrorBody)}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", openaiProvider, adapter.ErrTransient, err)
}
