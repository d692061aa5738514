package adapter

import (
	"context"
	"errors"
	"fmt"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// TextRequest is one text generation call. History is the premium rolling
// context; System carries the model style.
type TextRequest struct {
	Model   string
	System  string
	History []Message
	Prompt  string
}

// Usage is a best-effort token count for a single call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// TextGenerator is the port for text generation providers.
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

// ImageGenerator is the port for image providers. It returns a URL the chat
// transport can show directly.
type ImageGenerator interface {
	ImageURL(ctx context.Context, prompt string) (string, error)
}

// TokenCounter estimates tokens for metrics.
type TokenCounter interface {
	CountTokens(model, text string) int
}

var (
	// ErrPermanent marks failures retrying cannot fix (4xx, bad input).
	ErrPermanent = errors.New("permanent provider failure")
	// ErrTransient marks failures worth retrying (5xx, network, timeout).
	ErrTransient = errors.New("transient provider failure")
)

// StatusError carries the HTTP status a provider answered with.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Body)
	}
	return fmt.Sprintf("%s: status %d", e.Provider, e.Code)
}

// Unwrap exposes the classification so callers can use errors.Is.
func (e *StatusError) Unwrap() error {
	if e.Code >= 400 && e.Code < 500 && e.Code != 408 && e.Code != 429 {
		return ErrPermanent
	}
	return ErrTransient
}

// IsPermanent reports whether err should stop a retry loop.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
