package ai

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"telegram-ai-stars/internal/domain/ports/adapter"
)

const fallbackEncoding = "cl100k_base"

var _ adapter.TokenCounter = (*TiktokenCounter)(nil)

// TiktokenCounter counts tokens with the model's BPE, falling back to
// cl100k_base and then to a word estimate when no encoding can be loaded.
type TiktokenCounter struct {
	mu   sync.Mutex
	encs map[string]*tiktoken.Tiktoken
}

func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{encs: map[string]*tiktoken.Tiktoken{}}
}

func (c *TiktokenCounter) CountTokens(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := c.encoding(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return EstimateTokens(text)
}

func (c *TiktokenCounter) encoding(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encs[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		enc = nil
	}
	// a failed load is cached too so the BPE download is not retried per call
	c.encs[model] = enc
	return enc
}

// EstimateTokens approximates a token count as four tokens per three words.
func EstimateTokens(text string) int {
	n := len(strings.Fields(text))
	return (n*4 + 2) / 3
}
