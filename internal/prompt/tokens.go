package prompt

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many tokens a text costs.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter returns a cl100k_base counter. When the encoding cannot be
// loaded it estimates four characters per token.
func NewTokenCounter() TokenCounter {
	return &tiktokenCounter{}
}

func (c *tiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			c.enc = enc
		}
	})
	if c.enc == nil {
		return EstimateTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

var defaultCounter = NewTokenCounter()

// EstimateTokens is the character-based fallback estimate.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}

// CharCounter counts with EstimateTokens only.
type CharCounter struct{}

func (CharCounter) Count(text string) int { return EstimateTokens(text) }
