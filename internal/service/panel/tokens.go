package panel

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter wraps a lazily initialized tiktoken encoding. Ark-served
// models do not publish a tokenizer, so cl100k_base is used as a close
// proxy; the budget only needs to be approximately right.
type tokenCounter struct {
	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

const tokenEncoding = "cl100k_base"

func (c *tokenCounter) init() error {
	c.once.Do(func() {
		c.enc, c.initErr = tiktoken.GetEncoding(tokenEncoding)
	})
	return c.initErr
}

// Count returns the token count for text. When the encoding cannot be
// initialized (e.g. offline first run), it estimates at four characters per
// token rather than failing the turn.
func (c *tokenCounter) Count(text string) int {
	if err := c.init(); err != nil {
		return (len(text) + 3) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}
