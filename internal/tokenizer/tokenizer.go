// Package tokenizer estimates token usage and cost for generations.
package tokenizer

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const (
	// messageFraming is the per-message overhead of the chat format:
	// <im_start>{role}\n ... <im_end>\n
	messageFraming = 4
	// replyPriming covers <im_start>assistant<im_sep>.
	replyPriming = 3
)

// Tokenizer counts tokens with lazily loaded tiktoken encodings.
// It is safe for concurrent use.
type Tokenizer struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

// New returns an empty Tokenizer. Encodings load on first use.
func New() *Tokenizer {
	return &Tokenizer{encoders: make(map[string]*tiktoken.Tiktoken)}
}

func (t *Tokenizer) encoder(modelName string) *tiktoken.Tiktoken {
	name := Encoding(modelName)

	t.mu.Lock()
	defer t.mu.Unlock()
	if enc, ok := t.encoders[name]; ok {
		return enc
	}
	// A failed load is cached as nil so the BPE file is not refetched per call.
	enc, _ := tiktoken.GetEncoding(name)
	t.encoders[name] = enc
	return enc
}

// Count returns the number of tokens in text, or 0 when the encoding is
// unavailable.
func (t *Tokenizer) Count(modelName, text string) int {
	enc := t.encoder(modelName)
	if enc == nil || text == "" {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}

// Usage returns prompt and completion token counts for one generation.
// The prompt is counted as a single framed user message.
func (t *Tokenizer) Usage(modelName, prompt, completion string) (in, out int) {
	if t.encoder(modelName) == nil {
		return 0, 0
	}
	in = messageFraming + t.Count(modelName, "user") + t.Count(modelName, prompt) + replyPriming
	out = t.Count(modelName, completion)
	return in, out
}
