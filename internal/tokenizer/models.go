package tokenizer

import "strings"

const (
	encCL100k = "cl100k_base"
	encO200k  = "o200k_base"
)

// model describes how one upstream model family is tokenized and billed.
// Prices are USD per million tokens.
type model struct {
	encoding string
	inPerM   float64
	outPerM  float64
}

// models is keyed by model name prefix. Claude and Gemini have no public
// tokenizer and are approximated with cl100k_base.
var models = map[string]model{
	"claude-opus-4":     {encCL100k, 15.00, 75.00},
	"claude-sonnet-4":   {encCL100k, 3.00, 15.00},
	"claude-sonnet-4-5": {encCL100k, 3.00, 15.00},
	"claude-haiku-4-5":  {encCL100k, 0.80, 4.00},

	"gemini-1.5-pro":   {encCL100k, 1.25, 5.00},
	"gemini-2.0-flash": {encCL100k, 0.10, 0.40},
	"gemini-2.5-flash": {encCL100k, 0.30, 2.50},

	"gpt-4":       {encCL100k, 30.00, 60.00},
	"gpt-4-turbo": {encCL100k, 10.00, 30.00},
	"gpt-4o":      {encO200k, 2.50, 10.00},
	"gpt-4o-mini": {encO200k, 0.15, 0.60},
}

// lookup resolves name by exact match, then by longest known prefix, so
// "gpt-4o-mini-2024-07-18" resolves to gpt-4o-mini rather than gpt-4o.
func lookup(name string) (model, bool) {
	if m, ok := models[name]; ok {
		return m, true
	}
	name = strings.ToLower(name)
	var (
		best    model
		bestLen int
	)
	for prefix, m := range models {
		if len(prefix) > bestLen && strings.HasPrefix(name, prefix) {
			best, bestLen = m, len(prefix)
		}
	}
	return best, bestLen > 0
}

// Encoding returns the tiktoken encoding used for name. Unknown models use
// cl100k_base.
func Encoding(name string) string {
	if m, ok := lookup(name); ok {
		return m.encoding
	}
	return encCL100k
}

// EstimateCost prices a generation in USD. Unknown models cost 0.
func EstimateCost(name string, tokensIn, tokensOut int) float64 {
	m, ok := lookup(name)
	if !ok {
		return 0
	}
	return (float64(tokensIn)*m.inPerM + float64(tokensOut)*m.outPerM) / 1_000_000
}
