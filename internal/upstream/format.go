package upstream

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/allaspectsdev/genrelay/internal/orchestrator"
)

const anthropicVersion = "2023-06-01"

// wireFormat describes one provider API dialect.
type wireFormat struct {
	path      string
	encode    func(orchestrator.CallRequest) ([]byte, error)
	decode    func([]byte) (string, error)
	authorize func(*http.Request, string)
}

func formatFor(name string) wireFormat {
	if name == "anthropic" {
		return anthropicFormat
	}
	return openAIFormat
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

var openAIFormat = wireFormat{
	path: "/chat/completions",
	encode: func(r orchestrator.CallRequest) ([]byte, error) {
		return json.Marshal(openAIRequest{
			Model:       r.Model,
			Messages:    []chatMessage{{Role: "user", Content: r.Prompt}},
			Temperature: r.Temperature,
			MaxTokens:   r.MaxOutputTokens,
		})
	},
	decode: func(raw []byte) (string, error) {
		var resp openAIResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("response has no choices")
		}
		return resp.Choices[0].Message.Content, nil
	},
	authorize: func(req *http.Request, key string) {
		req.Header.Set("Authorization", "Bearer "+key)
	},
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

var anthropicFormat = wireFormat{
	path: "/messages",
	encode: func(r orchestrator.CallRequest) ([]byte, error) {
		return json.Marshal(anthropicRequest{
			Model:       r.Model,
			Messages:    []chatMessage{{Role: "user", Content: r.Prompt}},
			MaxTokens:   r.MaxOutputTokens,
			Temperature: r.Temperature,
		})
	},
	decode: func(raw []byte) (string, error) {
		var resp anthropicResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		return sb.String(), nil
	},
	authorize: func(req *http.Request, key string) {
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", anthropicVersion)
	},
}
