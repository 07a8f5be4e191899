package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"weekly-snippets/internal/domain/ports/adapter"
	"weekly-snippets/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// TokenCounter counts the tokens of text for model.
type TokenCounter func(model, text string) (int, error)

// OpenAIAdapter implements adapter.AIServiceAdapter using the Chat Completions
// API. Any compatible endpoint works via base.
type OpenAIAdapter struct {
	apiKey  string
	base    string // e.g., https://api.openai.com/v1
	model   string
	maxOut  int
	client  *http.Client
	counter TokenCounter
}

func NewOpenAIAdapter(apiKey, base, model string, maxOut int) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &OpenAIAdapter{
		apiKey:  apiKey,
		base:    strings.TrimRight(base, "/"),
		model:   model,
		maxOut:  maxOut,
		client:  &http.Client{Timeout: 60 * time.Second},
		counter: tiktokenCount,
	}, nil
}

// WithTokenCounter replaces the tiktoken based counter.
func (o *OpenAIAdapter) WithTokenCounter(c TokenCounter) *OpenAIAdapter {
	if c != nil {
		o.counter = c
	}
	return o
}

// WithHTTPClient replaces the default client (60s timeout).
func (o *OpenAIAdapter) WithHTTPClient(c *http.Client) *OpenAIAdapter {
	if c != nil {
		o.client = c
	}
	return o
}

// CountTokens approximates the chat format overhead the same way the
// OpenAI cookbook does: 3 tokens per message plus 3 for the reply primer.
func (o *OpenAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	model = modelOrDefault(model, o.model)
	total := 3
	for _, m := range messages {
		n, err := o.counter(model, m.Content)
		if err != nil {
			n = heuristicTokens(m.Content)
		}
		total += n + 3
	}
	return total, nil
}

func (o *OpenAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := o.ChatWithUsage(ctx, model, messages)
	return reply, err
}

func (o *OpenAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	model = modelOrDefault(model, o.model)
	start := time.Now()
	text, u, err := o.complete(ctx, model, messages)
	metrics.ObserveChatUsage("openai", model, u.PromptTokens, u.CompletionTokens, u.TotalTokens,
		int(time.Since(start).Milliseconds()), err == nil)
	return text, u, err
}

type chatRequest struct {
	Model     string            `json:"model"`
	Messages  []adapter.Message `json:"messages"`
	MaxTokens int               `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message adapter.Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (o *OpenAIAdapter) complete(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if len(messages) == 0 {
		return "", adapter.Usage{}, errors.New("openai: no messages")
	}
	b, err := json.Marshal(chatRequest{Model: model, Messages: messages, MaxTokens: o.maxOut})
	if err != nil {
		return "", adapter.Usage{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", adapter.Usage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", adapter.Usage{}, fmt.Errorf("openai http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", adapter.Usage{}, fmt.Errorf("openai: decode response: %w", err)
	}
	u := adapter.Usage{
		PromptTokens:     payload.Usage.PromptTokens,
		CompletionTokens: payload.Usage.CompletionTokens,
		TotalTokens:      payload.Usage.TotalTokens,
	}
	for _, c := range payload.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, u, nil
		}
	}
	return "", u, errors.New("no choice content")
}

var (
	encMu    sync.Mutex
	encCache = map[string]*tiktoken.Tiktoken{}
)

func tiktokenCount(model, text string) (int, error) {
	enc, err := encodingFor(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

func encodingFor(model string) (*tiktoken.Tiktoken, error) {
	encMu.Lock()
	defer encMu.Unlock()
	if enc, ok := encCache[model]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// unknown or non-OpenAI model names
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	encCache[model] = enc
	return enc, nil
}

func heuristicTokens(s string) int {
	return (len(s) + 3) / 4
}
