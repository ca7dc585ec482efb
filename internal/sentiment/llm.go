package sentiment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Providers accepted by NewLLM.
const (
	ProviderMock       = "mock"
	ProviderOpenRouter = "openrouter"

	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
	DefaultLLMModel      = "openai/gpt-oss-120b:free"
)

const systemPrompt = `You are a professional financial analyst with expertise in investment research and market analysis.
Provide objective, data-driven analysis based on quantitative metrics.`

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one completion call. Messages, when set, replace the
// default system prompt plus Prompt pair.
type ChatRequest struct {
	Task        string
	Model       string
	Prompt      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

func (r ChatRequest) conversation() []Message {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: r.Prompt},
	}
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the model's answer.
type Completion struct {
	Content string
	Model   string
	Usage   Usage
}

// LLM completes prompts.
type LLM interface {
	Complete(ctx context.Context, req ChatRequest) (*Completion, error)
}

// LLMConfig selects and configures a provider.
type LLMConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// NewLLM builds the client for cfg.Provider.
func NewLLM(cfg LLMConfig) (LLM, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderMock:
		return MockLLM{}, nil
	case ProviderOpenRouter:
		return NewOpenRouter(cfg), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

// MockLLM echoes the head of the prompt without a network call.
type MockLLM struct{}

func (MockLLM) Complete(ctx context.Context, req ChatRequest) (*Completion, error) {
	msgs := req.conversation()
	return &Completion{
		Content: fmt.Sprintf("[MOCK:%s] %s...", req.Task, truncate(msgs[len(msgs)-1].Content, 60)),
		Model:   ProviderMock,
	}, nil
}

// OpenRouter calls an OpenAI-compatible chat completions endpoint.
type OpenRouter struct {
	client *resty.Client
	apiKey string
}

func NewOpenRouter(cfg LLMConfig) *OpenRouter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenRouter{
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Title", "Market Dashboard"),
		apiKey: cfg.APIKey,
	}
}

type chatResponse struct {
	Model string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

func (o *OpenRouter) Complete(ctx context.Context, req ChatRequest) (*Completion, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("%w: api key not configured", ErrLLMUnavailable)
	}
	model := req.Model
	if model == "" {
		model = DefaultLLMModel
	}
	body := map[string]any{
		"model":       model,
		"messages":    req.conversation(),
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
	}

	var out chatResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetAuthToken(o.apiKey).
		SetBody(body).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d: %s", ErrLLMUnavailable, resp.StatusCode(), truncate(resp.String(), 200))
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrUpstreamContent)
	}
	if out.Model == "" {
		out.Model = model
	}
	return &Completion{Content: out.Choices[0].Message.Content, Model: out.Model, Usage: out.Usage}, nil
}
