package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DeepSeekName identifies the DeepSeek adapter in errors and logs.
const DeepSeekName = "deepseek"

// DeepSeekConfig binds a DeepSeek adapter to a model.
type DeepSeekConfig struct {
	APIKey      string
	APIURL      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// DeepSeek calls the OpenAI-compatible DeepSeek chat completions API.
type DeepSeek struct {
	cfg    DeepSeekConfig
	client *http.Client
}

// chatMessage is one message of a chat completion request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest is the non-streaming chat completion payload.
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// NewDeepSeek constructs a DeepSeek adapter. A nil client uses one bounded by cfg.Timeout.
func NewDeepSeek(cfg DeepSeekConfig, client *http.Client) *DeepSeek {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &DeepSeek{cfg: cfg, client: client}
}

// Name implements Provider.
func (d *DeepSeek) Name() string { return DeepSeekName }

// Chat implements Provider.
func (d *DeepSeek) Chat(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Result{}, &Error{Provider: DeepSeekName, Op: "validate", Err: errEmptyMessage}
	}
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	messages := make([]chatMessage, 0, 2)
	if prompt := strings.TrimSpace(req.SystemPrompt); prompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: prompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Message})

	body, errPost := postJSON(ctx, d.client, DeepSeekName, d.cfg.APIURL, d.cfg.APIKey, chatCompletionRequest{
		Model:       d.cfg.Model,
		Messages:    messages,
		Temperature: d.cfg.Temperature,
		MaxTokens:   d.cfg.MaxTokens,
		Stream:      false,
	})
	if errPost != nil {
		return Result{}, errPost
	}

	result, errParse := parseChatCompletion(body)
	if errParse != nil {
		return Result{}, &Error{Provider: DeepSeekName, Op: "parse response", Err: errParse}
	}
	return result, nil
}

func parseChatCompletion(body []byte) (Result, error) {
	if !gjson.ValidBytes(body) {
		return Result{}, errMalformedBody
	}
	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() || content.Type != gjson.String || strings.TrimSpace(content.String()) == "" {
		return Result{}, errNoAnswer
	}
	usage := gjson.GetBytes(body, "usage")
	return Result{
		Message: content.String(),
		Usage: Usage{
			PromptTokens:     usage.Get("prompt_tokens").Int(),
			CompletionTokens: usage.Get("completion_tokens").Int(),
			TotalTokens:      usage.Get("total_tokens").Int(),
		},
	}, nil
}
