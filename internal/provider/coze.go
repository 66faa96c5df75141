package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// CozeName identifies the Coze adapter in errors and logs.
const CozeName = "coze"

// FollowUpPrefix marks answers that are a suggested follow-up rather than a reply.
const FollowUpPrefix = "Suggested follow-up: "

// CozeConfig binds a Coze adapter to one bot.
type CozeConfig struct {
	BotID   string
	APIKey  string
	APIURL  string
	Timeout time.Duration
}

// Coze calls the Coze bot chat API.
type Coze struct {
	cfg    CozeConfig
	client *http.Client
}

// cozeChatRequest is the non-streaming chat payload.
type cozeChatRequest struct {
	BotID  string `json:"bot_id"`
	User   string `json:"user"`
	Query  string `json:"query"`
	Stream bool   `json:"stream"`
}

// NewCoze constructs a Coze adapter. A nil client uses one bounded by cfg.Timeout.
func NewCoze(cfg CozeConfig, client *http.Client) *Coze {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Coze{cfg: cfg, client: client}
}

// Name implements Provider.
func (c *Coze) Name() string { return CozeName }

// Chat implements Provider. The bot's own prompt applies; SystemPrompt is ignored.
func (c *Coze) Chat(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Result{}, &Error{Provider: CozeName, Op: "validate", Err: errEmptyMessage}
	}
	if strings.TrimSpace(c.cfg.BotID) == "" {
		return Result{}, &Error{Provider: CozeName, Op: "validate", Err: errors.New("missing bot id")}
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	user := strings.TrimSpace(req.UserID)
	if user == "" {
		user = "anonymous"
	}
	body, errPost := postJSON(ctx, c.client, CozeName, c.cfg.APIURL, c.cfg.APIKey, cozeChatRequest{
		BotID:  c.cfg.BotID,
		User:   user,
		Query:  req.Message,
		Stream: false,
	})
	if errPost != nil {
		return Result{}, errPost
	}

	answer, errParse := parseCozeAnswer(body)
	if errParse != nil {
		return Result{}, &Error{Provider: CozeName, Op: "parse response", Err: errParse}
	}
	return Result{Message: answer}, nil
}

// parseCozeAnswer picks the first assistant answer, falling back to the first
// follow-up suggestion.
func parseCozeAnswer(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", errMalformedBody
	}
	if code := gjson.GetBytes(body, "code"); code.Exists() && code.Int() != 0 {
		msg := strings.TrimSpace(gjson.GetBytes(body, "msg").String())
		if msg == "" {
			msg = "vendor error code " + code.Raw
		}
		return "", errors.New(msg)
	}

	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() {
		return "", errNoAnswer
	}
	var followUp string
	for _, m := range messages.Array() {
		content := m.Get("content")
		if content.Type != gjson.String {
			continue
		}
		switch m.Get("type").String() {
		case "answer":
			if m.Get("role").String() == "assistant" {
				return content.String(), nil
			}
		case "follow_up":
			if followUp == "" {
				followUp = content.String()
			}
		}
	}
	if followUp != "" {
		return FollowUpPrefix + followUp, nil
	}
	return "", errNoAnswer
}
