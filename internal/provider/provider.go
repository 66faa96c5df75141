package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Provider is a chat-completion capable LLM vendor.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req Request) (Result, error)
}

// Request is a single-turn chat request.
type Request struct {
	SystemPrompt string
	Message      string
	UserID       string // Caller identifier forwarded to vendors that track users.
}

// Usage reports token accounting when the vendor returns it.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Result is the text answer of a successful call.
type Result struct {
	Message string
	Usage   Usage
}

// Error is returned by every provider failure.
type Error struct {
	Provider   string
	Op         string
	StatusCode int // HTTP status when the vendor answered, 0 otherwise.
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	errNoAnswer      = errors.New("no answer in response")
	errMalformedBody = errors.New("malformed response body")
	errEmptyMessage  = errors.New("empty message")
)

// maxErrorSnippet bounds how much of a vendor error body is kept in errors.
const maxErrorSnippet = 512

func postJSON(ctx context.Context, client *http.Client, providerName, url, apiKey string, payload any) ([]byte, error) {
	body, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return nil, &Error{Provider: providerName, Op: "encode request", Err: errMarshal}
	}
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if errReq != nil {
		return nil, &Error{Provider: providerName, Op: "build request", Err: errReq}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, errDo := client.Do(req)
	if errDo != nil {
		return nil, &Error{Provider: providerName, Op: "request", Err: errDo}
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warnf("provider %s: close response body failed", providerName)
		}
	}()

	respBody, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, &Error{Provider: providerName, Op: "read response", StatusCode: resp.StatusCode, Err: errRead}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &Error{Provider: providerName, Op: "request", StatusCode: resp.StatusCode, Err: errors.New(vendorErrorMessage(respBody))}
	}
	return respBody, nil
}

// vendorErrorMessage extracts the most specific error text a vendor returned.
func vendorErrorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "msg", "message", "error"} {
			if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
				return v.String()
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response body"
	}
	if len(text) > maxErrorSnippet {
		text = text[:maxErrorSnippet]
	}
	return text
}
