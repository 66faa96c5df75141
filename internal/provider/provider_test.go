package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/storefront-ai/assistant-hub/internal/config"
	"github.com/storefront-ai/assistant-hub/internal/models"
)

func newJSONServer(t *testing.T, status int, body string, inspect func(r *http.Request, payload map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(raw, &payload)
		if inspect != nil {
			inspect(r, payload)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCoze_PicksAssistantAnswer(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]any
	srv := newJSONServer(t, http.StatusOK, `{"code":0,"msg":"success","messages":[
		{"role":"assistant","type":"verbose","content":"{}"},
		{"role":"assistant","type":"answer","content":"Hello"},
		{"role":"assistant","type":"follow_up","content":"Ask more"}]}`,
		func(r *http.Request, payload map[string]any) {
			gotAuth = r.Header.Get("Authorization")
			gotPayload = payload
		})

	coze := NewCoze(CozeConfig{BotID: "bot-1", APIKey: "key-1", APIURL: srv.URL, Timeout: time.Second}, srv.Client())
	result, err := coze.Chat(context.Background(), Request{Message: "hi", UserID: "42"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if result.Message != "Hello" {
		t.Fatalf("expected Hello, got %q", result.Message)
	}
	if gotAuth != "Bearer key-1" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotPayload["bot_id"] != "bot-1" || gotPayload["user"] != "42" || gotPayload["query"] != "hi" || gotPayload["stream"] != false {
		t.Fatalf("unexpected payload %v", gotPayload)
	}
}

func TestCoze_FollowUpFallback(t *testing.T) {
	srv := newJSONServer(t, http.StatusOK, `{"code":0,"messages":[{"role":"assistant","type":"follow_up","content":"What size?"}]}`, nil)

	result, err := NewCoze(CozeConfig{BotID: "b", APIURL: srv.URL}, srv.Client()).Chat(context.Background(), Request{Message: "hi"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if result.Message != FollowUpPrefix+"What size?" {
		t.Fatalf("unexpected follow-up message %q", result.Message)
	}
}

func TestCoze_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"vendor code", http.StatusOK, `{"code":700012006,"msg":"bot not published"}`, "bot not published"},
		{"no answer", http.StatusOK, `{"code":0,"messages":[]}`, "no answer in response"},
		{"malformed", http.StatusOK, `<html>`, "malformed response body"},
		{"http status", http.StatusUnauthorized, `{"msg":"invalid token"}`, "status 401"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newJSONServer(t, tc.status, tc.body, nil)
			_, err := NewCoze(CozeConfig{BotID: "b", APIURL: srv.URL}, srv.Client()).Chat(context.Background(), Request{Message: "hi"})
			var perr *Error
			if !errors.As(err, &perr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if perr.Provider != CozeName {
				t.Fatalf("unexpected provider %q", perr.Provider)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, err.Error())
			}
		})
	}
}

func TestCoze_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewCoze(CozeConfig{BotID: "b", APIURL: srv.URL, Timeout: 50 * time.Millisecond}, srv.Client()).
		Chat(context.Background(), Request{Message: "hi"})
	var perr *Error
	if !errors.As(err, &perr) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline provider error, got %v", err)
	}
}

func TestDeepSeek_Chat(t *testing.T) {
	var gotPayload map[string]any
	srv := newJSONServer(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"Ranked list"}}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`,
		func(_ *http.Request, payload map[string]any) { gotPayload = payload })

	ds := NewDeepSeek(DeepSeekConfig{APIKey: "k", APIURL: srv.URL, Model: "deepseek-chat", Temperature: 0.3}, srv.Client())
	result, err := ds.Chat(context.Background(), Request{SystemPrompt: "You are a merchandiser.", Message: "rank these"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if result.Message != "Ranked list" || result.Usage.TotalTokens != 15 {
		t.Fatalf("unexpected result %+v", result)
	}
	messages, _ := gotPayload["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %v", gotPayload["messages"])
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "system" {
		t.Fatalf("expected system message first, got %v", first)
	}
	if gotPayload["model"] != "deepseek-chat" {
		t.Fatalf("unexpected model %v", gotPayload["model"])
	}
}

func TestDeepSeek_MalformedChoicesIsError(t *testing.T) {
	for _, body := range []string{`{"choices":[]}`, `{"choices":[{"message":{"content":null}}]}`, `{"error":{"message":"x"}}`} {
		srv := newJSONServer(t, http.StatusOK, body, nil)
		_, err := NewDeepSeek(DeepSeekConfig{APIURL: srv.URL}, srv.Client()).Chat(context.Background(), Request{Message: "hi"})
		var perr *Error
		if !errors.As(err, &perr) || perr.Provider != DeepSeekName {
			t.Fatalf("expected deepseek provider error for %s, got %v", body, err)
		}
	}
}

func TestDeepSeek_VendorErrorMessage(t *testing.T) {
	srv := newJSONServer(t, http.StatusPaymentRequired, `{"error":{"message":"Insufficient Balance","type":"unknown_error"}}`, nil)
	_, err := NewDeepSeek(DeepSeekConfig{APIURL: srv.URL}, srv.Client()).Chat(context.Background(), Request{Message: "hi"})
	var perr *Error
	if !errors.As(err, &perr) || perr.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402 provider error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Insufficient Balance") {
		t.Fatalf("expected vendor message in %q", err.Error())
	}
}

func TestFactory_SelectsByModelType(t *testing.T) {
	defaults := config.Default().Providers
	defaults.DeepSeek.APIKey = "default-ds"
	factory := NewFactory(defaults, nil)

	p, err := factory.Build(&models.Assistant{Config: models.AssistantConfig{ModelType: models.ModelTypeCoze, BotID: "b"}})
	if err != nil || p.Name() != CozeName {
		t.Fatalf("expected coze adapter, got %v err=%v", p, err)
	}
	p, err = factory.Build(&models.Assistant{Config: models.AssistantConfig{ModelType: models.ModelTypeDeepSeek}})
	if err != nil || p.Name() != DeepSeekName {
		t.Fatalf("expected deepseek adapter, got %v err=%v", p, err)
	}
	ds := p.(*DeepSeek)
	if ds.cfg.APIKey != "default-ds" || ds.cfg.Model != config.DefaultDeepSeekModel {
		t.Fatalf("expected defaults to fill deepseek config, got %+v", ds.cfg)
	}
	if _, err = factory.Build(&models.Assistant{Config: models.AssistantConfig{ModelType: "openai"}}); err == nil {
		t.Fatalf("expected error for unsupported model type")
	}

	p, err = factory.BuildAnalysis(&models.Assistant{Config: models.AssistantConfig{ModelType: models.ModelTypeCoze, APIKey: "coze-key", SystemPrompt: "Be brief."}})
	if err != nil || p.Name() != DeepSeekName {
		t.Fatalf("expected analysis to use deepseek, got %v err=%v", p, err)
	}
	if p.(*DeepSeek).cfg.APIKey != "default-ds" {
		t.Fatalf("expected coze key not to leak into deepseek, got %q", p.(*DeepSeek).cfg.APIKey)
	}
}
