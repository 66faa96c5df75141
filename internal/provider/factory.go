package provider

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/storefront-ai/assistant-hub/internal/config"
	"github.com/storefront-ai/assistant-hub/internal/models"
)

// Factory builds adapters for assistants, filling missing credentials from the
// server-wide provider defaults.
type Factory struct {
	defaults config.ProvidersConfig
	client   *http.Client
}

// NewFactory constructs a Factory. A nil client gives every adapter its own
// client bounded by the vendor timeout.
func NewFactory(defaults config.ProvidersConfig, client *http.Client) *Factory {
	return &Factory{defaults: defaults, client: client}
}

// Build selects the adapter configured on the assistant.
func (f *Factory) Build(assistant *models.Assistant) (Provider, error) {
	if assistant == nil {
		return nil, fmt.Errorf("provider: nil assistant")
	}
	switch assistant.Config.ModelType {
	case models.ModelTypeCoze:
		return f.coze(assistant.Config), nil
	case models.ModelTypeDeepSeek:
		return f.deepSeek(assistant.Config), nil
	default:
		return nil, fmt.Errorf("provider: unsupported model type %q", assistant.Config.ModelType)
	}
}

// BuildAnalysis returns the DeepSeek adapter used for file analysis. DeepSeek
// assistants use their own binding; others use the default DeepSeek credentials.
func (f *Factory) BuildAnalysis(assistant *models.Assistant) (Provider, error) {
	if assistant == nil {
		return nil, fmt.Errorf("provider: nil assistant")
	}
	if assistant.Config.ModelType == models.ModelTypeDeepSeek {
		return f.deepSeek(assistant.Config), nil
	}
	return f.deepSeek(models.AssistantConfig{
		ModelType:    models.ModelTypeDeepSeek,
		SystemPrompt: assistant.Config.SystemPrompt,
		Temperature:  assistant.Config.Temperature,
	}), nil
}

func (f *Factory) coze(cfg models.AssistantConfig) *Coze {
	d := f.defaults.Coze
	return NewCoze(CozeConfig{
		BotID:   strings.TrimSpace(cfg.BotID),
		APIKey:  firstNonEmpty(cfg.APIKey, d.APIKey),
		APIURL:  firstNonEmpty(cfg.APIURL, d.APIURL, config.DefaultCozeAPIURL),
		Timeout: d.Timeout,
	}, f.client)
}

func (f *Factory) deepSeek(cfg models.AssistantConfig) *DeepSeek {
	d := f.defaults.DeepSeek
	return NewDeepSeek(DeepSeekConfig{
		APIKey:      firstNonEmpty(cfg.APIKey, d.APIKey),
		APIURL:      firstNonEmpty(cfg.APIURL, d.APIURL, config.DefaultDeepSeekAPIURL),
		Model:       firstNonEmpty(cfg.Model, d.Model, config.DefaultDeepSeekModel),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     d.Timeout,
	}, f.client)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
