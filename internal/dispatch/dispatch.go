// Package dispatch runs a chat or file analysis request against an assistant and
// charges the user only when the provider answers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/storefront-ai/assistant-hub/internal/extract"
	"github.com/storefront-ai/assistant-hub/internal/ledger"
	"github.com/storefront-ai/assistant-hub/internal/models"
	"github.com/storefront-ai/assistant-hub/internal/provider"
	"github.com/storefront-ai/assistant-hub/internal/store"
)

// DefaultAnalysisPrompt is used when an analysis request carries no message.
const DefaultAnalysisPrompt = "Analyze the following files and summarize the key findings."

var (
	ErrAssistantNotFound  = errors.New("assistant not found")
	ErrAssistantInactive  = errors.New("assistant is not active")
	ErrAssistantForbidden = errors.New("assistant is not available for this user")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserDisabled       = errors.New("user is disabled")
	ErrEmptyMessage       = errors.New("message is required")
	ErrNoFiles            = errors.New("at least one file is required")
	ErrUnreadableFile     = errors.New("file could not be read")
	// ErrInsufficientPoints matches ledger.ErrInsufficientPoints with errors.Is.
	ErrInsufficientPoints = ledger.ErrInsufficientPoints
)

// ProviderBuilder resolves the adapter for an assistant.
type ProviderBuilder interface {
	Build(assistant *models.Assistant) (provider.Provider, error)
	BuildAnalysis(assistant *models.Assistant) (provider.Provider, error)
}

// Pricing reports runtime pricing switches.
type Pricing interface {
	HonorCustomPointsCost() bool
}

// Outcome is a successful dispatch.
type Outcome struct {
	Message string
	Points  int64 // Balance after the charge.
	Cost    int64
	Usage   provider.Usage
}

// Dispatcher routes requests to providers and settles them on the ledger.
type Dispatcher struct {
	store   *store.Store
	ledger  *ledger.Ledger
	builder ProviderBuilder
	pricing Pricing
	nowFn   func() time.Time
}

// New constructs a Dispatcher.
func New(st *store.Store, l *ledger.Ledger, builder ProviderBuilder, pricing Pricing) *Dispatcher {
	return &Dispatcher{
		store:   st,
		ledger:  l,
		builder: builder,
		pricing: pricing,
		nowFn:   time.Now,
	}
}

// target is a validated assistant and user pair ready to be charged.
type target struct {
	assistant *models.Assistant
	user      *models.User
	cost      int64
}

// Chat sends message to the assistant identified by key.
func (d *Dispatcher) Chat(ctx context.Context, userID uint64, key, message string) (Outcome, error) {
	if strings.TrimSpace(message) == "" {
		return Outcome{}, ErrEmptyMessage
	}
	t, errResolve := d.resolve(ctx, userID, key)
	if errResolve != nil {
		return Outcome{}, errResolve
	}
	p, errBuild := d.builder.Build(t.assistant)
	if errBuild != nil {
		return Outcome{}, fmt.Errorf("dispatch: build provider: %w", errBuild)
	}
	result, errChat := p.Chat(ctx, provider.Request{
		SystemPrompt: t.assistant.Config.SystemPrompt,
		Message:      message,
		UserID:       strconv.FormatUint(userID, 10),
	})
	if errChat != nil {
		logProviderFailure(errChat, t, "chat")
		return Outcome{}, errChat
	}
	return d.settle(ctx, t, result, models.PointsTypeUseAssistant, "Used assistant: "+t.assistant.Name)
}

// Analyze extracts files and asks the analysis provider about them. Every file
// is removed from disk before Analyze returns.
func (d *Dispatcher) Analyze(ctx context.Context, userID uint64, key, prompt string, files []extract.File) (Outcome, error) {
	defer removeFiles(files)

	if len(files) == 0 {
		return Outcome{}, ErrNoFiles
	}
	t, errResolve := d.resolve(ctx, userID, key)
	if errResolve != nil {
		return Outcome{}, errResolve
	}

	message, errBuildPrompt := buildAnalysisPrompt(prompt, files)
	if errBuildPrompt != nil {
		return Outcome{}, errBuildPrompt
	}
	p, errBuild := d.builder.BuildAnalysis(t.assistant)
	if errBuild != nil {
		return Outcome{}, fmt.Errorf("dispatch: build analysis provider: %w", errBuild)
	}
	result, errChat := p.Chat(ctx, provider.Request{
		SystemPrompt: t.assistant.Config.SystemPrompt,
		Message:      message,
		UserID:       strconv.FormatUint(userID, 10),
	})
	if errChat != nil {
		logProviderFailure(errChat, t, "analyze")
		return Outcome{}, errChat
	}
	description := fmt.Sprintf("Analyzed %d file(s) with %s", len(files), t.assistant.Name)
	return d.settle(ctx, t, result, models.PointsTypeAnalyzeFiles, description)
}

// resolve runs every check that must pass before a provider is called.
func (d *Dispatcher) resolve(ctx context.Context, userID uint64, key string) (target, error) {
	assistant, errAssistant := d.store.FindAssistantByKey(ctx, key)
	if errAssistant != nil {
		if errors.Is(errAssistant, store.ErrAssistantNotFound) {
			return target{}, ErrAssistantNotFound
		}
		return target{}, errAssistant
	}
	if !assistant.IsActive {
		return target{}, ErrAssistantInactive
	}

	user, errUser := d.store.FindUser(ctx, userID)
	if errUser != nil {
		if errors.Is(errUser, store.ErrUserNotFound) {
			return target{}, ErrUserNotFound
		}
		return target{}, errUser
	}
	if !user.Enabled {
		return target{}, ErrUserDisabled
	}

	perm, errPerm := d.store.FindPermission(ctx, userID, assistant.ID)
	if errPerm != nil {
		return target{}, errPerm
	}
	cost := assistant.PointsCost
	if perm != nil {
		if !perm.Enabled {
			return target{}, ErrAssistantForbidden
		}
		if perm.CustomPointsCost != nil && *perm.CustomPointsCost >= 0 && d.pricing != nil && d.pricing.HonorCustomPointsCost() {
			cost = *perm.CustomPointsCost
		}
	}
	if user.Points < cost {
		return target{}, ErrInsufficientPoints
	}
	return target{assistant: assistant, user: user, cost: cost}, nil
}

// settle charges the user for a successful provider call.
func (d *Dispatcher) settle(ctx context.Context, t target, result provider.Result, typ models.PointsType, description string) (Outcome, error) {
	assistantID := t.assistant.ID
	balance, errCharge := d.ledger.Charge(ctx, t.user.ID, t.cost, typ, description, &assistantID)
	if errCharge != nil {
		return Outcome{}, errCharge
	}
	if errUsage := d.store.RecordPermissionUsage(ctx, t.user.ID, assistantID, t.cost, d.nowFn().UTC()); errUsage != nil {
		log.WithError(errUsage).WithFields(log.Fields{
			"user_id":      t.user.ID,
			"assistant_id": assistantID,
		}).Warn("dispatch: record permission usage failed")
	}
	return Outcome{Message: result.Message, Points: balance, Cost: t.cost, Usage: result.Usage}, nil
}

func buildAnalysisPrompt(prompt string, files []extract.File) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = DefaultAnalysisPrompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	for _, f := range files {
		text, errText := extract.Text(f)
		if errText != nil {
			return "", fmt.Errorf("%w: %v", ErrUnreadableFile, errText)
		}
		fmt.Fprintf(&b, "\n\n--- File: %s ---\n%s", f.Name, text)
	}
	return b.String(), nil
}

func removeFiles(files []extract.File) {
	for _, f := range files {
		if f.Path == "" {
			continue
		}
		if errRemove := os.Remove(f.Path); errRemove != nil && !errors.Is(errRemove, os.ErrNotExist) {
			log.WithError(errRemove).WithField("path", f.Path).Warn("dispatch: remove upload failed")
		}
	}
}

func logProviderFailure(err error, t target, op string) {
	log.WithError(err).WithFields(log.Fields{
		"op":           op,
		"user_id":      t.user.ID,
		"assistant_id": t.assistant.ID,
		"model_type":   t.assistant.Config.ModelType,
	}).Warn("dispatch: provider call failed")
}
