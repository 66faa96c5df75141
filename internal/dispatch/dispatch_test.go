package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/storefront-ai/assistant-hub/internal/config"
	"github.com/storefront-ai/assistant-hub/internal/db"
	"github.com/storefront-ai/assistant-hub/internal/extract"
	"github.com/storefront-ai/assistant-hub/internal/ledger"
	"github.com/storefront-ai/assistant-hub/internal/models"
	"github.com/storefront-ai/assistant-hub/internal/provider"
	"github.com/storefront-ai/assistant-hub/internal/store"
	"gorm.io/gorm"
)

type pricingStub bool

func (p pricingStub) HonorCustomPointsCost() bool { return bool(p) }

type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	requests []provider.Request
	reply    func(req provider.Request) (provider.Result, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(_ context.Context, req provider.Request) (provider.Result, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.reply == nil {
		return provider.Result{Message: "ok"}, nil
	}
	return f.reply(req)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBuilder struct {
	chat     provider.Provider
	analysis provider.Provider
}

func (b fakeBuilder) Build(*models.Assistant) (provider.Provider, error) { return b.chat, nil }

func (b fakeBuilder) BuildAnalysis(*models.Assistant) (provider.Provider, error) {
	return b.analysis, nil
}

type fixture struct {
	conn       *gorm.DB
	dispatcher *Dispatcher
	user       models.User
	assistant  models.Assistant
}

func newFixture(t *testing.T, builder ProviderBuilder, pricing Pricing, points, cost int64) *fixture {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "dispatch-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	t.Cleanup(func() { _ = db.Close(conn) })

	user := models.User{Username: "shopper", Email: "shopper@example.com", Password: "hash", Role: models.RoleUser, Points: points, Enabled: true}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	assistant := models.Assistant{
		Key:        "listing-writer",
		Name:       "Listing Writer",
		Config:     models.AssistantConfig{ModelType: models.ModelTypeCoze, BotID: "bot-1"},
		PointsCost: cost,
		IsActive:   true,
	}
	if errCreate := conn.Create(&assistant).Error; errCreate != nil {
		t.Fatalf("create assistant: %v", errCreate)
	}

	return &fixture{
		conn:       conn,
		dispatcher: New(store.New(conn), ledger.New(conn, nil), builder, pricing),
		user:       user,
		assistant:  assistant,
	}
}

func (f *fixture) points(t *testing.T) int64 {
	t.Helper()
	var user models.User
	if err := f.conn.Take(&user, f.user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return user.Points
}

func (f *fixture) history(t *testing.T) []models.PointsHistory {
	t.Helper()
	var rows []models.PointsHistory
	if err := f.conn.Where("user_id = ?", f.user.ID).Order("id").Find(&rows).Error; err != nil {
		t.Fatalf("load history: %v", err)
	}
	return rows
}

func TestChat_InsufficientPointsMutatesNothing(t *testing.T) {
	fake := &fakeProvider{}
	f := newFixture(t, fakeBuilder{chat: fake}, pricingStub(false), 2, 3)

	_, err := f.dispatcher.Chat(context.Background(), f.user.ID, f.assistant.Key, "hi")
	if !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	if fake.callCount() != 0 {
		t.Fatalf("expected no provider call")
	}
	if got := f.points(t); got != 2 {
		t.Fatalf("expected balance 2, got %d", got)
	}
	if rows := f.history(t); len(rows) != 0 {
		t.Fatalf("expected no history, got %d rows", len(rows))
	}
}

func TestChat_CozeAnswerChargesOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"messages":[{"role":"assistant","type":"answer","content":"Hello"}]}`))
	}))
	defer srv.Close()

	defaults := config.Default().Providers
	defaults.Coze.APIURL = srv.URL
	f := newFixture(t, provider.NewFactory(defaults, srv.Client()), pricingStub(false), 10, 3)

	outcome, err := f.dispatcher.Chat(context.Background(), f.user.ID, f.assistant.Key, "hi")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if outcome.Message != "Hello" || outcome.Points != 7 || outcome.Cost != 3 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	rows := f.history(t)
	if len(rows) != 1 {
		t.Fatalf("expected one history row, got %d", len(rows))
	}
	if rows[0].Type != models.PointsTypeUseAssistant || rows[0].Balance != 7 || rows[0].Points != -3 {
		t.Fatalf("unexpected history row %+v", rows[0])
	}
	if got := f.points(t); got != rows[0].Balance {
		t.Fatalf("expected balance %d to match history, got %d", rows[0].Balance, got)
	}

	var perm models.UserAssistantPermission
	if errPerm := f.conn.Where("user_id = ? AND assistant_id = ?", f.user.ID, f.assistant.ID).Take(&perm).Error; errPerm != nil {
		t.Fatalf("load usage: %v", errPerm)
	}
	if perm.UsageCount != 1 || perm.PointsSpent != 3 || !perm.Enabled {
		t.Fatalf("unexpected usage counters %+v", perm)
	}
}

func TestChat_ProviderFailureIsFree(t *testing.T) {
	fake := &fakeProvider{reply: func(provider.Request) (provider.Result, error) {
		return provider.Result{}, &provider.Error{Provider: "fake", Op: "post", StatusCode: http.StatusBadGateway, Err: errors.New("upstream down")}
	}}
	f := newFixture(t, fakeBuilder{chat: fake}, pricingStub(false), 10, 3)

	_, err := f.dispatcher.Chat(context.Background(), f.user.ID, f.assistant.Key, "hi")
	var perr *provider.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if got := f.points(t); got != 10 {
		t.Fatalf("expected balance unchanged, got %d", got)
	}
	if rows := f.history(t); len(rows) != 0 {
		t.Fatalf("expected no history, got %d rows", len(rows))
	}
}

func TestChat_RejectsBeforeProviderCall(t *testing.T) {
	fake := &fakeProvider{}
	f := newFixture(t, fakeBuilder{chat: fake}, pricingStub(false), 10, 3)
	ctx := context.Background()

	if _, err := f.dispatcher.Chat(ctx, f.user.ID, "missing", "hi"); !errors.Is(err, ErrAssistantNotFound) {
		t.Fatalf("expected ErrAssistantNotFound, got %v", err)
	}
	if _, err := f.dispatcher.Chat(ctx, f.user.ID, f.assistant.Key, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}

	if err := f.conn.Model(&models.Assistant{}).Where("id = ?", f.assistant.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.dispatcher.Chat(ctx, f.user.ID, f.assistant.Key, "hi"); !errors.Is(err, ErrAssistantInactive) {
		t.Fatalf("expected ErrAssistantInactive, got %v", err)
	}
	if err := f.conn.Model(&models.Assistant{}).Where("id = ?", f.assistant.ID).Update("is_active", true).Error; err != nil {
		t.Fatalf("reactivate: %v", err)
	}

	disabled := false
	if _, err := store.New(f.conn).UpsertPermission(ctx, f.user.ID, f.assistant.ID, store.PermissionUpdate{Enabled: &disabled}); err != nil {
		t.Fatalf("upsert permission: %v", err)
	}
	if _, err := f.dispatcher.Chat(ctx, f.user.ID, f.assistant.Key, "hi"); !errors.Is(err, ErrAssistantForbidden) {
		t.Fatalf("expected ErrAssistantForbidden, got %v", err)
	}

	if err := f.conn.Model(&models.User{}).Where("id = ?", f.user.ID).Update("enabled", false).Error; err != nil {
		t.Fatalf("disable user: %v", err)
	}
	if _, err := f.dispatcher.Chat(ctx, f.user.ID, f.assistant.Key, "hi"); !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("expected ErrUserDisabled, got %v", err)
	}
	if _, err := f.dispatcher.Chat(ctx, 999, f.assistant.Key, "hi"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if fake.callCount() != 0 {
		t.Fatalf("expected no provider call, got %d", fake.callCount())
	}
}

func TestChat_CustomCostRequiresSetting(t *testing.T) {
	for _, tc := range []struct {
		name    string
		honor   bool
		balance int64
	}{
		{"ignored", false, 7},
		{"honored", true, 9},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, fakeBuilder{chat: &fakeProvider{}}, pricingStub(tc.honor), 10, 3)
			custom := int64(1)
			if _, err := store.New(f.conn).UpsertPermission(context.Background(), f.user.ID, f.assistant.ID, store.PermissionUpdate{CustomPointsCost: &custom}); err != nil {
				t.Fatalf("upsert permission: %v", err)
			}
			outcome, err := f.dispatcher.Chat(context.Background(), f.user.ID, f.assistant.Key, "hi")
			if err != nil {
				t.Fatalf("chat: %v", err)
			}
			if outcome.Points != tc.balance {
				t.Fatalf("expected balance %d, got %d", tc.balance, outcome.Points)
			}
		})
	}
}

func writeUpload(t *testing.T, dir, name string, data []byte) extract.File {
	t.Helper()
	path := filepath.Join(dir, "tmp-"+name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	return extract.File{Name: name, Path: path, Size: int64(len(data))}
}

func TestAnalyze_BuildsPromptAndRemovesFiles(t *testing.T) {
	for _, fail := range []bool{false, true} {
		fake := &fakeProvider{reply: func(provider.Request) (provider.Result, error) {
			if fail {
				return provider.Result{}, &provider.Error{Provider: "fake", Op: "post", Err: errors.New("boom")}
			}
			return provider.Result{Message: "Sales are up"}, nil
		}}
		f := newFixture(t, fakeBuilder{analysis: fake}, pricingStub(false), 10, 4)
		dir := t.TempDir()
		files := []extract.File{
			writeUpload(t, dir, "orders.csv", []byte("sku,qty\nA-1,3\n")),
			writeUpload(t, dir, "shelf.png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")),
		}

		outcome, err := f.dispatcher.Analyze(context.Background(), f.user.ID, f.assistant.Key, "", files)
		if fail {
			if err == nil {
				t.Fatalf("expected provider failure")
			}
			if got := f.points(t); got != 10 {
				t.Fatalf("expected balance unchanged after failure, got %d", got)
			}
		} else {
			if err != nil {
				t.Fatalf("analyze: %v", err)
			}
			if outcome.Message != "Sales are up" || outcome.Points != 6 {
				t.Fatalf("unexpected outcome %+v", outcome)
			}
			rows := f.history(t)
			if len(rows) != 1 || rows[0].Type != models.PointsTypeAnalyzeFiles {
				t.Fatalf("expected one analyze_files row, got %+v", rows)
			}
		}

		if fake.callCount() != 1 {
			t.Fatalf("expected one provider call, got %d", fake.callCount())
		}
		msg := fake.requests[0].Message
		for _, want := range []string{
			DefaultAnalysisPrompt,
			"--- File: orders.csv ---\nsku\tqty\nA-1\t3\n",
			"--- File: shelf.png ---\n[image/png file, size: 0.02KB]",
		} {
			if !strings.Contains(msg, want) {
				t.Fatalf("expected %q in prompt %q", want, msg)
			}
		}
		for _, file := range files {
			if _, errStat := os.Stat(file.Path); !errors.Is(errStat, os.ErrNotExist) {
				t.Fatalf("expected %s to be removed (fail=%v)", file.Name, fail)
			}
		}
	}
}

func TestAnalyze_RemovesFilesOnRejection(t *testing.T) {
	f := newFixture(t, fakeBuilder{analysis: &fakeProvider{}}, pricingStub(false), 1, 4)
	file := writeUpload(t, t.TempDir(), "notes.txt", []byte("hello"))

	if _, err := f.dispatcher.Analyze(context.Background(), f.user.ID, f.assistant.Key, "summarize", []extract.File{file}); !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	if _, errStat := os.Stat(file.Path); !errors.Is(errStat, os.ErrNotExist) {
		t.Fatalf("expected upload to be removed")
	}
	if _, err := f.dispatcher.Analyze(context.Background(), f.user.ID, f.assistant.Key, "", nil); !errors.Is(err, ErrNoFiles) {
		t.Fatalf("expected ErrNoFiles, got %v", err)
	}
}

func TestChat_ConcurrentCallsChargeOnce(t *testing.T) {
	const callers = 2
	var (
		mu      sync.Mutex
		arrived int
	)
	release := make(chan struct{})
	barrier := &fakeProvider{reply: func(provider.Request) (provider.Result, error) {
		mu.Lock()
		arrived++
		if arrived == callers {
			close(release)
		}
		mu.Unlock()
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
		return provider.Result{Message: "ok"}, nil
	}}
	f := newFixture(t, fakeBuilder{chat: barrier}, pricingStub(false), 3, 3)

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.dispatcher.Chat(context.Background(), f.user.ID, f.assistant.Key, "hi")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInsufficientPoints):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}
	if barrier.callCount() != callers {
		t.Fatalf("expected both callers to reach the provider, got %d", barrier.callCount())
	}
	if got := f.points(t); got != 0 {
		t.Fatalf("expected balance 0, got %d", got)
	}
	if rows := f.history(t); len(rows) != 1 {
		t.Fatalf("expected one history row, got %d", len(rows))
	}
}
