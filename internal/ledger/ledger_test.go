package ledger

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/storefront-ai/assistant-hub/internal/db"
	"github.com/storefront-ai/assistant-hub/internal/events"
	"github.com/storefront-ai/assistant-hub/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "ledger-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	return conn
}

func createUser(t *testing.T, conn *gorm.DB, username string, points int64) models.User {
	t.Helper()
	user := models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "hash",
		Role:     models.RoleUser,
		Points:   points,
		Enabled:  true,
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func historyCount(t *testing.T, conn *gorm.DB, userID uint64) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.PointsHistory{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count history: %v", err)
	}
	return count
}

func TestCharge_RecordsBalanceSnapshot(t *testing.T) {
	conn := openTestDB(t)
	hub := events.NewHub()
	l := New(conn, hub)
	user := createUser(t, conn, "alice", 10)
	updates, cancel := hub.Subscribe(user.ID)
	defer cancel()

	assistantID := uint64(9)
	balance, err := l.Charge(context.Background(), user.ID, 3, models.PointsTypeUseAssistant, "Used Listing Writer", &assistantID)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if balance != 7 {
		t.Fatalf("expected balance 7, got %d", balance)
	}

	var row models.PointsHistory
	if errFind := conn.Where("user_id = ?", user.ID).Take(&row).Error; errFind != nil {
		t.Fatalf("find history: %v", errFind)
	}
	if row.Points != -3 || row.Balance != 7 || row.Type != models.PointsTypeUseAssistant {
		t.Fatalf("unexpected history row %+v", row)
	}
	if row.AssistantID == nil || *row.AssistantID != assistantID {
		t.Fatalf("expected assistant id on history row")
	}

	select {
	case update := <-updates:
		if update.Points != 7 || update.Delta != -3 || update.Type != string(models.PointsTypeUseAssistant) {
			t.Fatalf("unexpected update %+v", update)
		}
	default:
		t.Fatalf("expected points update after commit")
	}
}

func TestCharge_InsufficientPointsLeavesNoTrace(t *testing.T) {
	conn := openTestDB(t)
	l := New(conn, nil)
	user := createUser(t, conn, "bob", 2)

	_, err := l.Charge(context.Background(), user.ID, 3, models.PointsTypeUseAssistant, "", nil)
	if !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}

	var reloaded models.User
	if errFind := conn.Take(&reloaded, user.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if reloaded.Points != 2 {
		t.Fatalf("expected balance unchanged at 2, got %d", reloaded.Points)
	}
	if historyCount(t, conn, user.ID) != 0 {
		t.Fatalf("expected no history rows")
	}
}

func TestApply_UnknownUser(t *testing.T) {
	conn := openTestDB(t)
	l := New(conn, nil)

	_, err := l.Grant(context.Background(), 404, 5, "bonus")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err = l.Apply(context.Background(), Entry{UserID: 1, Delta: 1, Type: "bogus"}); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
}

func TestCharge_ConcurrentSpendsNeverGoNegative(t *testing.T) {
	conn := openTestDB(t)
	l := New(conn, nil)
	user := createUser(t, conn, "carol", 5)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := l.Charge(context.Background(), user.ID, 2, models.PointsTypeUseAssistant, "", nil); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, ErrInsufficientPoints) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 2 {
		t.Fatalf("expected exactly 2 successful charges of 2 from 5, got %d", successes)
	}
	var reloaded models.User
	if errFind := conn.Take(&reloaded, user.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if reloaded.Points != 1 {
		t.Fatalf("expected balance 1, got %d", reloaded.Points)
	}
	if historyCount(t, conn, user.ID) != 2 {
		t.Fatalf("expected 2 history rows, got %d", historyCount(t, conn, user.ID))
	}
}

func TestHistory_Paginates(t *testing.T) {
	conn := openTestDB(t)
	l := New(conn, nil)
	user := createUser(t, conn, "dave", 0)

	for i := 0; i < 5; i++ {
		if _, err := l.Grant(context.Background(), user.ID, 1, "bonus"); err != nil {
			t.Fatalf("grant: %v", err)
		}
	}

	page, err := l.History(context.Background(), user.ID, 2, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 {
		t.Fatalf("expected total 5 and 2 items, got %d / %d", page.Total, len(page.Items))
	}
	if page.Items[0].Balance != 3 {
		t.Fatalf("expected third-newest balance 3, got %d", page.Items[0].Balance)
	}
}

func TestGrant_RejectsOverflowingDeltas(t *testing.T) {
	conn := openTestDB(t)
	l := New(conn, nil)
	user := createUser(t, conn, "edge", 100)
	ctx := context.Background()

	if _, err := l.Grant(ctx, user.ID, math.MinInt64, "wipe"); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry for MinInt64, got %v", err)
	}
	if _, err := l.Grant(ctx, user.ID, math.MaxInt64, "flood"); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected ErrBalanceOverflow for MaxInt64, got %v", err)
	}

	var reloaded models.User
	if err := conn.Take(&reloaded, user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if reloaded.Points != 100 {
		t.Fatalf("expected balance to stay 100, got %d", reloaded.Points)
	}
	if got := historyCount(t, conn, user.ID); got != 0 {
		t.Fatalf("expected no history rows, got %d", got)
	}

	balance, err := l.Grant(ctx, user.ID, math.MaxInt64-100, "fill")
	if err != nil {
		t.Fatalf("grant up to the ceiling: %v", err)
	}
	if balance != math.MaxInt64 {
		t.Fatalf("expected balance %d, got %d", int64(math.MaxInt64), balance)
	}
}

func TestUserPointsCheckConstraint(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn, "floor", 5)

	if err := conn.Model(&models.User{}).Where("id = ?", user.ID).Update("points", -1).Error; err == nil {
		t.Fatalf("expected negative balance to violate the check constraint")
	}
}
