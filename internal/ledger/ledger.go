package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/storefront-ai/assistant-hub/internal/events"
	"github.com/storefront-ai/assistant-hub/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrInsufficientPoints is returned when an entry would take a balance below zero.
	ErrInsufficientPoints = errors.New("ledger: insufficient points")
	// ErrUserNotFound is returned when the entry targets a missing user.
	ErrUserNotFound = errors.New("ledger: user not found")
	// ErrInvalidEntry is returned for entries with an unknown type or no user.
	ErrInvalidEntry = errors.New("ledger: invalid entry")
	// ErrBalanceOverflow is returned when a credit would exceed the largest storable balance.
	ErrBalanceOverflow = errors.New("ledger: balance overflow")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Entry is a signed balance change.
type Entry struct {
	UserID      uint64
	Delta       int64
	Type        models.PointsType
	Description string
	AssistantID *uint64
}

// Ledger applies balance changes and keeps the append-only history.
type Ledger struct {
	db   *gorm.DB
	sink events.Sink
	now  func() time.Time
}

// New constructs a Ledger. A nil sink discards updates.
func New(db *gorm.DB, sink events.Sink) *Ledger {
	if sink == nil {
		sink = events.Nop{}
	}
	return &Ledger{db: db, sink: sink, now: time.Now}
}

// Apply commits entry in its own transaction and publishes the new balance.
func (l *Ledger) Apply(ctx context.Context, entry Entry) (int64, error) {
	var row models.PointsHistory
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var errApply error
		row, errApply = l.ApplyTx(ctx, tx, entry)
		return errApply
	})
	if errTx != nil {
		return 0, errTx
	}
	l.Publish(ctx, row)
	return row.Balance, nil
}

// ApplyTx applies entry inside tx. The caller owns the transaction and should
// call Publish after it commits.
func (l *Ledger) ApplyTx(ctx context.Context, tx *gorm.DB, entry Entry) (models.PointsHistory, error) {
	if entry.UserID == 0 || !entry.Type.Valid() || entry.Delta == math.MinInt64 {
		return models.PointsHistory{}, ErrInvalidEntry
	}
	now := l.now().UTC()

	// The floor is part of the UPDATE so concurrent spends cannot both pass it.
	update := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", entry.UserID)
	switch {
	case entry.Delta < 0:
		update = update.Where("points >= ?", -entry.Delta)
	case entry.Delta > 0:
		update = update.Where("points <= ?", math.MaxInt64-entry.Delta)
	}
	res := update.Updates(map[string]any{
		"points":     gorm.Expr("points + ?", entry.Delta),
		"updated_at": now,
	})
	if res.Error != nil {
		return models.PointsHistory{}, fmt.Errorf("ledger: update balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if errCount := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", entry.UserID).Count(&count).Error; errCount != nil {
			return models.PointsHistory{}, fmt.Errorf("ledger: check user: %w", errCount)
		}
		if count == 0 {
			return models.PointsHistory{}, ErrUserNotFound
		}
		if entry.Delta > 0 {
			return models.PointsHistory{}, ErrBalanceOverflow
		}
		return models.PointsHistory{}, ErrInsufficientPoints
	}

	var user models.User
	if errFind := tx.WithContext(ctx).Select("id", "points").Take(&user, entry.UserID).Error; errFind != nil {
		return models.PointsHistory{}, fmt.Errorf("ledger: read balance: %w", errFind)
	}

	row := models.PointsHistory{
		UserID:      entry.UserID,
		Points:      entry.Delta,
		Type:        entry.Type,
		Description: strings.TrimSpace(entry.Description),
		Balance:     user.Points,
		AssistantID: entry.AssistantID,
		CreatedAt:   now,
	}
	if errCreate := tx.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return models.PointsHistory{}, fmt.Errorf("ledger: append history: %w", errCreate)
	}
	return row, nil
}

// Publish sends a committed entry to the event sink. Failures are logged only.
func (l *Ledger) Publish(ctx context.Context, row models.PointsHistory) {
	update := events.PointsUpdate{
		UserID:      row.UserID,
		Points:      row.Balance,
		Delta:       row.Points,
		Type:        string(row.Type),
		Description: row.Description,
		At:          row.CreatedAt,
	}
	if errPublish := l.sink.PublishPointsUpdate(ctx, update); errPublish != nil {
		log.WithError(errPublish).WithField("user_id", row.UserID).Warn("ledger: publish points update failed")
	}
}

// Charge deducts cost from the user's balance.
func (l *Ledger) Charge(ctx context.Context, userID uint64, cost int64, typ models.PointsType, description string, assistantID *uint64) (int64, error) {
	if cost < 0 {
		return 0, ErrInvalidEntry
	}
	return l.Apply(ctx, Entry{
		UserID:      userID,
		Delta:       -cost,
		Type:        typ,
		Description: description,
		AssistantID: assistantID,
	})
}

// Grant adds (or, with a negative amount, removes) points on behalf of an admin.
func (l *Ledger) Grant(ctx context.Context, userID uint64, amount int64, description string) (int64, error) {
	return l.Apply(ctx, Entry{
		UserID:      userID,
		Delta:       amount,
		Type:        models.PointsTypeAdminGrant,
		Description: description,
	})
}

// Page is one page of history entries.
type Page struct {
	Items    []models.PointsHistory
	Total    int64
	Page     int
	PageSize int
}

// History lists a user's entries newest first.
func (l *Ledger) History(ctx context.Context, userID uint64, page, pageSize int) (Page, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	scoped := func() *gorm.DB {
		return l.db.WithContext(ctx).Model(&models.PointsHistory{}).Where("user_id = ?", userID)
	}
	var total int64
	if errCount := scoped().Count(&total).Error; errCount != nil {
		return Page{}, fmt.Errorf("ledger: count history: %w", errCount)
	}
	var rows []models.PointsHistory
	if errFind := scoped().Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; errFind != nil {
		return Page{}, fmt.Errorf("ledger: list history: %w", errFind)
	}
	return Page{Items: rows, Total: total, Page: page, PageSize: pageSize}, nil
}
