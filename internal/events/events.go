package events

import (
	"context"
	"time"
)

// PointsUpdate is published after every committed ledger entry.
type PointsUpdate struct {
	UserID      uint64    `json:"user_id"`
	Points      int64     `json:"points"` // Balance after the entry.
	Delta       int64     `json:"delta"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	At          time.Time `json:"at"`
}

// Sink receives points updates.
type Sink interface {
	PublishPointsUpdate(ctx context.Context, update PointsUpdate) error
}

// Nop discards every update.
type Nop struct{}

// PublishPointsUpdate implements Sink.
func (Nop) PublishPointsUpdate(context.Context, PointsUpdate) error { return nil }
