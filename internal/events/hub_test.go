package events

import (
	"context"
	"testing"
	"time"
)

func TestHub_DeliversToMatchingUser(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(7)
	defer cancel()
	other, cancelOther := hub.Subscribe(8)
	defer cancelOther()

	if err := hub.PublishPointsUpdate(context.Background(), PointsUpdate{UserID: 7, Points: 12, Delta: -3}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case update := <-ch:
		if update.Points != 12 || update.Delta != -3 {
			t.Fatalf("unexpected update: %+v", update)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected update for subscriber")
	}
	select {
	case update := <-other:
		t.Fatalf("unexpected update for other user: %+v", update)
	default:
	}
}

func TestHub_CancelUnsubscribes(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(1)
	if hub.Subscribers(1) != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	cancel()
	if hub.Subscribers(1) != 0 {
		t.Fatalf("expected no subscribers after cancel")
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if err := hub.PublishPointsUpdate(context.Background(), PointsUpdate{UserID: 1}); err != nil {
		t.Fatalf("publish after cancel: %v", err)
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe(3)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultSubscriberBuffer*4; i++ {
			_ = hub.PublishPointsUpdate(context.Background(), PointsUpdate{UserID: 3, Points: int64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publisher blocked on a full subscriber")
	}
}

func TestChannelName(t *testing.T) {
	if got := ChannelName("hub"); got != "hub:points" {
		t.Fatalf("unexpected channel %q", got)
	}
	if got := ChannelName(" "); got != "points" {
		t.Fatalf("unexpected channel %q", got)
	}
}

func TestRelay_ForwardsDecodedUpdates(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(11)
	defer cancel()
	relay := NewRelay(nil, ChannelName("hub"), hub)

	relay.forward(context.Background(), `not json`)
	relay.forward(context.Background(), `{"user_id":11,"points":40,"delta":-2,"type":"use_assistant"}`)

	select {
	case update := <-ch:
		if update.Points != 40 || update.Delta != -2 || update.Type != "use_assistant" {
			t.Fatalf("unexpected update %+v", update)
		}
	default:
		t.Fatalf("expected relayed update")
	}
	if len(ch) != 0 {
		t.Fatalf("expected malformed payload to be dropped")
	}
}

func TestRedisSink_NilClientIsNoop(t *testing.T) {
	var sink *RedisSink
	if err := sink.PublishPointsUpdate(context.Background(), PointsUpdate{UserID: 1}); err != nil {
		t.Fatalf("expected nil sink to be a no-op, got %v", err)
	}
}
