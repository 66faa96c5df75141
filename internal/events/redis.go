package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ChannelName returns the Redis pub/sub channel for points updates under prefix.
func ChannelName(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "points"
	}
	return prefix + ":points"
}

// RedisSink publishes points updates on a Redis channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink constructs a RedisSink publishing on channel.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

// PublishPointsUpdate implements Sink.
func (s *RedisSink) PublishPointsUpdate(ctx context.Context, update PointsUpdate) error {
	if s == nil || s.client == nil {
		return nil
	}
	payload, errMarshal := json.Marshal(update)
	if errMarshal != nil {
		return fmt.Errorf("events: marshal points update: %w", errMarshal)
	}
	if errPublish := s.client.Publish(ctx, s.channel, payload).Err(); errPublish != nil {
		return fmt.Errorf("events: redis publish: %w", errPublish)
	}
	return nil
}

// Relay forwards updates received on a Redis channel into a local sink, so
// every instance can serve its own stream subscribers.
type Relay struct {
	client  *redis.Client
	channel string
	target  Sink
}

// NewRelay constructs a Relay from channel into target.
func NewRelay(client *redis.Client, channel string, target Sink) *Relay {
	return &Relay{client: client, channel: channel, target: target}
}

// Run subscribes and forwards until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer func() {
		if errClose := pubsub.Close(); errClose != nil {
			log.WithError(errClose).Warn("events: close redis subscription")
		}
	}()
	if _, errReceive := pubsub.Receive(ctx); errReceive != nil {
		return fmt.Errorf("events: subscribe %s: %w", r.channel, errReceive)
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.forward(ctx, msg.Payload)
		}
	}
}

func (r *Relay) forward(ctx context.Context, payload string) {
	var update PointsUpdate
	if errUnmarshal := json.Unmarshal([]byte(payload), &update); errUnmarshal != nil {
		log.WithError(errUnmarshal).Warn("events: drop malformed points update")
		return
	}
	if errPublish := r.target.PublishPointsUpdate(ctx, update); errPublish != nil {
		log.WithError(errPublish).Warn("events: relay points update")
	}
}
