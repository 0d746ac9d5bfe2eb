// Package redis mirrors the latest usage snapshot into Redis so other
// processes can read it or subscribe to changes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/rmax-ai/claude-usage/pkg/usage"
)

const defaultPrefix = "claude-usage"

// Message is the document stored and published for each snapshot.
type Message struct {
	PollID   string         `json:"poll_id"`
	Trigger  string         `json:"trigger"`
	Snapshot usage.Snapshot `json:"snapshot"`
}

// Mirror publishes snapshots to Redis.
type Mirror struct {
	client *redis.Client
	prefix string
}

// NewMirror creates a mirror using keys under prefix, or "claude-usage".
func NewMirror(client *redis.Client, prefix string) *Mirror {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Mirror{client: client, prefix: prefix}
}

func (m *Mirror) latestKey() string {
	return fmt.Sprintf("%s:snapshot:latest", m.prefix)
}

// Channel is the pub/sub channel snapshots are published on.
func (m *Mirror) Channel() string {
	return fmt.Sprintf("%s:snapshots", m.prefix)
}

// Record stores snap as the latest snapshot and publishes it.
func (m *Mirror) Record(ctx context.Context, pollID, trigger string, snap usage.Snapshot) error {
	data, err := json.Marshal(Message{PollID: pollID, Trigger: trigger, Snapshot: snap})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := m.client.Set(ctx, m.latestKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to SET %s: %w", m.latestKey(), err)
	}
	if err := m.client.Publish(ctx, m.Channel(), data).Err(); err != nil {
		log.WithError(err).Warnf("Failed to PUBLISH on %s", m.Channel())
	}
	return nil
}

// Latest returns the last mirrored message. ok is false when nothing has
// been mirrored yet.
func (m *Mirror) Latest(ctx context.Context) (msg Message, ok bool, err error) {
	data, err := m.client.Get(ctx, m.latestKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Message{}, false, nil
		}
		return Message{}, false, fmt.Errorf("failed to GET %s: %w", m.latestKey(), err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, false, fmt.Errorf("failed to unmarshal snapshot from %s: %w", m.latestKey(), err)
	}
	return msg, true, nil
}

// Subscribe delivers published messages until ctx is done. Undecodable
// messages are skipped.
func (m *Mirror) Subscribe(ctx context.Context) (<-chan Message, error) {
	sub := m.client.Subscribe(ctx, m.Channel())
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", m.Channel(), err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					log.WithError(err).Warn("Failed to decode mirrored snapshot")
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
