// Package live implements the live-query mechanism: services publish change
// events to topics, subscribers receive them as push streams. With a redis
// client attached, events fan out across instances via pub/sub; without one,
// dispatch stays in-process (used by tests and single-node deployments).
package live

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Topic naming: "conv.{id}.messages" for message appends,
// "conv.{id}.summary" for conversation record changes,
// "user.{id}.conversations" for a participant's chat-list changes.
const channelPrefix = "live."

type subscriber struct {
	topic string
	ch    chan []byte
}

type Broker struct {
	rdb *redis.Client
	log *slog.Logger

	mu     sync.RWMutex
	subs   map[string]map[int64]*subscriber
	nextID int64
}

// NewBroker creates a broker. rdb may be nil for in-process dispatch only.
func NewBroker(rdb *redis.Client, log *slog.Logger) *Broker {
	return &Broker{
		rdb:  rdb,
		log:  log,
		subs: make(map[string]map[int64]*subscriber),
	}
}

// Run consumes the redis pattern subscription and dispatches events to local
// subscribers. Call in a goroutine; returns when ctx is cancelled. No-op
// without a redis client.
func (b *Broker) Run(ctx context.Context) {
	if b.rdb == nil {
		return
	}

	pubsub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			topic := strings.TrimPrefix(msg.Channel, channelPrefix)
			b.dispatch(topic, []byte(msg.Payload))
		}
	}
}

// Publish sends an event to every subscriber of the topic, across all
// instances when redis is attached.
func (b *Broker) Publish(ctx context.Context, topic string, data []byte) error {
	if b.rdb != nil {
		return b.rdb.Publish(ctx, channelPrefix+topic, data).Err()
	}
	b.dispatch(topic, data)
	return nil
}

// Subscribe registers for a topic. The returned cancel function stops
// delivery and closes the channel; after it returns no further events arrive.
func (b *Broker) Subscribe(topic string) (<-chan []byte, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	sub := &subscriber{topic: topic, ch: make(chan []byte, 16)}

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int64]*subscriber)
	}
	b.subs[topic][id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[topic][id]; ok {
			delete(b.subs[topic], id)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

func (b *Broker) dispatch(topic string, data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- data:
		default:
			// Slow consumer: drop the event rather than block dispatch.
			b.log.Warn("live: dropping event for slow subscriber", "topic", topic)
		}
	}
}
