package hub

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Broker carries events between server instances. Channel names are
// "user:<id>" and "room:<name>"; every instance subscribes to both patterns
// and fans matching payloads out to its local connections.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, patterns ...string) (<-chan BrokerMessage, error)
}

type BrokerMessage struct {
	Channel string
	Payload []byte
}

func userChannel(userID int) string { return fmt.Sprintf("user:%d", userID) }
func roomChannel(room string) string { return "room:" + room }

// parseUserChannel returns the user id for a "user:<id>" channel name.
func parseUserChannel(channel string) (int, bool) {
	raw, ok := strings.CutPrefix(channel, "user:")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

func parseRoomChannel(channel string) (string, bool) {
	return strings.CutPrefix(channel, "room:")
}

// RedisBroker is the production Broker on redis pub/sub.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, patterns ...string) (<-chan BrokerMessage, error) {
	pubsub := b.client.PSubscribe(ctx, patterns...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan BrokerMessage, 256)
	go func() {
		defer close(out)
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
				out <- BrokerMessage{Channel: msg.Channel, Payload: []byte(msg.Payload)}
			}
		}
	}()
	return out, nil
}
