package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/olymp/arena/internal/game"
	"github.com/redis/go-redis/v9"
)

// EventsChannel carries state broadcasts between server instances
const EventsChannel = "match_events"

type envelope struct {
	Origin  string          `json:"origin"`
	MatchID int64           `json:"match_id"`
	State   json.RawMessage `json:"state"`
}

// SetRedisClient enables cross-instance broadcast. Without it every
// broadcast stays on this instance.
func (h *Hub) SetRedisClient(rdb *redis.Client) {
	h.rdb = rdb
}

func (h *Hub) publish(matchID int64, state []byte) {
	if h.rdb == nil {
		return
	}
	payload, err := json.Marshal(envelope{Origin: h.instanceID, MatchID: matchID, State: state})
	if err != nil {
		log.Printf("[WS] marshal envelope for match %d: %v", matchID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.rdb.Publish(ctx, EventsChannel, payload).Err(); err != nil {
		log.Printf("[WS] publish match %d state failed: %v", matchID, err)
	}
}

// StartEventSubscriber relays broadcasts published by other instances to
// the sockets open here. It returns once ctx is cancelled.
func (h *Hub) StartEventSubscriber(ctx context.Context) {
	if h.rdb == nil {
		log.Println("[WS] Redis client not set; match_events subscriber not started")
		return
	}

	pubsub := h.rdb.Subscribe(ctx, EventsChannel)
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		log.Printf("[WS] %s subscriber started (instance %s)", EventsChannel, h.instanceID)
		for {
			select {
			case <-ctx.Done():
				log.Printf("[WS] %s subscriber stopped", EventsChannel)
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				h.handleEvent([]byte(msg.Payload))
			}
		}
	}()
}

func (h *Hub) handleEvent(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Printf("[WS] invalid event payload: %v", err)
		return
	}
	if env.Origin == h.instanceID {
		return
	}

	var st game.State
	if err := json.Unmarshal(env.State, &st); err != nil {
		log.Printf("[WS] invalid state in event for match %d: %v", env.MatchID, err)
		return
	}
	h.deliver(env.MatchID, env.State, &st)
}
