package events

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

const DEFAULT_SUBSCRIBER_BUFFER = 32

// ALL_REQUESTS subscribes to the status changes of every tracked request.
var ALL_REQUESTS = common.Hash{}

type Config struct {
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

type subscriber struct {
	topic   common.Hash
	channel chan *types.StatusEnvelope
}

// EventBus fans status envelopes out to subscribers keyed by request commitment.
// Publishing never blocks: an envelope is dropped for a subscriber whose buffer is full.
type EventBus struct {
	mu          sync.RWMutex
	bufferSize  int
	subscribers map[common.Hash]map[uuid.UUID]*subscriber
}

func NewEventBus(config *Config) *EventBus {
	bufferSize := DEFAULT_SUBSCRIBER_BUFFER
	if config != nil && config.SubscriberBuffer > 0 {
		bufferSize = config.SubscriberBuffer
	}
	return &EventBus{
		bufferSize:  bufferSize,
		subscribers: make(map[common.Hash]map[uuid.UUID]*subscriber),
	}
}

// Subscribe returns the id of the subscription and its channel. Use ALL_REQUESTS as topic
// to receive every envelope.
func (eb *EventBus) Subscribe(topic common.Hash) (uuid.UUID, <-chan *types.StatusEnvelope) {
	id := uuid.New()
	sub := &subscriber{topic: topic, channel: make(chan *types.StatusEnvelope, eb.bufferSize)}
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.subscribers[topic] == nil {
		eb.subscribers[topic] = make(map[uuid.UUID]*subscriber)
	}
	eb.subscribers[topic][id] = sub
	return id, sub.channel
}

// Unsubscribe closes the channel of the subscription. Unknown ids are ignored.
func (eb *EventBus) Unsubscribe(id uuid.UUID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for topic, subs := range eb.subscribers {
		sub, ok := subs[id]
		if !ok {
			continue
		}
		delete(subs, id)
		if len(subs) == 0 {
			delete(eb.subscribers, topic)
		}
		close(sub.channel)
		return
	}
}

func (eb *EventBus) BroadcastEvent(envelope *types.StatusEnvelope) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	eb.deliver(eb.subscribers[envelope.Commitment], envelope)
	if envelope.Commitment != ALL_REQUESTS {
		eb.deliver(eb.subscribers[ALL_REQUESTS], envelope)
	}
}

func (eb *EventBus) deliver(subs map[uuid.UUID]*subscriber, envelope *types.StatusEnvelope) {
	for id, sub := range subs {
		select {
		case sub.channel <- envelope:
		default:
			log.Warn().Str("subscription", id.String()).
				Str("commitment", envelope.Commitment.Hex()).
				Msg("[EventBus] [BroadcastEvent] subscriber is full, envelope dropped")
		}
	}
}

func (eb *EventBus) Subscribers(topic common.Hash) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers[topic])
}
