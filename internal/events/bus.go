// Package events provides the in-process status bus streamed to UI clients.
package events

import (
	"container/list"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/botkit/internal/domain"
)

// TopicStatusBar carries training status updates.
const TopicStatusBar = "statusbar.event"

const (
	defaultHistorySize = 100
	defaultBufferSize  = 32
)

// Event is one published message.
type Event struct {
	ID      int64           `json:"id"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	Time    time.Time       `json:"time"`

	// Scope restricts who may see the event. It never leaves the process.
	Scope string `json:"-"`
}

// StatusPayload is the payload of TopicStatusBar events.
type StatusPayload struct {
	Type         string               `json:"type"`
	TrainSession *domain.TrainSession `json:"trainSession"`
}

// DecodeStatus returns the status payload of ev.
func DecodeStatus(ev Event) (*StatusPayload, error) {
	if ev.Topic != TopicStatusBar {
		return nil, fmt.Errorf("event %d is on topic %q", ev.ID, ev.Topic)
	}
	var p StatusPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode status payload: %w", err)
	}
	return &p, nil
}

// Options configures a Bus.
type Options struct {
	// HistorySize bounds the replay buffer.
	HistorySize int
	// BufferSize is the per-subscriber channel capacity.
	BufferSize int
	Logger     *slog.Logger
}

// Bus is a topic-based publish/subscribe hub.
// Publishing never blocks: a subscriber with a full buffer misses the event.
type Bus struct {
	mu          sync.Mutex
	nextEventID int64
	nextSubID   int64
	subs        map[int64]*Subscription
	history     *list.List
	historySize int
	bufferSize  int
	closed      bool
	logger      *slog.Logger
}

// NewBus creates a Bus.
func NewBus(opts Options) *Bus {
	if opts.HistorySize <= 0 {
		opts.HistorySize = defaultHistorySize
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Bus{
		subs:        make(map[int64]*Subscription),
		history:     list.New(),
		historySize: opts.HistorySize,
		bufferSize:  opts.BufferSize,
		logger:      opts.Logger,
	}
}

// Subscription receives events for its topics until Close is called.
type Subscription struct {
	id      int64
	bus     *Bus
	topics  map[string]struct{}
	ch      chan Event
	once    sync.Once
	dropped atomic.Int64
}

// C returns the event channel. It is closed once the subscription is released.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if _, ok := s.bus.subs[s.id]; ok {
			delete(s.bus.subs, s.id)
			close(s.ch)
		}
	})
}

func (s *Subscription) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// Subscribe registers a subscription for topics. No topics means every topic.
func (b *Bus) Subscribe(topics ...string) *Subscription {
	sub, _ := b.SubscribeSince(-1, topics...)
	return sub
}

// SubscribeSince registers a subscription and atomically returns the retained
// events with an id greater than afterID. A negative afterID skips replay.
func (b *Bus) SubscribeSince(afterID int64, topics ...string) (*Subscription, []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	sub := &Subscription{
		id:     b.nextSubID,
		bus:    b,
		topics: make(map[string]struct{}, len(topics)),
		ch:     make(chan Event, b.bufferSize),
	}
	for _, t := range topics {
		sub.topics[t] = struct{}{}
	}

	if b.closed {
		close(sub.ch)
		sub.once.Do(func() {})
		return sub, nil
	}
	b.subs[sub.id] = sub

	var missed []Event
	if afterID >= 0 {
		for e := b.history.Front(); e != nil; e = e.Next() {
			ev := e.Value.(Event)
			if ev.ID > afterID && sub.wants(ev.Topic) {
				missed = append(missed, ev)
			}
		}
	}
	return sub, missed
}

// Publish marshals payload and fans it out to every matching subscriber.
func (b *Bus) Publish(topic string, payload any) (int64, error) {
	return b.PublishScoped(topic, "", payload)
}

// PublishScoped is Publish for an event restricted to scope.
func (b *Bus) PublishScoped(topic, scope string, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, fmt.Errorf("publish %s: bus closed", topic)
	}

	b.nextEventID++
	ev := Event{ID: b.nextEventID, Topic: topic, Payload: data, Time: time.Now(), Scope: scope}

	b.history.PushBack(ev)
	for b.history.Len() > b.historySize {
		b.history.Remove(b.history.Front())
	}

	for _, sub := range b.subs {
		if !sub.wants(topic) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			b.logger.Warn("Dropping event for slow subscriber", "topic", topic, "event_id", ev.ID, "subscriber", sub.id)
		}
	}
	return ev.ID, nil
}

// PublishTrainSession publishes a status bar update for session, scoped to
// the password hash of its model.
func (b *Bus) PublishTrainSession(passwordHash string, session domain.TrainSession) {
	if _, err := b.PublishScoped(TopicStatusBar, passwordHash, StatusPayload{Type: "nlu", TrainSession: &session}); err != nil {
		b.logger.Warn("Failed to publish training status", "model_id", session.ModelID, "error", err)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close releases every subscription. Later publishes fail.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
