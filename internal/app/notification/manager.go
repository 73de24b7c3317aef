// Package notification provides the notification manager for broadcasting events.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// ErrStreamFull is returned by a ChannelStream whose buffer is full.
var ErrStreamFull = errors.New("notification stream is full")

// Type identifies a notification.
type Type string

const (
	TypeInitialState    Type = "initial_state"
	TypePhaseChanged    Type = "phase_changed"
	TypeProgress        Type = "progress"
	TypeCue             Type = "cue"
	TypeFinished        Type = "finished"
	TypeItemLoadFailed  Type = "item_load_failed"
	TypePlaylistChanged Type = "playlist_changed"
	TypeSettingsChanged Type = "settings_changed"
)

// Notification is a single event pushed to subscribers.
type Notification struct {
	SequenceNo uint64    `json:"seq"`
	Type       Type      `json:"type"`
	Time       time.Time `json:"time"`
	Data       any       `json:"data,omitempty"`
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
	now           func() time.Time
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   500 * time.Millisecond,
		now:           time.Now,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Publish builds a notification and broadcasts it.
func (m *Manager) Publish(typ Type, data any) {
	m.Broadcast(&Notification{Type: typ, Data: data})
}

// Broadcast stamps the notification with the next sequence number and sends
// it to all subscribers. Each send runs in its own goroutine with a timeout
// so one stuck subscriber cannot hold up the others.
func (m *Manager) Broadcast(notification *Notification) {
	notification.SequenceNo = m.NextSequenceNo()
	if notification.Time.IsZero() {
		notification.Time = m.now()
	}

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(notification)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification dropped: subscriber=%s type=%s error=%v", s.id, notification.Type, err)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification send timed out: subscriber=%s type=%s", s.id, notification.Type)
			}
		}(sub)
	}

	wg.Wait()
}

// NextSequenceNo reserves the next sequence number.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}

// ChannelStream is a Stream backed by a buffered channel.
type ChannelStream struct {
	ch chan *Notification
}

// NewChannelStream creates a ChannelStream with the given buffer size.
func NewChannelStream(size int) *ChannelStream {
	return &ChannelStream{ch: make(chan *Notification, size)}
}

// Send queues the notification without blocking.
func (s *ChannelStream) Send(n *Notification) error {
	select {
	case s.ch <- n:
		return nil
	default:
		return ErrStreamFull
	}
}

// C returns the receive channel.
func (s *ChannelStream) C() <-chan *Notification {
	return s.ch
}
