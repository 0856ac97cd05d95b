package playback

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type EventType string

const (
	EventItemDisplayed EventType = "item_displayed"
	EventSessionEnded  EventType = "session_ended"
	EventError         EventType = "error"
	EventStateChanged  EventType = "state_changed"
)

// Event is emitted on the controller's notification channel.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload,omitempty"`
}

type ItemDisplayedPayload struct {
	ID   string    `json:"id"`
	Kind MediaKind `json:"kind"`
	Seq  uint64    `json:"seq"`
	Hit  bool      `json:"cache_hit"`
}

type ErrorPayload struct {
	Kind    string `json:"kind"`
	ItemID  string `json:"item_id,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

type SessionEndedPayload struct {
	Reason    string    `json:"reason"`
	Displayed int       `json:"displayed"`
	Error     string    `json:"error,omitempty"`
	Folders   []string  `json:"folders"`
	StartedAt time.Time `json:"started_at"`
}

type StateChangedPayload struct {
	From State `json:"from"`
	To   State `json:"to"`
}

func newErrorPayload(err error) ErrorPayload {
	p := ErrorPayload{Kind: errorKind(err), Message: err.Error(), Err: err}
	var fe *FetchError
	if errors.As(err, &fe) {
		p.ItemID = fe.ID
	}
	return p
}

type subscriber struct {
	ch      chan Event
	sent    uint64
	dropped uint64
}

// hub fans events out to subscribers without ever blocking the publisher.
// A subscriber whose buffer is full loses the event.
type hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]*subscriber)}
}

func (h *hub) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	h.nextID++
	id := h.nextID
	h.subs[id] = &subscriber{ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.ch)
			}
		})
	}
}

func (h *hub) publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for _, sub := range h.subs {
		select {
		case sub.ch <- e:
			atomic.AddUint64(&sub.sent, 1)
		default:
			atomic.AddUint64(&sub.dropped, 1)
		}
	}
}

// dropped returns the total number of events lost across subscribers.
func (h *hub) dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var total uint64
	for _, sub := range h.subs {
		total += atomic.LoadUint64(&sub.dropped)
	}
	return total
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}
