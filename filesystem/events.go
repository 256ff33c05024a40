package filesystem

import "sync"

// EventType names the kind of change a store [Event] reports
type EventType string

const (
	EventInsert EventType = "insert"
	EventDelete EventType = "delete"
	EventUpdate EventType = "update"
	// EventSynced is published once after a reconciliation batch completes
	EventSynced EventType = "synced"
)

const subscriberBuffer = 64

// Event reports a change to the child set of ParentID
type Event struct {
	Type     EventType
	NodeID   string
	ParentID string
}

// Broadcaster fans store events out to subscribers
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan Event]struct{})}
}

// Subscribe returns a buffered event channel and its cancel func.
// Cancel closes the channel and is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Publish sends events to every subscriber without blocking.
// Slow consumers miss events.
func (b *Broadcaster) Publish(events ...Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		for _, e := range events {
			select {
			case ch <- e:
			default:
			}
		}
	}
}

// Count returns the number of active subscribers
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
