package notify

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/severe-weather-dashboard/internal/models"
	"github.com/mr1hm/severe-weather-dashboard/internal/outlook"
	"github.com/mr1hm/severe-weather-dashboard/internal/overlay"
)

type EventType string

const (
	EventAlerts        EventType = "alerts"
	EventPolygonAdd    EventType = "polygon_add"
	EventPolygonRemove EventType = "polygon_remove"
	EventNotification  EventType = "notification"
	EventOutlook       EventType = "outlook"
	EventDiscussions   EventType = "discussions"
)

type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

const subscriberBuffer = 100

// Broadcaster fans render events out to dashboard streams. Slow
// subscribers miss events rather than block the pollers.
type Broadcaster struct {
	subscribers map[uint64]chan *Event
	nextID      atomic.Uint64
	mu          sync.RWMutex
	dropped     atomic.Uint64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan *Event),
	}
}

func (b *Broadcaster) Subscribe() (uint64, chan *Event) {
	id := b.nextID.Add(1)
	ch := make(chan *Event, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Broadcast(e *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped counts events skipped because a subscriber buffer was full.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels so open streams end.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}

func (b *Broadcaster) RenderAlerts(alerts []models.ClassifiedAlert) {
	b.Broadcast(&Event{Type: EventAlerts, Data: alerts})
}

func (b *Broadcaster) RenderPolygons(diff overlay.Diff) {
	for _, id := range diff.Remove {
		b.Broadcast(&Event{Type: EventPolygonRemove, Data: id})
	}
	for _, p := range diff.Add {
		b.Broadcast(&Event{Type: EventPolygonAdd, Data: p})
	}
}

func (b *Broadcaster) PlayNotification(n models.Notification) {
	b.Broadcast(&Event{Type: EventNotification, Data: n})
}

// RenderOutlook announces outlook images that changed since the last poll.
func (b *Broadcaster) RenderOutlook(updated []outlook.Selection) {
	b.Broadcast(&Event{Type: EventOutlook, Data: updated})
}

func (b *Broadcaster) RenderDiscussions(records []models.DiscussionRecord) {
	b.Broadcast(&Event{Type: EventDiscussions, Data: records})
}
