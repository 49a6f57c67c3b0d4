package web

import (
	"sync"

	"gpsdrain/internal/sink"
)

// LocationBroadcaster fans injected fixes out to live listeners (websocket
// clients). It keeps the most recent fix so new subscribers get an
// immediate sample. It is a LocationSink and never fails.
type LocationBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan sink.Fix
	nextID   int
	last     sink.Fix
	haveLast bool
}

func NewLocationBroadcaster() *LocationBroadcaster {
	return &LocationBroadcaster{
		subs: make(map[int]chan sink.Fix),
	}
}

func (b *LocationBroadcaster) Subscribe(buffer int) (int, <-chan sink.Fix) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan sink.Fix, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	last := b.last
	have := b.haveLast
	b.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (b *LocationBroadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers is the number of live listeners.
func (b *LocationBroadcaster) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Last returns the most recent fix, if any.
func (b *LocationBroadcaster) Last() (sink.Fix, bool) {
	if b == nil {
		return sink.Fix{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.haveLast
}

func (b *LocationBroadcaster) Inject(lat, lon float64, accuracyM float32, timestampMillis int64) error {
	if b == nil {
		return nil
	}
	fix := sink.NewFix(lat, lon, accuracyM, timestampMillis)

	// Slow listeners drop samples rather than stall the poll loop.
	b.mu.Lock()
	for _, ch := range b.subs {
		select {
		case ch <- fix:
		default:
		}
	}
	b.last = fix
	b.haveLast = true
	b.mu.Unlock()
	return nil
}
