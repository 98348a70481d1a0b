package notify

import (
	"sync"

	"liquid-node/models"
)

// Broadcaster fans new tip ids out to every current subscriber. Publish
// never blocks: a subscriber whose buffer is full misses the event, and
// nothing is replayed to late subscribers.
type Broadcaster struct {
	lock   sync.RWMutex
	nextID uint64
	subs   map[uint64]chan models.BlockID
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[uint64]chan models.BlockID),
	}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel; it is safe to call twice.
func (b *Broadcaster) Subscribe(buffer int) (<-chan models.BlockID, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.BlockID, buffer)

	b.lock.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.lock.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.lock.Lock()
			delete(b.subs, id)
			b.lock.Unlock()
			close(ch)
		})
	}
}

// Publish delivers id to every subscriber with room in its buffer and
// returns how many received it.
func (b *Broadcaster) Publish(id models.BlockID) int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- id:
			delivered++
		default:
		}
	}
	return delivered
}

func (b *Broadcaster) Subscribers() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.subs)
}
