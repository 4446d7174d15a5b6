// Package events provides a small in-process observer registry.
package events

import "sync"

// Broadcaster delivers values of type T to every registered subscriber.
// Publish runs subscribers synchronously, in registration order, outside the lock.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(T)
	order  []int
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[int]func(T))}
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Broadcaster[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	fns := make([]func(T), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.subs[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
