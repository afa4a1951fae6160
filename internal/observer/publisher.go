// Package observer delivers events to a changing set of subscribers.
package observer

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type subscriber[T any] struct {
	id uuid.UUID
	fn func(T)
}

// Publisher fans events out synchronously, in subscription order. The
// subscriber list is copy-on-write: Subscribe and Unsubscribe swap in a new
// slice under mu, Publish iterates whatever slice was current when it
// started and never takes mu. Handlers may therefore subscribe or
// unsubscribe from inside a callback; the change applies to the next event.
type Publisher[T any] struct {
	name string
	log  *log.Logger

	mu   sync.Mutex
	subs atomic.Pointer[[]subscriber[T]]

	failures atomic.Uint64
}

func NewPublisher[T any](name string, logger *log.Logger) *Publisher[T] {
	if logger == nil {
		logger = log.Default()
	}
	p := &Publisher[T]{name: name, log: logger}
	p.subs.Store(&[]subscriber[T]{})
	return p
}

func (p *Publisher[T]) current() []subscriber[T] {
	if s := p.subs.Load(); s != nil {
		return *s
	}
	return nil
}

// Subscribe registers fn and returns the id to unsubscribe with. A nil fn is
// ignored and yields uuid.Nil.
func (p *Publisher[T]) Subscribe(fn func(T)) uuid.UUID {
	if fn == nil {
		return uuid.Nil
	}
	id := uuid.New()

	p.mu.Lock()
	defer p.mu.Unlock()
	cur := p.current()
	next := make([]subscriber[T], len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, subscriber[T]{id: id, fn: fn})
	p.subs.Store(&next)
	return id
}

func (p *Publisher[T]) Unsubscribe(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := p.current()
	for i, s := range cur {
		if s.id != id {
			continue
		}
		next := make([]subscriber[T], 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		p.subs.Store(&next)
		return true
	}
	return false
}

// Len reports the current number of subscribers. A nil publisher has none.
func (p *Publisher[T]) Len() int {
	if p == nil {
		return 0
	}
	return len(p.current())
}

// Publish calls every subscriber with v and returns how many returned
// normally. A panicking subscriber is logged and skipped.
func (p *Publisher[T]) Publish(v T) int {
	if p == nil {
		return 0
	}
	delivered := 0
	for _, s := range p.current() {
		if p.invoke(s, v) {
			delivered++
		}
	}
	return delivered
}

func (p *Publisher[T]) invoke(s subscriber[T], v T) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.failures.Add(1)
			p.log.Printf("level=error kind=subscriber_failed publisher=%s subscriber=%s panic=%v", p.name, s.id, r)
			ok = false
		}
	}()
	s.fn(v)
	return true
}

// Failures counts subscriber invocations that panicked.
func (p *Publisher[T]) Failures() uint64 {
	return p.failures.Load()
}
