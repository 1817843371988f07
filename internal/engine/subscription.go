package engine

import (
	"sync"
)

type subscriber struct {
	id uint64
	fn func()
}

// registry keeps subscribers in subscription order.
type registry struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber
}

func (r *registry) add(fn func()) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscriber{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *registry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.id == id {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return
		}
	}
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// snapshot copies the subscriber list so callbacks may subscribe or
// unsubscribe without affecting the notification in progress.
func (r *registry) snapshot() []subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]subscriber, len(r.subs))
	copy(out, r.subs)
	return out
}

// notify calls every subscriber in order and returns how many returned
// normally. A panic stops the notification: later subscribers are not called
// for this transaction and the panic comes back as an error.
func (r *registry) notify() (int, error) {
	subs := r.snapshot()
	for i, s := range subs {
		if err := callSubscriber(s.fn); err != nil {
			return i, err
		}
	}
	return len(subs), nil
}

func callSubscriber(fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError(ErrSubscriberPanic, rec)
		}
	}()
	fn()
	return nil
}
