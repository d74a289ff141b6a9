package session

import "sync"

// Observer receives a snapshot on every session state transition. Observers
// are invoked synchronously on the goroutine driving the transition.
type Observer func(Snapshot)

// registry is the session's observer list. Unsubscribing is done through
// the detach handle returned by subscribe.
type registry struct {
	mu        sync.Mutex
	nextID    int
	observers map[int]Observer
}

func newRegistry() *registry {
	return &registry{observers: make(map[int]Observer)}
}

// subscribe registers fn and returns a detach handle. Detaching twice is
// harmless.
func (r *registry) subscribe(fn Observer) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.observers[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.observers, id)
	}
}

// notify delivers the snapshot to all current observers. The observer list
// is copied under the lock so callbacks run without holding it.
func (r *registry) notify(snap Snapshot) {
	r.mu.Lock()
	fns := make([]Observer, 0, len(r.observers))
	for _, fn := range r.observers {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
