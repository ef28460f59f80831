package realtime

import (
	"log/slog"
	"sort"
	"sync"
)

// registry is the in-process pub/sub fan-out from event types to handlers.
// Safe for concurrent use.
type registry struct {
	mu   sync.Mutex
	subs map[string]map[int]Handler
	next int
}

func newRegistry() *registry {
	return &registry{
		subs: make(map[string]map[int]Handler),
	}
}

// on registers h for eventType and returns a closure that removes exactly
// this registration. Removing the last handler for a type drops the entry.
func (r *registry) on(eventType string, h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	id := r.next

	set, ok := r.subs[eventType]
	if !ok {
		set = make(map[int]Handler)
		r.subs[eventType] = set
	}
	set[id] = h

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		set, ok := r.subs[eventType]
		if !ok {
			return
		}
		delete(set, id)
		if len(set) == 0 {
			delete(r.subs, eventType)
		}
	}
}

// dispatch invokes every handler registered for eventType, in registration
// order, and returns how many ran. Each handler runs inside its own recover
// so one panicking subscriber cannot stop delivery to the rest.
func (r *registry) dispatch(logger *slog.Logger, eventType string, ev Event) int {
	r.mu.Lock()
	set := r.subs[eventType]
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, len(ids))
	for i, id := range ids {
		handlers[i] = set[id]
	}
	r.mu.Unlock()

	for _, h := range handlers {
		invokeHandler(logger, eventType, h, ev)
	}
	return len(handlers)
}

func invokeHandler(logger *slog.Logger, eventType string, h Handler, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("subscriber panicked",
				"event_type", eventType,
				"panic", rec,
			)
		}
	}()
	h(ev)
}

// clear removes every registration.
func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string]map[int]Handler)
}

// size returns the number of registered handlers for eventType.
func (r *registry) size(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[eventType])
}
