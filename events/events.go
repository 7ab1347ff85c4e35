package events

import (
	"reflect"
	"sync"
)

// EventHandler handles a published event of type T. A returned error stops the publication and is handed back to
// the publisher.
type EventHandler[T any] func(T) error

// globalEventHandlers maps event type names to the handlers subscribed through SubscribeAny.
var globalEventHandlers map[string][]any

// globalEventHandlersLock guards globalEventHandlers.
var globalEventHandlersLock sync.Mutex

// eventTypeName returns the key handlers of T are registered under.
func eventTypeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

// SubscribeAny registers callback for every event of type T published by any EventEmitter. Handlers registered
// here live for the rest of the process.
func SubscribeAny[T any](callback EventHandler[T]) {
	globalEventHandlersLock.Lock()
	defer globalEventHandlersLock.Unlock()

	if globalEventHandlers == nil {
		globalEventHandlers = make(map[string][]any)
	}
	name := eventTypeName[T]()
	globalEventHandlers[name] = append(globalEventHandlers[name], callback)
}

// EventEmitter publishes events of type T to its own subscribers, then to the handlers registered with SubscribeAny.
type EventEmitter[T any] struct {
	subscriptions []EventHandler[T]
	lock          sync.Mutex
}

// Publish calls every subscribed handler with event. It stops at and returns the first error.
func (e *EventEmitter[T]) Publish(event T) error {
	e.lock.Lock()
	subscriptions := append([]EventHandler[T](nil), e.subscriptions...)
	e.lock.Unlock()

	for _, subscription := range subscriptions {
		if err := subscription(event); err != nil {
			return err
		}
	}

	globalEventHandlersLock.Lock()
	callbacks := append([]any(nil), globalEventHandlers[eventTypeName[T]()]...)
	globalEventHandlersLock.Unlock()

	for _, callback := range callbacks {
		if err := callback.(EventHandler[T])(event); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe adds callback to the handlers of this emitter.
func (e *EventEmitter[T]) Subscribe(callback EventHandler[T]) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.subscriptions = append(e.subscriptions, callback)
}
