package notify

import (
	"context"
	"sync"
)

// Handler receives notifications delivered through the in-process Bus.
type Handler func(ctx context.Context, n Notification)

// Bus is an in-memory fan-out sink for single-process deployments and tests.
// Delivery is asynchronous through a buffered queue so publishers never block
// on slow handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler // alert kind -> handlers, "" matches all
	queue    chan Notification
	stop     chan struct{}
	done     chan struct{}
}

// NewBus constructs a Bus with the given queue depth and starts its
// dispatch loop.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	b := &Bus{
		handlers: make(map[string][]Handler),
		queue:    make(chan Notification, buffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Bus) loop() {
	defer close(b.done)
	for {
		select {
		case n := <-b.queue:
			b.dispatch(n)
		case <-b.stop:
			// Drain what was accepted before Close.
			for {
				select {
				case n := <-b.queue:
					b.dispatch(n)
				default:
					return
				}
			}
		}
	}
}

// Subscribe registers a handler for one alert kind. An empty kind receives
// every notification.
func (b *Bus) Subscribe(alertKind string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[alertKind] = append(b.handlers[alertKind], h)
}

// Publish enqueues a notification for asynchronous delivery.
func (b *Bus) Publish(ctx context.Context, n Notification) error {
	select {
	case b.queue <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the dispatch loop after draining accepted notifications.
func (b *Bus) Close() error {
	close(b.stop)
	<-b.done
	return nil
}

func (b *Bus) dispatch(n Notification) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[n.AlertKind]...)
	hs = append(hs, b.handlers[""]...)
	b.mu.RUnlock()
	for _, h := range hs {
		h(context.Background(), n)
	}
}
