// Package messaging implements the in-process event bus that carries domain
// events from command handlers to cache invalidation and metrics subscribers.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

var (
	// ErrEventBusClosed is returned by Publish and Subscribe after Close.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")
)

// HandlerObserver receives the outcome of every handler call.
type HandlerObserver func(eventType shared.EventType, duration time.Duration, err error)

// Options configures a Bus.
type Options struct {
	// Async runs handlers in goroutines; Publish returns before they finish.
	Async bool

	// Workers caps concurrent async handlers. Default 4.
	Workers int64

	// DrainTimeout bounds how long Close waits for async handlers.
	// Default 5s.
	DrainTimeout time.Duration

	Logger   *slog.Logger
	Observer HandlerObserver
}

// Bus implements shared.EventBus in process. Handlers for a specific type
// run before handlers subscribed to every event.
type Bus struct {
	opts Options
	log  *slog.Logger
	sem  *semaphore.Weighted

	mu     sync.RWMutex
	byType map[shared.EventType][]shared.EventHandler
	global []shared.EventHandler
	closed bool

	inflight sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewBus creates an open bus.
func NewBus(opts Options) *Bus {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		opts:   opts,
		log:    log.With("component", "event_bus"),
		sem:    semaphore.NewWeighted(opts.Workers),
		byType: make(map[shared.EventType][]shared.EventHandler),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe registers handler for one event type.
func (b *Bus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.add(handler, func() {
		b.byType[eventType] = append(b.byType[eventType], handler)
	})
}

// SubscribeAll registers handler for every event.
func (b *Bus) SubscribeAll(handler shared.EventHandler) error {
	return b.add(handler, func() {
		b.global = append(b.global, handler)
	})
}

func (b *Bus) add(handler shared.EventHandler, register func()) error {
	if handler == nil {
		return errors.New("event bus: nil handler")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	register()
	return nil
}

// Publish delivers event to its subscribers. Handler failures are logged
// and observed, never returned to the publisher.
func (b *Bus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event bus: nil event")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	typed := b.byType[event.EventType()]
	handlers := make([]shared.EventHandler, 0, len(typed)+len(b.global))
	handlers = append(handlers, typed...)
	handlers = append(handlers, b.global...)
	if b.opts.Async {
		// Counted under the lock so Close cannot miss them.
		b.inflight.Add(len(handlers))
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		if b.opts.Async {
			go b.runAsync(event, h)
			continue
		}
		b.run(event, h)
	}
	return nil
}

func (b *Bus) runAsync(event shared.Event, h shared.EventHandler) {
	defer b.inflight.Done()

	if err := b.sem.Acquire(b.ctx, 1); err != nil {
		b.log.Warn("event dropped on shutdown",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
		)
		return
	}
	defer b.sem.Release(1)

	b.run(event, h)
}

func (b *Bus) run(event shared.Event, h shared.EventHandler) {
	start := time.Now()
	err := safeCall(event, h)

	if b.opts.Observer != nil {
		b.opts.Observer(event.EventType(), time.Since(start), err)
	}
	if err != nil {
		b.log.Error("event handler failed",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
			"error", err,
		)
	}
}

func safeCall(event shared.Event, h shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(event)
}

// Close stops accepting events and waits up to DrainTimeout for async
// handlers. Handlers still waiting for a worker after that are dropped.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	timer := time.NewTimer(b.opts.DrainTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		b.cancel()
		<-done
		b.log.Warn("event bus closed before every handler ran")
	}
	b.cancel()
	return nil
}
