package notify

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrBusClosed  = errors.New("notification bus closed")
	errNilHandler = errors.New("onMsg callback required")
)

// Bus carries envelopes from the instance that settled an event to every
// instance holding sockets.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	StartForwarder(ctx context.Context, onMsg func(env Envelope)) error
	Close() error
}

// LocalBus delivers envelopes in-process. It is used when no Redis address is
// configured and the service runs as a single instance.
type LocalBus struct {
	mu       sync.RWMutex
	handlers []func(Envelope)
	closed   bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Publish(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	for _, h := range b.handlers {
		h(env)
	}
	return nil
}

// StartForwarder registers onMsg until ctx is done.
func (b *LocalBus) StartForwarder(ctx context.Context, onMsg func(env Envelope)) error {
	if onMsg == nil {
		return errNilHandler
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.handlers = append(b.handlers, onMsg)
	idx := len(b.handlers) - 1
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if idx < len(b.handlers) {
			b.handlers[idx] = func(Envelope) {}
		}
		b.mu.Unlock()
	}()
	return nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.handlers = nil
	b.mu.Unlock()
	return nil
}
