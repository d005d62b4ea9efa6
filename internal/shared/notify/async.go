package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type job struct {
	channel string
	msg     Message
}

// Async hands messages to a background worker so that callers never wait on delivery.
// Messages are dropped, with a warning, when the buffer is full.
type Async struct {
	next   Notifier
	logger *zap.Logger
	jobs   chan job
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Notifier, buffer int, logger *zap.Logger) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{next: next, logger: logger, jobs: make(chan job, buffer)}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) Notify(_ context.Context, channel string, msg Message) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	select {
	case a.jobs <- job{channel: channel, msg: msg}:
	default:
		a.logger.Warn("notify buffer full, dropping message",
			zap.String("channel", channel), zap.String("event", msg.Event))
	}
	return nil
}

func (a *Async) run() {
	defer a.wg.Done()
	for j := range a.jobs {
		if err := a.next.Notify(context.Background(), j.channel, j.msg); err != nil {
			a.logger.Warn("notify failed",
				zap.String("channel", j.channel), zap.String("event", j.msg.Event), zap.Error(err))
		}
	}
}

// Close stops accepting messages and waits for queued ones to be delivered.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.jobs)
	}
	a.mu.Unlock()
	a.wg.Wait()
}
