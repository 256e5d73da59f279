// internal/claim/dispatcher.go
//
// Asynchronous hand-off to a Sink.
//
// Context
// -------
// A block save must never wait on, or fail because of, the review queue.
// Dispatcher accepts messages into a bounded channel and a single worker
// drains it into the wrapped Sink.  When the channel is full the message
// is dropped, counted, and logged; the caller sees ErrQueueFull and is
// expected to log it, nothing more.
//
// Notes
// -----
//   - A full queue drops the message with an ERROR log and ErrQueueFull.
//   - Close stops intake and waits for the worker to drain what is queued.
//   - Each delivery gets its own timeout so one slow insert cannot stall
//     the queue indefinitely.
package claim

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/uniprofile/internal/metrics"
)

// ErrQueueFull is returned by Submit when the buffer has no room.
var ErrQueueFull = errors.New("claim queue full")

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("claim dispatcher closed")

// Dispatcher is a Sink that forwards to another Sink in the background.
type Dispatcher struct {
	next    Sink
	queue   chan Message
	timeout time.Duration
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts the worker.  size is the queue capacity.
func NewDispatcher(next Sink, size int, timeout time.Duration, log *zap.Logger) *Dispatcher {
	if size < 1 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		next:    next,
		queue:   make(chan Message, size),
		timeout: timeout,
		log:     log,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Submit enqueues msg without blocking.
func (d *Dispatcher) Submit(_ context.Context, msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- msg:
		metrics.ClaimMessages.WithLabelValues("queued").Inc()
		return nil
	default:
		metrics.ClaimMessages.WithLabelValues("dropped").Inc()
		d.log.Error("claim message dropped",
			zap.String("message_id", msg.ID),
			zap.Uint64("university_id", msg.UniversityID),
			zap.Int("records", len(msg.Records)))
		return ErrQueueFull
	}
}

// Close stops intake and blocks until queued messages are delivered or ctx
// expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.next.Submit(ctx, msg)
		cancel()

		if err != nil {
			metrics.ClaimMessages.WithLabelValues("failed").Inc()
			d.log.Error("claim delivery failed",
				zap.String("message_id", msg.ID),
				zap.Uint64("university_id", msg.UniversityID),
				zap.Error(err))
			continue
		}
		metrics.ClaimMessages.WithLabelValues("delivered").Inc()
		d.log.Info("claim delivered",
			zap.String("message_id", msg.ID),
			zap.Int("records", len(msg.Records)))
	}
}
