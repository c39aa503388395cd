package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBufferFull is returned by an async publisher whose queue is saturated.
var ErrBufferFull = errors.New("audit buffer full")

// Publisher stamps events and hands them to a sink, either inline or through a
// bounded queue drained by one goroutine.
type Publisher struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time

	queue chan Event
	wg    sync.WaitGroup
	once  sync.Once
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer makes Emit enqueue instead of writing inline.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.queue = make(chan Event, size)
		}
	}
}

// WithLogger sets the logger used for async sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{sink: sink, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records event. In async mode a full queue drops the event with ErrBufferFull.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if p == nil {
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now()
	}
	if p.queue == nil {
		return p.sink.Append(ctx, event)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.queue <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events and waits for the queue to drain.
func (p *Publisher) Close() {
	if p == nil || p.queue == nil {
		return
	}
	p.once.Do(func() {
		close(p.queue)
		p.wg.Wait()
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.queue {
		if err := p.sink.Append(context.Background(), event); err != nil {
			p.logger.Error("audit sink append failed",
				"type", event.Type,
				"error", err,
			)
		}
	}
}
