package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/budgetter/internal/domain"
)

// buildTimeout bounds one payload computation.
const buildTimeout = 30 * time.Second

// Sink receives every payload the queue builds.
type Sink interface {
	Send(ctx context.Context, p *Payload) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, p *Payload) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, p *Payload) error { return f(ctx, p) }

// Queue decouples ledger writes from dashboard recomputation. Publish never
// blocks; one worker builds a payload per batch of pending events and hands
// it to every sink.
type Queue struct {
	agg    *Aggregator
	sinks  []Sink
	events chan domain.Transaction
	log    zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
	built   atomic.Int64
}

// NewQueue creates a queue holding up to size pending events.
func NewQueue(agg *Aggregator, size int, log zerolog.Logger, sinks ...Sink) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		agg:    agg,
		sinks:  sinks,
		events: make(chan domain.Transaction, size),
		log:    log.With().Str("component", "dashboard_queue").Logger(),
	}
}

// Start launches the worker.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.worker()
}

// Publish enqueues a transaction-created event. When the queue is full or
// stopped the event is dropped.
func (q *Queue) Publish(txn domain.Transaction) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return
	}
	select {
	case q.events <- txn:
	default:
		q.dropped.Add(1)
		q.log.Warn().Str("reference", txn.Reference).Msg("dashboard queue full, dropping event")
	}
}

// Dropped returns the number of events discarded so far.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Built returns the number of payloads delivered so far.
func (q *Queue) Built() int64 { return q.built.Load() }

func (q *Queue) worker() {
	defer q.wg.Done()
	for txn := range q.events {
		last := txn
		// Coalesce a burst (one import) into a single build.
	drain:
		for {
			select {
			case next, ok := <-q.events:
				if !ok {
					break drain
				}
				last = next
			default:
				break drain
			}
		}
		q.process(&last)
	}
}

func (q *Queue) process(last *domain.Transaction) {
	ctx, cancel := context.WithTimeout(context.Background(), buildTimeout)
	defer cancel()

	p, err := q.agg.Build(ctx, last)
	if err != nil {
		q.log.Error().Err(err).Msg("dashboard build failed")
		return
	}
	q.Deliver(ctx, p)
}

// Deliver hands p to every sink. Sink errors are logged and do not stop
// delivery to the other sinks.
func (q *Queue) Deliver(ctx context.Context, p *Payload) {
	for i, s := range q.sinks {
		if err := s.Send(ctx, p); err != nil {
			q.log.Warn().Err(err).Int("sink", i).Msg("dashboard sink failed")
		}
	}
	q.built.Add(1)
}

// Stop refuses new events, lets the worker drain what is pending and waits
// for it or for ctx.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("dashboard queue did not drain"), ctx.Err())
	}
}
