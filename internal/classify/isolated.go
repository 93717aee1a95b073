package classify

import (
	"context"
	"fmt"
	"sync"
)

type request struct {
	ctx        context.Context
	name, memo string
	reply      chan result
}

type result struct {
	prediction Prediction
	err        error
}

// Isolated runs every call of the wrapped classifier on one dedicated
// goroutine. Callers block until their answer is ready or their context ends.
type Isolated struct {
	inner    Classifier
	requests chan request
	done     chan struct{}
	stopped  sync.WaitGroup
	once     sync.Once
}

// NewIsolated starts the worker goroutine. Call Close to stop it.
func NewIsolated(inner Classifier) *Isolated {
	i := &Isolated{
		inner:    inner,
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	i.stopped.Add(1)
	go i.run()
	return i
}

func (i *Isolated) run() {
	defer i.stopped.Done()
	for {
		select {
		case req := <-i.requests:
			p, err := i.call(req)
			req.reply <- result{prediction: p, err: err}
		case <-i.done:
			return
		}
	}
}

// call shields the worker from a panicking model.
func (i *Isolated) call(req request) (p Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = NotLoaded, fmt.Errorf("classifier panic: %v", r)
		}
	}()
	if err := req.ctx.Err(); err != nil {
		return NotLoaded, err
	}
	return i.inner.Classify(req.ctx, req.name, req.memo)
}

// Classify hands the request to the worker and waits for its answer.
func (i *Isolated) Classify(ctx context.Context, name, memo string) (Prediction, error) {
	req := request{ctx: ctx, name: name, memo: memo, reply: make(chan result, 1)}
	select {
	case i.requests <- req:
	case <-ctx.Done():
		return NotLoaded, ctx.Err()
	case <-i.done:
		return NotLoaded, ErrClosed
	}

	select {
	case r := <-req.reply:
		return r.prediction, r.err
	case <-ctx.Done():
		return NotLoaded, ctx.Err()
	}
}

// SetCategories forwards to the wrapped classifier when it is CategoryAware.
func (i *Isolated) SetCategories(names []string) {
	if ca, ok := i.inner.(CategoryAware); ok {
		ca.SetCategories(names)
	}
}

// Close stops the worker. Pending callers get ErrClosed.
func (i *Isolated) Close() error {
	i.once.Do(func() { close(i.done) })
	i.stopped.Wait()
	return nil
}
