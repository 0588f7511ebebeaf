// Package sequence hands out strictly increasing numbers per namespace.
// Allocation is serialized so two callers never receive the same value.
package sequence

import (
	"context"
	"errors"
	"fmt"
)

var ErrClosed = errors.New("sequence allocator closed")

// Floor reports the highest value already persisted for a namespace. The
// allocator never returns a value at or below it, which keeps numbering
// correct after restarts or writes made by other tools.
type Floor func(ctx context.Context) (int64, error)

type Allocator interface {
	Next(ctx context.Context, namespace string, floor Floor) (int64, error)
}

// Format renders a value as prefix plus a zero padded four digit suffix.
// Values past 9999 keep all their digits.
func Format(prefix string, seq int64) string {
	return fmt.Sprintf("%s%04d", prefix, seq)
}

type request struct {
	ctx       context.Context
	namespace string
	floor     Floor
	reply     chan result
}

type result struct {
	seq int64
	err error
}

// Local serializes allocation through a single goroutine that owns the
// per-namespace counters.
type Local struct {
	requests chan request
	done     chan struct{}
}

func NewLocal() *Local {
	l := &Local{
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Local) run() {
	last := make(map[string]int64)
	for {
		select {
		case <-l.done:
			return
		case req := <-l.requests:
			next := last[req.namespace]
			if req.floor != nil {
				floor, err := req.floor(req.ctx)
				if err != nil {
					req.reply <- result{err: fmt.Errorf("read floor for %s: %w", req.namespace, err)}
					continue
				}
				next = max(next, floor)
			}
			next++
			last[req.namespace] = next
			req.reply <- result{seq: next}
		}
	}
}

func (l *Local) Next(ctx context.Context, namespace string, floor Floor) (int64, error) {
	req := request{ctx: ctx, namespace: namespace, floor: floor, reply: make(chan result, 1)}
	select {
	case l.requests <- req:
	case <-l.done:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	// the arbiter always answers once it accepted the request
	res := <-req.reply
	return res.seq, res.err
}

// Close stops the arbiter. Pending and later calls fail with ErrClosed.
func (l *Local) Close() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}
