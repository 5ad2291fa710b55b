// Package workpool bounds the number of concurrent calls made to a shared
// resource such as an upstream API.
package workpool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is used when a non-positive size is given.
const DefaultSize = 8

// Pool admits at most Size concurrent jobs. Callers beyond the limit wait
// until a slot frees or their context ends.
type Pool struct {
	sem      *semaphore.Weighted
	size     int64
	inFlight atomic.Int64
	waiting  atomic.Int64
}

// New creates a pool with size slots.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Do runs fn once a slot is free. It returns ctx.Err() without running fn
// if the context ends while waiting.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p.waiting.Add(1)
	err := p.sem.Acquire(ctx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return err
	}
	defer p.sem.Release(1)

	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	return fn(ctx)
}

// Run is Do for jobs that produce a value.
func Run[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Size     int `json:"size"`
	InFlight int `json:"in_flight"`
	Waiting  int `json:"waiting"`
}

// Stats returns the current occupancy.
func (p *Pool) Stats() Stats {
	return Stats{
		Size:     int(p.size),
		InFlight: int(p.inFlight.Load()),
		Waiting:  int(p.waiting.Load()),
	}
}
