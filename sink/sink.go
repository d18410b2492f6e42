// Package sink holds the transactional side of the connector: the capability
// the batch processor wraps record application in, and a Pebble-backed sink
// that implements it.
package sink

import (
	"context"
)

// Transactional runs fn as one unit of work. Everything fn writes commits if
// and only if fn returns nil. Resources are released on every exit path,
// including a panic in fn, which is re-raised after the rollback.
type Transactional interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// TransactionalFunc adapts a function to Transactional.
type TransactionalFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func (f TransactionalFunc) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}
