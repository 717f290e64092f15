// Package boardlock serializes mutations of a single board across goroutines
// and, when Redis is configured, across server instances.
package boardlock

import (
	"context"
)

// Locker hands out exclusive locks by key.
type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned context is
	// canceled when the lock is released or lost. release is safe to call more
	// than once and is never nil.
	Lock(ctx context.Context, key string) (context.Context, ReleaseFunc, error)
}

type ReleaseFunc func()

// BoardKey is the lock key guarding the orderings of one board.
func BoardKey(boardID string) string {
	return "board:" + boardID
}
