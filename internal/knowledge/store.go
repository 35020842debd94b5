// Package knowledge holds the learned artifacts the engine retrieves from
// and the stores that persist them.
package knowledge

import (
	"context"
	"errors"
	"sync"
)

// ErrWritesDisabled is returned by Writer methods while learning is off.
var ErrWritesDisabled = errors.New("knowledge store: writes are disabled")

// Store is the read side used by the engine. Implementations must be safe
// for concurrent reads.
type Store interface {
	// SearchByKeyword returns entries of the category whose content contains
	// the keyword, best first.
	SearchByKeyword(ctx context.Context, keyword string, cat Category, limit int) ([]LearnedEntry, error)

	// SearchByPattern returns entries of the category matching a prompt pattern.
	SearchByPattern(ctx context.Context, pattern string, cat Category, limit int) ([]LearnedEntry, error)

	// TopByCategory returns the best entries of the category. A non-empty
	// hint biases the order toward entries sharing words with it.
	TopByCategory(ctx context.Context, cat Category, limit int, hint string) ([]LearnedEntry, error)

	// SearchFixes returns structured fixes matching any of the keywords.
	SearchFixes(ctx context.Context, keywords []string, limit int) ([]FixRecord, error)

	WriteSwitch
}

// WriteSwitch is the "learning enabled" flag of a store.
type WriteSwitch interface {
	SetWriteEnabled(enabled bool)
	WriteEnabled() bool
}

// Writer is the mutation side, used by import and learn commands.
type Writer interface {
	Add(ctx context.Context, e LearnedEntry) (LearnedEntry, error)
	AddFix(ctx context.Context, f FixRecord) (FixRecord, error)
	Stats(ctx context.Context) (map[Category]int, error)
}

// writeGuards tracks the runs holding each store's write flag off. The
// flag a store had before its first holder is restored when the last
// holder releases it, so overlapping runs never leave learning disabled.
var writeGuards = struct {
	sync.Mutex
	held map[WriteSwitch]*writeGuard
}{held: make(map[WriteSwitch]*writeGuard)}

type writeGuard struct {
	holders int
	prior   bool
}

// DisableWrites turns learning off and returns the function that releases
// the hold. Callers defer the returned function so the flag is restored on
// every exit path; calling it more than once has no further effect.
//
// sw must be comparable (stores are pointers).
func DisableWrites(sw WriteSwitch) (restore func()) {
	writeGuards.Lock()
	g, ok := writeGuards.held[sw]
	if !ok {
		g = &writeGuard{prior: sw.WriteEnabled()}
		writeGuards.held[sw] = g
	}
	g.holders++
	sw.SetWriteEnabled(false)
	writeGuards.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			writeGuards.Lock()
			defer writeGuards.Unlock()
			if g.holders--; g.holders == 0 {
				delete(writeGuards.held, sw)
				sw.SetWriteEnabled(g.prior)
			}
		})
	}
}
