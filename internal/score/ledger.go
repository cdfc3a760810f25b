// Package score holds the shared game score.
package score

import "sync/atomic"

// Ledger is the score accumulated by item collection. It is owned by one
// game instance; create one per Hub.
type Ledger struct {
	value atomic.Int64
}

// Add applies delta and returns the new total.
func (l *Ledger) Add(delta int64) int64 {
	return l.value.Add(delta)
}

// Set overwrites the total. Observers use it to mirror the authority.
func (l *Ledger) Set(value int64) {
	l.value.Store(value)
}

func (l *Ledger) Value() int64 {
	return l.value.Load()
}
