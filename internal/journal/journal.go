// Package journal accumulates the outbound messages produced during a tick so
// they can be flushed to participants in order once the tick completes.
package journal

import (
	"sync"

	"bombfield/server/internal/net/proto"
	"bombfield/server/internal/sim"
)

// Telemetry captures the metrics adapter used by the journal to report drops.
type Telemetry interface {
	RecordJournalDrop(metric string)
}

const metricStateDropped = "journal_state_dropped_total"

// Entry is one outbound message and its audience. Only restricts delivery to
// a single participant; Except skips one participant, typically the owner
// whose own update is being relayed.
type Entry struct {
	Message proto.Message
	Only    sim.Owner
	Except  sim.Owner
}

// DeliverTo reports whether owner should receive the entry.
func (e Entry) DeliverTo(owner sim.Owner) bool {
	if e.Only != "" {
		return e.Only == owner
	}
	return e.Except == "" || e.Except != owner
}

// Journal is the per-tick outbound batch. State updates are best effort and
// may be shed when the batch is full; spawn, destroy and score entries are
// always kept because observers cannot recover from losing them.
type Journal struct {
	mu        sync.Mutex
	entries   []Entry
	states    int
	capacity  int
	telemetry Telemetry
	resync    *Policy
}

// New constructs a journal that holds at most capacity state updates per
// tick. A non-positive capacity disables shedding.
func New(capacity int) *Journal {
	return &Journal{capacity: capacity, resync: NewPolicy()}
}

// AttachTelemetry wires drop reporting.
func (j *Journal) AttachTelemetry(t Telemetry) {
	j.mu.Lock()
	j.telemetry = t
	j.mu.Unlock()
}

// Append queues an entry and reports whether it was kept.
func (j *Journal) Append(e Entry) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.resync.NoteEvent()
	if e.Message.Type == proto.TypeState && j.capacity > 0 && j.states >= j.capacity {
		var id uint64
		if e.Message.State != nil {
			id = e.Message.State.ID
		}
		j.resync.NoteDropped(proto.TypeState, id)
		if j.telemetry != nil {
			j.telemetry.RecordJournalDrop(metricStateDropped)
		}
		return false
	}
	if e.Message.Type == proto.TypeState {
		j.states++
	}
	j.entries = append(j.entries, e)
	return true
}

// Broadcast queues msg for every participant.
func (j *Journal) Broadcast(msg proto.Message) bool {
	return j.Append(Entry{Message: msg})
}

// Drain returns the queued entries in append order and empties the journal.
func (j *Journal) Drain() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.entries) == 0 {
		return nil
	}
	drained := j.entries
	j.entries = nil
	j.states = 0
	return drained
}

func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// ConsumeResyncHint reports whether enough state updates were shed that
// observers should be sent a fresh snapshot.
func (j *Journal) ConsumeResyncHint() (ResyncSignal, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.resync.Consume()
}
