package journal

import (
	"fmt"
)

type ResyncReason struct {
	Kind     string
	EntityID uint64
}

type ResyncSignal struct {
	Dropped     uint64
	TotalEvents uint64
	Reasons     []ResyncReason
}

// Policy decides when shed state updates have left observers far enough
// behind to warrant a full snapshot.
type Policy struct {
	totalEvents uint64
	dropped     uint64
	pending     bool
	reasons     []ResyncReason
}

// droppedThresholdPerHundred is the share of shed entries that triggers a resync.
const droppedThresholdPerHundred = 1
const resyncReasonLimit = 8

func NewPolicy() *Policy {
	return &Policy{reasons: make([]ResyncReason, 0, resyncReasonLimit)}
}

func (p *Policy) NoteEvent() {
	if p == nil {
		return
	}
	if p.totalEvents == ^uint64(0) {
		p.totalEvents = p.totalEvents / 2
		p.dropped = p.dropped / 2
	}
	p.totalEvents++
}

func (p *Policy) NoteDropped(kind string, entityID uint64) {
	if p == nil {
		return
	}
	p.dropped++
	if len(p.reasons) < resyncReasonLimit {
		p.reasons = append(p.reasons, ResyncReason{Kind: kind, EntityID: entityID})
	}
	p.evaluate()
}

func (p *Policy) evaluate() {
	if p == nil || p.pending || p.dropped == 0 {
		return
	}
	total := max(p.totalEvents, 1)
	if p.dropped*100 >= total*droppedThresholdPerHundred {
		p.pending = true
	}
}

func (p *Policy) Consume() (ResyncSignal, bool) {
	if p == nil || !p.pending {
		return ResyncSignal{}, false
	}
	signal := ResyncSignal{
		Dropped:     p.dropped,
		TotalEvents: p.totalEvents,
		Reasons:     append([]ResyncReason(nil), p.reasons...),
	}
	p.pending = false
	p.totalEvents = 0
	p.dropped = 0
	p.reasons = p.reasons[:0]
	return signal, true
}

func (s ResyncSignal) Summary() string {
	if s.Dropped == 0 && s.TotalEvents == 0 {
		return ""
	}
	return fmt.Sprintf("dropped=%d total_events=%d reasons=%v", s.Dropped, s.TotalEvents, s.Reasons)
}
