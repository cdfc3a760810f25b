package items

import (
	"slices"
	"sync"
	"testing"

	"bombfield/server/internal/score"
	"bombfield/server/internal/sim"
	"bombfield/server/internal/spatial"
)

type countingDestroyer struct {
	mu      sync.Mutex
	reasons map[sim.EntityID][]string
}

func (d *countingDestroyer) DestroyBecause(id sim.EntityID, reason string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reasons == nil {
		d.reasons = make(map[sim.EntityID][]string)
	}
	d.reasons[id] = append(d.reasons[id], reason)
	return len(d.reasons[id]) == 1
}

func TestCollectIsIdempotent(t *testing.T) {
	ledger := &score.Ledger{}
	destroyer := &countingDestroyer{}
	var deltas []int64
	c := NewCollector(Config{
		Ledger:    ledger,
		Destroyer: destroyer,
		OnScore:   func(delta, total int64) { deltas = append(deltas, delta) },
	})
	c.Track(5, 1)

	if !c.Collect(5, "conn-1") {
		t.Fatalf("expected first collect to succeed")
	}
	if c.Collect(5, "conn-2") {
		t.Fatalf("expected second collect to be a no-op")
	}
	if ledger.Value() != 1 {
		t.Fatalf("expected score 1, got %d", ledger.Value())
	}
	if got := destroyer.reasons[5]; len(got) != 1 || got[0] != "collected" {
		t.Fatalf("expected a single collected destroy, got %v", got)
	}
	if len(deltas) != 1 || deltas[0] != 1 {
		t.Fatalf("expected one score notification, got %v", deltas)
	}
	if state, _ := c.StateOf(5); state != StateCollected {
		t.Fatalf("expected collected state")
	}
}

func TestCollectConcurrentTriggers(t *testing.T) {
	ledger := &score.Ledger{}
	c := NewCollector(Config{Ledger: ledger})
	c.Track(1, 3)

	var wg sync.WaitGroup
	wins := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- c.Collect(1, "")
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 || ledger.Value() != 3 {
		t.Fatalf("expected exactly one winner and score 3, got %d winners score %d", won, ledger.Value())
	}
}

func TestFeedIgnoresNonPlayerContacts(t *testing.T) {
	ledger := &score.Ledger{}
	c := NewCollector(Config{Ledger: ledger})
	c.Track(2, 1)
	c.Track(4, 1)

	contacts := []spatial.Contact{
		{A: 1, B: 2, KindA: sim.KindEnemy, KindB: sim.KindItem},
		{A: 3, B: 4, KindA: sim.KindPlayer, KindB: sim.KindItem},
		{A: 3, B: 4, KindA: sim.KindPlayer, KindB: sim.KindItem},
	}
	if got := c.Feed(slices.Values(contacts)); got != 1 {
		t.Fatalf("expected one collection, got %d", got)
	}
	if ledger.Value() != 1 || c.Active() != 1 {
		t.Fatalf("unexpected state score=%d active=%d", ledger.Value(), c.Active())
	}
}

func TestRetiredItemsCannotScore(t *testing.T) {
	ledger := &score.Ledger{}
	c := NewCollector(Config{Ledger: ledger})
	c.Track(9, 1)
	c.Retire(9)
	if c.Collect(9, "") || ledger.Value() != 0 {
		t.Fatalf("expected retired item to be ignored")
	}
}
