// Package items tracks collectible items and turns collection triggers into
// score.
package items

import (
	"context"
	"iter"
	"sync"

	"bombfield/server/internal/lifecycle"
	"bombfield/server/internal/score"
	"bombfield/server/internal/sim"
	"bombfield/server/internal/spatial"
	"bombfield/server/logging"
	"bombfield/server/logging/economy"
)

// State is the collection state of one item.
type State int

const (
	StateActive State = iota
	StateCollected
)

// Destroyer removes collected items from the world.
type Destroyer interface {
	DestroyBecause(id sim.EntityID, reason string) bool
}

// Config wires a Collector. OnScore, OwnerOf, Publisher and Tick are
// optional.
type Config struct {
	Ledger    *score.Ledger
	Destroyer Destroyer
	Publisher logging.Publisher
	Tick      func() uint64
	// OnScore is called after every ledger change with the delta and new total.
	OnScore func(delta, total int64)
	// OwnerOf names the participant credited for an overlap pickup.
	OwnerOf func(sim.EntityID) sim.Owner
}

type item struct {
	value int
	state State
}

// Collector guards the Active to Collected transition. The first trigger for
// an item wins; later triggers, including repeated overlap reports, are
// no-ops.
type Collector struct {
	cfg Config

	mu    sync.Mutex
	items map[sim.EntityID]*item
}

func NewCollector(cfg Config) *Collector {
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	return &Collector{cfg: cfg, items: make(map[sim.EntityID]*item)}
}

// Track registers an active item worth value.
func (c *Collector) Track(id sim.EntityID, value int) {
	c.mu.Lock()
	c.items[id] = &item{value: value}
	c.mu.Unlock()
}

// Retire forgets an item removed by something other than collection, so a
// late trigger cannot score it.
func (c *Collector) Retire(id sim.EntityID) {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
}

// Collect marks the item collected, credits its value to the ledger and
// destroys it. It reports whether this call performed the transition.
func (c *Collector) Collect(id sim.EntityID, by sim.Owner) bool {
	c.mu.Lock()
	it, ok := c.items[id]
	if !ok || it.state != StateActive {
		c.mu.Unlock()
		return false
	}
	it.state = StateCollected
	value := it.value
	c.mu.Unlock()

	total := c.cfg.Ledger.Add(int64(value))
	if c.cfg.Destroyer != nil {
		c.cfg.Destroyer.DestroyBecause(id, lifecycle.ReasonCollected)
	}

	tick := c.tick()
	economy.ItemCollected(
		context.Background(),
		c.cfg.Publisher,
		tick,
		logging.EntityRef{ID: id.String(), Kind: logging.EntityKindItem},
		economy.ItemCollectedPayload{ItemID: id.String(), Shooter: string(by)},
		nil,
	)
	economy.ScoreChanged(context.Background(), c.cfg.Publisher, tick, economy.ScoreChangedPayload{Delta: int64(value), Total: total}, nil)
	if c.cfg.OnScore != nil {
		c.cfg.OnScore(int64(value), total)
	}
	return true
}

// Feed collects every item a player overlapped during the last step and
// returns how many were collected.
func (c *Collector) Feed(contacts iter.Seq[spatial.Contact]) int {
	collected := 0
	for contact := range contacts {
		if !contact.Involves(sim.KindPlayer, sim.KindItem) {
			continue
		}
		itemID, _ := contact.Of(sim.KindItem)
		var by sim.Owner
		if playerID, ok := contact.Of(sim.KindPlayer); ok && c.cfg.OwnerOf != nil {
			by = c.cfg.OwnerOf(playerID)
		}
		if c.Collect(itemID, by) {
			collected++
		}
	}
	return collected
}

// StateOf reports the collection state of a tracked item.
func (c *Collector) StateOf(id sim.EntityID) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[id]
	if !ok {
		return 0, false
	}
	return it.state, true
}

// Active counts items that can still be collected.
func (c *Collector) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	active := 0
	for _, it := range c.items {
		if it.state == StateActive {
			active++
		}
	}
	return active
}

func (c *Collector) tick() uint64 {
	if c.cfg.Tick == nil {
		return 0
	}
	return c.cfg.Tick()
}
