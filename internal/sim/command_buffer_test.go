package sim

import (
	"testing"

	"bombfield/server/internal/telemetry"
)

func TestCommandBufferWraparound(t *testing.T) {
	buffer := NewCommandBuffer(3, nil)
	cmds := []Command{
		{Sender: "a"},
		{Sender: "b"},
		{Sender: "c"},
	}
	for _, cmd := range cmds {
		if !buffer.Push(cmd) {
			t.Fatalf("expected push to succeed for %+v", cmd)
		}
	}
	if buffer.Push(Command{Sender: "overflow"}) {
		t.Fatalf("expected push to fail when buffer full")
	}
	drained := buffer.Drain()
	if len(drained) != len(cmds) {
		t.Fatalf("expected %d commands, got %d", len(cmds), len(drained))
	}
	for i, cmd := range drained {
		if cmd.Sender != cmds[i].Sender {
			t.Fatalf("expected drain order %v, got %v", cmds[i].Sender, cmd.Sender)
		}
	}

	if !buffer.Push(Command{Sender: "d"}) {
		t.Fatalf("expected push to succeed after drain")
	}
	buffer.Drain()
	// Head now sits mid-ring; the next batch must wrap.
	for _, cmd := range []Command{{Sender: "e"}, {Sender: "f"}, {Sender: "g"}} {
		if !buffer.Push(cmd) {
			t.Fatalf("expected push to succeed after drain for %+v", cmd)
		}
	}
	wrapped := buffer.Drain()
	if len(wrapped) != 3 {
		t.Fatalf("expected 3 commands after wraparound, got %d", len(wrapped))
	}
	if wrapped[0].Sender != "e" || wrapped[1].Sender != "f" || wrapped[2].Sender != "g" {
		t.Fatalf("unexpected order after wraparound: %+v", wrapped)
	}
}

func TestCommandBufferRecordsMetrics(t *testing.T) {
	counters := telemetry.NewCounters()
	buffer := NewCommandBuffer(1, counters)
	if !buffer.Push(Command{Sender: "one"}) {
		t.Fatalf("expected initial push to succeed")
	}
	if buffer.Push(Command{Sender: "two"}) {
		t.Fatalf("expected push to fail when capacity exceeded")
	}

	snapshot := counters.Snapshot()
	if snapshot[commandBufferOverflowMetricKey] != 1 {
		t.Fatalf("expected one overflow, got %d", snapshot[commandBufferOverflowMetricKey])
	}
	if snapshot[commandBufferOccupancyMetricKey] != 1 {
		t.Fatalf("expected occupancy 1, got %d", snapshot[commandBufferOccupancyMetricKey])
	}

	drained := buffer.Drain()
	if len(drained) != 1 || drained[0].Sender != "one" {
		t.Fatalf("unexpected drained commands: %+v", drained)
	}
	if got := counters.Snapshot()[commandBufferOccupancyMetricKey]; got != 0 {
		t.Fatalf("expected occupancy reset after drain, got %d", got)
	}
}
