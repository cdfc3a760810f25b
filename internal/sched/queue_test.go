package sched

import (
	"testing"
	"time"
)

func TestQueueRunsInFireOrderWithStableTies(t *testing.T) {
	q := New()
	var order []string
	q.At(2*time.Second, func() { order = append(order, "late") })
	q.At(time.Second, func() { order = append(order, "first") })
	q.At(time.Second, func() { order = append(order, "second") })

	if ran := q.RunDue(500 * time.Millisecond); ran != 0 {
		t.Fatalf("expected nothing due yet, ran %d", ran)
	}
	if ran := q.RunDue(time.Second); ran != 2 {
		t.Fatalf("expected two tasks at 1s, ran %d", ran)
	}
	if ran := q.RunDue(3 * time.Second); ran != 1 {
		t.Fatalf("expected the late task, ran %d", ran)
	}
	want := []string{"first", "second", "late"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestQueueCancel(t *testing.T) {
	q := New()
	fired := false
	id := q.After(time.Second, func() { fired = true })
	if !q.Pending(id) {
		t.Fatalf("expected task pending")
	}
	if !q.Cancel(id) {
		t.Fatalf("expected cancel to succeed")
	}
	if q.Cancel(id) {
		t.Fatalf("expected second cancel to report false")
	}
	q.RunDue(10 * time.Second)
	if fired || q.Len() != 0 {
		t.Fatalf("expected cancelled task never to fire")
	}
}

func TestQueueAfterIsRelativeToClock(t *testing.T) {
	q := New()
	q.RunDue(5 * time.Second)
	fired := 0
	q.After(time.Second, func() { fired++ })
	q.RunDue(5*time.Second + 999*time.Millisecond)
	if fired != 0 {
		t.Fatalf("expected task to wait a full second from 5s")
	}
	q.RunDue(6 * time.Second)
	if fired != 1 {
		t.Fatalf("expected task to fire at 6s")
	}
}

func TestQueueActionsMayScheduleDueWork(t *testing.T) {
	q := New()
	var order []int
	q.At(time.Second, func() {
		order = append(order, 1)
		q.After(0, func() { order = append(order, 2) })
		q.After(time.Second, func() { order = append(order, 3) })
	})
	if ran := q.RunDue(time.Second); ran != 2 {
		t.Fatalf("expected chained zero-delay task to run in the same drain, ran %d", ran)
	}
	if len(order) != 2 || q.Len() != 1 {
		t.Fatalf("unexpected state order=%v len=%d", order, q.Len())
	}
	if q.Now() != time.Second {
		t.Fatalf("expected clock at 1s, got %s", q.Now())
	}
}

func TestQueueAdvanceMovesClockWithoutRunning(t *testing.T) {
	q := New()
	fired := false
	q.At(time.Second, func() { fired = true })

	q.Advance(time.Second)
	if fired {
		t.Fatalf("expected Advance to leave due tasks pending")
	}
	q.Advance(500 * time.Millisecond)
	if q.Now() != time.Second {
		t.Fatalf("expected the clock to stay at 1s, got %v", q.Now())
	}

	var at time.Duration
	q.After(time.Second, func() { at = q.Now() })
	if ran := q.RunDue(time.Second); ran != 1 || !fired {
		t.Fatalf("expected only the due task to run, ran %d", ran)
	}
	q.RunDue(2 * time.Second)
	if at != 2*time.Second {
		t.Fatalf("expected the relative task to fire at 2s, got %v", at)
	}
}
