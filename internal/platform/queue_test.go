package platform

import (
	"testing"
	"time"
)

func inv(jobType string, priority Priority, enqueuedAt time.Time) *Invocation {
	return &Invocation{JobType: jobType, Priority: priority, EnqueuedAt: enqueuedAt, DedupKey: jobType}
}

func TestPriorityQueue_HigherPriorityPopsFirst(t *testing.T) {
	q := NewPriorityQueue(nil)
	now := time.Now()

	q.Push(&Invocation{JobType: "low_job", Priority: PriorityLow, EnqueuedAt: now})
	q.Push(&Invocation{JobType: "critical_job", Priority: PriorityCritical, EnqueuedAt: now})
	q.Push(&Invocation{JobType: "normal_job", Priority: PriorityNormal, EnqueuedAt: now})

	first, err := q.Pop()
	if err != nil {
		t.Fatalf("Pop failed: %v", err)
	}
	if first.JobType != "critical_job" {
		t.Errorf("first Pop = %s, want critical_job", first.JobType)
	}
}

func TestPriorityQueue_SamePriorityOrdersByEnqueuedAt(t *testing.T) {
	q := NewPriorityQueue(nil)
	base := time.Now()

	q.Push(&Invocation{JobType: "second", Priority: PriorityNormal, EnqueuedAt: base.Add(time.Second)})
	q.Push(&Invocation{JobType: "first", Priority: PriorityNormal, EnqueuedAt: base})

	got, err := q.Pop()
	if err != nil {
		t.Fatalf("Pop failed: %v", err)
	}
	if got.JobType != "first" {
		t.Errorf("Pop = %s, want first (earlier EnqueuedAt)", got.JobType)
	}
}

func TestPriorityQueue_PreserveOrderSerializesWithinType(t *testing.T) {
	q := NewPriorityQueue(map[string]bool{"ordered_job": true})
	base := time.Now()

	for i := 0; i < 5; i++ {
		q.Push(&Invocation{
			JobType:    "ordered_job",
			Priority:   PriorityNormal,
			EnqueuedAt: base.Add(time.Duration(i) * time.Millisecond),
			DedupKey:   "", // FIFO overflow arrivals aren't the scheduler's single dedup key
		})
	}
	// A competing high-priority invocation of a different type must not
	// leapfrog ahead of ordered_job's FIFO internally — it competes only at
	// the head level, which this test doesn't exercise directly. What it
	// must never do is reorder ordered_job's own five invocations.
	for i := 0; i < 5; i++ {
		got, err := q.Pop()
		if err != nil {
			t.Fatalf("Pop #%d failed: %v", i, err)
		}
		if got.EnqueuedAt.Sub(base) != time.Duration(i)*time.Millisecond {
			t.Errorf("Pop #%d EnqueuedAt offset = %v, want %v", i, got.EnqueuedAt.Sub(base), time.Duration(i)*time.Millisecond)
		}
	}
}

func TestPriorityQueue_PreserveOrderIgnoresPriorityBand(t *testing.T) {
	q := NewPriorityQueue(map[string]bool{"ordered_job": true})
	base := time.Now()

	q.Push(&Invocation{JobType: "ordered_job", Priority: PriorityLow, EnqueuedAt: base})
	q.Push(&Invocation{JobType: "ordered_job", Priority: PriorityCritical, EnqueuedAt: base.Add(time.Millisecond)})
	q.Push(&Invocation{JobType: "ordered_job", Priority: PriorityHigh, EnqueuedAt: base.Add(2 * time.Millisecond)})

	for i, wantPriority := range []Priority{PriorityLow, PriorityCritical, PriorityHigh} {
		got, err := q.Pop()
		if err != nil {
			t.Fatalf("Pop #%d failed: %v", i, err)
		}
		if got.Priority != wantPriority {
			t.Errorf("Pop #%d Priority = %v, want %v (preserve_order must win over priority)", i, got.Priority, wantPriority)
		}
	}
}

func TestPriorityQueue_Push_DropsDedupCollision(t *testing.T) {
	q := NewPriorityQueue(map[string]bool{"ordered_job": true})
	base := time.Now()

	if ok := q.Push(inv("ordered_job", PriorityNormal, base)); !ok {
		t.Fatal("first Push = false, want true")
	}
	if ok := q.Push(inv("ordered_job", PriorityNormal, base.Add(time.Millisecond))); ok {
		t.Fatal("second Push with colliding dedup_key = true, want false (dropped)")
	}
	if got := q.LenByType("ordered_job"); got != 1 {
		t.Errorf("LenByType = %d, want 1", got)
	}
}

func TestPriorityQueue_LenAndLenByType(t *testing.T) {
	q := NewPriorityQueue(map[string]bool{"ordered_job": true})
	base := time.Now()

	q.Push(&Invocation{JobType: "ordered_job", Priority: PriorityNormal, EnqueuedAt: base})
	q.Push(&Invocation{JobType: "ordered_job", Priority: PriorityNormal, EnqueuedAt: base.Add(time.Millisecond)})
	q.Push(&Invocation{JobType: "other_job", Priority: PriorityNormal, EnqueuedAt: base})

	if got := q.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
	if got := q.LenByType("ordered_job"); got != 2 {
		t.Errorf("LenByType(ordered_job) = %d, want 2", got)
	}
}

func TestPriorityQueue_RemoveMatching(t *testing.T) {
	q := NewPriorityQueue(map[string]bool{"ordered_job": true})
	base := time.Now()

	q.Push(&Invocation{JobType: "ordered_job", Priority: PriorityNormal, EnqueuedAt: base})
	q.Push(&Invocation{JobType: "ordered_job", Priority: PriorityNormal, EnqueuedAt: base.Add(time.Millisecond)})
	q.Push(&Invocation{JobType: "keep_job", Priority: PriorityNormal, EnqueuedAt: base})

	removed := q.RemoveMatching(func(inv *Invocation) bool { return inv.JobType == "ordered_job" })
	if removed != 2 {
		t.Errorf("RemoveMatching removed = %d, want 2", removed)
	}
	if got := q.Len(); got != 1 {
		t.Errorf("Len() after RemoveMatching = %d, want 1", got)
	}
}

func TestPriorityQueue_Close_DrainsBufferedItemsThenErrors(t *testing.T) {
	q := NewPriorityQueue(nil)
	q.Push(&Invocation{JobType: "buffered_job", Priority: PriorityNormal, EnqueuedAt: time.Now()})
	q.Close()

	got, err := q.Pop()
	if err != nil {
		t.Fatalf("Pop after Close (buffered item present) failed: %v", err)
	}
	if got.JobType != "buffered_job" {
		t.Errorf("Pop = %s, want buffered_job", got.JobType)
	}

	if _, err := q.Pop(); err != ErrClosed {
		t.Errorf("Pop after drain = %v, want ErrClosed", err)
	}
}

func TestPriorityQueue_Pop_UnblocksOnPush(t *testing.T) {
	q := NewPriorityQueue(nil)
	done := make(chan *Invocation, 1)

	go func() {
		got, err := q.Pop()
		if err != nil {
			return
		}
		done <- got
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(&Invocation{JobType: "late_arrival", Priority: PriorityNormal, EnqueuedAt: time.Now()})

	select {
	case got := <-done:
		if got.JobType != "late_arrival" {
			t.Errorf("Pop = %s, want late_arrival", got.JobType)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop never unblocked after Push")
	}
}
