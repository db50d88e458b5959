package dedup

import (
	"fmt"
	"testing"
	"time"
)

func TestFirstSeenNeverDuplicate(t *testing.T) {
	d := New(time.Minute, 1000)
	if d.IsDuplicate("M1", "telegram") {
		t.Fatal("first-seen message reported as duplicate")
	}
}

func TestRepeatWithinTTLIsDuplicate(t *testing.T) {
	d := New(time.Minute, 1000)
	d.IsDuplicate("M1", "telegram")
	if !d.IsDuplicate("M1", "telegram") {
		t.Fatal("repeat within TTL should be a duplicate")
	}
}

func TestRepeatAfterTTLIsNotDuplicate(t *testing.T) {
	d := New(10*time.Millisecond, 1000)
	d.IsDuplicate("M1", "telegram")
	time.Sleep(20 * time.Millisecond)
	if d.IsDuplicate("M1", "telegram") {
		t.Fatal("repeat after TTL expiry should not be a duplicate")
	}
}

func TestCapacityEvictsExactlyOneOldest(t *testing.T) {
	d := New(time.Minute, 3)
	d.IsDuplicate("A", "c")
	d.IsDuplicate("B", "c")
	d.IsDuplicate("C", "c")
	if d.Size() != 3 {
		t.Fatalf("size = %d, want 3", d.Size())
	}
	// Inserting a 4th hits the cap, evicting exactly one (the oldest: A).
	d.IsDuplicate("D", "c")
	if d.Size() != 3 {
		t.Fatalf("size after eviction = %d, want 3", d.Size())
	}
	if d.IsDuplicate("A", "c") {
		t.Fatal("A should have been evicted and treated as first-seen again")
	}
}

func TestDifferentChannelsSameMessageIDAreDistinct(t *testing.T) {
	d := New(time.Minute, 1000)
	d.IsDuplicate("M1", "telegram")
	if d.IsDuplicate("M1", "discord") {
		t.Fatal("same messageId on a different channel must not collide")
	}
}

func TestKeyFormat(t *testing.T) {
	got := buildKey("telegram", "M1")
	want := fmt.Sprintf("%s:%s", "telegram", "M1")
	if got != want {
		t.Fatalf("buildKey = %q, want %q", got, want)
	}
}
