package dedup

import (
	"reflect"
	"testing"
)

func idOf(i int) ID {
	return ID{byte('a' + i/26/26%26), byte('a' + i/26%26), byte('a' + i%26), 'x'}
}

func TestLedgerRecordsNew(t *testing.T) {
	l := NewLedger(0)

	if l.Cap() != DefaultCapacity {
		t.Errorf("Cap() = %d, want %d", l.Cap(), DefaultCapacity)
	}

	id := ID{'a', 'b', 'c', 'd'}
	if l.SeenOrRecord(id) {
		t.Error("first SeenOrRecord should return false")
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestLedgerDuplicateLeavesStateUnchanged(t *testing.T) {
	l := NewLedger(DefaultCapacity)

	for i := 0; i < 5; i++ {
		l.SeenOrRecord(idOf(i))
	}
	before := l.IDs()

	if !l.SeenOrRecord(idOf(2)) {
		t.Fatal("recorded id should be reported as seen")
	}

	after := l.IDs()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("ledger changed on duplicate:\nbefore %v\nafter  %v", before, after)
	}
}

func TestLedgerBoundedWindow(t *testing.T) {
	l := NewLedger(DefaultCapacity)

	// 31 distinct ids push the first one out.
	for i := 0; i < DefaultCapacity+1; i++ {
		if l.SeenOrRecord(idOf(i)) {
			t.Fatalf("id %d reported as seen on first insert", i)
		}
	}

	if l.Len() != DefaultCapacity {
		t.Errorf("Len() = %d, want %d", l.Len(), DefaultCapacity)
	}
	if l.Contains(idOf(0)) {
		t.Error("oldest id should have been evicted")
	}
	for i := 1; i <= DefaultCapacity; i++ {
		if !l.Contains(idOf(i)) {
			t.Errorf("id %d should still be in the window", i)
		}
	}

	// The evicted id is treated as new again.
	if l.SeenOrRecord(idOf(0)) {
		t.Error("evicted id should be treated as new")
	}
}

func TestLedgerLookupDoesNotRefresh(t *testing.T) {
	l := NewLedger(3)

	l.SeenOrRecord(idOf(0))
	l.SeenOrRecord(idOf(1))
	l.SeenOrRecord(idOf(2))

	// Hitting the oldest must not move it to the back.
	l.SeenOrRecord(idOf(0))
	l.SeenOrRecord(idOf(3))

	if l.Contains(idOf(0)) {
		t.Error("id 0 should be evicted in FIFO order despite the lookup")
	}
	if !l.Contains(idOf(1)) {
		t.Error("id 1 should remain")
	}
}

func TestLedgerReset(t *testing.T) {
	l := NewLedger(4)
	l.SeenOrRecord(idOf(1))
	l.Reset()

	if l.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", l.Len())
	}
	if l.SeenOrRecord(idOf(1)) {
		t.Error("id should be new after Reset")
	}
}
