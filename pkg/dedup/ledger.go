// Package dedup provides a bounded record of recently seen message
// identifiers, used to deliver each inbound message to the application at
// most once even though the mesh floods and the sender retransmits.
//
// The window is a fixed number of distinct identifiers. An identifier that
// has been pushed out of the window by newer ones is treated as new again.
// This is an accepted approximation for memory-constrained nodes, not a
// correctness bug: retransmissions arrive well inside the window.
package dedup

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultCapacity is the number of identifiers remembered.
const DefaultCapacity = 30

// IDSize is the size of a message identifier in bytes.
const IDSize = 4

// ID is a message identifier as carried in the message header.
type ID [IDSize]byte

// Ledger is a fixed-capacity FIFO of recently observed identifiers.
//
// Lookups never refresh an entry, so eviction order is insertion order.
// A Ledger is not safe for concurrent use.
type Ledger struct {
	ids      *simplelru.LRU[ID, struct{}]
	capacity int
}

// NewLedger creates a ledger holding up to capacity identifiers.
// A capacity <= 0 selects DefaultCapacity.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	// NewLRU only fails for a non-positive size.
	ids, _ := simplelru.NewLRU[ID, struct{}](capacity, nil)
	return &Ledger{ids: ids, capacity: capacity}
}

// SeenOrRecord reports whether id is already in the window. If it is, the
// ledger is left unchanged. Otherwise id is recorded, evicting the oldest
// identifier when the ledger is full, and false is returned.
func (l *Ledger) SeenOrRecord(id ID) bool {
	// Contains does not update recency, keeping the order FIFO.
	if l.ids.Contains(id) {
		return true
	}
	l.ids.Add(id, struct{}{})
	return false
}

// Contains reports whether id is in the window without recording it.
func (l *Ledger) Contains(id ID) bool {
	return l.ids.Contains(id)
}

// Len returns the number of identifiers currently remembered.
func (l *Ledger) Len() int {
	return l.ids.Len()
}

// Cap returns the ledger capacity.
func (l *Ledger) Cap() int {
	return l.capacity
}

// IDs returns the remembered identifiers from oldest to newest.
func (l *Ledger) IDs() []ID {
	return l.ids.Keys()
}

// Reset forgets every identifier.
func (l *Ledger) Reset() {
	l.ids.Purge()
}
