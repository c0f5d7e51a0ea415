// Copyright (c) 2024-2026 The povchain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"math/rand"
	"sync"
)

// AddressBook is the set of peer addresses learned through discovery: an
// insertion-ordered, de-duplicated set from which PopOne removes a
// randomly chosen entry, used by the disconnect-recovery loop to dial a
// fresh address. A popped address is forgotten and can be learned again.
type AddressBook struct {
	mtx     sync.Mutex
	order   []string
	present map[string]bool
}

// NewAddressBook returns an empty address book.
func NewAddressBook() *AddressBook {
	return &AddressBook{present: make(map[string]bool)}
}

// Add records addr if not already known.
func (b *AddressBook) Add(addr string) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if addr == "" || b.present[addr] {
		return
	}
	b.present[addr] = true
	b.order = append(b.order, addr)
}

// AddMany records every address in addrs.
func (b *AddressBook) AddMany(addrs []string) {
	for _, a := range addrs {
		b.Add(a)
	}
}

// Len returns the number of known addresses.
func (b *AddressBook) Len() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return len(b.order)
}

// PopOne removes and returns an arbitrary known address, reporting false
// if the book is empty.
func (b *AddressBook) PopOne() (string, bool) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if len(b.order) == 0 {
		return "", false
	}
	i := rand.Intn(len(b.order))
	addr := b.order[i]
	b.order = append(b.order[:i], b.order[i+1:]...)
	delete(b.present, addr)
	return addr, true
}

// SampleTwo returns up to two distinct known addresses without removing
// them, for the periodic discovery refresh.
func (b *AddressBook) SampleTwo() []string {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if len(b.order) == 0 {
		return nil
	}
	n := 2
	if n > len(b.order) {
		n = len(b.order)
	}
	idx := rand.Perm(len(b.order))[:n]
	out := make([]string, n)
	for i, j := range idx {
		out[i] = b.order[j]
	}
	return out
}
