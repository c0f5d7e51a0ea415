package peer

import "testing"

func TestAddressBookAddDedupes(t *testing.T) {
	b := NewAddressBook()
	b.Add("host-a:3001")
	b.Add("host-a:3001")
	b.Add("")
	b.AddMany([]string{"host-b:3001", "host-a:3001"})

	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}
}

func TestAddressBookPopOne(t *testing.T) {
	b := NewAddressBook()
	b.AddMany([]string{"a:1", "b:2", "c:3"})

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		addr, ok := b.PopOne()
		if !ok {
			t.Fatalf("PopOne ran dry after %d pops", i)
		}
		if seen[addr] {
			t.Fatalf("PopOne returned %s twice", addr)
		}
		seen[addr] = true
	}
	if _, ok := b.PopOne(); ok {
		t.Fatalf("PopOne returned an address from an empty book")
	}

	// A popped address can be learned again later.
	b.Add("a:1")
	if b.Len() != 1 {
		t.Fatalf("re-adding a popped address failed")
	}
}

func TestAddressBookSampleTwo(t *testing.T) {
	b := NewAddressBook()
	if got := b.SampleTwo(); got != nil {
		t.Fatalf("SampleTwo on empty book = %v, want nil", got)
	}

	b.Add("solo:1")
	if got := b.SampleTwo(); len(got) != 1 || got[0] != "solo:1" {
		t.Fatalf("SampleTwo with one entry = %v", got)
	}

	b.AddMany([]string{"x:1", "y:2"})
	got := b.SampleTwo()
	if len(got) != 2 || got[0] == got[1] {
		t.Fatalf("SampleTwo = %v, want two distinct addresses", got)
	}
	if b.Len() != 3 {
		t.Fatalf("SampleTwo mutated the book")
	}
}
