package pattern

import "testing"

func TestTripleSlotRoundTrip(t *testing.T) {
	in := TripleFields{
		Subject:   Term{Type: TermVariable, Start: 10, Len: 2},
		Predicate: Term{Type: TermIRI, Start: 13, Len: 20},
		Object:    Term{Type: TermLiteral, Start: 34, Len: 5},
		Path:      Path{Kind: PathOneOrMore, IRIStat: 13, IRILen: 20, Inverse: true},
		HasPath:   true,
	}
	slot := MakeTriple(KindTriple, in)
	if slot.Kind() != KindTriple {
		t.Fatalf("kind mismatch: %d", slot.Kind())
	}
	out := slot.Triple()
	if out.Subject != in.Subject || out.Predicate != in.Predicate || out.Object != in.Object {
		t.Fatalf("terms did not round-trip: %+v", out)
	}
	if !out.HasPath || out.Path != in.Path {
		t.Fatalf("path did not round-trip: %+v", out.Path)
	}
}

func TestGroupHeaderRoundTrip(t *testing.T) {
	in := GraphHeaderFields{
		TermType: TermVariable, TermStart: 7, TermLen: 2,
		ChildStart: 3, ChildCount: 4,
		BodyStart: 40, BodyLen: 25,
		Silent: true,
	}
	for _, kind := range []Kind{KindGraphHeader, KindOptionalHeader, KindUnionHeader, KindMinusHeader, KindServiceHeader} {
		slot := MakeGroupHeader(kind, in)
		if slot.Kind() != kind {
			t.Fatalf("kind mismatch for %d", kind)
		}
		if got := slot.GraphHeader(); got != in {
			t.Fatalf("header did not round-trip under kind %d: %+v", kind, got)
		}
	}
}

func TestBufferCapacityLimit(t *testing.T) {
	b := NewBuffer()
	var slot Slot
	for i := 0; i < MaxCapacity; i++ {
		if _, err := b.Append(slot); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}
	if _, err := b.Append(slot); err != ErrBufferFull {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
	if b.Len() != MaxCapacity {
		t.Fatalf("len = %d", b.Len())
	}
}

func TestBindingTableSnapshotRestore(t *testing.T) {
	tbl := NewBindingTable(2)
	h1, h2 := HashVar("a"), HashVar("b")
	tbl.Bind(h1, Value{Offset: 1, Length: 2})
	tbl.Bind(h2, Value{Scratch: true, Offset: 3, Length: 4})

	snap := tbl.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot size %d", len(snap))
	}
	tbl.Reset()
	if tbl.Bound(h1) || tbl.Bound(h2) {
		t.Fatalf("reset did not clear bindings")
	}
	tbl.Restore(snap)
	v, ok := tbl.Lookup(h2)
	if !ok || !v.Scratch || v.Offset != 3 {
		t.Fatalf("restore lost binding: %+v ok=%v", v, ok)
	}
}

func TestHashVarStable(t *testing.T) {
	if HashVar("name") != HashVar("name") {
		t.Fatalf("hash must be deterministic")
	}
	if HashVar("name") == HashVar("Name") {
		t.Fatalf("hash must be case-sensitive")
	}
}
