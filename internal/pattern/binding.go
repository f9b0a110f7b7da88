package pattern

import "hash/fnv"

// VarHash is a 32-bit FNV-1a hash of a variable's lexical form. The parser
// and every downstream executor component identify variables by this hash
// uniformly.
type VarHash uint32

// HashVar computes the FNV-1a 32 hash of a variable name (without the
// leading '?' or '$').
func HashVar(name string) VarHash {
	h := fnv.New32a()
	h.Write([]byte(name))
	return VarHash(h.Sum32())
}

// Value is a bound term: either a span into the original query source
// (source-constant terms copied from VALUES/BIND literals written at parse
// time) or a span into a scratch buffer (values materialized during
// execution, e.g. an aggregate result or a join-computed binding).
type Value struct {
	Scratch bool
	Offset  int32
	Length  int32
}

// BindingTable is the caller-provided, mutable row of variable -> value
// mappings that scans write into and filters read from. It is borrowed by
// every scan without ownership transfer.
type BindingTable struct {
	names  []VarHash
	values []Value
	bound  []bool
}

// NewBindingTable creates an empty table with capacity for n variables.
func NewBindingTable(n int) *BindingTable {
	return &BindingTable{
		names:  make([]VarHash, n),
		values: make([]Value, n),
		bound:  make([]bool, n),
	}
}

// Reset clears every binding without reallocating, for reuse across rows.
func (t *BindingTable) Reset() {
	for i := range t.bound {
		t.bound[i] = false
	}
}

// indexOf finds the slot already assigned to h, or assigns the next free
// (never-yet-assigned) slot to it.
func (t *BindingTable) indexOf(h VarHash) int {
	firstFree := -1
	for i, n := range t.names {
		if n == h {
			return i
		}
		if firstFree == -1 && n == 0 {
			firstFree = i
		}
	}
	if firstFree != -1 {
		t.names[firstFree] = h
		return firstFree
	}
	t.names = append(t.names, h)
	t.values = append(t.values, Value{})
	t.bound = append(t.bound, false)
	return len(t.names) - 1
}

// Bind records a value for variable h.
func (t *BindingTable) Bind(h VarHash, v Value) {
	i := t.indexOf(h)
	t.values[i] = v
	t.bound[i] = true
}

// Unbind clears the binding for h, if any (used to undo a speculative
// join binding, e.g. when OptionalScan's right side fails).
func (t *BindingTable) Unbind(h VarHash) {
	for i, n := range t.names {
		if n == h {
			t.bound[i] = false
			return
		}
	}
}

// Lookup returns the value bound to h and whether it is currently bound.
func (t *BindingTable) Lookup(h VarHash) (Value, bool) {
	for i, n := range t.names {
		if n == h && t.bound[i] {
			return t.values[i], true
		}
	}
	return Value{}, false
}

// Bound reports whether h currently has a value.
func (t *BindingTable) Bound(h VarHash) bool {
	_, ok := t.Lookup(h)
	return ok
}

// Snapshot copies every currently-bound (hash, value) pair. Used by scans
// that must materialize a row (EXISTS probes, result collection, GROUP BY).
func (t *BindingTable) Snapshot() []BoundPair {
	out := make([]BoundPair, 0, len(t.names))
	for i, n := range t.names {
		if t.bound[i] {
			out = append(out, BoundPair{Hash: n, Value: t.values[i]})
		}
	}
	return out
}

// Restore applies a previously captured snapshot on top of the table's
// current state (additively; does not clear first).
func (t *BindingTable) Restore(pairs []BoundPair) {
	for _, p := range pairs {
		t.Bind(p.Hash, p.Value)
	}
}

// BoundPair is one materialized (variable, value) pair.
type BoundPair struct {
	Hash  VarHash
	Value Value
}
