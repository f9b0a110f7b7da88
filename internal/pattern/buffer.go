// Package pattern implements the PatternBuffer: a flat array of tagged
// 64-byte PatternSlots describing a parsed query's shape.
// Slots record only offsets into the original query source; the buffer
// never owns that source.
package pattern

// SlotSize is the fixed size of one PatternSlot.
const SlotSize = 64

// DefaultCapacity and MaxCapacity bound a Buffer's slot count.
const (
	DefaultCapacity = 128
	MaxCapacity     = 1024
)

// Kind is a PatternSlot's discriminant.
type Kind byte

const (
	KindEmpty Kind = iota
	KindTriple
	KindMinusTriple
	KindFilter
	KindBind
	KindGraphHeader
	KindExistsHeader
	KindNotExistsHeader
	KindValuesHeader
	KindValuesEntry

	// OPTIONAL/UNION/MINUS/SERVICE groups need the same (term,
	// child-range) shape GRAPH uses, so they reuse GraphHeader's field
	// layout under distinct discriminants rather than a second
	// incompatible encoding.
	KindOptionalHeader
	KindUnionHeader
	KindMinusHeader
	KindServiceHeader
)

// TermType tags how a triple-pattern position should be interpreted.
type TermType byte

const (
	TermVariable TermType = iota
	TermIRI
	TermLiteral
	TermBlankNode
)

// PathKind tags a property-path operator attached to a Triple slot.
type PathKind byte

const (
	PathNone PathKind = iota
	PathInverse
	PathZeroOrMore
	PathOneOrMore
	PathZeroOrOne
	PathAlternative
)

// Slot is one 64-byte tagged pattern record. Field layout follows
// a fixed layout; a slot is reinterpreted by its discriminant.
type Slot [SlotSize]byte

func (s *Slot) Kind() Kind { return Kind(s[0]) }

func putI32(b []byte, v int32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
func getI32(b []byte) int32 {
	return int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16 | int32(b[3])<<24
}

// Term is one subject/predicate/object slot field: a term type tag plus a
// source span.
type Term struct {
	Type  TermType
	Start int32
	Len   int32
}

func (t Term) put(b []byte) {
	b[0] = byte(t.Type)
	putI32(b[1:5], t.Start)
	putI32(b[5:9], t.Len)
}
func getTerm(b []byte) Term {
	return Term{Type: TermType(b[0]), Start: getI32(b[1:5]), Len: getI32(b[5:9])}
}

// Path describes an optional property-path operator on a Triple slot's
// predicate position. Inverse composes with a closure kind (e.g. ^p*), so
// it is a separate flag rather than folded into Kind.
type Path struct {
	Kind    PathKind
	IRIStat int32
	IRILen  int32
	Inverse bool
}

// TripleFields is the decoded view of a Triple/MinusTriple slot.
type TripleFields struct {
	Subject   Term
	Predicate Term
	Object    Term
	Path      Path
	HasPath   bool
}

// MakeTriple encodes a Triple (or MinusTriple) slot.
func MakeTriple(kind Kind, f TripleFields) Slot {
	var s Slot
	s[0] = byte(kind)
	f.Subject.put(s[1:10])
	f.Predicate.put(s[10:19])
	f.Object.put(s[19:28])
	if f.HasPath {
		s[28] = byte(f.Path.Kind)
		putI32(s[29:33], f.Path.IRIStat)
		putI32(s[33:37], f.Path.IRILen)
		if f.Path.Inverse {
			s[37] = 1
		}
	}
	return s
}

// Triple decodes a Triple/MinusTriple slot.
func (s *Slot) Triple() TripleFields {
	f := TripleFields{
		Subject:   getTerm(s[1:10]),
		Predicate: getTerm(s[10:19]),
		Object:    getTerm(s[19:28]),
	}
	if s[28] != 0 {
		f.HasPath = true
		f.Path = Path{Kind: PathKind(s[28]), IRIStat: getI32(s[29:33]), IRILen: getI32(s[33:37]), Inverse: s[37] != 0}
	}
	return f
}

// FilterFields is the decoded view of a Filter slot.
type FilterFields struct {
	Start int32
	Len   int32
}

func MakeFilter(f FilterFields) Slot {
	var s Slot
	s[0] = byte(KindFilter)
	putI32(s[1:5], f.Start)
	putI32(s[5:9], f.Len)
	return s
}
func (s *Slot) Filter() FilterFields {
	return FilterFields{Start: getI32(s[1:5]), Len: getI32(s[5:9])}
}

// BindFields is the decoded view of a Bind slot.
type BindFields struct {
	ExprStart, ExprLen int32
	VarStart, VarLen   int32
}

func MakeBind(f BindFields) Slot {
	var s Slot
	s[0] = byte(KindBind)
	putI32(s[1:5], f.ExprStart)
	putI32(s[5:9], f.ExprLen)
	putI32(s[9:13], f.VarStart)
	putI32(s[13:17], f.VarLen)
	return s
}
func (s *Slot) Bind() BindFields {
	return BindFields{ExprStart: getI32(s[1:5]), ExprLen: getI32(s[5:9]), VarStart: getI32(s[9:13]), VarLen: getI32(s[13:17])}
}

// GraphHeaderFields is the decoded view of a GraphHeader slot.
// BodyStart/BodyLen span the group's "{...}" source text (inner content
// only, braces excluded); SERVICE is the only current consumer, which
// ships that text verbatim to a remote endpoint rather than re-evaluating
// it against the local quadstore, but every group header records it since
// the cost is one spare field.
type GraphHeaderFields struct {
	TermType               TermType
	TermStart, TermLen     int32
	ChildStart, ChildCount int32
	BodyStart, BodyLen     int32
	Silent                 bool
}

func MakeGraphHeader(f GraphHeaderFields) Slot { return MakeGroupHeader(KindGraphHeader, f) }

// MakeGroupHeader encodes any of the GraphHeader-shaped group headers
// (GRAPH, OPTIONAL, UNION, MINUS, SERVICE) under the given discriminant.
func MakeGroupHeader(kind Kind, f GraphHeaderFields) Slot {
	var s Slot
	s[0] = byte(kind)
	s[1] = byte(f.TermType)
	putI32(s[2:6], f.TermStart)
	putI32(s[6:10], f.TermLen)
	putI32(s[10:14], f.ChildStart)
	putI32(s[14:18], f.ChildCount)
	putI32(s[18:22], f.BodyStart)
	putI32(s[22:26], f.BodyLen)
	if f.Silent {
		s[26] = 1
	}
	return s
}
func (s *Slot) GraphHeader() GraphHeaderFields {
	return GraphHeaderFields{
		TermType: TermType(s[1]), TermStart: getI32(s[2:6]), TermLen: getI32(s[6:10]),
		ChildStart: getI32(s[10:14]), ChildCount: getI32(s[14:18]),
		BodyStart: getI32(s[18:22]), BodyLen: getI32(s[22:26]),
		Silent: s[26] != 0,
	}
}

// ExistsHeaderFields is the decoded view of an Exists/NotExists header.
type ExistsHeaderFields struct {
	ChildStart, ChildCount int32
}

func MakeExistsHeader(kind Kind, f ExistsHeaderFields) Slot {
	var s Slot
	s[0] = byte(kind)
	putI32(s[1:5], f.ChildStart)
	putI32(s[5:9], f.ChildCount)
	return s
}
func (s *Slot) ExistsHeader() ExistsHeaderFields {
	return ExistsHeaderFields{ChildStart: getI32(s[1:5]), ChildCount: getI32(s[5:9])}
}

// ValuesHeaderFields is the decoded view of a ValuesHeader slot.
type ValuesHeaderFields struct {
	VarStart, VarLen int32
	EntryCount       int32
}

func MakeValuesHeader(f ValuesHeaderFields) Slot {
	var s Slot
	s[0] = byte(KindValuesHeader)
	putI32(s[1:5], f.VarStart)
	putI32(s[5:9], f.VarLen)
	putI32(s[9:13], f.EntryCount)
	return s
}
func (s *Slot) ValuesHeader() ValuesHeaderFields {
	return ValuesHeaderFields{VarStart: getI32(s[1:5]), VarLen: getI32(s[5:9]), EntryCount: getI32(s[9:13])}
}

// ValuesEntryFields is the decoded view of a ValuesEntry slot.
type ValuesEntryFields struct {
	ValueStart, ValueLen int32
}

func MakeValuesEntry(f ValuesEntryFields) Slot {
	var s Slot
	s[0] = byte(KindValuesEntry)
	putI32(s[1:5], f.ValueStart)
	putI32(s[5:9], f.ValueLen)
	return s
}
func (s *Slot) ValuesEntry() ValuesEntryFields {
	return ValuesEntryFields{ValueStart: getI32(s[1:5]), ValueLen: getI32(s[5:9])}
}

// Buffer is a leased, append-only array of Slots. Its lifetime is the
// query that produced it.
type Buffer struct {
	slots []Slot
}

// NewBuffer allocates a Buffer with DefaultCapacity, growing up to
// MaxCapacity.
func NewBuffer() *Buffer {
	return &Buffer{slots: make([]Slot, 0, DefaultCapacity)}
}

// Append adds a slot, returning its index, or an error if MaxCapacity
// would be exceeded.
func (b *Buffer) Append(s Slot) (int, error) {
	if len(b.slots) >= MaxCapacity {
		return 0, ErrBufferFull
	}
	b.slots = append(b.slots, s)
	return len(b.slots) - 1, nil
}

// Len returns the number of slots appended so far.
func (b *Buffer) Len() int { return len(b.slots) }

// At returns the slot at index i.
func (b *Buffer) At(i int) *Slot { return &b.slots[i] }

// Slots returns the underlying slot slice (read-only use expected).
func (b *Buffer) Slots() []Slot { return b.slots }

// ErrBufferFull is returned by Append once MaxCapacity slots are in use.
var ErrBufferFull = bufferFullError{}

type bufferFullError struct{}

func (bufferFullError) Error() string { return "pattern: buffer exceeds MaxCapacity (1024 slots)" }

// Size returns the byte size of n slots: 64*n.
func Size(n int) int { return SlotSize * n }
