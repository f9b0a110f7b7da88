// Package quadstore implements the multi-index bitemporal QuadStore:
// four sorted indexes (SPOT, POST, OSPT, GSPOT) over quads with validity
// intervals, backed by badger with one key-prefix table per index,
// identifiers interned through internal/atom and durability through
// internal/walog.
package quadstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/mercurydb/mercury/internal/atom"
	"github.com/mercurydb/mercury/internal/walog"
)

// Errors surfaced to callers.
var (
	ErrConcurrentWrite  = errors.New("quadstore: a batch is already active")
	ErrInvalidOperation = errors.New("quadstore: invalid operation")
)

// Table namespaces one of the four sorted indexes by key-prefix byte.
type Table byte

const (
	TableSPOT Table = iota
	TablePOST
	TableOSPT
	TableGSPOT
	tableCount
)

func (t Table) prefix() []byte { return []byte{byte(t)} }

// String names the index for plan explanations.
func (t Table) String() string {
	switch t {
	case TableSPOT:
		return "SPOT"
	case TablePOST:
		return "POST"
	case TableOSPT:
		return "OSPT"
	case TableGSPOT:
		return "GSPOT"
	default:
		return "?"
	}
}

// Quad is the fully-resolved, interned form of an RDF quad with its
// bitemporal validity interval [ValidFrom, ValidTo).
type Quad struct {
	Subject   atom.ID
	Predicate atom.ID
	Object    atom.ID
	Graph     atom.ID // 0 denotes the default graph
	ValidFrom uint64
	ValidTo   uint64 // walog.MaxTicks means "still current"
}

// writerState is the QuadStore's batch state machine: Idle -> BatchActive
// -> Idle.
type writerState int

const (
	stateIdle writerState = iota
	stateBatchActive
)

// Store is the multi-index quad store.
type Store struct {
	db    *badger.DB
	atoms *atom.Store
	wal   *walog.WAL

	rw sync.RWMutex // process-wide reader/writer lock, layered above badger

	writeMu     sync.Mutex
	state       writerState
	batchTxID   uint64
	batchWrites []batchWrite

	checkpointMu sync.Mutex
}

type batchWrite struct {
	quad Quad
	del  bool
}

// Open opens (or creates) a QuadStore rooted at dir, using atoms for
// interning and a write-ahead log at dir/wal.log.
func Open(dir string, atoms *atom.Store) (*Store, error) {
	opts := badger.DefaultOptions(dir + "/badger")
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("quadstore: open badger: %w", err)
	}
	w, err := walog.Open(dir+"/wal.log", walog.DefaultConfig())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("quadstore: open wal: %w", err)
	}
	return &Store{db: db, atoms: atoms, wal: w}, nil
}

// DB exposes the underlying badger instance so sibling indexes (the
// trigram postings) can share it under their own key prefix.
func (s *Store) DB() *badger.DB { return s.db }

// WAL exposes the write-ahead log for checkpoint/statistics callers.
func (s *Store) WAL() *walog.WAL { return s.wal }

// Close closes the badger instance and the WAL.
func (s *Store) Close() error {
	werr := s.wal.Close()
	derr := s.db.Close()
	if derr != nil {
		return derr
	}
	return werr
}

// AcquireRead and ReleaseRead bracket reader lifetimes: readers hold
// the process-wide RW lock for the lifetime of their enumerator.
func (s *Store) AcquireRead()  { s.rw.RLock() }
func (s *Store) ReleaseRead()  { s.rw.RUnlock() }
func (s *Store) acquireWrite() { s.rw.Lock() }
func (s *Store) releaseWrite() { s.rw.Unlock() }

// BeginBatch transitions Idle -> BatchActive. Only one batch may be active
// per process.
func (s *Store) BeginBatch() (uint64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.state == stateBatchActive {
		return 0, ErrConcurrentWrite
	}
	txID, err := s.wal.BeginBatch()
	if err != nil {
		return 0, err
	}
	s.state = stateBatchActive
	s.batchTxID = txID
	s.batchWrites = nil
	s.acquireWrite()
	return txID, nil
}

// CommitBatch applies every buffered write atomically and returns to Idle.
func (s *Store) CommitBatch(txID uint64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.state != stateBatchActive || txID != s.batchTxID {
		return fmt.Errorf("%w: CommitBatch without a matching BeginBatch", ErrInvalidOperation)
	}
	defer s.releaseWrite()

	if err := s.wal.CommitBatch(txID); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, bw := range s.batchWrites {
			if err := applyQuad(txn, bw.quad); err != nil {
				return err
			}
		}
		return nil
	})
	s.state = stateIdle
	s.batchWrites = nil
	if err != nil {
		return fmt.Errorf("quadstore: commit batch indexes: %w", err)
	}
	return s.maybeCheckpoint()
}

// RollbackBatch discards buffered writes without touching the indexes —
// indexes are only mutated after the WAL batch is committed (two-phase:
// buffer, then apply), so rollback never needs to undo index state.
func (s *Store) RollbackBatch(txID uint64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.state != stateBatchActive || txID != s.batchTxID {
		return fmt.Errorf("%w: RollbackBatch without a matching BeginBatch", ErrInvalidOperation)
	}
	defer s.releaseWrite()
	err := s.wal.RollbackBatch(txID)
	s.state = stateIdle
	s.batchWrites = nil
	return err
}

// Add interns nothing itself (callers pass already-interned atom ids) and
// appends the quad to the WAL then the four indexes. If a batch is
// active, the write is buffered until commit.
func (s *Store) Add(q Quad) error {
	s.writeMu.Lock()
	if s.state == stateBatchActive {
		rec := walog.Record{Op: walog.Op(0), Subject: uint64(q.Subject), Predicate: uint64(q.Predicate),
			Object: uint64(q.Object), Graph: uint64(q.Graph), ValidFrom: q.ValidFrom, ValidTo: q.ValidTo}
		if err := s.wal.AppendBatch(rec, s.batchTxID); err != nil {
			s.writeMu.Unlock()
			return err
		}
		s.batchWrites = append(s.batchWrites, batchWrite{quad: q})
		s.writeMu.Unlock()
		return nil
	}
	s.writeMu.Unlock()

	s.acquireWrite()
	defer s.releaseWrite()

	if _, err := s.wal.Append(walog.Record{Op: walog.OpAdd, Subject: uint64(q.Subject),
		Predicate: uint64(q.Predicate), Object: uint64(q.Object), Graph: uint64(q.Graph),
		ValidFrom: q.ValidFrom, ValidTo: q.ValidTo}); err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error { return applyQuad(txn, q) }); err != nil {
		return fmt.Errorf("quadstore: insert indexes: %w", err)
	}
	return s.maybeCheckpoint()
}

// End sets the valid_to of the live version of (s,p,o,g) to now:
// deletion is end-dating, never physical removal.
func (s *Store) End(sID, pID, oID, gID atom.ID, now uint64) (bool, error) {
	s.acquireWrite()
	defer s.releaseWrite()

	var found *Quad
	err := s.db.View(func(txn *badger.Txn) error {
		q, err := s.currentQuad(txn, sID, pID, oID, gID, now)
		if err != nil {
			return err
		}
		found = q
		return nil
	})
	if err != nil {
		return false, err
	}
	if found == nil {
		return false, nil
	}

	ended := *found
	ended.ValidTo = now
	if _, err := s.wal.Append(walog.Record{Op: walog.OpDelete, Subject: uint64(sID), Predicate: uint64(pID),
		Object: uint64(oID), Graph: uint64(gID), ValidFrom: found.ValidFrom, ValidTo: now}); err != nil {
		return false, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := removeQuad(txn, *found); err != nil {
			return err
		}
		return applyQuad(txn, ended)
	})
	if err != nil {
		return false, fmt.Errorf("quadstore: end-date: %w", err)
	}
	return true, s.maybeCheckpoint()
}

func (s *Store) currentQuad(txn *badger.Txn, sID, pID, oID, gID atom.ID, now uint64) (*Quad, error) {
	prefix := encodeIDs(TableSPOT, sID, pID, oID, gID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		q, err := decodeSPOTEntry(it.Item())
		if err != nil {
			return nil, err
		}
		if q.ValidFrom <= now && now < q.ValidTo {
			return &q, nil
		}
	}
	return nil, nil
}

func (s *Store) maybeCheckpoint() error {
	if !s.wal.ShouldCheckpoint() {
		return nil
	}
	s.checkpointMu.Lock()
	defer s.checkpointMu.Unlock()
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("quadstore: checkpoint sync: %w", err)
	}
	return s.wal.Checkpoint()
}

// Now returns the current time as bitemporal ticks (100ns since
// epoch), matching the WAL's valid_from/valid_to units.
func Now() uint64 { return TicksFromTime(time.Now()) }

const ticksPerSecond = 10_000_000

// TicksFromTime converts a wall-clock time to 100ns-since-epoch ticks.
func TicksFromTime(t time.Time) uint64 {
	return uint64(t.Unix())*ticksPerSecond + uint64(t.Nanosecond()/100)
}

// TimeFromTicks is the inverse of TicksFromTime.
func TimeFromTicks(ticks uint64) time.Time {
	sec := int64(ticks / ticksPerSecond)
	nsec := int64(ticks%ticksPerSecond) * 100
	return time.Unix(sec, nsec).UTC()
}

func putUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }
func getUint64(b []byte) uint64    { return binary.BigEndian.Uint64(b) }

// encodeIDs builds a scan prefix for the given table from whichever of
// s,p,o,g are bound (non-zero), stopping at the first 0.
func encodeIDs(t Table, s, p, o, g atom.ID) []byte {
	order := orderFor(t)
	ids := [4]atom.ID{s, p, o, g}
	out := t.prefix()
	for _, pos := range order {
		id := ids[pos]
		if id == 0 {
			break
		}
		buf := make([]byte, 8)
		putUint64(buf, uint64(id))
		out = append(out, buf...)
	}
	return out
}

// orderFor returns the SPOG-position order each table's key is built from.
func orderFor(t Table) [4]int {
	switch t {
	case TableSPOT:
		return [4]int{0, 1, 2, 3}
	case TablePOST:
		return [4]int{1, 2, 0, 3}
	case TableOSPT:
		return [4]int{2, 0, 1, 3}
	case TableGSPOT:
		return [4]int{3, 0, 1, 2}
	default:
		return [4]int{0, 1, 2, 3}
	}
}

func fullKey(t Table, q Quad) []byte {
	order := orderFor(t)
	ids := [4]atom.ID{q.Subject, q.Predicate, q.Object, q.Graph}
	out := t.prefix()
	for _, pos := range order {
		buf := make([]byte, 8)
		putUint64(buf, uint64(ids[pos]))
		out = append(out, buf...)
	}
	// Append ValidFrom so distinct versions of the same (s,p,o,g) sort as
	// distinct keys (invariant: multiple quads may share S,P,O,G if their
	// validity intervals differ).
	vfBuf := make([]byte, 8)
	putUint64(vfBuf, q.ValidFrom)
	return append(out, vfBuf...)
}

func applyQuad(txn *badger.Txn, q Quad) error {
	val := make([]byte, 8)
	putUint64(val, q.ValidTo)
	for t := Table(0); t < tableCount; t++ {
		if err := txn.Set(fullKey(t, q), val); err != nil {
			return err
		}
	}
	return nil
}

func removeQuad(txn *badger.Txn, q Quad) error {
	for t := Table(0); t < tableCount; t++ {
		if err := txn.Delete(fullKey(t, q)); err != nil {
			return err
		}
	}
	return nil
}

func decodeSPOTEntry(item *badger.Item) (Quad, error) {
	key := item.KeyCopy(nil)
	if len(key) != 1+4*8+8 {
		return Quad{}, fmt.Errorf("quadstore: malformed key length %d", len(key))
	}
	s := atom.ID(getUint64(key[1:9]))
	p := atom.ID(getUint64(key[9:17]))
	o := atom.ID(getUint64(key[17:25]))
	g := atom.ID(getUint64(key[25:33]))
	vf := getUint64(key[33:41])
	var vt uint64
	err := item.Value(func(val []byte) error {
		vt = getUint64(val)
		return nil
	})
	if err != nil {
		return Quad{}, err
	}
	return Quad{Subject: s, Predicate: p, Object: o, Graph: g, ValidFrom: vf, ValidTo: vt}, nil
}

func decodeEntry(t Table, item *badger.Item) (Quad, error) {
	key := item.KeyCopy(nil)
	if len(key) != 1+4*8+8 {
		return Quad{}, fmt.Errorf("quadstore: malformed key length %d", len(key))
	}
	order := orderFor(t)
	var ids [4]atom.ID
	for i, pos := range order {
		off := 1 + i*8
		ids[pos] = atom.ID(getUint64(key[off : off+8]))
	}
	vf := getUint64(key[33:41])
	var vt uint64
	err := item.Value(func(val []byte) error {
		vt = getUint64(val)
		return nil
	})
	if err != nil {
		return Quad{}, err
	}
	return Quad{Subject: ids[0], Predicate: ids[1], Object: ids[2], Graph: ids[3], ValidFrom: vf, ValidTo: vt}, nil
}

// SelectIndex chooses the table and key order to scan for a pattern
// given which of s,p,o,g are bound: a constrained graph wins GSPOT,
// otherwise a bound S picks SPOT, else a bound P picks POST, else a bound
// O picks OSPT. The choice follows that fixed precedence, not the length
// of the bound key prefix (S and O bound picks SPOT, not OSPT).
func SelectIndex(sBound, pBound, oBound, gBound bool) Table {
	if gBound {
		return TableGSPOT
	}
	if sBound {
		return TableSPOT
	}
	if pBound {
		return TablePOST
	}
	if oBound {
		return TableOSPT
	}
	return TableSPOT
}

// QueryMode selects which temporal predicate a scan applies.
type QueryMode int

const (
	ModeCurrent QueryMode = iota
	ModeAsOf
	ModeDuring
	ModeEvolution
)

// Enumerator iterates quads matching a pattern and temporal predicate.
type Enumerator struct {
	store   *Store
	txn     *badger.Txn
	it      *badger.Iterator
	table   Table
	prefix  []byte
	mode    QueryMode
	at      uint64
	from    uint64
	to      uint64
	started bool
	cur     Quad
	closed  bool
}

// Query opens an enumerator over quads matching (s,p,o,g); zero means
// unbound for each position. The caller must call Close (which releases
// the read lock acquired here).
func (s *Store) Query(sID, pID, oID, gID atom.ID, mode QueryMode, at, from, to uint64) (*Enumerator, error) {
	s.AcquireRead()
	table := SelectIndex(sID != 0, pID != 0, oID != 0, gID != 0)
	prefix := encodeIDs(table, sID, pID, oID, gID)
	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	it.Seek(prefix)
	return &Enumerator{store: s, txn: txn, it: it, table: table, prefix: prefix, mode: mode, at: at, from: from, to: to}, nil
}

// Next advances to the next matching quad.
func (e *Enumerator) Next() bool {
	if e.closed {
		return false
	}
	for ; e.it.ValidForPrefix(e.prefix); e.it.Next() {
		q, err := decodeEntry(e.table, e.it.Item())
		if err != nil {
			continue
		}
		if !e.matches(q) {
			continue
		}
		e.cur = q
		e.it.Next()
		return true
	}
	return false
}

func (e *Enumerator) matches(q Quad) bool {
	switch e.mode {
	case ModeCurrent:
		return q.ValidFrom <= e.at && e.at < q.ValidTo
	case ModeAsOf:
		return q.ValidFrom <= e.at && e.at < q.ValidTo
	case ModeDuring:
		return q.ValidFrom < e.to && e.from < q.ValidTo
	case ModeEvolution:
		return true
	default:
		return true
	}
}

// Quad returns the quad at the enumerator's current position.
func (e *Enumerator) Quad() Quad { return e.cur }

// Close releases the badger transaction and the read lock.
func (e *Enumerator) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.it.Close()
	e.txn.Discard()
	e.store.ReleaseRead()
	return nil
}

// NamedGraphs returns every distinct non-default graph id that appears in
// GSPOT.
func (s *Store) NamedGraphs() ([]atom.ID, error) {
	s.AcquireRead()
	defer s.ReleaseRead()

	seen := make(map[atom.ID]bool)
	var out []atom.ID
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = TableGSPOT.prefix()
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			q, err := decodeEntry(TableGSPOT, it.Item())
			if err != nil {
				continue
			}
			if q.Graph != 0 && !seen[q.Graph] {
				seen[q.Graph] = true
				out = append(out, q.Graph)
			}
		}
		return nil
	})
	return out, err
}

// Statistics summarizes the store's size.
type Statistics struct {
	QuadCount uint64
	AtomCount uint64
	Bytes     uint64
}

// GetStatistics scans SPOT once to count live+historical quads.
func (s *Store) GetStatistics() (Statistics, error) {
	s.AcquireRead()
	defer s.ReleaseRead()

	var count uint64
	var bytes uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = TableSPOT.prefix()
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			count++
			bytes += uint64(it.Item().KeySize() + it.Item().ValueSize())
		}
		return nil
	})
	if err != nil {
		return Statistics{}, err
	}
	atomStats := s.atoms.Statistics()
	return Statistics{QuadCount: count, AtomCount: atomStats.AtomCount, Bytes: bytes}, nil
}
