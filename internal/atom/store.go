// Package atom implements the AtomStore: persistent interning of byte
// sequences to 64-bit ids, backed by a memory-mapped length-prefixed data
// file and a memory-mapped open-addressing hash file.
package atom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"strings"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// ID is an interned atom identifier. Zero means "absent".
type ID uint64

const (
	dataMagic     = 0x4d455243555259ff // "MERCURY" tag, truncated
	dataHeaderLen = 32
	hashMagic     = 0x4d455243485348   // "MERCHSH"
	hashHeaderLen = 32
	hashSlotLen   = 16 // atomID(8) + fnvHash(8)
	initialSlots  = 1024
	maxLoadFactor = 0.75
)

// StorageFailure wraps an I/O error surfaced to the caller. Both the data
// file and the hash file are left untouched on failure: data is fsynced
// before the hash entry is written.
type StorageFailure struct {
	Op  string
	Err error
}

func (e *StorageFailure) Error() string { return fmt.Sprintf("atom: storage failure during %s: %v", e.Op, e.Err) }
func (e *StorageFailure) Unwrap() error { return e.Err }

// Statistics summarizes the store's contents.
type Statistics struct {
	AtomCount  uint64
	TotalBytes uint64
	AvgLen     float64
}

// Store is a persistent interning table: bytes <-> atom id.
type Store struct {
	mu sync.Mutex

	dataFile *os.File
	dataMap  mmap.MMap
	dataLen  int64 // logical length actually written (header + records)

	hashFile *os.File
	hashMap  mmap.MMap
	slots    int64 // number of slots in the hash table

	count      uint64
	totalBytes uint64
	nextID     uint64

	offsetCache map[ID]int64
}

// Open opens or creates the atom store rooted at dir/atoms.data and
// dir/atoms.hash.
func Open(dir string) (*Store, error) {
	dataPath := dir + "/atoms.data"
	hashPath := dir + "/atoms.hash"

	df, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &StorageFailure{Op: "open data file", Err: err}
	}
	s := &Store{dataFile: df, nextID: 1, offsetCache: make(map[ID]int64)}

	if err := s.initData(); err != nil {
		df.Close()
		return nil, err
	}

	hf, err := os.OpenFile(hashPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		s.Close()
		return nil, &StorageFailure{Op: "open hash file", Err: err}
	}
	s.hashFile = hf

	if err := s.initHash(); err != nil {
		s.Close()
		return nil, err
	}

	// If the data file is shorter than the hash claims,
	// rebuild the hash table from scratch by scanning the data file.
	if s.hashIsStale() {
		if err := s.rebuildHash(); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

func (s *Store) initData() error {
	info, err := s.dataFile.Stat()
	if err != nil {
		return &StorageFailure{Op: "stat data file", Err: err}
	}
	if info.Size() < dataHeaderLen {
		if err := s.dataFile.Truncate(dataHeaderLen); err != nil {
			return &StorageFailure{Op: "truncate data file", Err: err}
		}
		hdr := make([]byte, dataHeaderLen)
		binary.LittleEndian.PutUint64(hdr[0:8], dataMagic)
		binary.LittleEndian.PutUint64(hdr[8:16], 1) // version
		if _, err := s.dataFile.WriteAt(hdr, 0); err != nil {
			return &StorageFailure{Op: "write data header", Err: err}
		}
		if err := s.dataFile.Sync(); err != nil {
			return &StorageFailure{Op: "fsync data header", Err: err}
		}
	}
	m, err := mmap.Map(s.dataFile, mmap.RDWR, 0)
	if err != nil {
		return &StorageFailure{Op: "mmap data file", Err: err}
	}
	s.dataMap = m
	// The logical length is kept in the header: the file grows in doubling
	// steps, so everything past it is zero padding, not records.
	s.dataLen = int64(binary.LittleEndian.Uint64(m[16:24]))
	if s.dataLen < dataHeaderLen || s.dataLen > int64(len(m)) {
		s.dataLen = dataHeaderLen
	}
	return nil
}

func (s *Store) initHash() error {
	info, err := s.hashFile.Stat()
	if err != nil {
		return &StorageFailure{Op: "stat hash file", Err: err}
	}
	if info.Size() < hashHeaderLen+initialSlots*hashSlotLen {
		size := hashHeaderLen + int64(initialSlots)*hashSlotLen
		if err := s.hashFile.Truncate(size); err != nil {
			return &StorageFailure{Op: "truncate hash file", Err: err}
		}
		hdr := make([]byte, hashHeaderLen)
		binary.LittleEndian.PutUint64(hdr[0:8], hashMagic)
		binary.LittleEndian.PutUint64(hdr[8:16], uint64(initialSlots))
		if _, err := s.hashFile.WriteAt(hdr, 0); err != nil {
			return &StorageFailure{Op: "write hash header", Err: err}
		}
		if err := s.hashFile.Sync(); err != nil {
			return &StorageFailure{Op: "fsync hash header", Err: err}
		}
	}
	m, err := mmap.Map(s.hashFile, mmap.RDWR, 0)
	if err != nil {
		return &StorageFailure{Op: "mmap hash file", Err: err}
	}
	s.hashMap = m
	s.slots = (int64(len(m)) - hashHeaderLen) / hashSlotLen
	return s.loadCounters()
}

func (s *Store) loadCounters() error {
	var count, nextID, totalBytes uint64
	s.walkDataRecords(func(id ID, data []byte) {
		count++
		totalBytes += uint64(len(data))
		if uint64(id) >= nextID {
			nextID = uint64(id) + 1
		}
	})
	s.count = count
	s.totalBytes = totalBytes
	if nextID > 1 {
		s.nextID = nextID
	}
	return nil
}

// hashIsStale reports whether the hash file's claimed slot occupancy is
// inconsistent with what the data file actually holds.
func (s *Store) hashIsStale() bool {
	occupied := uint64(0)
	for i := int64(0); i < s.slots; i++ {
		if s.slotID(i) != 0 {
			occupied++
		}
	}
	return occupied != s.count
}

func (s *Store) walkDataRecords(fn func(id ID, data []byte)) {
	off := int64(dataHeaderLen)
	id := uint64(1)
	for off < s.dataLen {
		n, sz := binary.Uvarint(s.dataMap[off:])
		if sz <= 0 {
			break
		}
		start := off + int64(sz)
		end := start + int64(n)
		if end > s.dataLen {
			break
		}
		fn(ID(id), s.dataMap[start:end])
		off = end
		id++
	}
}

func (s *Store) rebuildHash() error {
	for i := int64(0); i < s.slots; i++ {
		s.setSlot(i, 0, 0)
	}
	s.count = 0
	s.totalBytes = 0
	s.walkDataRecords(func(id ID, data []byte) {
		h := fnvHash(data)
		s.insertSlot(ID(id), h)
		s.count++
		s.totalBytes += uint64(len(data))
	})
	return s.hashFile.Sync()
}

func (s *Store) slotID(i int64) uint64 {
	off := hashHeaderLen + i*hashSlotLen
	return binary.LittleEndian.Uint64(s.hashMap[off : off+8])
}

func (s *Store) slotHash(i int64) uint64 {
	off := hashHeaderLen + i*hashSlotLen + 8
	return binary.LittleEndian.Uint64(s.hashMap[off : off+8])
}

func (s *Store) setSlot(i int64, id, h uint64) {
	off := hashHeaderLen + i*hashSlotLen
	binary.LittleEndian.PutUint64(s.hashMap[off:off+8], id)
	binary.LittleEndian.PutUint64(s.hashMap[off+8:off+16], h)
}

func (s *Store) insertSlot(id ID, h uint64) {
	i := int64(h % uint64(s.slots))
	step := int64(1)
	for s.slotID(i) != 0 {
		i = (i + step*step) % s.slots
		step++
	}
	s.setSlot(i, uint64(id), h)
}

func fnvHash(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}

// Intern returns the existing id for bytes if present, otherwise allocates
// a new id, appends bytes to the data file, and indexes it.
func (s *Store) Intern(data []byte) (ID, error) {
	return s.intern(data, fnvHash(data))
}

// InternIdentifier interns an IRI or blank-node identifier: hashed
// case-insensitively but stored with its original casing.
func (s *Store) InternIdentifier(data []byte) (ID, error) {
	lower := []byte(strings.ToLower(string(data)))
	return s.intern(data, fnvHash(lower))
}

func (s *Store) intern(data []byte, h uint64) (ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id := s.lookup(data, h); id != 0 {
		return id, nil
	}

	id := ID(s.nextID)
	if err := s.appendRecord(data); err != nil {
		return 0, err
	}
	if err := s.maybeGrow(); err != nil {
		return 0, err
	}
	s.insertSlot(id, h)
	s.nextID++
	s.count++
	s.totalBytes += uint64(len(data))
	return id, nil
}

func (s *Store) lookup(data []byte, h uint64) ID {
	i := int64(h % uint64(s.slots))
	step := int64(1)
	for {
		id := s.slotID(i)
		if id == 0 {
			return 0
		}
		if s.slotHash(i) == h {
			existing, err := s.bytesForID(ID(id))
			if err == nil && string(existing) == string(data) {
				return ID(id)
			}
		}
		i = (i + step*step) % s.slots
		step++
		if step > s.slots {
			return 0
		}
	}
}

func (s *Store) appendRecord(data []byte) error {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(data)))
	need := s.dataLen + int64(n) + int64(len(data))
	if need > int64(len(s.dataMap)) {
		if err := s.growData(need); err != nil {
			return err
		}
	}
	copy(s.dataMap[s.dataLen:], lenBuf[:n])
	copy(s.dataMap[s.dataLen+int64(n):], data)
	s.dataLen = need
	binary.LittleEndian.PutUint64(s.dataMap[16:24], uint64(need))
	if err := s.dataMap.Flush(); err != nil {
		return &StorageFailure{Op: "flush data file", Err: err}
	}
	return nil
}

func (s *Store) growData(minSize int64) error {
	newSize := int64(len(s.dataMap))
	if newSize == 0 {
		newSize = dataHeaderLen
	}
	for newSize < minSize {
		newSize *= 2
	}
	if err := s.dataMap.Unmap(); err != nil {
		return &StorageFailure{Op: "unmap data file", Err: err}
	}
	if err := s.dataFile.Truncate(newSize); err != nil {
		return &StorageFailure{Op: "grow data file", Err: err}
	}
	m, err := mmap.Map(s.dataFile, mmap.RDWR, 0)
	if err != nil {
		return &StorageFailure{Op: "remap data file", Err: err}
	}
	s.dataMap = m
	return nil
}

func (s *Store) maybeGrow() error {
	if float64(s.count+1) < maxLoadFactor*float64(s.slots) {
		return nil
	}
	newSlots := s.slots * 2
	if err := s.hashMap.Unmap(); err != nil {
		return &StorageFailure{Op: "unmap hash file", Err: err}
	}
	size := hashHeaderLen + newSlots*hashSlotLen
	if err := s.hashFile.Truncate(size); err != nil {
		return &StorageFailure{Op: "grow hash file", Err: err}
	}
	m, err := mmap.Map(s.hashFile, mmap.RDWR, 0)
	if err != nil {
		return &StorageFailure{Op: "remap hash file", Err: err}
	}
	s.hashMap = m

	oldSlots := s.slots
	s.slots = newSlots
	entries := make([][2]uint64, 0, s.count)
	for i := int64(0); i < oldSlots; i++ {
		if id := s.slotID(i); id != 0 {
			entries = append(entries, [2]uint64{id, s.slotHash(i)})
		}
	}
	for i := int64(0); i < s.slots; i++ {
		s.setSlot(i, 0, 0)
	}
	for _, e := range entries {
		s.insertSlot(ID(e[0]), e[1])
	}
	binary.LittleEndian.PutUint64(s.hashMap[8:16], uint64(s.slots))
	return s.hashMap.Flush()
}

// GetID looks up bytes without inserting. Returns 0 if absent.
func (s *Store) GetID(data []byte) ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(data, fnvHash(data))
}

// GetIdentifierID looks up an identifier interned with InternIdentifier:
// the hash is computed case-insensitively, but the stored bytes must still
// match exactly.
func (s *Store) GetIdentifierID(data []byte) ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(data, fnvHash([]byte(strings.ToLower(string(data)))))
}

var errNotFound = errors.New("atom: id not found")

func (s *Store) bytesForID(id ID) ([]byte, error) {
	// O(1) by design would require an id->offset index; the reference
	// implementation keeps one in memory. We keep it simple and correct by
	// scanning once per lookup during interning collision checks only
	// (interning is the only caller that needs bytesForID on the hot path,
	// and offsets are cached below for repeated GetBytes calls).
	if off, ok := s.offsetCache[id]; ok {
		return s.readAt(off)
	}
	var found []byte
	var ferr error = errNotFound
	off := int64(dataHeaderLen)
	cur := uint64(1)
	for off < s.dataLen {
		n, sz := binary.Uvarint(s.dataMap[off:])
		if sz <= 0 {
			break
		}
		start := off + int64(sz)
		end := start + int64(n)
		if end > s.dataLen {
			break
		}
		s.offsetCache[ID(cur)] = start - int64(sz)
		if ID(cur) == id {
			found = s.dataMap[start:end]
			ferr = nil
		}
		off = end
		cur++
	}
	return found, ferr
}

func (s *Store) readAt(off int64) ([]byte, error) {
	n, sz := binary.Uvarint(s.dataMap[off:])
	if sz <= 0 {
		return nil, errNotFound
	}
	start := off + int64(sz)
	end := start + int64(n)
	if end > s.dataLen {
		return nil, errNotFound
	}
	return s.dataMap[start:end], nil
}

// GetBytes performs the reverse lookup id -> bytes.
func (s *Store) GetBytes(id ID) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bytesForID(id)
	if err != nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// GetUTF8 is GetBytes as a string.
func (s *Store) GetUTF8(id ID) string {
	return string(s.GetBytes(id))
}

// Statistics reports atom/byte counts.
func (s *Store) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	avg := 0.0
	if s.count > 0 {
		avg = float64(s.totalBytes) / float64(s.count)
	}
	return Statistics{AtomCount: s.count, TotalBytes: s.totalBytes, AvgLen: avg}
}

// Close unmaps and closes both files.
func (s *Store) Close() error {
	var firstErr error
	if s.dataMap != nil {
		if err := s.dataMap.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.dataFile != nil {
		if err := s.dataFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.hashMap != nil {
		if err := s.hashMap.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.hashFile != nil {
		if err := s.hashFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
