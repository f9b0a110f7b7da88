// Package walog implements the Mercury write-ahead log: a durable ordered
// log of fixed 72-byte quad records with checkpoint markers, each record
// checksummed individually so a torn tail write is detected and truncated
// on recovery.
package walog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"sync"
	"time"
)

// RecordSize is the fixed on-disk size of a LogRecord.
const RecordSize = 72

// Op identifies the kind of a LogRecord.
type Op byte

const (
	OpAdd Op = iota
	OpDelete
	OpCheckpoint
)

// MaxTicks represents "+infinity" for an open-ended validity interval.
const MaxTicks uint64 = ^uint64(0)

// Record is the in-memory form of a 72-byte WAL record.
type Record struct {
	TxID      uint64
	Op        Op
	Subject   uint64
	Predicate uint64
	Object    uint64
	Graph     uint64
	ValidFrom uint64
	ValidTo   uint64
}

func (r Record) encode() [RecordSize]byte {
	var buf [RecordSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], r.TxID)
	buf[8] = byte(r.Op)
	binary.LittleEndian.PutUint64(buf[16:24], r.Subject)
	binary.LittleEndian.PutUint64(buf[24:32], r.Predicate)
	binary.LittleEndian.PutUint64(buf[32:40], r.Object)
	binary.LittleEndian.PutUint64(buf[40:48], r.Graph)
	binary.LittleEndian.PutUint64(buf[48:56], r.ValidFrom)
	binary.LittleEndian.PutUint64(buf[56:64], r.ValidTo)
	checksum := checksumOf(buf[:64])
	binary.LittleEndian.PutUint64(buf[64:72], checksum)
	return buf
}

func decodeRecord(buf [RecordSize]byte) (Record, bool) {
	want := checksumOf(buf[:64])
	got := binary.LittleEndian.Uint64(buf[64:72])
	if want != got {
		return Record{}, false
	}
	r := Record{
		TxID:      binary.LittleEndian.Uint64(buf[0:8]),
		Op:        Op(buf[8]),
		Subject:   binary.LittleEndian.Uint64(buf[16:24]),
		Predicate: binary.LittleEndian.Uint64(buf[24:32]),
		Object:    binary.LittleEndian.Uint64(buf[32:40]),
		Graph:     binary.LittleEndian.Uint64(buf[40:48]),
		ValidFrom: binary.LittleEndian.Uint64(buf[48:56]),
		ValidTo:   binary.LittleEndian.Uint64(buf[56:64]),
	}
	return r, true
}

func checksumOf(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}

// ErrInvalidOperation is returned for API misuse (e.g. AppendBatch without
// BeginBatch).
var ErrInvalidOperation = errors.New("walog: invalid operation")

// Config controls checkpoint cadence.
type Config struct {
	SizeThresholdBytes int64
	TimeThreshold      time.Duration
}

// DefaultConfig sets the checkpoint thresholds: 64MiB or 5 minutes.
func DefaultConfig() Config {
	return Config{SizeThresholdBytes: 64 << 20, TimeThreshold: 5 * time.Minute}
}

// WAL is a single-writer, append-only durable record log.
type WAL struct {
	mu sync.Mutex

	f    *os.File
	path string
	cfg  Config

	size             int64
	nextTxID         uint64
	lastCheckpointTx uint64
	lastCheckpoint   time.Time

	batchActive bool
	batchTxID   uint64
	batchBuf    []Record
}

// Open opens (creating if necessary) the log at path, recovering by
// scanning forward and truncating at the first invalid (torn) record.
func Open(path string, cfg Config) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("walog: open: %w", err)
	}
	w := &WAL{f: f, path: path, cfg: cfg, nextTxID: 1, lastCheckpoint: time.Now()}
	if err := w.recover(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *WAL) recover() error {
	info, err := w.f.Stat()
	if err != nil {
		return fmt.Errorf("walog: stat: %w", err)
	}
	total := info.Size()
	var offset int64
	var buf [RecordSize]byte
	maxTx := uint64(0)

	for offset+RecordSize <= total {
		if _, err := w.f.ReadAt(buf[:], offset); err != nil {
			break
		}
		rec, ok := decodeRecord(buf)
		if !ok {
			// Torn tail write: truncate here and stop.
			break
		}
		if rec.TxID > maxTx {
			maxTx = rec.TxID
		}
		if rec.Op == OpCheckpoint {
			w.lastCheckpointTx = rec.TxID
		}
		offset += RecordSize
	}

	if offset != total {
		if err := w.f.Truncate(offset); err != nil {
			return fmt.Errorf("walog: truncate torn tail: %w", err)
		}
	}
	w.size = offset
	w.nextTxID = maxTx + 1
	return nil
}

// Append assigns the next tx id, writes a single record, and fsyncs.
func (w *WAL) Append(rec Record) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.batchActive {
		return 0, fmt.Errorf("%w: Append called during an active batch", ErrInvalidOperation)
	}
	rec.TxID = w.nextTxID
	w.nextTxID++
	if err := w.writeAt(w.size, rec); err != nil {
		return 0, err
	}
	w.size += RecordSize
	if err := w.f.Sync(); err != nil {
		return 0, fmt.Errorf("walog: fsync: %w", err)
	}
	return rec.TxID, nil
}

func (w *WAL) writeAt(offset int64, rec Record) error {
	buf := rec.encode()
	if _, err := w.f.WriteAt(buf[:], offset); err != nil {
		return fmt.Errorf("walog: write record: %w", err)
	}
	return nil
}

// BeginBatch starts a batch, returning the tx id assigned to it.
func (w *WAL) BeginBatch() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.batchActive {
		return 0, fmt.Errorf("%w: batch already active", ErrInvalidOperation)
	}
	w.batchActive = true
	w.batchTxID = w.nextTxID
	w.nextTxID++
	w.batchBuf = w.batchBuf[:0]
	return w.batchTxID, nil
}

// AppendBatch buffers a record for the given (already-begun) batch.
func (w *WAL) AppendBatch(rec Record, txID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.batchActive || txID != w.batchTxID {
		return fmt.Errorf("%w: AppendBatch without a matching BeginBatch", ErrInvalidOperation)
	}
	rec.TxID = txID
	w.batchBuf = append(w.batchBuf, rec)
	return nil
}

// CommitBatch writes every buffered record and fsyncs exactly once.
func (w *WAL) CommitBatch(txID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.batchActive || txID != w.batchTxID {
		return fmt.Errorf("%w: CommitBatch without a matching BeginBatch", ErrInvalidOperation)
	}
	offset := w.size
	for _, rec := range w.batchBuf {
		if err := w.writeAt(offset, rec); err != nil {
			return err
		}
		offset += RecordSize
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("walog: fsync batch: %w", err)
	}
	w.size = offset
	w.batchActive = false
	w.batchBuf = nil
	return nil
}

// RollbackBatch discards all buffered records without writing them.
func (w *WAL) RollbackBatch(txID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.batchActive || txID != w.batchTxID {
		return fmt.Errorf("%w: RollbackBatch without a matching BeginBatch", ErrInvalidOperation)
	}
	w.batchActive = false
	w.batchBuf = nil
	return nil
}

// Checkpoint writes a CHECKPOINT record whose tx_id is the highest
// committed tx id seen so far, and updates LastCheckpointTx.
func (w *WAL) Checkpoint() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.batchActive {
		return fmt.Errorf("%w: Checkpoint during an active batch", ErrInvalidOperation)
	}
	highest := w.nextTxID - 1
	rec := Record{TxID: highest, Op: OpCheckpoint}
	if err := w.writeAt(w.size, rec); err != nil {
		return err
	}
	w.size += RecordSize
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("walog: fsync checkpoint: %w", err)
	}
	w.lastCheckpointTx = highest
	w.lastCheckpoint = time.Now()
	return nil
}

// ShouldCheckpoint reports whether size or time thresholds have been hit.
func (w *WAL) ShouldCheckpoint() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.size >= w.cfg.SizeThresholdBytes {
		return true
	}
	return time.Since(w.lastCheckpoint) >= w.cfg.TimeThreshold
}

// LastCheckpointTx returns the tx id of the last checkpoint record seen.
func (w *WAL) LastCheckpointTx() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastCheckpointTx
}

// CurrentTxID returns the highest tx id assigned so far.
func (w *WAL) CurrentTxID() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextTxID - 1
}

// UncommittedRecords returns every record whose tx_id is greater than the
// last checkpoint's tx_id.
func (w *WAL) UncommittedRecords() ([]Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Record
	var buf [RecordSize]byte
	for offset := int64(0); offset+RecordSize <= w.size; offset += RecordSize {
		if _, err := w.f.ReadAt(buf[:], offset); err != nil {
			return nil, fmt.Errorf("walog: read: %w", err)
		}
		rec, ok := decodeRecord(buf)
		if !ok {
			continue
		}
		if rec.TxID > w.lastCheckpointTx {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Close closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
