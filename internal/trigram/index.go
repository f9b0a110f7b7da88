// Package trigram implements a badger-backed trigram -> document-id
// postings index used by the text:match FILTER extension function. It
// shares the badger engine the rest of the store already runs on and
// stores each posting list as a Roaring Bitmap.
package trigram

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/zeebo/xxh3"
	"golang.org/x/text/unicode/norm"
)

const tablePrefix = 'T'

// Index maps normalized trigrams to the set of atom IDs whose lexical form
// contains them.
type Index struct {
	db *badger.DB
}

// Open wraps an already-open badger database (typically the same database
// backing QuadStore's four indexes, under a distinct key-space prefix).
func Open(db *badger.DB) *Index {
	return &Index{db: db}
}

// normalize folds case and applies NFC normalization so matching is
// case-insensitive and Unicode-aware. ASCII-only strings take the
// byte-wise fast path.
func normalize(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return toLowerASCII(s)
	}
	return norm.NFC.String(strings.ToLower(s))
}

func toLowerASCII(s string) string {
	b := []byte(s)
	changed := false
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
			changed = true
		}
	}
	if !changed {
		return s
	}
	return string(b)
}

// Trigrams returns every overlapping 3-rune window of s, after
// normalization. Strings shorter than 3 runes yield the whole (normalized)
// string as a single "trigram" so short literals remain searchable.
func Trigrams(s string) []string {
	s = normalize(s)
	r := []rune(s)
	if len(r) < 3 {
		if len(r) == 0 {
			return nil
		}
		return []string{string(r)}
	}
	out := make([]string, 0, len(r)-2)
	for i := 0; i+3 <= len(r); i++ {
		out = append(out, string(r[i:i+3]))
	}
	return out
}

// key hashes the (variable-width, multi-byte) trigram to a fixed 9-byte
// badger key: the table prefix byte plus the 8-byte xxh3 hash. A hash
// collision merges two trigrams' posting lists, which only widens the candidate set text:match confirms by substring check.
func key(trigram string) []byte {
	b := make([]byte, 9)
	b[0] = tablePrefix
	binary.BigEndian.PutUint64(b[1:], xxh3.HashString(trigram))
	return b
}

// Index records that docID's lexical form contains the given text.
func (idx *Index) Index(docID uint64, text string) error {
	grams := Trigrams(text)
	if len(grams) == 0 {
		return nil
	}
	return idx.db.Update(func(txn *badger.Txn) error {
		for _, g := range grams {
			k := key(g)
			bm := roaring.New()
			item, err := txn.Get(k)
			if err == nil {
				if verr := item.Value(func(val []byte) error {
					_, rerr := bm.FromBuffer(val)
					return rerr
				}); verr != nil {
					return verr
				}
			} else if err != badger.ErrKeyNotFound {
				return err
			}
			bm.Add(uint32(docID))
			buf, err := bm.ToBytes()
			if err != nil {
				return err
			}
			if err := txn.Set(k, buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// Remove undoes a prior Index call for docID/text, once no live version
// of the literal remains.
func (idx *Index) Remove(docID uint64, text string) error {
	grams := Trigrams(text)
	return idx.db.Update(func(txn *badger.Txn) error {
		for _, g := range grams {
			k := key(g)
			bm := roaring.New()
			item, err := txn.Get(k)
			if err == badger.ErrKeyNotFound {
				continue
			} else if err != nil {
				return err
			}
			if verr := item.Value(func(val []byte) error {
				_, rerr := bm.FromBuffer(val)
				return rerr
			}); verr != nil {
				return verr
			}
			bm.Remove(uint32(docID))
			if bm.IsEmpty() {
				if err := txn.Delete(k); err != nil {
					return err
				}
				continue
			}
			buf, err := bm.ToBytes()
			if err != nil {
				return err
			}
			if err := txn.Set(k, buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// Search intersects the posting lists for every trigram of query and
// returns the candidate doc IDs, ordered ascending. It is a candidate
// filter, not a final match: the caller still re-checks the full
// substring against each candidate's literal text.
func (idx *Index) Search(query string) ([]uint64, error) {
	grams := Trigrams(query)
	if len(grams) == 0 {
		return nil, fmt.Errorf("trigram: empty query")
	}
	var result *roaring.Bitmap
	err := idx.db.View(func(txn *badger.Txn) error {
		for _, g := range grams {
			item, err := txn.Get(key(g))
			if err == badger.ErrKeyNotFound {
				result = roaring.New()
				return nil
			}
			if err != nil {
				return err
			}
			bm := roaring.New()
			if verr := item.Value(func(val []byte) error {
				_, rerr := bm.FromBuffer(val)
				return rerr
			}); verr != nil {
				return verr
			}
			if result == nil {
				result = bm
			} else {
				result.And(bm)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ids := result.ToArray()
	out := make([]uint64, len(ids))
	for i, v := range ids {
		out[i] = uint64(v)
	}
	return out, nil
}
