// Package cache implements the two-tier cache of spec.md §4.4: an
// in-process L1 LRU with per-entry TTL, and an optional L2 (backed by an
// embedded badger store) that survives process restarts and propagates
// writes through when write-through is enabled. Object and association
// payloads are encoded with a stable CBOR codec
// (github.com/fxamacker/cbor/v2) so L2 contents remain readable across
// restarts, matching spec.md's "cache contents survive process restarts
// of the optional L2."
//
// Keying follows spec.md exactly: "obj:{id}" for objects, and
// "assoc:{id1}:{atype}" for association lists.
package cache

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/dreamware/taograph/internal/idgen"
)

// Entry is the spec's {bytes, inserted_at, ttl, version, access_count,
// last_accessed} cache record.
type Entry struct {
	Bytes        []byte        `cbor:"bytes"`
	InsertedAt   time.Time     `cbor:"inserted_at"`
	TTL          time.Duration `cbor:"ttl"`
	Version      int64         `cbor:"version"`
	AccessCount  int64         `cbor:"access_count"`
	LastAccessed time.Time     `cbor:"last_accessed"`
}

// Expired reports whether now − InsertedAt > TTL, i.e. the entry must not
// be served.
func (e *Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.InsertedAt) > e.TTL
}

func (e *Entry) touch(now time.Time) {
	e.AccessCount++
	e.LastAccessed = now
}

func encodeEntry(e *Entry) ([]byte, error) {
	return cbor.Marshal(e)
}

func decodeEntry(raw []byte) (*Entry, error) {
	var e Entry
	if err := cbor.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ObjectKey returns the canonical L1/L2 key for an object.
func ObjectKey(id idgen.TaoId) string {
	return fmt.Sprintf("obj:%d", id)
}

// AssocListKey returns the canonical L1/L2 key for an (id1, atype)
// association list.
func AssocListKey(id1 idgen.TaoId, atype string) string {
	return fmt.Sprintf("assoc:%d:%s", id1, atype)
}

// AssocListPattern returns the invalidation prefix for every association
// list rooted at id.
func AssocListPattern(id idgen.TaoId) string {
	return fmt.Sprintf("assoc:%d:", id)
}
