package cache

import (
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/dreamware/taograph/internal/taoerr"
)

// L2Backend is the optional, longer-TTL, durable cache tier. Its key
// space matches L1's; writes propagate through from L1 when
// write-through is enabled, and reads populate L1 on an L2 hit.
type L2Backend interface {
	Get(key string) (*Entry, bool, error)
	Put(key string, e *Entry) error
	Delete(key string) error
	DeletePrefix(prefix string) error
	Close() error
}

// BadgerL2 is an L2Backend over an embedded badger store, giving the
// optional L2 real cross-restart persistence as spec.md §4.4 requires.
// Entries are CBOR-encoded so the stored bytes describe the full cache
// record (payload plus TTL/version/access metadata), not just the raw
// object payload.
type BadgerL2 struct {
	db *badger.DB
}

// OpenBadgerL2 opens (creating if absent) a badger store at dir.
func OpenBadgerL2(dir string) (*BadgerL2, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, taoerr.New("cache.OpenBadgerL2", taoerr.TransientIO, err)
	}
	return &BadgerL2{db: db}, nil
}

func (b *BadgerL2) Get(key string) (*Entry, bool, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, taoerr.New("cache.BadgerL2.Get", taoerr.TransientIO, err)
	}
	e, err := decodeEntry(raw)
	if err != nil {
		return nil, false, taoerr.New("cache.BadgerL2.Get", taoerr.Serialization, err)
	}
	return e, true, nil
}

func (b *BadgerL2) Put(key string, e *Entry) error {
	raw, err := encodeEntry(e)
	if err != nil {
		return taoerr.New("cache.BadgerL2.Put", taoerr.Serialization, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), raw)
		if e.TTL > 0 {
			entry = entry.WithTTL(e.TTL)
		}
		return txn.SetEntry(entry)
	})
}

func (b *BadgerL2) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

func (b *BadgerL2) DeletePrefix(prefix string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var keys [][]byte
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			keys = append(keys, append([]byte(nil), it.Item().Key()...))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerL2) Close() error { return b.db.Close() }

// MemoryL2 is an in-memory L2Backend, adapted from the teacher's
// internal/storage.MemoryStore: same RWMutex-guarded map, same
// copy-on-read/write discipline, generalized from raw []byte values to
// full cache Entry records with a simple linear prefix scan standing in
// for badger's prefix iterator. Used in tests and any deployment that
// wants L2's write-through/TTL semantics without persistence.
type MemoryL2 struct {
	data map[string]*Entry
	mu   sync.RWMutex
}

// NewMemoryL2 constructs an empty in-memory L2 backend.
func NewMemoryL2() *MemoryL2 {
	return &MemoryL2{data: make(map[string]*Entry)}
}

func (m *MemoryL2) Get(key string) (*Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := *e
	return &cp, true, nil
}

func (m *MemoryL2) Put(key string, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.data[key] = &cp
	return nil
}

func (m *MemoryL2) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryL2) DeletePrefix(prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *MemoryL2) Close() error { return nil }
