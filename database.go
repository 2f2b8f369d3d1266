package conjecture

import (
	"bytes"
	"sync"

	"github.com/cockroachdb/pebble"
)

// Database is the persistent example database collaborator (§6): a set of
// byte-string buffers per opaque key, with atomic demotion between keys.
// Keyed by three derived keys off a single database_key: primary,
// secondary (".secondary"), and covering (".coverage").
type Database interface {
	Fetch(key string) ([][]byte, error)
	Save(key string, buffer []byte) error
	Delete(key string, buffer []byte) error
	Move(src, dst string, buffer []byte) error
}

// DerivedKeys returns the primary, secondary, and covering keys derived
// from a single database_key.
func DerivedKeys(databaseKey string) (primary, secondary, covering string) {
	return databaseKey, databaseKey + ".secondary", databaseKey + ".coverage"
}

// MemoryDatabase is an in-memory Database, suitable for tests and for
// callers with no persistence requirement. A missing key's Save is a no-op
// creation of that key's set; Delete on a missing buffer is a no-op.
type MemoryDatabase struct {
	mu   sync.Mutex
	data map[string][][]byte
}

// NewMemoryDatabase constructs an empty in-memory database.
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{data: make(map[string][][]byte)}
}

func (m *MemoryDatabase) Fetch(key string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.data[key]))
	copy(out, m.data[key])
	return out, nil
}

func (m *MemoryDatabase) Save(key string, buffer []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.data[key] {
		if bytes.Equal(b, buffer) {
			return nil
		}
	}
	cp := append([]byte(nil), buffer...)
	m.data[key] = append(m.data[key], cp)
	return nil
}

func (m *MemoryDatabase) Delete(key string, buffer []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bufs := m.data[key]
	for i, b := range bufs {
		if bytes.Equal(b, buffer) {
			bufs[i] = bufs[len(bufs)-1]
			m.data[key] = bufs[:len(bufs)-1]
			return nil
		}
	}
	return nil
}

func (m *MemoryDatabase) Move(src, dst string, buffer []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bufs := m.data[src]
	for i, b := range bufs {
		if bytes.Equal(b, buffer) {
			bufs[i] = bufs[len(bufs)-1]
			m.data[src] = bufs[:len(bufs)-1]
			break
		}
	}
	for _, b := range m.data[dst] {
		if bytes.Equal(b, buffer) {
			return nil
		}
	}
	cp := append([]byte(nil), buffer...)
	m.data[dst] = append(m.data[dst], cp)
	return nil
}

// PebbleDatabase is a Database backed by github.com/cockroachdb/pebble,
// grounded on the way go-ethereum's trie/state packages use pebble as
// their on-disk key-value store. Each logical key's buffer set is stored
// as individual records keyed "key\x00<buffer>" (the buffer itself follows
// the key and a zero byte), so Fetch is a prefix scan rather than a
// single-value decode.
type PebbleDatabase struct {
	db *pebble.DB
}

// OpenPebbleDatabase opens (creating if absent) a pebble-backed database at
// dir.
func OpenPebbleDatabase(dir string) (*PebbleDatabase, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleDatabase{db: db}, nil
}

func (p *PebbleDatabase) Close() error {
	return p.db.Close()
}

func recordKey(key string, buffer []byte) []byte {
	out := make([]byte, 0, len(key)+1+len(buffer))
	out = append(out, key...)
	out = append(out, 0)
	out = append(out, buffer...)
	return out
}

func (p *PebbleDatabase) Fetch(key string) ([][]byte, error) {
	prefix := append([]byte(key), 0)
	upper := append([]byte(key), 1)
	it := p.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	defer it.Close()

	var out [][]byte
	for it.First(); it.Valid(); it.Next() {
		out = append(out, append([]byte(nil), it.Key()[len(prefix):]...))
	}
	return out, it.Error()
}

func (p *PebbleDatabase) Save(key string, buffer []byte) error {
	return p.db.Set(recordKey(key, buffer), nil, pebble.Sync)
}

func (p *PebbleDatabase) Delete(key string, buffer []byte) error {
	return p.db.Delete(recordKey(key, buffer), pebble.Sync)
}

func (p *PebbleDatabase) Move(src, dst string, buffer []byte) error {
	batch := p.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(recordKey(src, buffer), nil); err != nil {
		return err
	}
	if err := batch.Set(recordKey(dst, buffer), nil, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}
