// Package counter implements the per-keyword counter map: a
// specialization of the encrypted store holding 32-bit values, with an
// atomic get-and-increment keyed by per-bucket locking, built directly
// on internal/sse/store for persistence.
package counter

import (
	"encoding/binary"
	"sync"

	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/store"
)

// Map is a persistent, concurrency-safe per-keyword counter. Each key's
// get-and-increment is linearized against concurrent callers on the same
// key via a per-key lock; different keys may proceed fully in parallel.
type Map struct {
	st      store.Backend
	keyLock sync.Map // key string -> *sync.Mutex, one lock per bucket
}

// Open creates or reopens a file-backed counter map persisted under path.
func Open(path string) (*Map, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return &Map{st: st}, nil
}

// Wrap builds a counter map directly over an already-open backend, used to
// run the counter map against the pgx-backed store instead of the default
// file-backed one.
func Wrap(st store.Backend) *Map {
	return &Map{st: st}
}

func (m *Map) lockFor(k []byte) *sync.Mutex {
	l, _ := m.keyLock.LoadOrStore(string(k), &sync.Mutex{})
	return l.(*sync.Mutex)
}

// GetAndIncrement atomically reads the current value for k (defaulting to
// 0 if absent), persists value+1, and returns the OLD value: the
// pre-increment counter, the value to use for this update.
func (m *Map) GetAndIncrement(k []byte) (uint32, error) {
	lock := m.lockFor(k)
	lock.Lock()
	defer lock.Unlock()

	cur := m.getLocked(k)
	if err := m.putLocked(k, cur+1); err != nil {
		return 0, err
	}
	return cur, nil
}

// Get returns the current value for k and whether it is present at all
// (an absent key and a key explicitly set to 0 are distinguished, per the
// Diana search contract: "If c = C.get(w) absent -> empty").
func (m *Map) Get(k []byte) (uint32, bool) {
	v, ok := m.st.Get(k)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

func (m *Map) getLocked(k []byte) uint32 {
	v, ok := m.st.Get(k)
	if !ok {
		return 0
	}
	return binary.BigEndian.Uint32(v)
}

func (m *Map) putLocked(k []byte, v uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	if err := m.st.Put(k, buf); err != nil {
		return err
	}
	return nil
}

// Set forcibly assigns a value to k, used when restoring counters for a
// deletion-side core that must not share linearization with insertion.
func (m *Map) Set(k []byte, v uint32) error {
	lock := m.lockFor(k)
	lock.Lock()
	defer lock.Unlock()
	return m.putLocked(k, v)
}

// ForEach iterates all (key, value) pairs in unspecified order, for
// debugging and random-search benchmarking (spec §3: "Iterator over all
// (k,v) pairs is required").
func (m *Map) ForEach(fn func(k []byte, v uint32)) {
	m.st.ForEach(func(k, v []byte) {
		if len(v) != 4 {
			return
		}
		fn(k, binary.BigEndian.Uint32(v))
	})
}

// Flush persists all pending counter writes durably.
func (m *Map) Flush() error {
	return m.st.Flush(true)
}

// Close flushes and releases the underlying store.
func (m *Map) Close() error {
	return m.st.Close()
}
