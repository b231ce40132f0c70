package refdb

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"
	"github.com/google/uuid"
)

// Store is the metadata persistence boundary. The reference core depends on
// exactly this pair and assumes nothing about the physical encoding.
//
// CommitIfCurrent must be atomic: it persists next only if the store's
// latest version is still expected. The store provides that guarantee
// itself; callers never hold locks across the call.
type Store interface {
	LoadLatest() (*Version, error)
	CommitIfCurrent(expected, next *Version) (bool, error)
}

// DefaultHistorySize is how many committed versions MemStore keeps reachable
// through VersionAt before the LRU evicts the oldest.
const DefaultHistorySize = 128

// MemStore is the in-memory Store implementation. The current version is a
// mutex-guarded pointer; the swap compares pointer identity, so a stale
// expected version can never win. Recently committed versions stay
// addressable by number through an LRU for time travel.
type MemStore struct {
	mu      sync.Mutex
	current *Version
	history *freelru.SyncedLRU[uint64, *Version]
}

// NewMemStore mints a fresh table identity and its empty first metadata
// version.
func NewMemStore() *MemStore {
	return newMemStore(uuid.New(), DefaultHistorySize)
}

func newMemStore(tableUUID uuid.UUID, historySize uint32) *MemStore {
	history, err := freelru.NewSynced[uint64, *Version](historySize, hashVersionID)
	if err != nil {
		// Only reachable with a zero capacity, which we never pass.
		panic(err)
	}

	v := newVersion(tableUUID)
	history.Add(v.id, v)

	return &MemStore{
		current: v,
		history: history,
	}
}

func hashVersionID(id uint64) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], id)
	return uint32(xxhash.Sum64(b[:]))
}

// LoadLatest returns the last committed version. The returned value is
// immutable and safe to read without coordination.
func (s *MemStore) LoadLatest() (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

// CommitIfCurrent swaps in next only when expected is still the latest
// version. A candidate carrying a different table UUID is rejected outright;
// that is a mixed-up handle, not a benign conflict.
func (s *MemStore) CommitIfCurrent(expected, next *Version) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if next.tableUUID != s.current.tableUUID {
		return false, fmt.Errorf("%w: version for table %s committed to table %s",
			ErrTableMismatch, next.tableUUID, s.current.tableUUID)
	}
	if s.current != expected {
		return false, nil
	}

	s.current = next
	s.history.Add(next.id, next)
	return true, nil
}

// TableUUID returns the identity minted at construction.
func (s *MemStore) TableUUID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.tableUUID
}

// VersionAt returns a historical committed version by number, if it is still
// in the history window.
func (s *MemStore) VersionAt(id uint64) (*Version, bool) {
	return s.history.Get(id)
}
