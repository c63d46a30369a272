package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chittyos/claimchain/pkg/auth"
	"github.com/chittyos/claimchain/pkg/canonicalize"
)

// ErrEntryNotFound is returned for out-of-range chain reads.
var ErrEntryNotFound = errors.New("audit entry not found")

const genesisHash = "genesis"

// ChainEntry is one immutable, hash-chained audit record.
type ChainEntry struct {
	EntryID      string         `json:"entry_id"`
	Sequence     uint64         `json:"sequence"`
	Timestamp    time.Time      `json:"timestamp"`
	Type         EventType      `json:"type"`
	ActorID      string         `json:"actor_id"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	PreviousHash string         `json:"previous_hash"`
	EntryHash    string         `json:"entry_hash"`
}

// ChainStore is an append-only audit log whose entries are hash-chained to
// their predecessors, making silent tampering detectable. It implements
// Logger so it can stand in as the engine's audit sink directly.
type ChainStore struct {
	mu      sync.RWMutex
	entries []ChainEntry
	head    string
	clock   func() time.Time
}

// NewChainStore creates an empty chain.
func NewChainStore() *ChainStore {
	return &ChainStore{head: genesisHash, clock: time.Now}
}

// WithClock overrides the clock for tests.
func (s *ChainStore) WithClock(clock func() time.Time) *ChainStore {
	s.clock = clock
	return s
}

// Record implements Logger by appending a chained entry.
func (s *ChainStore) Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error {
	_, err := s.Append(ctx, eventType, action, resource, metadata)
	return err
}

// Append adds an entry and returns it.
func (s *ChainStore) Append(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) (*ChainEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := ChainEntry{
		EntryID:      uuid.New().String(),
		Sequence:     uint64(len(s.entries)) + 1,
		Timestamp:    s.clock().UTC(),
		Type:         eventType,
		ActorID:      auth.ActorID(ctx),
		Action:       action,
		Resource:     resource,
		Metadata:     metadata,
		PreviousHash: s.head,
	}

	hash, err := entryHash(entry)
	if err != nil {
		return nil, fmt.Errorf("audit chain: hash entry: %w", err)
	}
	entry.EntryHash = hash

	s.entries = append(s.entries, entry)
	s.head = hash
	return &entry, nil
}

// Get returns the entry at sequence seq (1-based).
func (s *ChainStore) Get(seq uint64) (*ChainEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq == 0 || seq > uint64(len(s.entries)) {
		return nil, fmt.Errorf("%w: sequence %d", ErrEntryNotFound, seq)
	}
	entry := s.entries[seq-1]
	return &entry, nil
}

// Head returns the current chain head hash.
func (s *ChainStore) Head() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head
}

// Length returns the number of entries.
func (s *ChainStore) Length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Verify walks the chain and recomputes every hash. Returns false with a
// diagnostic on the first break.
func (s *ChainStore) Verify() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prev := genesisHash
	for i, entry := range s.entries {
		if entry.PreviousHash != prev {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prev, entry.PreviousHash)
		}
		computed, err := entryHash(entry)
		if err != nil {
			return false, fmt.Sprintf("entry %d not hashable: %v", i+1, err)
		}
		if computed != entry.EntryHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", i+1)
		}
		prev = entry.EntryHash
	}
	return true, "chain verified"
}

// entryHash hashes the entry with EntryHash cleared.
func entryHash(entry ChainEntry) (string, error) {
	entry.EntryHash = ""
	return canonicalize.Hash(entry)
}
