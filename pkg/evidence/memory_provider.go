package evidence

import (
	"context"
	"sync"
	"time"
)

// Artifact is an evidence record held by the in-memory provider.
type Artifact struct {
	ID          string
	State       FreezeState
	ContentHash string
	Type        string
	CapturedAt  time.Time
}

// MemoryProvider is an in-process Provider used by tests and the demo
// binary. Concurrent-safe.
type MemoryProvider struct {
	mu        sync.RWMutex
	artifacts map[string]Artifact
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{artifacts: make(map[string]Artifact)}
}

// Put registers or replaces an artifact.
func (m *MemoryProvider) Put(a Artifact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[a.ID] = a
}

// FreezeArtifact marks an existing artifact frozen.
func (m *MemoryProvider) FreezeArtifact(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.artifacts[id]; ok {
		a.State = StateFrozen
		m.artifacts[id] = a
	}
}

func (m *MemoryProvider) GetFreezeStatus(_ context.Context, id string) (FreezeState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.artifacts[id]
	if !ok {
		return StateAbsent, nil
	}
	return a.State, nil
}

func (m *MemoryProvider) GetContentHash(_ context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.artifacts[id].ContentHash, nil
}

func (m *MemoryProvider) GetEvidenceType(_ context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.artifacts[id].Type, nil
}

func (m *MemoryProvider) GetCaptureTimestamp(_ context.Context, id string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.artifacts[id].CapturedAt, nil
}
