package query

import (
	"context"
	"sync"

	"github.com/docent-dev/docent/pkg/model"
	"github.com/docent-dev/docent/pkg/repository"
)

// Memory holds the last successful (direct answer) query per
// (tenant, conversation) key. Each operation is atomic per key;
// last-writer-wins between concurrent requests on one conversation is
// acceptable. Implementations must not hold any lock across calls into
// retrieval or generation.
type Memory interface {
	Get(ctx context.Context, tenant model.TenantID, conv model.ConversationID) (string, error)
	Set(ctx context.Context, tenant model.TenantID, conv model.ConversationID, query string) error
	Clear(ctx context.Context, tenant model.TenantID, conv model.ConversationID) error
}

type memoryKey struct {
	tenant model.TenantID
	conv   model.ConversationID
}

// EphemeralMemory is the in-process strategy: fast, lost on restart,
// local to one instance.
type EphemeralMemory struct {
	mu      sync.Mutex
	entries map[memoryKey]string
}

// NewEphemeralMemory creates an in-process conversation memory
func NewEphemeralMemory() *EphemeralMemory {
	return &EphemeralMemory{
		entries: map[memoryKey]string{},
	}
}

func (m *EphemeralMemory) Get(ctx context.Context, tenant model.TenantID, conv model.ConversationID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[memoryKey{tenant, conv}], nil
}

func (m *EphemeralMemory) Set(ctx context.Context, tenant model.TenantID, conv model.ConversationID, query string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memoryKey{tenant, conv}] = query
	return nil
}

func (m *EphemeralMemory) Clear(ctx context.Context, tenant model.TenantID, conv model.ConversationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, memoryKey{tenant, conv})
	return nil
}

// DurableMemory derives conversation memory from committed audit rows
// instead of mutable state, which makes it correct across restarts and
// multiple instances at the cost of one extra read per request. Set
// and Clear are no-ops: a direct answer record updates the derivation
// by existing, and the persisted reset refusal record acts as the
// reset marker.
type DurableMemory struct {
	repo repository.Repository
}

// NewDurableMemory creates a store-derived conversation memory
func NewDurableMemory(repo repository.Repository) *DurableMemory {
	return &DurableMemory{repo: repo}
}

func (m *DurableMemory) Get(ctx context.Context, tenant model.TenantID, conv model.ConversationID) (string, error) {
	return m.repo.LastMemoryQuery(ctx, tenant, conv)
}

func (m *DurableMemory) Set(ctx context.Context, tenant model.TenantID, conv model.ConversationID, query string) error {
	return nil
}

func (m *DurableMemory) Clear(ctx context.Context, tenant model.TenantID, conv model.ConversationID) error {
	return nil
}
