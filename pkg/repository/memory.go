package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/docent-dev/docent/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// lockWait bounds how long a writer waits for a tenant store before
// giving up.
const lockWait = 2 * time.Second

// Memory implements Repository in process memory. Each tenant gets an
// isolated store guarded by its own semaphore, mirroring the
// one-physical-store-per-tenant layout of the Firestore backend. Used
// for tests and local runs; contents are lost on restart.
type Memory struct {
	mu      sync.Mutex
	tenants map[model.TenantID]*tenantStore
}

type tenantStore struct {
	sem           chan struct{}
	conversations map[model.ConversationID]*model.ConversationState
	queries       map[model.RequestID]*model.QueryRecord
}

// NewMemory creates an in-memory repository
func NewMemory() *Memory {
	return &Memory{
		tenants: map[model.TenantID]*tenantStore{},
	}
}

func (r *Memory) tenant(id model.TenantID) *tenantStore {
	r.mu.Lock()
	defer r.mu.Unlock()

	store, ok := r.tenants[id]
	if !ok {
		store = &tenantStore{
			sem:           make(chan struct{}, 1),
			conversations: map[model.ConversationID]*model.ConversationState{},
			queries:       map[model.RequestID]*model.QueryRecord{},
		}
		r.tenants[id] = store
	}
	return store
}

// acquire serializes access to one tenant store with a bounded wait
// instead of failing immediately.
func (s *tenantStore) acquire(ctx context.Context) (func(), error) {
	select {
	case s.sem <- struct{}{}:
		return func() { <-s.sem }, nil
	case <-time.After(lockWait):
		return nil, ErrStoreBusy
	case <-ctx.Done():
		return nil, goerr.Wrap(ctx.Err(), "canceled while waiting for tenant store")
	}
}

func (r *Memory) PutQuery(ctx context.Context, record *model.QueryRecord) error {
	store := r.tenant(record.TenantID)
	release, err := store.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, ok := store.queries[record.RequestID]; ok {
		return nil // write-once: retried persistence is a no-op
	}

	clone := *record
	store.queries[record.RequestID] = &clone
	return nil
}

func (r *Memory) GetQuery(ctx context.Context, tenant model.TenantID, id model.RequestID) (*model.QueryRecord, error) {
	store := r.tenant(tenant)
	release, err := store.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	record, ok := store.queries[id]
	if !ok {
		return nil, goerr.Wrap(ErrQueryNotFound, "", goerr.V("request_id", id))
	}

	clone := *record
	return &clone, nil
}

func (r *Memory) TouchConversation(ctx context.Context, tenant model.TenantID, conv model.ConversationID, at time.Time) error {
	store := r.tenant(tenant)
	release, err := store.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if state, ok := store.conversations[conv]; ok {
		state.LastActivityAt = at
		return nil
	}

	store.conversations[conv] = &model.ConversationState{
		TenantID:       tenant,
		ConversationID: conv,
		CreatedAt:      at,
		LastActivityAt: at,
	}
	return nil
}

func (r *Memory) GetConversation(ctx context.Context, tenant model.TenantID, conv model.ConversationID) (*model.ConversationState, error) {
	store := r.tenant(tenant)
	release, err := store.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	state, ok := store.conversations[conv]
	if !ok {
		return nil, goerr.Wrap(ErrConversationNotFound, "", goerr.V("conversation", conv))
	}

	clone := *state
	return &clone, nil
}

func (r *Memory) ListConversations(ctx context.Context, tenant model.TenantID) ([]*model.ConversationState, error) {
	store := r.tenant(tenant)
	release, err := store.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	states := make([]*model.ConversationState, 0, len(store.conversations))
	for _, state := range store.conversations {
		clone := *state
		states = append(states, &clone)
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].LastActivityAt.After(states[j].LastActivityAt)
	})
	return states, nil
}

func (r *Memory) ListQueries(ctx context.Context, tenant model.TenantID, conv model.ConversationID) ([]*model.QueryRecord, error) {
	store := r.tenant(tenant)
	release, err := store.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var records []*model.QueryRecord
	for _, record := range store.queries {
		if record.ConversationID != conv {
			continue
		}
		clone := *record
		records = append(records, &clone)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (r *Memory) LastMemoryQuery(ctx context.Context, tenant model.TenantID, conv model.ConversationID) (string, error) {
	records, err := r.ListQueries(ctx, tenant, conv)
	if err != nil {
		return "", err
	}

	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		if record.Mode == model.ModeDirectAnswer {
			return record.Query, nil
		}
		if record.Mode == model.ModeHardRefusal && record.Artifacts.Reason == string(model.ReasonReset) {
			return "", nil
		}
	}
	return "", nil
}
