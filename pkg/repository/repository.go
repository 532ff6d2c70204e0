package repository

import (
	"context"
	"time"

	"github.com/docent-dev/docent/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrConversationNotFound = goerr.New("conversation not found")
	ErrQueryNotFound        = goerr.New("query record not found")
	ErrStoreBusy            = goerr.New("tenant store is busy")
)

// Repository is the durable, tenant-scoped audit log. Every method is
// bound to a single tenant store; there is no cross-tenant read or
// write path.
type Repository interface {
	// PutQuery persists a query record with insert-if-absent semantics
	// on (tenant_id, request_id). Retried writes with the same request
	// ID are no-ops and never overwrite.
	PutQuery(ctx context.Context, record *model.QueryRecord) error

	// GetQuery retrieves a query record by request ID
	GetQuery(ctx context.Context, tenant model.TenantID, id model.RequestID) (*model.QueryRecord, error)

	// TouchConversation inserts the conversation row if absent,
	// otherwise updates last_activity_at only. created_at is immutable.
	TouchConversation(ctx context.Context, tenant model.TenantID, conv model.ConversationID, at time.Time) error

	// GetConversation retrieves a conversation row
	GetConversation(ctx context.Context, tenant model.TenantID, conv model.ConversationID) (*model.ConversationState, error)

	// ListConversations lists conversation rows for a tenant, most
	// recently active first
	ListConversations(ctx context.Context, tenant model.TenantID) ([]*model.ConversationState, error)

	// ListQueries lists query records of a conversation in creation
	// order
	ListQueries(ctx context.Context, tenant model.TenantID, conv model.ConversationID) ([]*model.QueryRecord, error)

	// LastMemoryQuery derives conversation memory from committed rows:
	// the query text of the most recent direct_answer record, unless a
	// later reset refusal exists for the conversation. Returns "" when
	// there is no usable memory.
	LastMemoryQuery(ctx context.Context, tenant model.TenantID, conv model.ConversationID) (string, error)
}
