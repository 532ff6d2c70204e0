package model

import (
	"github.com/google/uuid"
)

// TenantID is the isolation boundary. It is resolved by the
// authentication layer and trusted as-is everywhere below it.
type TenantID string

// ConversationID identifies a conversation within a tenant.
type ConversationID string

// RequestID uniquely identifies a query record within a tenant.
type RequestID string

// NewRequestID generates a new unique RequestID
func NewRequestID() RequestID {
	return RequestID(uuid.New().String())
}
