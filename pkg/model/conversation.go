package model

import "time"

// ConversationState is the durable per-(tenant, conversation) row.
// CreatedAt is immutable after the first request; LastActivityAt is
// updated on every request for the key.
type ConversationState struct {
	TenantID       TenantID       `json:"tenant_id" firestore:"tenant_id"`
	ConversationID ConversationID `json:"conversation_id" firestore:"conversation_id"`
	CreatedAt      time.Time      `json:"created_at" firestore:"created_at"`
	LastActivityAt time.Time      `json:"last_activity_at" firestore:"last_activity_at"`
}
