package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/docent-dev/docent/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	tenantCollection       = "tenants"
	conversationCollection = "conversations"
	queryCollection        = "queries"

	// memoryScanLimit bounds the backward scan of LastMemoryQuery. A
	// conversation with more than this many consecutive non-answer,
	// non-reset records is treated as having no memory.
	memoryScanLimit = 20
)

// Firestore implements Repository on Cloud Firestore. Each tenant owns
// a document under "tenants" with "conversations" and "queries"
// subcollections, so no query can span two tenants.
type Firestore struct {
	client *firestore.Client
}

// New creates a Firestore-backed repository
func New(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}

	return &Firestore{client: client}, nil
}

// Close releases the underlying client
func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) conversations(tenant model.TenantID) *firestore.CollectionRef {
	return r.client.Collection(tenantCollection).Doc(string(tenant)).Collection(conversationCollection)
}

func (r *Firestore) queries(tenant model.TenantID) *firestore.CollectionRef {
	return r.client.Collection(tenantCollection).Doc(string(tenant)).Collection(queryCollection)
}

func (r *Firestore) PutQuery(ctx context.Context, record *model.QueryRecord) error {
	doc := r.queries(record.TenantID).Doc(string(record.RequestID))

	if _, err := doc.Create(ctx, record); err != nil {
		// A retried write with the same request ID is a no-op, never
		// an overwrite.
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return goerr.Wrap(err, "failed to put query record",
			goerr.V("tenant", record.TenantID),
			goerr.V("request_id", record.RequestID))
	}

	return nil
}

func (r *Firestore) GetQuery(ctx context.Context, tenant model.TenantID, id model.RequestID) (*model.QueryRecord, error) {
	snap, err := r.queries(tenant).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrQueryNotFound, "", goerr.V("request_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get query record", goerr.V("request_id", id))
	}

	var record model.QueryRecord
	if err := snap.DataTo(&record); err != nil {
		return nil, goerr.Wrap(err, "failed to decode query record")
	}

	return &record, nil
}

func (r *Firestore) TouchConversation(ctx context.Context, tenant model.TenantID, conv model.ConversationID, at time.Time) error {
	doc := r.conversations(tenant).Doc(string(conv))

	// Firestore serializes concurrent transactions on the same doc
	// with internal retries, which gives the bounded-wait semantics
	// the write path needs.
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(doc); err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			return tx.Create(doc, &model.ConversationState{
				TenantID:       tenant,
				ConversationID: conv,
				CreatedAt:      at,
				LastActivityAt: at,
			})
		}

		// created_at stays untouched on update
		return tx.Update(doc, []firestore.Update{
			{Path: "last_activity_at", Value: at},
		})
	})
	if err != nil {
		return goerr.Wrap(err, "failed to touch conversation",
			goerr.V("tenant", tenant),
			goerr.V("conversation", conv))
	}

	return nil
}

func (r *Firestore) GetConversation(ctx context.Context, tenant model.TenantID, conv model.ConversationID) (*model.ConversationState, error) {
	snap, err := r.conversations(tenant).Doc(string(conv)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrConversationNotFound, "", goerr.V("conversation", conv))
		}
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("conversation", conv))
	}

	var state model.ConversationState
	if err := snap.DataTo(&state); err != nil {
		return nil, goerr.Wrap(err, "failed to decode conversation")
	}

	return &state, nil
}

func (r *Firestore) ListConversations(ctx context.Context, tenant model.TenantID) ([]*model.ConversationState, error) {
	iter := r.conversations(tenant).OrderBy("last_activity_at", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var states []*model.ConversationState
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list conversations", goerr.V("tenant", tenant))
		}

		var state model.ConversationState
		if err := snap.DataTo(&state); err != nil {
			return nil, goerr.Wrap(err, "failed to decode conversation")
		}
		states = append(states, &state)
	}

	return states, nil
}

func (r *Firestore) ListQueries(ctx context.Context, tenant model.TenantID, conv model.ConversationID) ([]*model.QueryRecord, error) {
	iter := r.queries(tenant).
		Where("conversation_id", "==", string(conv)).
		OrderBy("created_at", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var records []*model.QueryRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list query records", goerr.V("conversation", conv))
		}

		var record model.QueryRecord
		if err := snap.DataTo(&record); err != nil {
			return nil, goerr.Wrap(err, "failed to decode query record")
		}
		records = append(records, &record)
	}

	return records, nil
}

func (r *Firestore) LastMemoryQuery(ctx context.Context, tenant model.TenantID, conv model.ConversationID) (string, error) {
	iter := r.queries(tenant).
		Where("conversation_id", "==", string(conv)).
		OrderBy("created_at", firestore.Desc).
		Limit(memoryScanLimit).
		Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return "", nil
		}
		if err != nil {
			return "", goerr.Wrap(err, "failed to derive conversation memory", goerr.V("conversation", conv))
		}

		var record model.QueryRecord
		if err := snap.DataTo(&record); err != nil {
			return "", goerr.Wrap(err, "failed to decode query record")
		}

		if record.Mode == model.ModeDirectAnswer {
			return record.Query, nil
		}
		// A persisted reset refusal is the reset marker: anything
		// before it is no longer derivable memory.
		if record.Mode == model.ModeHardRefusal && record.Artifacts.Reason == string(model.ReasonReset) {
			return "", nil
		}
	}
}
