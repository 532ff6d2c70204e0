package index

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/docent-dev/docent/pkg/adapter"
	"github.com/docent-dev/docent/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
)

const (
	tenantCollection = "tenants"
	chunkCollection  = "chunks"
	distanceField    = "distance"
	embeddingField   = "embedding"
)

// chunk is the indexed document fragment written by the ingestion
// side. This package only reads it.
type chunk struct {
	Content   string             `firestore:"content"`
	Source    string             `firestore:"source"`
	Page      int                `firestore:"page"`
	Embedding firestore.Vector32 `firestore:"embedding"`

	// Distance is populated by FindNearest, not stored.
	Distance float64 `firestore:"distance"`
}

// Firestore implements Index with Firestore vector search over a
// per-tenant chunk subcollection. Query embeddings come from the
// Gemini adapter; cosine distance keeps lower-is-more-similar
// semantics.
type Firestore struct {
	client *firestore.Client
	gemini adapter.Gemini
}

// NewFirestore creates a Firestore-backed document index reader
func NewFirestore(ctx context.Context, projectID, databaseID string, gemini adapter.Gemini) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}

	return &Firestore{
		client: client,
		gemini: gemini,
	}, nil
}

// Close releases the underlying client
func (x *Firestore) Close() error {
	return x.client.Close()
}

func (x *Firestore) chunks(tenant model.TenantID) *firestore.CollectionRef {
	return x.client.Collection(tenantCollection).Doc(string(tenant)).Collection(chunkCollection)
}

func (x *Firestore) Search(ctx context.Context, query string, k int, tenant model.TenantID) ([]*model.RetrievedPassage, model.RetrievalStatus, error) {
	coll := x.chunks(tenant)

	// Fail closed on tenants that never ingested anything; there is no
	// global fallback index.
	exists, err := x.hasChunks(ctx, coll)
	if err != nil {
		return nil, "", err
	}
	if !exists {
		return nil, model.StatusNoIndex, nil
	}

	embedding, err := x.embed(ctx, query)
	if err != nil {
		return nil, "", err
	}

	vq := coll.FindNearest(embeddingField, embedding, k, firestore.DistanceMeasureCosine, &firestore.FindNearestOptions{
		DistanceResultField: distanceField,
	})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	var passages []*model.RetrievedPassage
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, "", goerr.Wrap(err, "vector search failed", goerr.V("tenant", tenant))
		}

		var c chunk
		if err := snap.DataTo(&c); err != nil {
			return nil, "", goerr.Wrap(err, "failed to decode chunk")
		}

		passages = append(passages, &model.RetrievedPassage{
			Content:  c.Content,
			Source:   c.Source,
			Page:     c.Page,
			Distance: c.Distance,
		})
	}

	if len(passages) == 0 {
		return nil, model.StatusEmpty, nil
	}
	return passages, model.StatusOK, nil
}

func (x *Firestore) hasChunks(ctx context.Context, coll *firestore.CollectionRef) (bool, error) {
	iter := coll.Limit(1).Select().Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "failed to probe tenant index")
	}
	return true, nil
}

func (x *Firestore) embed(ctx context.Context, query string) (firestore.Vector32, error) {
	resp, err := x.gemini.Embedding(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("embedding response is empty")
	}

	return firestore.Vector32(resp.Embeddings[0].Values), nil
}
