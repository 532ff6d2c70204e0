package index

import (
	"context"

	"github.com/docent-dev/docent/pkg/model"
)

// Index is the read side of the tenant document index. Implementations
// must report StatusNoIndex when a tenant has no index at all, as
// distinct from StatusEmpty when the index exists but nothing matched;
// the two drive different refusal reasons upstream.
type Index interface {
	// Search returns up to k passages ordered by ascending distance
	// (lower is more similar).
	Search(ctx context.Context, query string, k int, tenant model.TenantID) ([]*model.RetrievedPassage, model.RetrievalStatus, error)
}
