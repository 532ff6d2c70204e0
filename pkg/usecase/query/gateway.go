package query

import (
	"context"
	"strings"

	"github.com/docent-dev/docent/pkg/index"
	"github.com/docent-dev/docent/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const (
	// defaultTopK is how many passages are requested per query.
	defaultTopK = 6

	// maxDistance is the relevance gate: a result set passes when its
	// best (lowest) distance is at or below this bound. The boundary
	// is inclusive. Derived from observed index scores.
	maxDistance = 0.60
)

// Retrieval is the gated result of one index search.
type Retrieval struct {
	// Passages are deduplicated, preserving the index's ascending
	// distance order. Content is kept in full; extraction works on
	// excerpts.
	Passages []*model.RetrievedPassage
	Status   model.RetrievalStatus

	// BestScore is the minimum distance over the deduplicated set.
	// Only meaningful when Status is ok.
	BestScore float64

	// Passed reports whether the relevance gate accepted the set.
	Passed bool
}

// Sources returns the distinct source filenames of the retrieved
// passages, in first-seen order.
func (r *Retrieval) Sources() []string {
	seen := map[string]struct{}{}
	var sources []string
	for _, p := range r.Passages {
		if _, ok := seen[p.Source]; ok {
			continue
		}
		seen[p.Source] = struct{}{}
		sources = append(sources, p.Source)
	}
	return sources
}

// retrieve runs one search against the tenant index and applies
// deduplication and the relevance gate. The index call is a blocking
// network operation; the caller imposes the timeout via ctx.
func retrieve(ctx context.Context, idx index.Index, rewritten string, k int, tenant model.TenantID) (*Retrieval, error) {
	passages, status, err := idx.Search(ctx, rewritten, k, tenant)
	if err != nil {
		return nil, goerr.Wrap(err, "document index search failed", goerr.V("tenant", tenant))
	}

	if status == model.StatusNoIndex {
		return &Retrieval{Status: model.StatusNoIndex}, nil
	}

	deduped := dedupePassages(passages)
	if len(deduped) == 0 {
		return &Retrieval{Status: model.StatusEmpty}, nil
	}

	best := deduped[0].Distance
	for _, p := range deduped[1:] {
		if p.Distance < best {
			best = p.Distance
		}
	}

	return &Retrieval{
		Passages:  deduped,
		Status:    model.StatusOK,
		BestScore: best,
		Passed:    best <= maxDistance,
	}, nil
}

// dedupePassages drops exact duplicates keyed by (trimmed content,
// source, page), keeping the first occurrence.
func dedupePassages(passages []*model.RetrievedPassage) []*model.RetrievedPassage {
	type passageKey struct {
		content string
		source  string
		page    int
	}

	seen := map[passageKey]struct{}{}
	var unique []*model.RetrievedPassage
	for _, p := range passages {
		key := passageKey{
			content: strings.TrimSpace(p.Content),
			source:  p.Source,
			page:    p.Page,
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, p)
	}
	return unique
}
