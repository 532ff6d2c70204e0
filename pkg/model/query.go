package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

var ErrInvalidMode = goerr.New("invalid response mode")

// Mode is the terminal state of the query pipeline.
type Mode string

const (
	ModeHardRefusal    Mode = "hard_refusal"
	ModeGuidedFallback Mode = "guided_fallback"
	ModeDirectAnswer   Mode = "direct_answer"
)

// Validate checks if the mode is valid
func (m Mode) Validate() error {
	switch m {
	case ModeHardRefusal, ModeGuidedFallback, ModeDirectAnswer:
		return nil
	default:
		return goerr.Wrap(ErrInvalidMode, "unknown mode", goerr.V("mode", m))
	}
}

// RefusalReason is the machine-readable reason of a hard refusal.
type RefusalReason string

const (
	ReasonReset          RefusalReason = "reset"
	ReasonVagueQuery     RefusalReason = "vague_query"
	ReasonExternalEntity RefusalReason = "external_entity"
	ReasonNoDocuments    RefusalReason = "no_documents_ingested"
	ReasonNoChunks       RefusalReason = "no_chunks"
)

// Message returns the human-facing refusal text. The text never goes
// into the answer field; refusals carry an empty answer.
func (r RefusalReason) Message() string {
	switch r {
	case ReasonReset:
		return "Context has been reset. Please ask a new question."
	case ReasonVagueQuery, ReasonNoChunks:
		return "Please provide more context so I can answer accurately."
	case ReasonNoDocuments:
		return "There are no documents available yet to answer this question."
	default:
		return "The documents do not answer this question."
	}
}

// RetrievalStatus reports what the document index had for a tenant.
// StatusNoIndex (no index built yet) is deliberately distinct from
// StatusEmpty (index exists, nothing matched); they drive different
// refusal reasons.
type RetrievalStatus string

const (
	StatusOK      RetrievalStatus = "ok"
	StatusEmpty   RetrievalStatus = "empty"
	StatusNoIndex RetrievalStatus = "tenant_index_missing"
)

// RetrievedPassage is one similarity-search hit. Distance is the index
// metric: lower means more similar. Content is the full chunk text;
// extractive processing works on a bounded excerpt of it.
type RetrievedPassage struct {
	Content  string
	Source   string
	Page     int
	Distance float64
}

// excerptLimit bounds passage content for extractive processing
// (highlights, primary-source grouping). Generation always receives
// the full content.
const excerptLimit = 600

// Excerpt returns the content prefix used for extraction.
func (p *RetrievedPassage) Excerpt() string {
	if len(p.Content) <= excerptLimit {
		return p.Content
	}
	return p.Content[:excerptLimit]
}

// Citation points at a (source, page) pair. Citation lists are always
// deduplicated, preserving first-seen order.
type Citation struct {
	Source string `json:"source" firestore:"source"`
	Page   int    `json:"page" firestore:"page"`
}

// Highlight is an extracted sentence shown in guided fallback mode.
type Highlight struct {
	Text   string `json:"highlight" firestore:"highlight"`
	Source string `json:"source" firestore:"source"`
	Page   int    `json:"page" firestore:"page"`
}

// QueryRequest is the caller-facing request. TenantID is resolved by
// authentication before the pipeline runs; a value supplied in the
// body is never trusted.
type QueryRequest struct {
	Query          string         `json:"query"`
	ConversationID ConversationID `json:"conversation_id"`
	Debug          bool           `json:"debug"`
}

// DebugInfo is attached to the envelope when the request asks for it.
type DebugInfo struct {
	RewrittenQuery  string          `json:"rewritten_query" firestore:"rewritten_query"`
	Intent          Intent          `json:"intent" firestore:"intent"`
	RetrievalStatus RetrievalStatus `json:"retrieval_status" firestore:"retrieval_status"`
	BestScore       float64         `json:"best_score" firestore:"best_score"`
	PassedGate      bool            `json:"passed_gate" firestore:"passed_gate"`
	PassageCount    int             `json:"passage_count" firestore:"passage_count"`
	PrimarySource   string          `json:"primary_source,omitempty" firestore:"primary_source,omitempty"`
}

// Artifacts carries mode-specific extras. Exactly one shape is
// populated per mode: refusals carry Reason and Message, guided
// fallback carries Reason and Highlights, direct answers carry
// AdditionalResources.
type Artifacts struct {
	Reason              string      `json:"reason,omitempty" firestore:"reason,omitempty"`
	Message             string      `json:"message,omitempty" firestore:"message,omitempty"`
	RelatedHighlights   []Highlight `json:"related_highlights,omitempty" firestore:"related_highlights,omitempty"`
	AdditionalResources []Highlight `json:"additional_resources,omitempty" firestore:"additional_resources,omitempty"`
}

// ResponseEnvelope is the single canonical response shape for every
// outcome of the pipeline.
type ResponseEnvelope struct {
	RequestID      RequestID      `json:"request_id"`
	CreatedAt      time.Time      `json:"created_at"`
	TenantID       TenantID       `json:"tenant_id"`
	ConversationID ConversationID `json:"conversation_id"`
	Query          string         `json:"query"`
	Mode           Mode           `json:"mode"`
	Answer         string         `json:"answer"`
	Citations      []Citation     `json:"citations"`
	Artifacts      Artifacts      `json:"artifacts"`
	Debug          *DebugInfo     `json:"debug"`
}

// QueryRecord is the write-once audit row for one request. It is
// keyed by (tenant, request_id); retried writes with the same key are
// no-ops.
type QueryRecord struct {
	TenantID       TenantID       `json:"tenant_id" firestore:"tenant_id"`
	RequestID      RequestID      `json:"request_id" firestore:"request_id"`
	ConversationID ConversationID `json:"conversation_id" firestore:"conversation_id"`
	CreatedAt      time.Time      `json:"created_at" firestore:"created_at"`
	Query          string         `json:"query" firestore:"query"`
	Mode           Mode           `json:"mode" firestore:"mode"`
	Answer         string         `json:"answer" firestore:"answer"`
	Citations      []Citation     `json:"citations" firestore:"citations"`
	Artifacts      Artifacts      `json:"artifacts" firestore:"artifacts"`
	Debug          *DebugInfo     `json:"debug,omitempty" firestore:"debug,omitempty"`

	// Snapshot is the serialized envelope exactly as returned to the
	// caller.
	Snapshot string `json:"-" firestore:"snapshot"`
}

// NewRecord builds the audit record from a finished envelope.
func NewRecord(env *ResponseEnvelope, snapshot string) *QueryRecord {
	return &QueryRecord{
		TenantID:       env.TenantID,
		RequestID:      env.RequestID,
		ConversationID: env.ConversationID,
		CreatedAt:      env.CreatedAt,
		Query:          env.Query,
		Mode:           env.Mode,
		Answer:         env.Answer,
		Citations:      env.Citations,
		Artifacts:      env.Artifacts,
		Debug:          env.Debug,
		Snapshot:       snapshot,
	}
}
