package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/docent-dev/docent/pkg/model"
	"github.com/docent-dev/docent/pkg/repository"
	"github.com/docent-dev/docent/pkg/usecase/query"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

// Mock Index
type mockIndex struct {
	passages []*model.RetrievedPassage
	status   model.RetrievalStatus
	err      error

	calls   int
	queries []string
}

func (m *mockIndex) Search(ctx context.Context, q string, k int, tenant model.TenantID) ([]*model.RetrievedPassage, model.RetrievalStatus, error) {
	m.calls++
	m.queries = append(m.queries, q)
	return m.passages, m.status, m.err
}

// Mock Gemini
type mockGemini struct {
	answer string
	err    error

	calls   int
	prompts []string
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.calls++
	for _, c := range contents {
		for _, p := range c.Parts {
			m.prompts = append(m.prompts, p.Text)
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: m.answer}}},
		}},
	}, nil
}

func (m *mockGemini) Embedding(ctx context.Context, text string) (*genai.EmbedContentResponse, error) {
	return &genai.EmbedContentResponse{}, nil
}

// failingRepository errors on every write to exercise persistence
// suppression.
type failingRepository struct {
	repository.Repository
}

func (r *failingRepository) PutQuery(ctx context.Context, record *model.QueryRecord) error {
	return goerr.New("store unavailable")
}

func (r *failingRepository) TouchConversation(ctx context.Context, tenant model.TenantID, conv model.ConversationID, at time.Time) error {
	return goerr.New("store unavailable")
}

func groundedPassages() []*model.RetrievedPassage {
	return []*model.RetrievedPassage{
		{
			Content:  "Employees accrue ten vacation days per calendar year. Unused days expire.",
			Source:   "handbook.pdf", Page: 3, Distance: 0.2,
		},
		{
			Content:  "The benefits plan provides dental and vision coverage for all staff.",
			Source:   "benefits.pdf", Page: 7, Distance: 0.45,
		},
	}
}

func newInput(q string) query.Input {
	return query.Input{
		TenantID:       "acme",
		ConversationID: "conv-1",
		Query:          q,
	}
}

func TestHandleValidation(t *testing.T) {
	ctx := context.Background()
	uc := query.New(repository.NewMemory(), &mockIndex{}, &mockGemini{})

	_, err := uc.Handle(ctx, query.Input{ConversationID: "c", Query: "q"})
	gt.Error(t, err)

	_, err = uc.Handle(ctx, query.Input{TenantID: "t", Query: "q"})
	gt.Error(t, err)

	_, err = uc.Handle(ctx, query.Input{TenantID: "t", ConversationID: "c"})
	gt.Error(t, err)
}

func TestHandleVagueRefusal(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	idx := &mockIndex{status: model.StatusOK, passages: groundedPassages()}
	gemini := &mockGemini{answer: "unused"}
	uc := query.New(repo, idx, gemini)

	env, err := uc.Handle(ctx, newInput("tell me more"))
	gt.NoError(t, err)

	gt.Equal(t, env.Mode, model.ModeHardRefusal)
	gt.Equal(t, env.Answer, "")
	gt.Equal(t, env.Artifacts.Reason, "vague_query")
	gt.S(t, env.Artifacts.Message).Contains("more context")
	gt.A(t, env.Citations).Length(0)

	// Retrieval and generation never run for terminal intents.
	gt.Equal(t, idx.calls, 0)
	gt.Equal(t, gemini.calls, 0)

	// The refusal is still audited.
	records, err := repo.ListQueries(ctx, "acme", "conv-1")
	gt.NoError(t, err)
	gt.A(t, records).Length(1)
	gt.Equal(t, records[0].Mode, model.ModeHardRefusal)
}

func TestHandleResetClearsMemory(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	idx := &mockIndex{status: model.StatusOK, passages: groundedPassages()}
	gemini := &mockGemini{answer: "Ten vacation days per year."}
	uc := query.New(repo, idx, gemini)

	// Establish memory with a direct answer.
	env, err := uc.Handle(ctx, newInput("what is the vacation policy"))
	gt.NoError(t, err)
	gt.Equal(t, env.Mode, model.ModeDirectAnswer)

	// Reset.
	env, err = uc.Handle(ctx, newInput("reset"))
	gt.NoError(t, err)
	gt.Equal(t, env.Mode, model.ModeHardRefusal)
	gt.Equal(t, env.Artifacts.Reason, "reset")
	gt.S(t, env.Artifacts.Message).Contains("reset")

	// A short follow-up after reset is not anchored to the old query.
	_, err = uc.Handle(ctx, newInput("and the deadlines?"))
	gt.NoError(t, err)
	last := idx.queries[len(idx.queries)-1]
	gt.Equal(t, last, "and the deadlines?")
}

func TestHandleDirectAnswer(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	idx := &mockIndex{status: model.StatusOK, passages: groundedPassages()}
	gemini := &mockGemini{answer: "Employees accrue ten vacation days per calendar year. (handbook.pdf, 3)"}

	fixed := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	uc := query.New(repo, idx, gemini,
		query.WithClock(func() time.Time { return fixed }),
		query.WithIDGenerator(func() model.RequestID { return "req-1" }),
	)

	env, err := uc.Handle(ctx, newInput("what is the vacation policy"))
	gt.NoError(t, err)

	gt.Equal(t, env.Mode, model.ModeDirectAnswer)
	gt.Equal(t, env.RequestID, model.RequestID("req-1"))
	gt.Equal(t, env.CreatedAt, fixed)
	gt.Equal(t, env.TenantID, model.TenantID("acme"))
	gt.S(t, env.Answer).Contains("ten vacation days")

	// Only the primary source is cited; benefits.pdf never restates
	// the answer, so no supplemental citation appears.
	gt.Equal(t, env.Citations, []model.Citation{{Source: "handbook.pdf", Page: 3}})

	// Generation received only primary source passages.
	gt.Equal(t, gemini.calls, 1)
	gt.S(t, gemini.prompts[0]).Contains("handbook.pdf")
	gt.S(t, gemini.prompts[0]).NotContains("benefits.pdf")

	// Conversation row and audit record were persisted.
	conv, err := repo.GetConversation(ctx, "acme", "conv-1")
	gt.NoError(t, err)
	gt.Equal(t, conv.CreatedAt, fixed)
	gt.Equal(t, conv.LastActivityAt, fixed)

	record, err := repo.GetQuery(ctx, "acme", "req-1")
	gt.NoError(t, err)
	gt.Equal(t, record.Mode, model.ModeDirectAnswer)
	gt.Equal(t, record.Query, "what is the vacation policy")
	gt.S(t, record.Snapshot).Contains(`"request_id":"req-1"`)
}

func TestHandleFollowUpRewrite(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{status: model.StatusOK, passages: groundedPassages()}
	gemini := &mockGemini{answer: "Ten days per year."}
	uc := query.New(repository.NewMemory(), idx, gemini)

	_, err := uc.Handle(ctx, newInput("what is the vacation policy"))
	gt.NoError(t, err)

	_, err = uc.Handle(ctx, newInput("and the deadlines?"))
	gt.NoError(t, err)

	gt.Equal(t, idx.queries[1],
		"In the context of what is the vacation policy, and the deadlines?")

	// Memory holds the original text, never the rewritten form.
	_, err = uc.Handle(ctx, newInput("what about carryover"))
	gt.NoError(t, err)
	gt.S(t, idx.queries[2]).Contains("In the context of and the deadlines?,")
}

func TestHandleLongFollowUpSkipsRewrite(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{status: model.StatusOK, passages: groundedPassages()}
	uc := query.New(repository.NewMemory(), idx, &mockGemini{answer: "Ten days."})

	_, err := uc.Handle(ctx, newInput("what is the vacation policy"))
	gt.NoError(t, err)

	long := "please give the exact carryover rules for senior staff"
	_, err = uc.Handle(ctx, newInput(long))
	gt.NoError(t, err)
	gt.Equal(t, idx.queries[1], long)
}

func TestHandleGuidedFallback(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	idx := &mockIndex{status: model.StatusOK, passages: []*model.RetrievedPassage{
		{
			Content:  "The review process is documented for every engineering team member. Next.",
			Source:   "handbook.pdf", Page: 11, Distance: 0.3,
		},
	}}
	gemini := &mockGemini{answer: "unused"}
	uc := query.New(repo, idx, gemini)

	env, err := uc.Handle(ctx, newInput("how does the review process work"))
	gt.NoError(t, err)

	gt.Equal(t, env.Mode, model.ModeGuidedFallback)
	gt.Equal(t, env.Answer, "")
	gt.A(t, env.Artifacts.RelatedHighlights).Longer(0)
	gt.S(t, env.Artifacts.Reason).Contains("No direct answer")
	gt.Equal(t, env.Citations, []model.Citation{{Source: "handbook.pdf", Page: 11}})

	// Grounding is unconfirmed in fallback, so generation never runs.
	gt.Equal(t, gemini.calls, 0)

	// Fallback does not update conversation memory: the next short
	// follow-up is not anchored to it.
	_, err = uc.Handle(ctx, newInput("in summary?"))
	gt.NoError(t, err)
	gt.Equal(t, idx.queries[1], "in summary?")
}

func TestHandleGateFailure(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{status: model.StatusOK, passages: []*model.RetrievedPassage{
		{
			Content:  "The office layout is described in the facilities appendix section. Next.",
			Source:   "facilities.pdf", Page: 2, Distance: 0.85,
		},
	}}
	gemini := &mockGemini{answer: "unused"}
	uc := query.New(repository.NewMemory(), idx, gemini)

	env, err := uc.Handle(ctx, newInput("what is the parking policy"))
	gt.NoError(t, err)

	gt.Equal(t, env.Mode, model.ModeGuidedFallback)
	gt.Equal(t, env.Answer, "")
	gt.Equal(t, gemini.calls, 0)
}

func TestHandleNoIndex(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{status: model.StatusNoIndex}
	uc := query.New(repository.NewMemory(), idx, &mockGemini{})

	env, err := uc.Handle(ctx, newInput("what is the vacation policy"))
	gt.NoError(t, err)

	gt.Equal(t, env.Mode, model.ModeHardRefusal)
	gt.Equal(t, env.Artifacts.Reason, "no_documents_ingested")
	gt.S(t, env.Artifacts.Message).Contains("no documents")
}

func TestHandleEmptyRetrieval(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{status: model.StatusOK}
	uc := query.New(repository.NewMemory(), idx, &mockGemini{})

	env, err := uc.Handle(ctx, newInput("what is the vacation policy"))
	gt.NoError(t, err)

	gt.Equal(t, env.Mode, model.ModeHardRefusal)
	gt.Equal(t, env.Artifacts.Reason, "no_chunks")
}

func TestHandleExternalComparison(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{status: model.StatusOK, passages: groundedPassages()}
	gemini := &mockGemini{answer: "unused"}
	uc := query.New(repository.NewMemory(), idx, gemini)

	env, err := uc.Handle(ctx, newInput("is Slack better than Zoom"))
	gt.NoError(t, err)

	gt.Equal(t, env.Mode, model.ModeHardRefusal)
	gt.Equal(t, env.Artifacts.Reason, "external_entity")
	gt.Equal(t, gemini.calls, 0)

	// Retrieval had to run to know the sources.
	gt.Equal(t, idx.calls, 1)
}

func TestHandleGenerationFailure(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{status: model.StatusOK, passages: groundedPassages()}
	gemini := &mockGemini{err: goerr.New("model overloaded")}
	uc := query.New(repository.NewMemory(), idx, gemini)

	_, err := uc.Handle(ctx, newInput("what is the vacation policy"))
	gt.Error(t, err)
}

func TestHandleIndexFailure(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{err: goerr.New("index unavailable")}
	uc := query.New(repository.NewMemory(), idx, &mockGemini{})

	_, err := uc.Handle(ctx, newInput("what is the vacation policy"))
	gt.Error(t, err)
}

func TestHandlePersistenceFailureSuppressed(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepository{}
	idx := &mockIndex{status: model.StatusOK, passages: groundedPassages()}
	uc := query.New(repo, idx, &mockGemini{answer: "Ten days per year."})

	env, err := uc.Handle(ctx, newInput("what is the vacation policy"))
	gt.NoError(t, err)
	gt.Equal(t, env.Mode, model.ModeDirectAnswer)
}

func TestHandleIdempotentAudit(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	idx := &mockIndex{status: model.StatusOK, passages: groundedPassages()}

	uc := query.New(repo, idx, &mockGemini{answer: "Ten days per year."},
		query.WithIDGenerator(func() model.RequestID { return "req-dup" }),
	)

	first, err := uc.Handle(ctx, newInput("what is the vacation policy"))
	gt.NoError(t, err)

	// A retried request with the same ID does not produce a second row
	// and does not overwrite the first.
	_, err = uc.Handle(ctx, newInput("what is the vacation policy"))
	gt.NoError(t, err)

	records, err := repo.ListQueries(ctx, "acme", "conv-1")
	gt.NoError(t, err)
	gt.A(t, records).Length(1)
	gt.Equal(t, records[0].CreatedAt, first.CreatedAt)
}

func TestHandleDebugInfo(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{status: model.StatusOK, passages: groundedPassages()}
	uc := query.New(repository.NewMemory(), idx, &mockGemini{answer: "Ten days per year."})

	input := newInput("what is the vacation policy")
	input.Debug = true

	env, err := uc.Handle(ctx, input)
	gt.NoError(t, err)

	gt.V(t, env.Debug).NotNil()
	gt.Equal(t, env.Debug.Intent, model.IntentDefinition)
	gt.Equal(t, env.Debug.RetrievalStatus, model.StatusOK)
	gt.Equal(t, env.Debug.BestScore, 0.2)
	gt.True(t, env.Debug.PassedGate)
	gt.Equal(t, env.Debug.PassageCount, 2)
	gt.Equal(t, env.Debug.PrimarySource, "handbook.pdf")
}

func TestHandleDebugOmitted(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{status: model.StatusOK, passages: groundedPassages()}
	uc := query.New(repository.NewMemory(), idx, &mockGemini{answer: "Ten days per year."})

	env, err := uc.Handle(ctx, newInput("what is the vacation policy"))
	gt.NoError(t, err)
	gt.V(t, env.Debug).Nil()
}

func TestHandleDurableMemory(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	idx := &mockIndex{status: model.StatusOK, passages: groundedPassages()}
	uc := query.New(repo, idx, &mockGemini{answer: "Ten days per year."},
		query.WithMemory(query.NewDurableMemory(repo)),
	)

	_, err := uc.Handle(ctx, newInput("what is the vacation policy"))
	gt.NoError(t, err)

	// Memory derives from the committed direct answer record.
	_, err = uc.Handle(ctx, newInput("and carryover?"))
	gt.NoError(t, err)
	gt.S(t, idx.queries[1]).Contains("In the context of what is the vacation policy,")

	// The persisted reset refusal acts as the durable reset marker.
	_, err = uc.Handle(ctx, newInput("reset"))
	gt.NoError(t, err)

	_, err = uc.Handle(ctx, newInput("and carryover?"))
	gt.NoError(t, err)
	gt.Equal(t, idx.queries[2], "and carryover?")
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	idx := &mockIndex{status: model.StatusOK, passages: groundedPassages()}
	uc := query.New(repo, idx, &mockGemini{answer: "Ten days per year."})

	_, err := uc.Handle(ctx, query.Input{
		TenantID: "acme", ConversationID: "conv-1",
		Query: "what is the vacation policy",
	})
	gt.NoError(t, err)

	// Same conversation ID under another tenant shares nothing: the
	// follow-up stays unanchored and the audit log is empty.
	_, err = uc.Handle(ctx, query.Input{
		TenantID: "globex", ConversationID: "conv-1",
		Query: "and carryover?",
	})
	gt.NoError(t, err)
	gt.Equal(t, idx.queries[1], "and carryover?")

	records, err := repo.ListQueries(ctx, "globex", "conv-1")
	gt.NoError(t, err)
	gt.A(t, records).Length(1)
	gt.Equal(t, records[0].Query, "and carryover?")
}

func TestRefusalEnvelopeShape(t *testing.T) {
	ctx := context.Background()
	uc := query.New(repository.NewMemory(), &mockIndex{status: model.StatusNoIndex}, &mockGemini{})

	env, err := uc.Handle(ctx, newInput("what is the vacation policy"))
	gt.NoError(t, err)

	// Every outcome shares the canonical envelope shape: citations are
	// present and empty, never null, and the answer stays empty for
	// anything but a direct answer.
	gt.NotNil(t, env.Citations)
	gt.A(t, env.Citations).Length(0)
	gt.Equal(t, env.Answer, "")
	gt.Equal(t, env.Query, "what is the vacation policy")
	gt.V(t, string(env.RequestID)).NotEqual("")
}
