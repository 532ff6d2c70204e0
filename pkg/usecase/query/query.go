package query

import (
	"context"
	"encoding/json"
	"time"

	"github.com/docent-dev/docent/pkg/adapter"
	"github.com/docent-dev/docent/pkg/index"
	"github.com/docent-dev/docent/pkg/model"
	"github.com/docent-dev/docent/pkg/repository"
	"github.com/docent-dev/docent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const (
	defaultRetrievalTimeout  = 30 * time.Second
	defaultGenerationTimeout = 60 * time.Second
)

// fallbackReason is the human-facing note attached to guided fallback
// responses.
const fallbackReason = "No direct answer was found in the documents for this question."

// UseCase resolves one query end to end: classification, rewriting,
// gated retrieval, mode decision, optional generation, extraction and
// audit persistence.
type UseCase struct {
	repo    repository.Repository
	index   index.Index
	gemini  adapter.Gemini
	memory  Memory
	archive adapter.Storage

	topK              int
	retrievalTimeout  time.Duration
	generationTimeout time.Duration

	now   func() time.Time
	newID func() model.RequestID
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithMemory replaces the conversation memory strategy. The default is
// the in-process ephemeral store; NewDurableMemory(repo) derives it
// from committed audit rows instead.
func WithMemory(m Memory) Option {
	return func(u *UseCase) {
		u.memory = m
	}
}

// WithSnapshotArchive offloads full response snapshots to object
// storage in addition to the audit record.
func WithSnapshotArchive(s adapter.Storage) Option {
	return func(u *UseCase) {
		u.archive = s
	}
}

// WithTopK sets how many passages are requested per query
func WithTopK(k int) Option {
	return func(u *UseCase) {
		u.topK = k
	}
}

// WithRetrievalTimeout bounds the index search call
func WithRetrievalTimeout(d time.Duration) Option {
	return func(u *UseCase) {
		u.retrievalTimeout = d
	}
}

// WithGenerationTimeout bounds the generation call
func WithGenerationTimeout(d time.Duration) Option {
	return func(u *UseCase) {
		u.generationTimeout = d
	}
}

// WithClock overrides time acquisition for tests
func WithClock(now func() time.Time) Option {
	return func(u *UseCase) {
		u.now = now
	}
}

// WithIDGenerator overrides request ID generation for tests
func WithIDGenerator(newID func() model.RequestID) Option {
	return func(u *UseCase) {
		u.newID = newID
	}
}

// New creates a query UseCase instance
func New(repo repository.Repository, idx index.Index, gemini adapter.Gemini, opts ...Option) *UseCase {
	u := &UseCase{
		repo:              repo,
		index:             idx,
		gemini:            gemini,
		memory:            NewEphemeralMemory(),
		topK:              defaultTopK,
		retrievalTimeout:  defaultRetrievalTimeout,
		generationTimeout: defaultGenerationTimeout,
		now:               time.Now,
		newID:             model.NewRequestID,
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// Input is one query request with an authentication-resolved tenant.
type Input struct {
	TenantID       model.TenantID
	ConversationID model.ConversationID
	Query          string
	Debug          bool
}

// Validate checks the input is complete
func (x Input) Validate() error {
	if x.TenantID == "" {
		return goerr.New("tenant_id is required")
	}
	if x.ConversationID == "" {
		return goerr.New("conversation_id is required")
	}
	if x.Query == "" {
		return goerr.New("query is required")
	}
	return nil
}

// Handle resolves one request. Modeled refusals return a normal
// envelope; only upstream failures (index, generation) return an
// error. Persistence failures never surface.
func (u *UseCase) Handle(ctx context.Context, input Input) (*model.ResponseEnvelope, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	original := input.Query

	if intent, terminal := ClassifyPreRetrieval(original); terminal {
		if intent == model.IntentReset {
			if err := u.memory.Clear(ctx, input.TenantID, input.ConversationID); err != nil {
				logging.From(ctx).Warn("failed to clear conversation memory", "error", err)
			}
			return u.finish(ctx, input, u.refusal(input, model.ReasonReset, intent))
		}
		return u.finish(ctx, input, u.refusal(input, model.ReasonVagueQuery, intent))
	}

	prior, err := u.memory.Get(ctx, input.TenantID, input.ConversationID)
	if err != nil {
		// Memory only anchors short follow-ups; a failed read must not
		// kill the request.
		logging.From(ctx).Warn("failed to read conversation memory", "error", err)
		prior = ""
	}

	rewritten := Rewrite(original, prior)

	retCtx, cancel := context.WithTimeout(ctx, u.retrievalTimeout)
	ret, err := retrieve(retCtx, u.index, rewritten, u.topK, input.TenantID)
	cancel()
	if err != nil {
		return nil, err
	}

	intent := Classify(original, ret.Sources())
	decision := decide(intent, ret)

	debug := &model.DebugInfo{
		RewrittenQuery:  rewritten,
		Intent:          intent,
		RetrievalStatus: ret.Status,
		BestScore:       ret.BestScore,
		PassedGate:      ret.Passed,
		PassageCount:    len(ret.Passages),
		PrimarySource:   decision.PrimarySource,
	}

	var env *model.ResponseEnvelope
	switch decision.Mode {
	case model.ModeHardRefusal:
		env = u.refusal(input, decision.Reason, intent)

	case model.ModeGuidedFallback:
		// Grounding is not confirmed here, so generation is never
		// invoked on this path.
		env = u.envelope(input, model.ModeGuidedFallback, "",
			citationsFromHighlights(nil, decision.Highlights),
			model.Artifacts{
				Reason:            fallbackReason,
				RelatedHighlights: decision.Highlights,
			})

	case model.ModeDirectAnswer:
		answer, err := u.generate(ctx, rewritten, decision.PrimaryPassages)
		if err != nil {
			return nil, err
		}

		if err := u.memory.Set(ctx, input.TenantID, input.ConversationID, original); err != nil {
			logging.From(ctx).Warn("failed to update conversation memory", "error", err)
		}

		supplemental := supplementalEvidence(answer, ret.Passages, decision.PrimarySource)
		citations := citationsFromHighlights(citationsFromPassages(decision.PrimaryPassages), supplemental)

		env = u.envelope(input, model.ModeDirectAnswer, answer, citations,
			model.Artifacts{AdditionalResources: supplemental})
	}

	if input.Debug {
		env.Debug = debug
	}

	return u.finish(ctx, input, env)
}

// generate calls the generation collaborator with a caller-imposed
// timeout. Failures, including timeouts, are fatal and never retried
// or degraded into refusals.
func (u *UseCase) generate(ctx context.Context, rewritten string, passages []*model.RetrievedPassage) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, u.generationTimeout)
	defer cancel()

	contents, config := buildGenerationInput(rewritten, passages)
	resp, err := u.gemini.GenerateContent(genCtx, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "generation failed")
	}

	return answerFromResponse(resp)
}

func (u *UseCase) refusal(input Input, reason model.RefusalReason, intent model.Intent) *model.ResponseEnvelope {
	env := u.envelope(input, model.ModeHardRefusal, "", []model.Citation{}, model.Artifacts{
		Reason:  string(reason),
		Message: reason.Message(),
	})
	if input.Debug {
		env.Debug = &model.DebugInfo{Intent: intent, RewrittenQuery: input.Query}
	}
	return env
}

func (u *UseCase) envelope(input Input, mode model.Mode, answer string, citations []model.Citation, artifacts model.Artifacts) *model.ResponseEnvelope {
	if citations == nil {
		citations = []model.Citation{}
	}
	return &model.ResponseEnvelope{
		RequestID:      u.newID(),
		CreatedAt:      u.now().UTC(),
		TenantID:       input.TenantID,
		ConversationID: input.ConversationID,
		Query:          input.Query,
		Mode:           mode,
		Answer:         answer,
		Citations:      citations,
		Artifacts:      artifacts,
	}
}

// finish persists the audit record and returns the envelope. The
// audit log is best effort: a persistence failure is logged and
// discarded, never surfaced, and never retried.
func (u *UseCase) finish(ctx context.Context, input Input, env *model.ResponseEnvelope) (*model.ResponseEnvelope, error) {
	logger := logging.From(ctx)

	snapshot, err := json.Marshal(env)
	if err != nil {
		logger.Warn("failed to serialize response snapshot", "error", err)
		return env, nil
	}

	if err := u.repo.TouchConversation(ctx, input.TenantID, input.ConversationID, env.CreatedAt); err != nil {
		logger.Warn("failed to upsert conversation", "error", err,
			"tenant", input.TenantID, "conversation", input.ConversationID)
		return env, nil
	}

	if err := u.repo.PutQuery(ctx, model.NewRecord(env, string(snapshot))); err != nil {
		logger.Warn("failed to persist query record", "error", err,
			"tenant", input.TenantID, "request_id", env.RequestID)
		return env, nil
	}

	if u.archive != nil {
		u.archiveSnapshot(ctx, env, snapshot)
	}

	return env, nil
}

func (u *UseCase) archiveSnapshot(ctx context.Context, env *model.ResponseEnvelope, snapshot []byte) {
	logger := logging.From(ctx)

	key := adapter.SnapshotKey(string(env.TenantID), string(env.RequestID))
	w, err := u.archive.Put(ctx, key)
	if err != nil {
		logger.Warn("failed to open snapshot archive writer", "error", err, "key", key)
		return
	}

	if _, err := w.Write(snapshot); err != nil {
		logger.Warn("failed to write snapshot archive", "error", err, "key", key)
		_ = w.Close()
		return
	}
	if err := w.Close(); err != nil {
		logger.Warn("failed to finalize snapshot archive", "error", err, "key", key)
	}
}
