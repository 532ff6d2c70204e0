package query

import (
	"fmt"
	"strings"

	"github.com/docent-dev/docent/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Decision is the resolved mode of one request before any generation
// call. The transitions are evaluated in fixed order, first match
// wins; generation is only ever invoked for direct answers, after
// grounding is confirmed.
type Decision struct {
	Mode   model.Mode
	Reason model.RefusalReason

	// Highlights is populated for guided fallback.
	Highlights []model.Highlight

	// PrimarySource and PrimaryPassages are populated for direct
	// answer: the single lowest-distance passage names the source,
	// and only that source's passages feed generation. Other sources
	// are deliberately excluded to avoid cross-document conflation.
	PrimarySource   string
	PrimaryPassages []*model.RetrievedPassage
}

// decide runs the mode state machine over the classified intent and
// the gated retrieval.
func decide(intent model.Intent, ret *Retrieval) Decision {
	switch intent {
	case model.IntentReset:
		return Decision{Mode: model.ModeHardRefusal, Reason: model.ReasonReset}
	case model.IntentVague:
		return Decision{Mode: model.ModeHardRefusal, Reason: model.ReasonVagueQuery}
	case model.IntentExternalComparison:
		return Decision{Mode: model.ModeHardRefusal, Reason: model.ReasonExternalEntity}
	}

	switch ret.Status {
	case model.StatusNoIndex:
		return Decision{Mode: model.ModeHardRefusal, Reason: model.ReasonNoDocuments}
	case model.StatusEmpty:
		return Decision{Mode: model.ModeHardRefusal, Reason: model.ReasonNoChunks}
	}

	if intent == model.IntentExplanatory || !ret.Passed {
		return Decision{
			Mode:       model.ModeGuidedFallback,
			Highlights: buildHighlights(ret.Passages),
		}
	}

	best := ret.Passages[0]
	for _, p := range ret.Passages[1:] {
		if p.Distance < best.Distance {
			best = p
		}
	}

	var primary []*model.RetrievedPassage
	for _, p := range ret.Passages {
		if p.Source == best.Source {
			primary = append(primary, p)
		}
	}

	return Decision{
		Mode:            model.ModeDirectAnswer,
		PrimarySource:   best.Source,
		PrimaryPassages: primary,
	}
}

// systemPrompt constrains generation to the provided passages. It is
// only used when the answer is known to be present in the primary
// source, so it forbids refusing or hedging.
const systemPrompt = `You are an internal document assistant.

Rules (non-negotiable):
- Answer ONLY using the provided context.
- Do NOT use external knowledge or assumptions.
- Respond with a concise paragraph (1-3 sentences).
- Cite sources ONLY at the end using this exact format: (source, page).

For definition questions (e.g. "What are ..."):
- ONLY list the defined items.
- Do NOT describe mechanisms, processes, implications, or comparisons.
- Do NOT add interpretation, commentary, or framing language.

Citation rules (strict):
- Do NOT include author names, years, or academic-style references.
- Even if a document contains citations, NEVER surface them.
- Use ONLY document filename and page number.

Important:
- You are ONLY called when the answer is explicitly present in the documents.
- NEVER refuse, hedge, or say information is missing.
- NEVER explain beyond what is directly stated.`

// buildGenerationInput assembles the contents for the generation call.
// Passages keep their full content here; the 600-char excerpt is an
// extraction concern only.
func buildGenerationInput(rewritten string, passages []*model.RetrievedPassage) ([]*genai.Content, *genai.GenerateContentConfig) {
	var sb strings.Builder
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[Source: %s p.%d]\n%s", p.Source, p.Page, p.Content)
	}

	user := fmt.Sprintf("Question:\n%s\n\nContext:\n%s", rewritten, sb.String())

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, ""),
		Temperature:       genai.Ptr[float32](0),
	}

	return []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)}, config
}

// answerFromResponse extracts the generated text. An empty result is a
// generation failure, not a refusal.
func answerFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", goerr.New("generation returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}

	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return "", goerr.New("generation returned empty text")
	}
	return answer, nil
}
