package query

import (
	"testing"

	"github.com/docent-dev/docent/pkg/model"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

func okRetrieval(passages ...*model.RetrievedPassage) *Retrieval {
	best := passages[0].Distance
	for _, p := range passages[1:] {
		if p.Distance < best {
			best = p.Distance
		}
	}
	return &Retrieval{
		Passages:  passages,
		Status:    model.StatusOK,
		BestScore: best,
		Passed:    best <= maxDistance,
	}
}

func TestDecide(t *testing.T) {
	passage := &model.RetrievedPassage{
		Content: "Employees accrue ten vacation days per year. Carryover is capped.",
		Source:  "handbook.pdf", Page: 3, Distance: 0.2,
	}

	t.Run("terminal intents refuse regardless of retrieval", func(t *testing.T) {
		ret := okRetrieval(passage)

		d := decide(model.IntentReset, ret)
		gt.Equal(t, d.Mode, model.ModeHardRefusal)
		gt.Equal(t, d.Reason, model.ReasonReset)

		d = decide(model.IntentVague, ret)
		gt.Equal(t, d.Reason, model.ReasonVagueQuery)

		d = decide(model.IntentExternalComparison, ret)
		gt.Equal(t, d.Reason, model.ReasonExternalEntity)
	})

	t.Run("missing index refuses with its own reason", func(t *testing.T) {
		d := decide(model.IntentGeneric, &Retrieval{Status: model.StatusNoIndex})
		gt.Equal(t, d.Mode, model.ModeHardRefusal)
		gt.Equal(t, d.Reason, model.ReasonNoDocuments)
	})

	t.Run("empty retrieval refuses distinctly", func(t *testing.T) {
		d := decide(model.IntentGeneric, &Retrieval{Status: model.StatusEmpty})
		gt.Equal(t, d.Mode, model.ModeHardRefusal)
		gt.Equal(t, d.Reason, model.ReasonNoChunks)
	})

	t.Run("explanatory always falls back even when gated in", func(t *testing.T) {
		d := decide(model.IntentExplanatory, okRetrieval(passage))
		gt.Equal(t, d.Mode, model.ModeGuidedFallback)
		gt.A(t, d.Highlights).Longer(0)
	})

	t.Run("failed gate falls back", func(t *testing.T) {
		far := &model.RetrievedPassage{
			Content: "The handbook is the reference for all internal policy questions. More.",
			Source:  "handbook.pdf", Page: 1, Distance: 0.9,
		}
		d := decide(model.IntentGeneric, okRetrieval(far))
		gt.Equal(t, d.Mode, model.ModeGuidedFallback)
		gt.A(t, d.Highlights).Longer(0)
	})

	t.Run("passed gate answers from the primary source only", func(t *testing.T) {
		other := &model.RetrievedPassage{
			Content: "Benefits plan details. More.",
			Source:  "benefits.pdf", Page: 7, Distance: 0.35,
		}
		samesrc := &model.RetrievedPassage{
			Content: "Carryover policy details. More.",
			Source:  "handbook.pdf", Page: 4, Distance: 0.5,
		}

		d := decide(model.IntentGeneric, okRetrieval(passage, other, samesrc))
		gt.Equal(t, d.Mode, model.ModeDirectAnswer)
		gt.Equal(t, d.PrimarySource, "handbook.pdf")
		gt.A(t, d.PrimaryPassages).Length(2)
		for _, p := range d.PrimaryPassages {
			gt.Equal(t, p.Source, "handbook.pdf")
		}
	})

	t.Run("definition intent still answers directly", func(t *testing.T) {
		d := decide(model.IntentDefinition, okRetrieval(passage))
		gt.Equal(t, d.Mode, model.ModeDirectAnswer)
	})
}

func TestBuildGenerationInput(t *testing.T) {
	passages := []*model.RetrievedPassage{
		{Content: "First chunk content.", Source: "handbook.pdf", Page: 3},
		{Content: "Second chunk content.", Source: "handbook.pdf", Page: 4},
	}

	contents, config := buildGenerationInput("what is the vacation policy", passages)
	gt.A(t, contents).Length(1)
	gt.V(t, config.SystemInstruction).NotNil()
	gt.V(t, config.Temperature).NotNil()
	gt.Equal(t, *config.Temperature, float32(0))

	text := contents[0].Parts[0].Text
	gt.S(t, text).Contains("what is the vacation policy")
	gt.S(t, text).Contains("[Source: handbook.pdf p.3]")
	gt.S(t, text).Contains("[Source: handbook.pdf p.4]")
	gt.S(t, text).Contains("First chunk content.")
}

func TestAnswerFromResponse(t *testing.T) {
	t.Run("joins text parts and trims", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{Text: "Ten days "},
					{Text: "per year. "},
				}},
			}},
		}
		answer, err := answerFromResponse(resp)
		gt.NoError(t, err)
		gt.Equal(t, answer, "Ten days per year.")
	})

	t.Run("no candidates is an error", func(t *testing.T) {
		_, err := answerFromResponse(&genai.GenerateContentResponse{})
		gt.Error(t, err)
	})

	t.Run("empty text is an error", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: "  "}}},
			}},
		}
		_, err := answerFromResponse(resp)
		gt.Error(t, err)
	})
}
