package query_test

import (
	"testing"

	"github.com/docent-dev/docent/pkg/model"
	"github.com/docent-dev/docent/pkg/usecase/query"
	"github.com/m-mizutani/gt"
)

func TestClassifyPreRetrieval(t *testing.T) {
	testCases := []struct {
		name     string
		query    string
		intent   model.Intent
		terminal bool
	}{
		{"reset exact", "new topic", model.IntentReset, true},
		{"reset upper", "RESET", model.IntentReset, true},
		{"reset padded", "  Start Over  ", model.IntentReset, true},
		{"reset inner whitespace", "clear   context", model.IntentReset, true},
		{"vague exact", "tell me more", model.IntentVague, true},
		{"vague mixed case", "Go On", model.IntentVague, true},
		{"vague continue", "continue", model.IntentVague, true},
		{"reset as substring is not reset", "let's start over with budgets", model.IntentGeneric, false},
		{"ordinary question", "what is the refund policy?", model.IntentGeneric, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			intent, terminal := query.ClassifyPreRetrieval(tc.query)
			gt.Equal(t, terminal, tc.terminal)
			if tc.terminal {
				gt.Equal(t, intent, tc.intent)
			}
		})
	}
}

func TestClassifyPrecedence(t *testing.T) {
	// A reset phrase wins over everything, even when the sources would
	// make other predicates match.
	gt.Equal(t, query.Classify("new topic", []string{"handbook.pdf"}), model.IntentReset)
	gt.Equal(t, query.Classify("tell me more", nil), model.IntentVague)

	// External comparison beats explanatory: "how" prefix plus an
	// external comparison both match, comparison wins.
	intent := query.Classify("how is Slack better than Teams", []string{"handbook.pdf"})
	gt.Equal(t, intent, model.IntentExternalComparison)
}

func TestClassifyExplanatory(t *testing.T) {
	sources := []string{"handbook.pdf"}

	gt.Equal(t, query.Classify("how does onboarding work?", sources), model.IntentExplanatory)
	gt.Equal(t, query.Classify("why was the policy changed", sources), model.IntentExplanatory)
	gt.Equal(t, query.Classify("in what way does this apply", sources), model.IntentExplanatory)
	gt.Equal(t, query.Classify("In which way do teams coordinate", sources), model.IntentExplanatory)

	// Prefix must sit on a word boundary.
	gt.Equal(t, query.Classify("however you look at it, the policy holds.", sources), model.IntentGeneric)
	gt.Equal(t, query.Classify("whys and wherefores of the policy", sources), model.IntentGeneric)
}

func TestClassifyDefinition(t *testing.T) {
	sources := []string{"handbook.pdf"}

	gt.Equal(t, query.Classify("what is the vacation policy", sources), model.IntentDefinition)
	gt.Equal(t, query.Classify("What are the core values?", sources), model.IntentDefinition)
	gt.Equal(t, query.Classify("what exactly refers to onboarding here", sources), model.IntentDefinition)

	// "what" must open the query.
	gt.Equal(t, query.Classify("tell me what the policy is", sources), model.IntentGeneric)
	// No copular verb, no definition.
	gt.Equal(t, query.Classify("what happened in the meeting", sources), model.IntentGeneric)
}

func TestClassifyExternalComparison(t *testing.T) {
	sources := []string{"Acme-Handbook.pdf", "benefits.pdf"}

	// Two capitalized tokens absent from every source filename plus a
	// comparison keyword.
	gt.Equal(t, query.Classify("is Slack better than Zoom", sources),
		model.IntentExternalComparison)
	gt.Equal(t, query.Classify("compare Oracle and Postgres", sources),
		model.IntentExternalComparison)

	// Entities covered by source filenames do not count as external.
	gt.Equal(t, query.Classify("is Acme better than before", sources), model.IntentGeneric)

	// Keyword without two external entities is not a comparison.
	gt.Equal(t, query.Classify("is this better now", sources), model.IntentGeneric)
	gt.Equal(t, query.Classify("is Slack better", sources), model.IntentGeneric)

	// Two external entities without any comparison keyword.
	gt.Equal(t, query.Classify("do Slack and Zoom integrate", sources), model.IntentGeneric)

	// Empty sources make every capitalized token external.
	gt.Equal(t, query.Classify("Slack versus Zoom", nil), model.IntentExternalComparison)

	// Single-letter capitals are not entities.
	gt.Equal(t, query.Classify("is A better than B", sources), model.IntentGeneric)
}
