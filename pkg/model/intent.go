package model

// Intent is the classified purpose of a query. Classification is a
// fixed-precedence dispatch over pure predicates; exactly one intent
// is assigned per query.
type Intent string

const (
	// IntentReset asks to discard conversation context.
	IntentReset Intent = "reset"

	// IntentVague is a contentless follow-up ("tell me more").
	IntentVague Intent = "vague"

	// IntentExternalComparison compares corpus content against
	// entities that do not appear in the retrieved sources. Requires
	// retrieval results, so it is evaluated post-retrieval.
	IntentExternalComparison Intent = "external_comparison"

	// IntentExplanatory asks how or why; answered with highlights
	// rather than generated text.
	IntentExplanatory Intent = "explanatory"

	// IntentDefinition asks what something is or means.
	IntentDefinition Intent = "definition"

	// IntentGeneric is everything else.
	IntentGeneric Intent = "generic"
)
