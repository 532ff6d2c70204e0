package query

import (
	"regexp"
	"strings"

	"github.com/docent-dev/docent/pkg/model"
)

// Classification is a fixed-precedence dispatch over pure predicates:
// Reset > Vague > ExternalComparison > Explanatory > Definition >
// Generic. The first matching predicate wins.
//
// ExternalComparison needs the filenames of the passages retrieved for
// the query, so the full classification can only run post-retrieval.
// ClassifyPreRetrieval covers the two intents that terminate the
// pipeline before any retrieval happens.

var resetQueries = map[string]struct{}{
	"new topic":     {},
	"reset":         {},
	"clear context": {},
	"start over":    {},
}

var vagueQueries = map[string]struct{}{
	"tell me more": {},
	"explain more": {},
	"more details": {},
	"continue":     {},
	"go on":        {},
}

var comparisonKeywords = map[string]struct{}{
	"better":  {},
	"worse":   {},
	"than":    {},
	"vs":      {},
	"versus":  {},
	"compare": {},
}

var explanatoryPrefixes = []string{"how", "why", "in what way", "in which way"}

var (
	definitionRe = regexp.MustCompile(`^what\b.*\b(are|is|means|refers to)\b`)
	entityRe     = regexp.MustCompile(`\b[A-Z][a-zA-Z]+\b`)
	wordRe       = regexp.MustCompile(`\b\w+\b`)
)

// normalize trims, lowercases and collapses inner whitespace.
func normalize(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// ClassifyPreRetrieval returns the intent when the query terminates
// the pipeline before retrieval (reset or vague), and reports whether
// such an intent matched.
func ClassifyPreRetrieval(query string) (model.Intent, bool) {
	if isReset(query) {
		return model.IntentReset, true
	}
	if isVague(query) {
		return model.IntentVague, true
	}
	return model.IntentGeneric, false
}

// Classify assigns exactly one intent to the query. sources are the
// filenames of passages already retrieved for this query; an empty
// slice means nothing in the corpus matched, so every capitalized
// token counts as external.
func Classify(query string, sources []string) model.Intent {
	switch {
	case isReset(query):
		return model.IntentReset
	case isVague(query):
		return model.IntentVague
	case isExternalComparison(query, sources):
		return model.IntentExternalComparison
	case isExplanatory(query):
		return model.IntentExplanatory
	case isDefinition(query):
		return model.IntentDefinition
	default:
		return model.IntentGeneric
	}
}

func isReset(query string) bool {
	_, ok := resetQueries[normalize(query)]
	return ok
}

func isVague(query string) bool {
	_, ok := vagueQueries[normalize(query)]
	return ok
}

func isExplanatory(query string) bool {
	q := normalize(query)
	for _, prefix := range explanatoryPrefixes {
		if hasPrefixWord(q, prefix) {
			return true
		}
	}
	return false
}

func isDefinition(query string) bool {
	return definitionRe.MatchString(normalize(query))
}

// isExternalComparison reports whether the query compares something
// against entities outside the retrieved sources: it must contain a
// comparison keyword and at least two capitalized multi-letter tokens
// that appear in none of the source filenames.
func isExternalComparison(query string, sources []string) bool {
	hasKeyword := false
	for _, w := range wordRe.FindAllString(strings.ToLower(query), -1) {
		if _, ok := comparisonKeywords[w]; ok {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return false
	}

	lowered := make([]string, 0, len(sources))
	for _, s := range sources {
		lowered = append(lowered, strings.ToLower(s))
	}

	external := 0
	for _, entity := range entityRe.FindAllString(strings.TrimSpace(query), -1) {
		e := strings.ToLower(entity)
		known := false
		for _, src := range lowered {
			if strings.Contains(src, e) {
				known = true
				break
			}
		}
		if !known {
			external++
		}
	}

	return external >= 2
}

// hasPrefixWord reports whether q starts with prefix on a word
// boundary.
func hasPrefixWord(q, prefix string) bool {
	if !strings.HasPrefix(q, prefix) {
		return false
	}
	if len(q) == len(prefix) {
		return true
	}
	next := q[len(prefix)]
	return !isWordByte(next)
}

func isWordByte(c byte) bool {
	return c == '_' ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9')
}
