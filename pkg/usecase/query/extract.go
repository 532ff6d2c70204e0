package query

import (
	"regexp"
	"sort"
	"strings"

	"github.com/docent-dev/docent/pkg/model"
)

const (
	// minBulletLen is the minimum sentence length for a fallback
	// highlight.
	minBulletLen = 40
	// maxBullets caps the highlights of a guided fallback.
	maxBullets = 4

	// minSupplementalLen is the minimum sentence length for
	// supplemental evidence on a direct answer.
	minSupplementalLen = 25
	// maxSupplemental caps supplemental evidence items.
	maxSupplemental = 5
	// supplementalOverlap is the lexical overlap a sentence must reach
	// against the answer to qualify as supplemental evidence. The
	// threshold is deliberately strict: it surfaces passages that
	// restate the answer, never material that could extend or
	// contradict it.
	supplementalOverlap = 0.6
)

// verbRe accepts a sentence as a statement worth highlighting.
var verbRe = regexp.MustCompile(`(?i)\b(is|are|was|were|be|being|been|shows|show|indicates|indicate|` +
	`communicates|communicate|uses|use|aims|aim|seeks|seek|` +
	`provides|provide|reveals|reveal|demonstrates|demonstrate)\b`)

// stopWords are excluded from lexical overlap scoring.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "on": {}, "for": {}, "with": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "be": {}, "been": {}, "being": {}, "as": {},
	"at": {}, "by": {}, "it": {}, "its": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "from": {}, "not": {}, "but": {},
	"they": {}, "their": {}, "which": {}, "what": {}, "than": {},
	"can": {}, "will": {}, "would": {}, "should": {}, "do": {},
	"does": {}, "did": {}, "have": {}, "has": {}, "had": {},
}

// firstSentence returns the first complete sentence of text: split on
// sentence-terminal punctuation followed by whitespace, return the
// first segment that itself ends in '.', '!' or '?'. Returns "" when
// no segment qualifies.
func firstSentence(text string) string {
	flat := strings.Join(strings.Fields(strings.ReplaceAll(text, "\n", " ")), " ")
	for _, segment := range splitSentences(flat) {
		if strings.HasSuffix(segment, ".") || strings.HasSuffix(segment, "!") || strings.HasSuffix(segment, "?") {
			return strings.TrimSpace(segment)
		}
	}
	return ""
}

// splitSentences cuts text after terminal punctuation that is followed
// by whitespace.
func splitSentences(text string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && isSpaceByte(text[i+1]) {
			segments = append(segments, text[start:i+1])
			i++
			for i < len(text) && isSpaceByte(text[i]) {
				i++
			}
			start = i
			i--
		}
	}
	if start < len(text) {
		segments = append(segments, text[start:])
	}
	return segments
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// buildHighlights extracts fallback bullets for guided fallback mode:
// iterate passages deduplicated by (source, page) in ascending
// distance order, accept first sentences that are long enough and
// contain a statement verb, cap at maxBullets. When nothing qualifies
// the single best passage's first sentence is taken unconditionally,
// so at least one highlight exists whenever at least one passage does.
func buildHighlights(passages []*model.RetrievedPassage) []model.Highlight {
	ranked := make([]*model.RetrievedPassage, len(passages))
	copy(ranked, passages)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance < ranked[j].Distance
	})

	seen := map[model.Citation]struct{}{}
	var bullets []model.Highlight

	for _, p := range ranked {
		key := model.Citation{Source: p.Source, Page: p.Page}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		sent := firstSentence(p.Excerpt())
		if sent == "" || len(sent) < minBulletLen || !verbRe.MatchString(sent) {
			continue
		}

		bullets = append(bullets, model.Highlight{
			Text:   sent,
			Source: p.Source,
			Page:   p.Page,
		})
		if len(bullets) >= maxBullets {
			break
		}
	}

	if len(bullets) == 0 {
		for _, p := range ranked {
			if sent := firstSentence(p.Excerpt()); sent != "" {
				bullets = append(bullets, model.Highlight{
					Text:   sent,
					Source: p.Source,
					Page:   p.Page,
				})
				break
			}
		}
	}

	return bullets
}

// supplementalEvidence picks sentences from non-primary sources that
// restate the answer.
func supplementalEvidence(answer string, passages []*model.RetrievedPassage, primarySource string) []model.Highlight {
	var evidence []model.Highlight
	for _, p := range passages {
		if p.Source == primarySource {
			continue
		}

		sent := firstSentence(p.Excerpt())
		if sent == "" || len(sent) < minSupplementalLen {
			continue
		}
		if lexicalOverlap(answer, sent) < supplementalOverlap {
			continue
		}

		evidence = append(evidence, model.Highlight{
			Text:   sent,
			Source: p.Source,
			Page:   p.Page,
		})
		if len(evidence) >= maxSupplemental {
			break
		}
	}
	return evidence
}

// lexicalOverlap scores how much of the answer's vocabulary the
// sentence shares: |intersection of lowercase word tokens minus stop
// words| / |distinct non-stop-word answer tokens|.
func lexicalOverlap(answer, sentence string) float64 {
	answerTokens := contentTokens(answer)
	if len(answerTokens) == 0 {
		return 0
	}

	sentenceTokens := contentTokens(sentence)
	shared := 0
	for token := range answerTokens {
		if _, ok := sentenceTokens[token]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(answerTokens))
}

func contentTokens(text string) map[string]struct{} {
	tokens := map[string]struct{}{}
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if _, ok := stopWords[w]; ok {
			continue
		}
		tokens[w] = struct{}{}
	}
	return tokens
}

// citationsFromPassages deduplicates (source, page) pairs in first-seen
// order.
func citationsFromPassages(passages []*model.RetrievedPassage) []model.Citation {
	seen := map[model.Citation]struct{}{}
	citations := make([]model.Citation, 0, len(passages))
	for _, p := range passages {
		key := model.Citation{Source: p.Source, Page: p.Page}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		citations = append(citations, key)
	}
	return citations
}

// citationsFromHighlights deduplicates highlight (source, page) pairs
// in first-seen order, appending to any existing citations.
func citationsFromHighlights(existing []model.Citation, highlights []model.Highlight) []model.Citation {
	seen := map[model.Citation]struct{}{}
	citations := make([]model.Citation, 0, len(existing)+len(highlights))
	for _, c := range existing {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		citations = append(citations, c)
	}
	for _, h := range highlights {
		key := model.Citation{Source: h.Source, Page: h.Page}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		citations = append(citations, key)
	}
	return citations
}
