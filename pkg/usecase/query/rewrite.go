package query

import (
	"fmt"
	"strings"
)

// maxRewriteTokens is the length up to which a query is considered a
// follow-up worth anchoring to the prior successful query.
const maxRewriteTokens = 6

// Rewrite combines a short follow-up with the conversation's last
// successful query. The rewritten form feeds retrieval and generation
// only; callers always see and persist the original text.
func Rewrite(original, prior string) string {
	if prior == "" {
		return original
	}
	if len(strings.Fields(original)) > maxRewriteTokens {
		return original
	}
	return fmt.Sprintf("In the context of %s, %s", prior, original)
}
