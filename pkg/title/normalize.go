// Package title reads article titles from input documents and normalizes
// them for use in search queries.
package title

import "strings"

const replyPrefix = `Re: "`

// quoteReplacer maps typographic double quotes to the ASCII double quote.
var quoteReplacer = strings.NewReplacer(
	"\u201c", `"`,
	"\u201d", `"`,
	"\u201e", `"`,
	"\u201f", `"`,
	"\u301d", `"`,
	"\u301e", `"`,
	"\uff02", `"`,
)

// Normalize prepares a raw title for querying. Typographic double quotes are
// replaced with straight quotes, then a `Re: "..."` wrapper is reduced to
// `Re: ...` until no wrapper remains. Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	s := quoteReplacer.Replace(raw)
	for isQuotedReply(s) {
		s = "Re: " + strings.TrimSpace(s[len(replyPrefix):len(s)-1])
	}
	return s
}

// isQuotedReply reports whether the whole remainder after "Re: " is quoted.
func isQuotedReply(s string) bool {
	return len(s) > len(replyPrefix) &&
		strings.HasPrefix(s, replyPrefix) &&
		strings.HasSuffix(s, `"`)
}
