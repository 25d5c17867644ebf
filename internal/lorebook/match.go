package lorebook

import (
	"regexp"
	"strings"
)

// MatchOptions controls how a key is matched against text.
type MatchOptions struct {
	CaseSensitive bool
	WholeWord     bool
}

// MatchKeyword reports whether keyword occurs in text. The default is a
// case-insensitive substring check; WholeWord switches to a word-boundary
// regex with the keyword's metacharacters escaped.
func MatchKeyword(text, keyword string, opts MatchOptions) bool {
	if keyword == "" {
		return false
	}
	if opts.WholeWord {
		pattern := `\b` + regexp.QuoteMeta(keyword) + `\b`
		if !opts.CaseSensitive {
			pattern = `(?i)` + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}
	if opts.CaseSensitive {
		return strings.Contains(text, keyword)
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}
