package loader

import (
	"regexp"
	"strings"
)

var (
	hyphenBreak  = regexp.MustCompile(`(\p{L})-\n(\p{Ll})`)
	spaceRuns    = regexp.MustCompile(`[ \t\f\v]+`)
	newlineRuns  = regexp.MustCompile(`\n{3,}`)
	trailingSpan = regexp.MustCompile(` *\n *`)
)

// CleanText normalises extracted document text: line endings are unified,
// words hyphenated across a line break are joined, runs of spaces collapse
// and at most one blank line is kept between paragraphs.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\u00ad", "")
	text = hyphenBreak.ReplaceAllString(text, "$1$2")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = trailingSpan.ReplaceAllString(text, "\n")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
