package prompt

import (
	"regexp"
	"strings"
)

var (
	blankRuns  = regexp.MustCompile(`\n{3,}`)
	fenceOpen  = regexp.MustCompile("^```[A-Za-z0-9_+-]*\n")
	fenceClose = regexp.MustCompile("\n?```$")
)

// PostProcess cleans model output for display: normalized line endings, no
// trailing spaces, at most one blank line in a row, no surrounding code
// fence, and newlines rendered as <br>.
func PostProcess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")

	text = strings.TrimSpace(text)
	if fenceOpen.MatchString(text) && fenceClose.MatchString(text) {
		text = fenceOpen.ReplaceAllString(text, "")
		text = fenceClose.ReplaceAllString(text, "")
		text = strings.TrimSpace(text)
	}

	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.ReplaceAll(text, "\n", "<br>")
}
