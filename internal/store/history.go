package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ragdesk/kb-chatbot/internal/model"
)

// DefaultHistoryTurns is how many prior turns a chat prompt carries.
const DefaultHistoryTurns = 10

var (
	boldMarkers   = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	italicStar    = regexp.MustCompile(`\*([^*\n]+)\*`)
	italicUnder   = regexp.MustCompile(`(^|[\s(])_([^_\n]+)_([\s).,!?:;]|$)`)
	strikeMarkers = regexp.MustCompile(`~~(.+?)~~`)
	spaceRuns     = regexp.MustCompile(`[ \t]+`)
	// htmlTag matches only complete tags; a bare "<" in text is left alone.
	htmlTag     = regexp.MustCompile(`<(/?)([A-Za-z][A-Za-z0-9]*)\b[^<>]*>`)
	htmlComment = regexp.MustCompile(`(?s)<!--.*?-->`)
)

// BuildContext formats up to maxTurns of the conversation's most recent
// user/assistant exchanges. It only reads, so repeated calls without new
// messages return the same string.
func BuildContext(ctx context.Context, r MessageReader, conversationID string, maxTurns int) (string, error) {
	if maxTurns <= 0 {
		return "", nil
	}
	msgs, err := r.RecentMessages(ctx, conversationID, 2*maxTurns)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}
	return FormatHistory(msgs), nil
}

// FormatHistory pairs each user message with the assistant reply that follows
// it into "Turn N:" blocks. Messages without a partner are dropped.
func FormatHistory(msgs []model.Message) string {
	var turns []string
	var pending *model.Message

	for i := range msgs {
		m := &msgs[i]
		switch m.Role {
		case model.RoleUser:
			pending = m
		case model.RoleAssistant:
			if pending == nil {
				continue
			}
			turns = append(turns, fmt.Sprintf("Turn %d:\nUser: %s\nAssistant: %s",
				len(turns)+1, CleanText(pending.Content), CleanText(m.Content)))
			pending = nil
		}
	}
	return strings.Join(turns, "\n\n")
}

// CleanText removes HTML markup and markdown emphasis from a stored message.
// Line breaks written as <br> or block tags become newlines.
func CleanText(s string) string {
	s = stripHTML(s)
	s = boldMarkers.ReplaceAllString(s, "$2")
	s = strikeMarkers.ReplaceAllString(s, "$1")
	s = italicStar.ReplaceAllString(s, "$1")
	s = italicUnder.ReplaceAllString(s, "$1$2$3")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// stripHTML removes complete tags of known HTML elements and decodes
// entities. Text that merely contains "<", such as "a<b", is kept as written.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	s = htmlComment.ReplaceAllString(s, "")
	s = htmlTag.ReplaceAllStringFunc(s, func(tag string) string {
		m := htmlTag.FindStringSubmatch(tag)
		switch atom.Lookup([]byte(strings.ToLower(m[2]))) {
		case 0:
			return tag
		case atom.Br, atom.P, atom.Div, atom.Li, atom.Tr,
			atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			return "\n"
		default:
			return ""
		}
	})
	return html.UnescapeString(s)
}
