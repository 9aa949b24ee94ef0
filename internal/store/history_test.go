package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/kb-chatbot/internal/model"
)

func msg(role model.Role, content string) model.Message {
	return model.Message{Role: role, Content: content}
}

func TestFormatHistorySingleTurn(t *testing.T) {
	out := FormatHistory([]model.Message{
		msg(model.RoleUser, "Hi"),
		msg(model.RoleAssistant, "Hello"),
	})

	assert.Equal(t, "Turn 1:\nUser: Hi\nAssistant: Hello", out)
}

func TestFormatHistoryDropsUnpaired(t *testing.T) {
	out := FormatHistory([]model.Message{
		msg(model.RoleAssistant, "orphan reply"),
		msg(model.RoleUser, "first"),
		msg(model.RoleAssistant, "one"),
		msg(model.RoleUser, "lost"),
		msg(model.RoleUser, "second"),
		msg(model.RoleAssistant, "two"),
		msg(model.RoleAssistant, "trailing"),
		msg(model.RoleUser, "pending"),
	})

	assert.Equal(t, "Turn 1:\nUser: first\nAssistant: one\n\nTurn 2:\nUser: second\nAssistant: two", out)
	assert.NotContains(t, out, "orphan")
	assert.NotContains(t, out, "trailing")
	assert.NotContains(t, out, "lost")
	assert.NotContains(t, out, "pending")
}

func TestFormatHistoryEmpty(t *testing.T) {
	assert.Equal(t, "", FormatHistory(nil))
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hello there", "Hello there"},
		{"br", "line one<br>line two", "line one\nline two"},
		{"self closing br", "a<br/>b", "a\nb"},
		{"tags", "<p>Call <b>us</b> today</p>", "Call us today"},
		{"entities", "Fish &amp; chips", "Fish & chips"},
		{"bold", "This is **very** important", "This is very important"},
		{"underscore bold", "__note__ this", "note this"},
		{"italic", "an *emphasised* word", "an emphasised word"},
		{"underscore italic", "an _emphasised_ word", "an emphasised word"},
		{"snake case kept", "use file_name here", "use file_name here"},
		{"strike", "~~old~~ new", "old new"},
		{"blank lines", "a<br><br><br>b", "a\nb"},
		{"less than kept", "Is a<b true? Reply yes or no", "Is a<b true? Reply yes or no"},
		{"comparison with tag", "x < 3 and <b>y</b> > 2", "x < 3 and y > 2"},
		{"unknown tag kept", "send it to <support team>", "send it to <support team>"},
		{"escaped tag kept", "type &lt;br&gt; for a break", "type <br> for a break"},
		{"comment", "a<!-- hidden -->b", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

type stubReader struct {
	msgs  []model.Message
	limit int
	err   error
}

func (s *stubReader) RecentMessages(_ context.Context, _ string, limit int) ([]model.Message, error) {
	s.limit = limit
	return s.msgs, s.err
}

func TestBuildContextReadsTwiceMaxTurns(t *testing.T) {
	r := &stubReader{msgs: []model.Message{msg(model.RoleUser, "Hi"), msg(model.RoleAssistant, "Hello")}}

	out, err := BuildContext(context.Background(), r, "c1", 10)
	require.NoError(t, err)

	assert.Equal(t, 20, r.limit)
	assert.Contains(t, out, "Turn 1:")
}

func TestBuildContextError(t *testing.T) {
	r := &stubReader{err: errors.New("db down")}

	_, err := BuildContext(context.Background(), r, "c1", 10)

	assert.Error(t, err)
}

func TestBuildContextZeroTurns(t *testing.T) {
	out, err := BuildContext(context.Background(), &stubReader{}, "c1", 0)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestTitleFromMessage(t *testing.T) {
	assert.Equal(t, "Hello world", TitleFromMessage("  Hello \n world "))

	long := TitleFromMessage("This message is deliberately longer than fifty characters in total")
	assert.Equal(t, "This message is deliberately longer than fifty cha...", long)
}

func TestPage(t *testing.T) {
	l, o := Page(0, -5)
	assert.Equal(t, 20, l)
	assert.Equal(t, 0, o)

	l, _ = Page(500, 0)
	assert.Equal(t, 20, l)
}
