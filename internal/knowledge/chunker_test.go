package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitterRespectsSize(t *testing.T) {
	text := strings.Repeat("word ", 100)

	chunks := Splitter{Size: 50}.Split(text)

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 50)
	}
	assert.Equal(t, 100, countWords(chunks))
}

func TestSplitterOverlap(t *testing.T) {
	words := make([]string, 40)
	for i := range words {
		words[i] = string(rune('a' + i%26))
	}

	chunks := Splitter{Size: 20, Overlap: 50}.Split(strings.Join(words, " "))

	require.Greater(t, len(chunks), 1)
	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	assert.Equal(t, first[len(first)-len(first)/2:], second[:len(first)/2])
}

func TestSplitterEmpty(t *testing.T) {
	assert.Nil(t, Splitter{Size: 10}.Split("  \n\t "))
}

func TestSplitterLongWord(t *testing.T) {
	chunks := Splitter{Size: 5}.Split("supercalifragilistic tiny")

	assert.Equal(t, []string{"supercalifragilistic", "tiny"}, chunks)
}

func countWords(chunks []string) int {
	n := 0
	for _, c := range chunks {
		n += len(strings.Fields(c))
	}
	return n
}
