package knowledge

import "strings"

// Splitter cuts text into word windows of at most Size bytes. Consecutive
// chunks share Overlap percent of the previous chunk's words.
type Splitter struct {
	Size    int
	Overlap int
}

// Split returns the chunks of text; whitespace-only text yields none.
func (s Splitter) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	size := s.Size
	if size <= 0 {
		size = 1000
	}

	var chunks []string
	current := []string{}
	currentSize := 0

	for _, word := range words {
		wordSize := len(word) + 1
		if currentSize+wordSize > size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))

			overlapWords := len(current) * s.Overlap / 100
			if overlapWords > 0 && overlapWords < len(current) {
				current = append([]string(nil), current[len(current)-overlapWords:]...)
				currentSize = len(strings.Join(current, " ")) + 1
			} else {
				current = current[:0]
				currentSize = 0
			}
		}
		current = append(current, word)
		currentSize += wordSize
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
