package service

import (
	"strings"
	"unicode"
)

// splitIntoChunks cuts text into overlapping chunks of at most size runes.
// A chunk prefers to end at a paragraph break in its second half, or else
// at a sentence end in its last quarter.
func splitIntoChunks(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}
	if overlap < 0 || overlap >= size/2 {
		overlap = 0
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := min(start+size, len(runes))
		if end < len(runes) {
			end = start + breakPoint(runes[start:end])
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func breakPoint(chunk []rune) int {
	n := len(chunk)

	for i := n - 2; i > n/2; i-- {
		if chunk[i] == '\n' && chunk[i+1] == '\n' {
			return i
		}
	}

	for i := n - 2; i >= n-n/4; i-- {
		if isSentenceEnd(chunk[i]) && unicode.IsSpace(chunk[i+1]) {
			return i + 1
		}
	}
	for i := n - 1; i >= n-n/4; i-- {
		if isFullWidthSentenceEnd(chunk[i]) {
			return i + 1
		}
	}
	return n
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isFullWidthSentenceEnd(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}
