package provider

import (
	"strconv"
	"strings"
)

// MaxChunkChars is the fixed character ceiling a chapter is split at
// before it requires more than one HTTP call.
const MaxChunkChars = 20000

// Split divides text into ceil(len/MaxChunkChars) consecutive segments
// by raw character count. Chunking is purely character-based; no
// attempt is made to align to paragraph or sentence boundaries.
func Split(text string) []string {
	runes := []rune(text)
	if len(runes) <= MaxChunkChars {
		return []string{text}
	}
	var chunks []string
	for start := 0; start < len(runes); start += MaxChunkChars {
		end := start + MaxChunkChars
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// Join reassembles chunk outputs in index order, separated by a blank line.
func Join(outputs []string) string {
	return strings.Join(outputs, "\n\n")
}

// ChunkPrefix renders the "this is chunk i of n" system-prompt prefix
// from a prompt_templates.chunk_prefix template containing
// {chunk_index} and {total_chunks} placeholders.
func ChunkPrefix(template string, index, total int) string {
	r := strings.NewReplacer(
		"{chunk_index}", strconv.Itoa(index),
		"{total_chunks}", strconv.Itoa(total),
	)
	return r.Replace(template)
}
