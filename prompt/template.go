// Package prompt renders parameterized prompt strings with ratio/length
// placeholders, resolved once at the start of a batch. Templates are
// data, not code.
package prompt

import (
	"strconv"
	"strings"
)

// DefaultCondenser is used when neither prompt_templates.novel_condenser
// nor customer_prompt is configured.
const DefaultCondenser = "Rewrite the following chapter so its length is between {min_ratio}% and {max_ratio}% of the original ({min_count}-{max_count} characters), preserving plot-critical events, dialogue, and character voice. Do not summarize; rewrite in prose.\n\n{chunk_prefix}"

// DefaultChunkPrefix is used when prompt_templates.chunk_prefix is unset.
const DefaultChunkPrefix = "This is chunk {chunk_index} of {total_chunks} of a longer chapter. Condense this portion only.\n\n"

// Set holds the two templates a batch uses, resolved once at startup.
type Set struct {
	Condenser   string
	ChunkPrefix string
}

// NewSet builds a Set, applying the configuration file's priority order:
// customer_prompt (highest) overrides prompt_templates.novel_condenser,
// which overrides DefaultCondenser.
func NewSet(promptTemplates map[string]string, customerPrompt string) Set {
	condenser := DefaultCondenser
	if v, ok := promptTemplates["novel_condenser"]; ok && v != "" {
		condenser = v
	}
	if customerPrompt != "" {
		condenser = customerPrompt
	}
	chunkPrefix := DefaultChunkPrefix
	if v, ok := promptTemplates["chunk_prefix"]; ok && v != "" {
		chunkPrefix = v
	}
	return Set{Condenser: condenser, ChunkPrefix: chunkPrefix}
}

// RenderRatio substitutes {min_ratio}/{max_ratio} percent placeholders.
func RenderRatio(template string, minRatio, maxRatio int) string {
	r := strings.NewReplacer(
		"{min_ratio}", strconv.Itoa(minRatio),
		"{max_ratio}", strconv.Itoa(maxRatio),
	)
	return r.Replace(template)
}

// RenderCount substitutes {original_count}/{min_count}/{max_count}
// absolute-character placeholders.
func RenderCount(template string, original, min, max int) string {
	r := strings.NewReplacer(
		"{original_count}", strconv.Itoa(original),
		"{min_count}", strconv.Itoa(min),
		"{max_count}", strconv.Itoa(max),
	)
	return r.Replace(template)
}
