package provider

import (
	"strings"

	"github.com/tidwall/gjson"
)

// parser extracts a candidate rewrite from a raw JSON response body.
// Returning ok=false means "this shape did not match, try the next one".
type parser func(body string) (string, bool)

// parsers is evaluated in order; new provider response variants are
// added to this list, not by editing a chain of conditionals.
var parsers = []parser{
	parseGeminiStandard,
	parseOpenAIStandard,
	parseGenericTopLevel,
	parseGenericResults,
	parseGenericData,
}

// ParseResponse runs the ordered fallback chain and returns the first
// non-empty result, trimmed. It never returns an error itself; an empty
// result after trying every parser is the caller's concern (AdapterError,
// kind malformed_response).
func ParseResponse(body []byte) (string, bool) {
	s := string(body)
	for _, p := range parsers {
		if text, ok := p(s); ok {
			text = strings.TrimSpace(text)
			if text != "" {
				return text, true
			}
		}
	}
	return "", false
}

// parseGeminiStandard reads candidates[0].content.parts[*].text,
// tolerating parts shaped as {thinking:...}, {value:...}, or a bare string.
func parseGeminiStandard(body string) (string, bool) {
	parts := gjson.Get(body, "candidates.0.content.parts")
	if !parts.Exists() || !parts.IsArray() {
		return "", false
	}
	var sb strings.Builder
	found := false
	parts.ForEach(func(_, part gjson.Result) bool {
		switch {
		case part.Get("text").Exists():
			sb.WriteString(part.Get("text").String())
			found = true
		case part.Get("thinking").Exists():
			sb.WriteString(part.Get("thinking").String())
			found = true
		case part.Get("value").Exists():
			sb.WriteString(part.Get("value").String())
			found = true
		case part.Type == gjson.String:
			sb.WriteString(part.String())
			found = true
		}
		return true
	})
	return sb.String(), found
}

func parseOpenAIStandard(body string) (string, bool) {
	v := gjson.Get(body, "choices.0.message.content")
	if !v.Exists() {
		return "", false
	}
	return v.String(), true
}

// parseGenericTopLevel covers proxies that flatten the response to a
// bare {response|output|content: "..."} object.
func parseGenericTopLevel(body string) (string, bool) {
	for _, key := range []string{"response", "output", "content"} {
		v := gjson.Get(body, key)
		if v.Exists() && v.Type == gjson.String {
			return v.String(), true
		}
	}
	return "", false
}

// parseGenericResults covers {results: "..."} and {results: ["...", ...]}.
func parseGenericResults(body string) (string, bool) {
	v := gjson.Get(body, "results")
	if !v.Exists() {
		return "", false
	}
	if v.Type == gjson.String {
		return v.String(), true
	}
	if v.IsArray() {
		var sb strings.Builder
		found := false
		v.ForEach(func(_, item gjson.Result) bool {
			if item.Type == gjson.String {
				sb.WriteString(item.String())
				found = true
			}
			return true
		})
		return sb.String(), found
	}
	return "", false
}

// parseGenericData covers a nested {data: {...}} envelope mirroring any
// of the shapes above, or data itself being a bare string.
func parseGenericData(body string) (string, bool) {
	data := gjson.Get(body, "data")
	if !data.Exists() {
		return "", false
	}
	if data.Type == gjson.String {
		return data.String(), true
	}
	for _, key := range []string{"response", "output", "content"} {
		v := data.Get(key)
		if v.Exists() && v.Type == gjson.String {
			return v.String(), true
		}
	}
	if v := data.Get("candidates.0.content"); v.Exists() {
		if parts := v.Get("parts"); parts.IsArray() {
			var sb strings.Builder
			found := false
			parts.ForEach(func(_, part gjson.Result) bool {
				if t := part.Get("text"); t.Exists() {
					sb.WriteString(t.String())
					found = true
				}
				return true
			})
			if found {
				return sb.String(), true
			}
		}
	}
	if v := data.Get("choices.0.message.content"); v.Exists() {
		return v.String(), true
	}
	return "", false
}
