package document

import (
	"encoding/json"
	"strings"
)

// ProbeJSON looks for a JSON object embedded in text. It takes everything from
// the first '{' to the end of text and reports whether that suffix is one
// complete JSON document. Surrounding whitespace is accepted, trailing content
// is not. The returned substring is the original text, never re-serialized.
//
// Since the candidate always starts with '{', a successful parse is an object;
// scalars such as "2" or "\"value\"" never probe.
func ProbeJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	candidate := text[start:]
	if !json.Valid([]byte(candidate)) {
		return "", false
	}
	return candidate, true
}

// IsJSON reports whether ProbeJSON finds an embedded JSON object in text.
func IsJSON(text string) bool {
	_, ok := ProbeJSON(text)
	return ok
}
