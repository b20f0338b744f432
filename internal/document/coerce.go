package document

import (
	"encoding/json"
	"strconv"
)

// Kind tags the representation chosen for an extracted field value.
type Kind int

const (
	// KindNull marks a null value; the field is left out of the document.
	KindNull Kind = iota
	// KindJSON marks a value holding an embedded JSON object.
	KindJSON
	// KindNumber marks a value that is entirely numeric.
	KindNumber
	// KindString is the fallback for everything else.
	KindString
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindJSON:
		return "json"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Coerced is the typed representation of a raw extracted field value.
// Only the member matching Kind is set.
type Coerced struct {
	Kind   Kind
	JSON   json.RawMessage
	Number float64
	Text   string
}

// Coerce classifies a raw field value. Checks run in order: null, embedded
// JSON, numeric, plain string. The result depends on raw alone.
func Coerce(raw *string) Coerced {
	if raw == nil {
		return Coerced{Kind: KindNull}
	}
	value := *raw

	if sub, ok := ProbeJSON(value); ok {
		return Coerced{Kind: KindJSON, JSON: json.RawMessage(sub)}
	}

	if isNumeric(value) {
		// Values beyond float64 range stay strings; JSON has no Inf.
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return Coerced{Kind: KindNumber, Number: f}
		}
	}

	return Coerced{Kind: KindString, Text: value}
}

// Value returns the representation to place in a JSON document, or nil for KindNull.
func (c Coerced) Value() any {
	switch c.Kind {
	case KindJSON:
		return c.JSON
	case KindNumber:
		return c.Number
	case KindString:
		return c.Text
	default:
		return nil
	}
}

// isNumeric accepts an optional sign, one or more digits and an optional
// fractional part of one or more digits. No whitespace or exponent.
func isNumeric(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}

	intDigits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		intDigits++
	}
	if intDigits == 0 {
		return false
	}

	if i == len(s) {
		return true
	}
	if s[i] != '.' {
		return false
	}
	i++

	fracDigits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		fracDigits++
	}
	return fracDigits > 0 && i == len(s)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
