package document

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_ProbeFindsSuffix(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("prefix text before an object is skipped", prop.ForAll(
		func(prefix, key, value string) bool {
			obj, err := json.Marshal(map[string]string{key: value})
			if err != nil {
				return false
			}
			got, ok := ProbeJSON(prefix + string(obj))
			return ok && got == string(obj)
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AnyString(),
	))

	properties.Property("strings without a brace never probe", prop.ForAll(
		func(s string) bool {
			s = strings.ReplaceAll(s, "{", "")
			return !IsJSON(s)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestProperty_CoerceNumbers(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("integers coerce to their value", prop.ForAll(
		func(n int32) bool {
			c := Coerce(model.FieldValue(strconv.Itoa(int(n))))
			return c.Kind == KindNumber && c.Number == float64(n)
		},
		gen.Int32(),
	))

	properties.Property("alphabetic words stay strings", prop.ForAll(
		func(s string) bool {
			if s == "" {
				return true
			}
			c := Coerce(&s)
			return c.Kind == KindString && c.Text == s
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestProperty_DailyBucketIsUTCDate(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	r := NewRouter("")

	properties.Property("same UTC day maps to same bucket", prop.ForAll(
		func(ms int64, offset int64) bool {
			day := time.UnixMilli(ms).UTC().Truncate(24 * time.Hour)
			a := day.UnixMilli()
			b := a + offset%(24*60*60*1000)
			return r.DailyBucket(a) == r.DailyBucket(b) &&
				r.DailyBucket(a) == DefaultIndexPrefix+day.Format("2006.01.02")
		},
		gen.Int64Range(0, 4102444800000),
		gen.Int64Range(0, 24*60*60*1000-1),
	))

	properties.TestingRun(t)
}

func TestProperty_ArchivalRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("extracted values come back as the same strings", prop.ForAll(
		func(fields map[string]string, message string) bool {
			event := &model.LogEvent{ID: "1", Message: message, ExtractedFields: model.ExtractedFields{}}
			for k, v := range fields {
				event.ExtractedFields[k] = model.FieldValue(v)
			}

			data, err := Archival(event)
			if err != nil {
				return false
			}
			var back struct {
				Message         string            `json:"message"`
				ExtractedFields map[string]string `json:"extractedFields"`
			}
			if err := json.Unmarshal(data, &back); err != nil {
				return false
			}
			if back.Message != message || len(back.ExtractedFields) != len(fields) {
				return false
			}
			for k, v := range fields {
				if back.ExtractedFields[k] != v {
					return false
				}
			}
			return true
		},
		gen.MapOf(gen.AlphaString(), gen.AlphaString()),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
