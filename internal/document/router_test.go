package document

import (
	"testing"
	"time"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestRouter_DailyBucket(t *testing.T) {
	r := NewRouter("")

	tests := []struct {
		name string
		ms   int64
		want string
	}{
		{"access log", 1421116133213, "cwl-2015.01.13"},
		{"start of day", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC).UnixMilli(), "cwl-2024.03.09"},
		{"last millisecond", time.Date(2024, 3, 9, 23, 59, 59, 999e6, time.UTC).UnixMilli(), "cwl-2024.03.09"},
		{"epoch", 0, "cwl-1970.01.01"},
		{"before epoch", -1, "cwl-1969.12.31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.DailyBucket(tt.ms))
		})
	}
}

func TestRouter_DailyBucket_IgnoresLocalZone(t *testing.T) {
	orig := time.Local
	time.Local = time.FixedZone("UTC-10", -10*60*60)
	defer func() { time.Local = orig }()

	r := NewRouter("")
	// 2015-01-13T02:28:53Z is still Jan 12 in UTC-10.
	assert.Equal(t, "cwl-2015.01.13", r.DailyBucket(1421116133213))
}

func TestRouter_Prefix(t *testing.T) {
	assert.Equal(t, DefaultIndexPrefix, NewRouter("").Prefix())
	assert.Equal(t, "app-", NewRouter("app-").Prefix())
	assert.Equal(t, "app-2015.01.13", NewRouter("app-").DailyBucket(1421116133213))
}

func TestRouter_Destination(t *testing.T) {
	r := NewRouter("")
	event := &model.LogEvent{ID: "abc", Timestamp: 1421116133213, LogGroup: "/aws/lambda/HelloWorld"}

	assert.Equal(t, Destination{
		Index:    "cwl-2015.01.13",
		Category: "/aws/lambda/HelloWorld",
		ID:       "abc",
	}, r.Destination(event))
	assert.Equal(t, "Apache/access.log", r.Category("Apache/access.log"))
}
