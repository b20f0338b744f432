package document

import (
	"time"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
)

// DefaultIndexPrefix namespaces the daily indexes.
const DefaultIndexPrefix = "cwl-"

const dailyBucketLayout = "2006.01.02"

// Destination identifies where an indexing document is stored.
type Destination struct {
	Index    string
	Category string
	ID       string
}

// Router derives destinations from event attributes.
type Router struct {
	prefix string
}

// NewRouter creates a Router. An empty prefix selects DefaultIndexPrefix.
func NewRouter(prefix string) Router {
	if prefix == "" {
		prefix = DefaultIndexPrefix
	}
	return Router{prefix: prefix}
}

// Prefix returns the namespace prepended to daily buckets.
func (r Router) Prefix() string {
	return r.prefix
}

// DailyBucket returns the time bucket for a timestamp in epoch milliseconds,
// computed on the UTC calendar date. Midnight belongs to the new day.
func (r Router) DailyBucket(timestampMillis int64) string {
	return r.prefix + time.UnixMilli(timestampMillis).UTC().Format(dailyBucketLayout)
}

// Category maps a log group to a document category. Currently the identity.
func (r Router) Category(logGroup string) string {
	return logGroup
}

// Destination routes a single event.
func (r Router) Destination(event *model.LogEvent) Destination {
	return Destination{
		Index:    r.DailyBucket(event.Timestamp),
		Category: r.Category(event.LogGroup),
		ID:       event.ID,
	}
}
