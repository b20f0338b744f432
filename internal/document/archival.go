package document

import (
	"encoding/json"
	"fmt"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
)

// consoleTimeLayout renders timestamps the way the console sink prints them.
const consoleTimeLayout = "Mon Jan 02 15:04:05 MST 2006"

// archivalRecord keeps the original field names and raw extracted values.
type archivalRecord struct {
	ID              string                `json:"id"`
	Timestamp       int64                 `json:"timestamp"`
	Message         string                `json:"message"`
	Owner           string                `json:"owner"`
	LogGroup        string                `json:"logGroup"`
	LogStream       string                `json:"logStream"`
	ExtractedFields model.ExtractedFields `json:"extractedFields,omitempty"`
}

// Archival renders the archival-sink document for an event.
// Extracted fields are written as the strings they arrived as.
func Archival(event *model.LogEvent) ([]byte, error) {
	data, err := json.Marshal(archivalRecord{
		ID:              event.ID,
		Timestamp:       event.Timestamp,
		Message:         event.Message,
		Owner:           event.Owner,
		LogGroup:        event.LogGroup,
		LogStream:       event.LogStream,
		ExtractedFields: event.ExtractedFields,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: event %s: %v", ErrSerialization, event.ID, err)
	}
	return data, nil
}

// Console renders an event as "<time> - <message>".
func Console(event *model.LogEvent) string {
	return event.Time().Format(consoleTimeLayout) + " - " + event.Message
}
