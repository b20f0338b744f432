package emitter

import (
	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/testutil"
)

// accessEvent is an API Gateway access log line with extracted fields.
func accessEvent() *model.LogEvent {
	return &model.LogEvent{
		ID:        testutil.EventID1,
		Timestamp: testutil.Timestamp1,
		Message:   `127.0.0.1 - - [13/Jan/2015:02:28:53 +0000] "GET /index.html HTTP/1.1" 304 0`,
		ExtractedFields: model.ExtractedFields{
			"status":   model.FieldValue("304"),
			"request":  model.FieldValue("GET /index.html HTTP/1.1"),
			"referrer": nil,
		},
		Owner:     "123456789012",
		LogGroup:  "/aws/apigateway/access",
		LogStream: "stream-1",
	}
}

// lambdaEvent carries a JSON message and no extracted fields.
func lambdaEvent() *model.LogEvent {
	return &model.LogEvent{
		ID:        testutil.EventID2,
		Timestamp: testutil.Timestamp2,
		Message:   `{"level":"info","requestId":"abc"}`,
		Owner:     "123456789012",
		LogGroup:  "/aws/lambda/orders",
		LogStream: "2015/01/13/[$LATEST]abc",
	}
}
