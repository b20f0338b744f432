package testutil

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// Event identifiers and timestamps shared by the sample batches.
const (
	EventID1 = "49545295115971876468408574808414755329919666212443258898"
	EventID2 = "49545295115971876468408574808465530214343480843939348498"
	EventID3 = "49545295115971876468408574808465530214343150403450640305"

	Timestamp1 int64 = 1421116133213
	Timestamp2 int64 = 1421116143214
	Timestamp3 int64 = 1421116143456
)

// AccessLogBatch is an Apache access log batch with extracted fields.
const AccessLogBatch = `{
  "messageType": "DATA_MESSAGE",
  "owner": "123456789012",
  "logGroup": "Apache/access.log",
  "logStream": "i-c3f9bec9",
  "subscriptionFilters": ["AccessLogs"],
  "logEvents": [
    {
      "id": "49545295115971876468408574808414755329919666212443258898",
      "timestamp": 1421116133213,
      "message": "127.0.0.1 frank GET 200 4535",
      "extractedFields": {
        "ip": "127.0.0.1",
        "user": "frank",
        "verb": "GET",
        "status_code": "200",
        "response_size": "4535"
      }
    },
    {
      "id": "49545295115971876468408574808465530214343480843939348498",
      "timestamp": 1421116143214,
      "message": "127.0.0.1 alice POST 404 34",
      "extractedFields": {
        "ip": "127.0.0.1",
        "user": "alice",
        "verb": "POST",
        "status_code": "404",
        "response_size": "34"
      }
    }
  ]
}`

// CloudTrailBatch carries JSON messages and no extracted fields.
const CloudTrailBatch = `{
  "messageType": "DATA_MESSAGE",
  "owner": "123456789012",
  "logGroup": "CloudTrail",
  "logStream": "123456789012_CloudTrail_us-east-1",
  "subscriptionFilters": ["CloudTrailAll"],
  "logEvents": [
    {
      "id": "49545295115971876468408574808465530214343480843939348498",
      "timestamp": 1421116143214,
      "message": "{\"eventVersion\":\"1.02\",\"userIdentity\":{\"type\":\"Root\",\"principalId\":\"123456789012\"},\"eventTime\":\"2015-01-13T02:29:03Z\",\"eventSource\":\"signin.amazonaws.com\",\"eventName\":\"ConsoleLogin\"}"
    },
    {
      "id": "49545295115971876468408574808465530214343150403450640305",
      "timestamp": 1421116143456,
      "message": "{\"eventVersion\":\"1.02\",\"userIdentity\":{\"type\":\"Root\",\"principalId\":\"123456789012\"},\"eventTime\":\"2015-01-13T02:29:03Z\",\"eventSource\":\"cloudtrail.amazonaws.com\",\"eventName\":\"DescribeTrails\"}"
    }
  ]
}`

// LambdaBatch has an extracted "event" field holding JSON in its first event.
const LambdaBatch = `{
  "messageType": "DATA_MESSAGE",
  "owner": "123456789012",
  "logGroup": "/aws/lambda/HelloWorld",
  "logStream": "2015/06/30/1f77bc4743204b22b0d42cf3b85f40c7",
  "subscriptionFilters": ["LambdaStream"],
  "logEvents": [
    {
      "id": "49545295115971876468408574808414755329919666212443258898",
      "timestamp": 1421116133213,
      "message": "2015-01-13T02:28:53.213Z c342155b-1ec0-11e5-b0e2-f317438eb2f6 { \"key1\": 100, \"key2\": \"value\", \"key3\": { \"key4\": \"level2\" } }",
      "extractedFields": {
        "timestamp": "2015-01-13T02:28:53.213Z",
        "request_id": "c342155b-1ec0-11e5-b0e2-f317438eb2f6",
        "event": "{ \"key1\": 100, \"key2\": \"value\", \"key3\": { \"key4\": \"level2\" } }"
      }
    },
    {
      "id": "49545295115971876468408574808465530214343150403450640305",
      "timestamp": 1421116143456,
      "message": "2015-01-13T02:29:03.456Z c342155b-1ec0-11e5-b0e2-f317438eb2f6 Hello World",
      "extractedFields": {
        "timestamp": "2015-01-13T02:29:03.456Z",
        "request_id": "c342155b-1ec0-11e5-b0e2-f317438eb2f6",
        "event": "Hello World"
      }
    }
  ]
}`

// ControlMessageBatch is the health check CloudWatch Logs sends on subscription.
const ControlMessageBatch = `{
  "messageType": "CONTROL_MESSAGE",
  "owner": "CloudwatchLogs",
  "logGroup": "",
  "logStream": "",
  "subscriptionFilters": [],
  "logEvents": [
    {
      "id": "",
      "timestamp": 1432826855000,
      "message": "CWL CONTROL MESSAGE: Checking health of destination Kinesis stream."
    }
  ]
}`

// NoMessageTypeBatch looks like data but lacks the discriminator.
const NoMessageTypeBatch = `{
  "owner": "123456789012",
  "logGroup": "Apache/access.log",
  "logStream": "i-c3f9bec9",
  "logEvents": [
    {
      "id": "49545295115971876468408574808414755329919666212443258898",
      "timestamp": 1421116133213,
      "message": "127.0.0.1 frank GET 200 4535"
    }
  ]
}`

// InvalidJSONBatch is truncated mid-document.
const InvalidJSONBatch = `{
  "messageType": "DATA_MESSAGE",
  "owner": "123456789012",
  "logGroup": "Apache/access.log",
  "logEvents": [ { "id": "1", `

// Gzip compresses s the way CloudWatch Logs compresses subscription payloads.
func Gzip(t testing.TB, s string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}
