package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/document"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/metrics"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestVictoriaLogsEmitter_Name(t *testing.T) {
	emitter := NewVictoriaLogsEmitter(config.VictoriaLogsEmitterConfig{}, nil, testutil.NewTestLogger())

	if emitter.Name() != "victorialogs" {
		t.Errorf("expected name 'victorialogs', got %q", emitter.Name())
	}
}

func TestVictoriaLogsEmitter_Emit_BatchFlush(t *testing.T) {
	var calls []*http.Request
	var bodies [][]byte

	cfg := config.VictoriaLogsEmitterConfig{
		URL:           "http://localhost:9428",
		BatchSize:     2,
		FlushInterval: time.Hour,
	}
	emitter := NewVictoriaLogsEmitter(cfg, nil, testutil.NewTestLogger(),
		WithVictoriaLogsHTTPClient(respondWith(204, &calls, &bodies)))

	if err := emitter.Emit(context.Background(), accessEvent()); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if err := emitter.Emit(context.Background(), lambdaEvent()); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(calls))
	}
	req := calls[0]
	if req.URL.Path != "/insert/jsonline" {
		t.Errorf("unexpected path: %s", req.URL.Path)
	}
	if got := req.URL.Query().Get("_stream_fields"); got != "owner,log_group,log_stream" {
		t.Errorf("unexpected stream fields: %q", got)
	}
	if req.Header.Get("Content-Type") != "application/x-ndjson" {
		t.Errorf("unexpected content-type: %s", req.Header.Get("Content-Type"))
	}

	lines := strings.Split(strings.TrimSpace(string(bodies[0])), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var access map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &access); err != nil {
		t.Fatal(err)
	}
	if access["_msg"] != accessEvent().Message {
		t.Errorf("unexpected _msg: %v", access["_msg"])
	}
	if access["_time"] != "2015-01-13T02:28:53.213Z" {
		t.Errorf("unexpected _time: %v", access["_time"])
	}
	if access["status"] != float64(304) {
		t.Errorf("extracted fields should be flattened and coerced: %v", access)
	}
	if _, ok := access["referrer"]; ok {
		t.Errorf("null fields should be omitted: %v", access)
	}
	if access["log_group"] != "/aws/apigateway/access" {
		t.Errorf("unexpected log_group: %v", access["log_group"])
	}

	var lambda map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &lambda); err != nil {
		t.Fatal(err)
	}
	if lambda["level"] != "info" || lambda["requestId"] != "abc" {
		t.Errorf("json message should be flattened: %v", lambda)
	}
}

func TestVictoriaLogsEmitter_ReservedKeysWin(t *testing.T) {
	var bodies [][]byte
	cfg := config.VictoriaLogsEmitterConfig{URL: "http://localhost:9428", BatchSize: 1, FlushInterval: time.Hour}
	emitter := NewVictoriaLogsEmitter(cfg, document.NewBuilder(), testutil.NewTestLogger(),
		WithVictoriaLogsHTTPClient(respondWith(204, nil, &bodies)))

	event := lambdaEvent()
	event.Message = `{"_msg":"spoofed","log_group":"other"}`
	if err := emitter.Emit(context.Background(), event); err != nil {
		t.Fatal(err)
	}

	var doc map[string]any
	if err := json.Unmarshal(bodies[0], &doc); err != nil {
		t.Fatal(err)
	}
	if doc["_msg"] != event.Message || doc["log_group"] != "/aws/lambda/orders" {
		t.Errorf("reserved keys were replaced: %v", doc)
	}
}

func TestVictoriaLogsEmitter_Emit_HTTPError(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	cfg := config.VictoriaLogsEmitterConfig{URL: "http://localhost:9428", BatchSize: 2, FlushInterval: time.Hour}
	emitter := NewVictoriaLogsEmitter(cfg, nil, testutil.NewTestLogger(),
		WithVictoriaLogsHTTPClient(respondWith(503, nil, nil)), WithVictoriaLogsMetrics(m))

	if err := emitter.Emit(context.Background(), lambdaEvent()); err != nil {
		t.Fatalf("first Emit should only buffer: %v", err)
	}
	err := emitter.Emit(context.Background(), lambdaEvent())
	if !errors.Is(err, ErrDelivery) || !strings.Contains(err.Error(), "503") {
		t.Errorf("expected delivery error with status, got %v", err)
	}
	if got := promtest.ToFloat64(m.EventsFailed.WithLabelValues("victorialogs")); got != 2 {
		t.Errorf("expected 2 failed events, got %v", got)
	}
	if got := promtest.ToFloat64(m.EventsEmitted.WithLabelValues("victorialogs")); got != 0 {
		t.Errorf("failed batch must not count as emitted, got %v", got)
	}
}

func TestVictoriaLogsEmitter_CountsEmittedAfterInsert(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	cfg := config.VictoriaLogsEmitterConfig{URL: "http://localhost:9428", BatchSize: 2, FlushInterval: time.Hour}
	emitter := NewVictoriaLogsEmitter(cfg, nil, testutil.NewTestLogger(),
		WithVictoriaLogsHTTPClient(respondWith(204, nil, nil)), WithVictoriaLogsMetrics(m))

	if err := emitter.Emit(context.Background(), lambdaEvent()); err != nil {
		t.Fatal(err)
	}
	if got := promtest.ToFloat64(m.EventsEmitted.WithLabelValues("victorialogs")); got != 0 {
		t.Errorf("buffered event must not count yet, got %v", got)
	}
	if err := emitter.Emit(context.Background(), lambdaEvent()); err != nil {
		t.Fatal(err)
	}
	if got := promtest.ToFloat64(m.EventsEmitted.WithLabelValues("victorialogs")); got != 2 {
		t.Errorf("expected 2 emitted events after insert, got %v", got)
	}
}
