package metrics

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
)

func TestNew_AutoDimension(t *testing.T) {
	initOnce.Do(func() {})
	functionName = "slop-lambda"
	defer func() { functionName = "" }()

	r := New(Namespace)
	if r.namespace != Namespace {
		t.Errorf("expected namespace %s, got %s", Namespace, r.namespace)
	}
	if r.dimensions["FunctionName"] != "slop-lambda" {
		t.Errorf("expected FunctionName dimension slop-lambda, got %s", r.dimensions["FunctionName"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(io.Discard)
	initOnce.Do(func() {})
	functionName = ""

	New(Namespace).
		Dimension("Status", "ready").
		Dimension("Source", "pollinations").
		Metric("AcquisitionLatencyMs", 812.5, UnitMilliseconds).
		Metric("BytesRead", 40960, UnitBytes).
		Property("acquisitionId", "abc-123").
		Flush()

	line := strings.TrimSpace(buf.String())
	if strings.Contains(line, "\n") {
		t.Fatalf("expected a single line, got: %s", line)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(line), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, line)
	}

	awsMap, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if _, ok := awsMap["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}
	cwArr, ok := awsMap["CloudWatchMetrics"].([]interface{})
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != Namespace {
		t.Errorf("expected namespace %s, got %v", Namespace, cw["Namespace"])
	}
	dims := cw["Dimensions"].([]interface{})[0].([]interface{})
	if len(dims) != 2 || dims[0] != "Source" || dims[1] != "Status" {
		t.Errorf("expected sorted dimension keys [Source Status], got %v", dims)
	}

	if doc["Status"] != "ready" {
		t.Errorf("expected Status=ready, got %v", doc["Status"])
	}
	if doc["AcquisitionLatencyMs"] != 812.5 {
		t.Errorf("expected AcquisitionLatencyMs=812.5, got %v", doc["AcquisitionLatencyMs"])
	}
	if doc["acquisitionId"] != "abc-123" {
		t.Errorf("expected acquisitionId=abc-123, got %v", doc["acquisitionId"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(io.Discard)

	New("Test").Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

func TestRecorder_DiscardByDefault(t *testing.T) {
	SetOutput(nil)
	// Must not panic with the discard writer in place.
	New("Test").Count("Calls").Flush()
}

func TestRecorder_Chaining(t *testing.T) {
	functionName = ""
	rec := New("Test").
		Dimension("Op", "export").
		Metric("Duration", 100, UnitMilliseconds).
		Count("Calls").
		Property("id", "xyz")

	if rec.dimensions["Op"] != "export" {
		t.Error("chaining Dimension failed")
	}
	if rec.values["Duration"] != float64(100) {
		t.Error("chaining Metric failed")
	}
	if rec.values["Calls"] != float64(1) {
		t.Error("chaining Count failed")
	}
	if m := rec.metrics["Calls"]; m.Unit != UnitCount {
		t.Errorf("expected unit Count, got %v", m.Unit)
	}
	if rec.properties["id"] != "xyz" {
		t.Error("chaining Property failed")
	}
}
