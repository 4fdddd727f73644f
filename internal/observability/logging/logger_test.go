package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONIncludesService(t *testing.T) {
	var buf bytes.Buffer
	New("cqr-api", "info", "json", &buf).Info("retrieval_turn", "hits", 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected json record, got %q: %v", buf.String(), err)
	}
	if record["service"] != "cqr-api" || record["msg"] != "retrieval_turn" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestNewTextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New("cqr-run", "warn", "text", &buf)
	logger.Info("hidden")
	logger.Warn("rewrite_empty_output")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "msg=rewrite_empty_output") || !strings.Contains(out, "service=cqr-run") {
		t.Fatalf("unexpected text output: %q", out)
	}
}
