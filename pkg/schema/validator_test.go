package schema

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/burst"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/engine"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/profile"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/trace"
)

func schemaPath(t *testing.T, rel string) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("could not resolve caller")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return filepath.Join(root, rel)
}

func sampleReport(t *testing.T) BurstReport {
	t.Helper()
	prof, err := profile.Default(profile.Technology3G)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	tr := trace.Trace{
		Sessions: []trace.Session{{
			ID:   "s1",
			Host: "api.example.com",
			Packets: []trace.Packet{
				{Timestamp: 1.0, Direction: trace.Uplink, PayloadLen: 320, TCPInfo: trace.TCPData},
				{Timestamp: 1.2, Direction: trace.Downlink, PayloadLen: 1460, TCPInfo: trace.TCPData},
				{Timestamp: 9.0, Direction: trace.Uplink, PayloadLen: 0, TCPInfo: trace.TCPClose},
				{Timestamp: 8.0, Direction: trace.Downlink, PayloadLen: 0, TCPInfo: trace.TCPAck},
			},
		}},
		UserEvents: []trace.UserEvent{{Time: 0.6, Kind: trace.EventTouch}},
		Duration:   30,
	}
	res, err := engine.New(engine.Config{}).Analyze(context.Background(), tr, &prof, trace.Filter{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	return BuildReport("run-1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), "sample.json", prof, res)
}

func TestSchemasCompile(t *testing.T) {
	for _, rel := range []string{
		"docs/contracts/v1/burst-report.schema.json",
		"docs/contracts/v1/run-summary.schema.json",
		"config/analyzer.schema.json",
	} {
		if err := CompileSchema(schemaPath(t, rel)); err != nil {
			t.Fatalf("compile %s: %v", rel, err)
		}
	}
}

func TestValidateBurstReportSchema(t *testing.T) {
	report := sampleReport(t)
	if len(report.Analysis.Bursts) == 0 {
		t.Fatal("expected sample bursts")
	}
	if len(report.Anomalies) != 1 {
		t.Fatalf("expected out-of-order anomaly, got %+v", report.Anomalies)
	}
	if err := ValidateAgainstSchema(schemaPath(t, "docs/contracts/v1/burst-report.schema.json"), report); err != nil {
		t.Fatalf("schema validation failed: %v", err)
	}
}

func TestValidateRunSummarySchema(t *testing.T) {
	summary := sampleReport(t).Summary()
	if summary.Technology != "3G" || summary.TraceDuration != 30 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Categories[string(burst.CategoryUserInput)] != 1 {
		t.Fatalf("expected one USER_INPUT burst, got %+v", summary.Categories)
	}
	if err := ValidateAgainstSchema(schemaPath(t, "docs/contracts/v1/run-summary.schema.json"), summary); err != nil {
		t.Fatalf("schema validation failed: %v", err)
	}
}

func TestValidateRejectsUnknownCategory(t *testing.T) {
	report := sampleReport(t)
	report.Analysis.Bursts[0].Category = burst.Category("MYSTERY")
	err := ValidateAgainstSchema(schemaPath(t, "docs/contracts/v1/burst-report.schema.json"), report)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(err.Error(), "category") {
		t.Fatalf("expected category in error, got %v", err)
	}
}

func TestValidateBytesRejectsMissingFields(t *testing.T) {
	payload, err := json.Marshal(map[string]any{"run_id": "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := ValidateBytes(schemaPath(t, "docs/contracts/v1/run-summary.schema.json"), payload); err == nil {
		t.Fatal("expected missing fields to fail validation")
	}
}
