package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/schema"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/store"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/trace"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/tracegen"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/webhook"
)

func repoPath(t *testing.T, rel string) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("could not resolve caller")
	}
	return filepath.Join(filepath.Dir(filename), "..", "..", rel)
}

func writeTrace(t *testing.T, dir, scenario string, count int) string {
	t.Helper()
	tr, err := tracegen.Generate(scenario, count)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(dir, "trace.json")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create trace: %v", err)
	}
	defer file.Close()
	if err := trace.WriteJSON(file, tr); err != nil {
		t.Fatalf("write trace: %v", err)
	}
	return path
}

func TestRunWritesAllOutputs(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeTrace(t, dir, "mixed", 9)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{
		"-config", repoPath(t, "config/analyzer.yaml"),
		"-trace", tracePath,
		"-schema", repoPath(t, "docs/contracts/v1/burst-report.schema.json"),
		"-out", filepath.Join(dir, "out", "report.json"),
		"-bursts-out", filepath.Join(dir, "out", "bursts.jsonl"),
		"-categories-out", filepath.Join(dir, "out", "categories.csv"),
		"-intervals-out", filepath.Join(dir, "out", "intervals.jsonl"),
		"-metrics-out", filepath.Join(dir, "out", "metrics.prom"),
		"-db", filepath.Join(dir, "runs.db"),
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}

	raw, err := os.ReadFile(filepath.Join(dir, "out", "report.json"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report schema.BurstReport
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(report.Analysis.Bursts) != 9 || report.Profile.Technology != "LTE" {
		t.Fatalf("unexpected report: %d bursts, technology %s", len(report.Analysis.Bursts), report.Profile.Technology)
	}
	if report.RunID == "" {
		t.Fatal("expected run id on report")
	}

	bursts, err := os.ReadFile(filepath.Join(dir, "out", "bursts.jsonl"))
	if err != nil {
		t.Fatalf("read bursts: %v", err)
	}
	if lines := strings.Count(string(bursts), "\n"); lines != 9 {
		t.Fatalf("expected 9 burst lines, got %d", lines)
	}

	file, err := os.Open(filepath.Join(dir, "out", "categories.csv"))
	if err != nil {
		t.Fatalf("open categories: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read categories: %v", err)
	}
	if len(rows) != 1+len(report.Analysis.Categories) || rows[0][0] != "category" {
		t.Fatalf("unexpected categories csv: %v", rows)
	}

	intervals, err := os.ReadFile(filepath.Join(dir, "out", "intervals.jsonl"))
	if err != nil {
		t.Fatalf("read intervals: %v", err)
	}
	if lines := strings.Count(string(intervals), "\n"); lines != report.IntervalCount {
		t.Fatalf("expected %d interval lines, got %d", report.IntervalCount, lines)
	}

	metrics, err := os.ReadFile(filepath.Join(dir, "out", "metrics.prom"))
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(metrics), `radio_burst_runs_total{status="ok",technology="LTE"} 1`) {
		t.Fatalf("expected run counter in metrics, got:\n%s", metrics)
	}

	s, err := store.Open(filepath.Join(dir, "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()
	runs, err := s.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != report.RunID || runs[0].Bursts != 9 {
		t.Fatalf("unexpected stored runs: %+v", runs)
	}
}

func TestRunTechnologyOverridesConfigProfile(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeTrace(t, dir, "periodic", 4)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{
		"-config", repoPath(t, "config/analyzer.yaml"),
		"-trace", tracePath,
		"-technology", "wifi",
		"-schema", "",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}
	var report schema.BurstReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("decode stdout report: %v", err)
	}
	if report.Profile.Technology != "WiFi" {
		t.Fatalf("expected WiFi profile, got %s", report.Profile.Technology)
	}
}

func TestRunDeliversWebhook(t *testing.T) {
	dir := t.TempDir()
	tracePath := writeTrace(t, dir, "tcp_loss", 3)
	var signature string
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get("X-Webhook-Signature")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-config", filepath.Join(dir, "missing.yaml"),
		"-trace", tracePath,
		"-schema", "",
		"-out", filepath.Join(dir, "report.json"),
		"-webhook-url", server.URL,
		"-webhook-secret", "s3cret",
		"-webhook-strict",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "config not loaded") {
		t.Fatalf("expected config warning, got %s", stderr.String())
	}
	if !webhook.VerifyHMAC(body, "s3cret", signature) {
		t.Fatal("expected signed webhook payload")
	}
	var summary schema.RunSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Bursts != 3 || summary.Categories["TCP_LOSS_OR_DUP"] != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestRunFlagErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-config", "missing.yaml"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2 without -trace, got %d", code)
	}
	if code := run(context.Background(), []string{"-unknown"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2 for unknown flag, got %d", code)
	}

	dir := t.TempDir()
	tracePath := writeTrace(t, dir, "periodic", 3)
	code := run(context.Background(), []string{
		"-config", "missing.yaml",
		"-trace", tracePath,
		"-schema", "",
		"-out", filepath.Join(dir, "r.json"),
		"-filter-begin", "20",
		"-filter-end", "10",
	}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1 for inverted filter, got %d", code)
	}
	if !strings.Contains(stderr.String(), "failed to analyze trace") {
		t.Fatalf("expected analyze failure, got %s", stderr.String())
	}
}

func TestResolveConfigPath(t *testing.T) {
	cases := map[string][]string{
		"a.yaml":        {"-config", "a.yaml"},
		"b.yaml":        {"--config=b.yaml"},
		"c.yaml":        {"-trace", "x", "--config", "c.yaml"},
		"fallback.yaml": {"-trace", "x"},
	}
	for want, args := range cases {
		if got := resolveConfigPath(args, "fallback.yaml"); got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}
