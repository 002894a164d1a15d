package engine

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/burst"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/observability"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/profile"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/rrc"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/semconv"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/trace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func uplinkSession(id, host string, times ...float64) trace.Session {
	s := trace.Session{ID: id, Host: host}
	for _, ts := range times {
		s.Packets = append(s.Packets, trace.Packet{Timestamp: ts, Direction: trace.Uplink, PayloadLen: 200, TCPInfo: trace.TCPData})
	}
	return s
}

func nineBurstTrace() trace.Trace {
	return trace.Trace{
		Sessions: []trace.Session{
			uplinkSession("a", "sync.example.com", 0, 10.2, 20.1, 30.3, 40.2),
			uplinkSession("b", "ads.example.com", 5, 15.4, 25.1, 35.6),
		},
		Duration: 60,
	}
}

func lteProfile(t *testing.T) *profile.Profile {
	t.Helper()
	p, err := profile.Default(profile.TechnologyLTE)
	if err != nil {
		t.Fatalf("default profile: %v", err)
	}
	p.CloseSpacedBurstThreshold = -50
	return &p
}

func TestAnalyzeRejectsMissingProfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	eng := New(Config{Metrics: metrics})
	if _, err := eng.Analyze(context.Background(), nineBurstTrace(), nil, trace.Filter{}); !errors.Is(err, ErrMissingProfile) {
		t.Fatalf("expected ErrMissingProfile, got %v", err)
	}
	if got := testutil.ToFloat64(metrics.Runs.WithLabelValues("unknown", "error")); got != 1 {
		t.Fatalf("expected failed run to be counted, got %v", got)
	}
}

func TestAnalyzeRejectsInvalidProfileBeforeAnyStage(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	eng := New(Config{TracerProvider: tp})

	prof := lteProfile(t)
	prof.BurstThreshold = 0
	if _, err := eng.Analyze(context.Background(), nineBurstTrace(), prof, trace.Filter{}); !errors.Is(err, profile.ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}
	if ended := recorder.Ended(); len(ended) != 0 {
		t.Fatalf("expected no stage spans, got %d", len(ended))
	}
}

func TestAnalyzeEmptyTrace(t *testing.T) {
	eng := New(Config{})
	res, err := eng.Analyze(context.Background(), trace.Trace{}, lteProfile(t), trace.Filter{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(res.Analysis.Bursts) != 0 || res.Energy.Total != 0 || len(res.Intervals) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}

	res, err = eng.Analyze(context.Background(), trace.Trace{Duration: 30}, lteProfile(t), trace.Filter{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(res.Intervals) != 1 || res.Intervals[0].State != rrc.StateIdle {
		t.Fatalf("expected a single idle interval, got %+v", res.Intervals)
	}
	if res.Energy.Total <= 0 {
		t.Fatalf("expected idle energy to be positive, got %f", res.Energy.Total)
	}
}

func TestAnalyzeNineBurstScenario(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	eng := New(Config{Metrics: metrics, Workers: 2})

	res, err := eng.Analyze(context.Background(), nineBurstTrace(), lteProfile(t), trace.Filter{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	bursts := res.Analysis.Bursts
	if len(bursts) != 9 {
		t.Fatalf("expected 9 bursts, got %d", len(bursts))
	}

	periodic := 0
	sum := 0.0
	for idx, b := range bursts {
		if b.Index != idx {
			t.Fatalf("burst %d has index %d", idx, b.Index)
		}
		if b.Periodic {
			periodic++
			if b.Category != burst.CategoryPeriodical {
				t.Fatalf("periodic burst %d classified as %s", idx, b.Category)
			}
		}
		if b.UplinkSession < 0 {
			t.Fatalf("burst %d has no uplink session", idx)
		}
		sum += b.Energy
	}
	if periodic < 3 {
		t.Fatalf("expected at least 3 periodic bursts, got %d", periodic)
	}
	if math.Abs(sum-res.Analysis.TotalEnergy) > 1e-6 {
		t.Fatalf("burst energies sum to %f, total %f", sum, res.Analysis.TotalEnergy)
	}
	if res.TraceStart != 0 || res.TraceEnd != 60 {
		t.Fatalf("unexpected trace window [%f, %f]", res.TraceStart, res.TraceEnd)
	}
	if first, last := res.Intervals[0], res.Intervals[len(res.Intervals)-1]; first.Begin != 0 || last.End != 60 {
		t.Fatalf("intervals do not cover the trace: %+v .. %+v", first, last)
	}

	if got := testutil.ToFloat64(metrics.Runs.WithLabelValues("LTE", "ok")); got != 1 {
		t.Fatalf("expected one successful run, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.Bursts.WithLabelValues(string(burst.CategoryPeriodical))); got != float64(periodic) {
		t.Fatalf("expected %d periodic bursts counted, got %v", periodic, got)
	}
	if got := testutil.ToFloat64(metrics.Energy.WithLabelValues("LTE")); math.Abs(got-res.Energy.Total) > 1e-9 {
		t.Fatalf("expected energy gauge %f, got %f", res.Energy.Total, got)
	}
}

func TestAnalyzeIsDeterministicAcrossWorkerCounts(t *testing.T) {
	tr := nineBurstTrace()
	tr.Sessions = append(tr.Sessions, trace.Session{
		ID:   "c",
		Host: "cdn.example.com",
		Packets: []trace.Packet{
			{Timestamp: 12.0, Direction: trace.Downlink, PayloadLen: 1460, TCPInfo: trace.TCPData},
			{Timestamp: 11.0, Direction: trace.Downlink, PayloadLen: 1460, TCPInfo: trace.TCPData},
			{Timestamp: -1, Direction: trace.Downlink, PayloadLen: 10, TCPInfo: trace.TCPData},
		},
	})
	tr.UserEvents = []trace.UserEvent{{Time: 4.6, Kind: trace.EventTouch}}

	var baseline []byte
	for _, workers := range []int{1, 2, 4, 8} {
		res, err := New(Config{Workers: workers}).Analyze(context.Background(), tr, lteProfile(t), trace.Filter{})
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		encoded, err := json.Marshal(res)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if baseline == nil {
			baseline = encoded
			if len(res.Anomalies) != 2 {
				t.Fatalf("expected 2 anomalies, got %+v", res.Anomalies)
			}
			continue
		}
		if string(encoded) != string(baseline) {
			t.Fatalf("workers=%d produced a different result", workers)
		}
	}
}

func TestResultDecodesFromJSON(t *testing.T) {
	res, err := New(Config{}).Analyze(context.Background(), nineBurstTrace(), lteProfile(t), trace.Filter{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	encoded, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Result
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Intervals) != len(res.Intervals) || len(decoded.Energy.ByState) != len(res.Energy.ByState) {
		t.Fatalf("decoded result lost intervals or state energy: %+v", decoded)
	}
	for idx := range res.Intervals {
		if decoded.Intervals[idx].State != res.Intervals[idx].State {
			t.Fatalf("interval %d state %v decoded as %v", idx, res.Intervals[idx].State, decoded.Intervals[idx].State)
		}
	}
	for idx := range res.Energy.ByState {
		if decoded.Energy.ByState[idx].State != res.Energy.ByState[idx].State {
			t.Fatalf("state energy %d decoded as %v", idx, decoded.Energy.ByState[idx].State)
		}
	}
}

func TestAnalyzeRecordsStageSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	eng := New(Config{TracerProvider: tp})

	if _, err := eng.Analyze(context.Background(), nineBurstTrace(), lteProfile(t), trace.Filter{}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	seen := make(map[string]bool)
	for _, span := range recorder.Ended() {
		seen[span.Name()] = true
		if span.Name() != "analyze" {
			continue
		}
		attrs := make(map[string]int64)
		for _, kv := range span.Attributes() {
			if kv.Value.Type() == attribute.INT64 {
				attrs[string(kv.Key)] = kv.Value.AsInt64()
			}
		}
		if attrs[semconv.AttrBursts] != 9 {
			t.Fatalf("expected %s=9 on root span, got %v", semconv.AttrBursts, attrs)
		}
	}
	for _, name := range []string{"analyze", StagePrepare, StageSegment, StagePeriodicity, StageClassify, StageSimulate, StageEnergy} {
		if !seen[name] {
			t.Fatalf("expected span %s, got %v", name, seen)
		}
	}
}

func TestAnalyzeHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := New(Config{}).Analyze(ctx, nineBurstTrace(), lteProfile(t), trace.Filter{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(res.Analysis.Bursts) != 0 || len(res.Intervals) != 0 {
		t.Fatalf("expected no partial result, got %+v", res)
	}
}

func TestAnalyzeAppliesFilterWindow(t *testing.T) {
	res, err := New(Config{}).Analyze(context.Background(), nineBurstTrace(), lteProfile(t), trace.Filter{Begin: 9, End: 31})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.TraceStart != 9 || res.TraceEnd != 31 {
		t.Fatalf("expected window [9, 31], got [%f, %f]", res.TraceStart, res.TraceEnd)
	}
	for _, b := range res.Analysis.Bursts {
		if b.Begin < 9 || b.End > 31 {
			t.Fatalf("burst outside filter: %+v", b)
		}
	}
	if len(res.Analysis.Bursts) != 5 {
		t.Fatalf("expected 5 bursts inside [9, 31], got %d", len(res.Analysis.Bursts))
	}

	if _, err := New(Config{}).Analyze(context.Background(), nineBurstTrace(), lteProfile(t), trace.Filter{Begin: 10, End: 5}); err == nil {
		t.Fatal("expected inverted filter to be rejected")
	}
}
