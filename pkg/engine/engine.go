package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/burst"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/classify"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/energy"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/logging"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/observability"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/periodicity"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/profile"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/rrc"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/semconv"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/timeline"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/trace"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrMissingProfile is returned when Analyze is called without a profile.
var ErrMissingProfile = errors.New("missing technology profile")

// Stage names, also used as span names and metric labels.
const (
	StagePrepare     = "timeline.prepare"
	StageSegment     = "timeline.segment"
	StagePeriodicity = "periodicity.detect"
	StageClassify    = "classify"
	StageSimulate    = "rrc.simulate"
	StageEnergy      = "energy.integrate"
)

const instrumentationName = "github.com/ogulcanaydogan/radio-burst-toolkit/pkg/engine"

// Config wires the engine's collaborators. Zero values fall back to no-ops.
type Config struct {
	Logger         logging.Logger
	Metrics        *observability.Metrics
	TracerProvider oteltrace.TracerProvider
	Workers        int
}

// Engine runs the burst analysis pipeline. It holds no per-run state, so one
// Engine may serve concurrent Analyze calls.
type Engine struct {
	log     logging.Logger
	metrics *observability.Metrics
	tracer  oteltrace.Tracer
	workers int
}

// Result is the full outcome of one analysis run.
type Result struct {
	Analysis   burst.AnalysisData `json:"analysis"`
	Energy     energy.Model       `json:"energy"`
	Intervals  []rrc.Interval     `json:"intervals"`
	Anomalies  []timeline.Anomaly `json:"anomalies"`
	TraceStart float64            `json:"trace_start"`
	TraceEnd   float64            `json:"trace_end"`
}

// New constructs an Engine.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = logging.Noop()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		log:     log.With(logging.String("component", "engine")),
		metrics: cfg.Metrics,
		tracer:  tp.Tracer(instrumentationName),
		workers: workers,
	}
}

// Analyze segments a trace into bursts, classifies them, simulates the radio
// and attributes energy. Cancellation between stages discards all output.
func (e *Engine) Analyze(ctx context.Context, tr trace.Trace, prof *profile.Profile, filter trace.Filter) (Result, error) {
	if prof == nil {
		e.metrics.RecordRun("unknown", "error")
		return Result{}, ErrMissingProfile
	}
	tech := string(prof.Technology)
	res, err := e.analyze(ctx, tr, prof, filter)
	if err != nil {
		e.metrics.RecordRun(tech, "error")
		e.log.Warn(ctx, "analysis failed", logging.String("technology", tech), logging.Err(err))
		return Result{}, err
	}

	e.metrics.RecordRun(tech, "ok")
	counts := make(map[string]int)
	for c, n := range res.Analysis.CountByCategory() {
		counts[string(c)] = n
	}
	e.metrics.AddBursts(counts)
	for _, a := range res.Anomalies {
		e.metrics.AddAnomaly(string(a.Kind))
	}
	e.metrics.SetRunTotals(tech, res.Energy.Total, res.Analysis.Periodicity.DistinctGroups)
	return res, nil
}

func (e *Engine) analyze(ctx context.Context, tr trace.Trace, prof *profile.Profile, filter trace.Filter) (Result, error) {
	if err := prof.Validate(); err != nil {
		return Result{}, err
	}
	if err := filter.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid filter: %w", err)
	}
	table, err := rrc.NewTable(prof.Technology, prof.Radio)
	if err != nil {
		return Result{}, err
	}

	ctx, span := e.tracer.Start(ctx, "analyze", oteltrace.WithAttributes(
		attribute.String(semconv.AttrTechnology, string(prof.Technology)),
		attribute.Int(semconv.AttrSessions, len(tr.Sessions)),
		attribute.Int(semconv.AttrPackets, tr.PacketCount()),
	))
	defer span.End()

	var (
		tl        timeline.Timeline
		spans     []timeline.Span
		periodic  periodicity.Result
		decisions []classify.Decision
		intervals []rrc.Interval
		model     energy.Model
	)

	err = e.stage(ctx, StagePrepare, func(ctx context.Context) error {
		var err error
		tl, err = timeline.Prepare(ctx, tr.Sessions, filter, e.workers)
		return err
	})
	if err != nil {
		return Result{}, e.fail(span, err)
	}
	start, end := traceWindow(tr, tl, filter)

	err = e.stage(ctx, StageSegment, func(context.Context) error {
		spans = timeline.Segment(tl, prof.BurstThreshold, timeline.DetectMSS(tl))
		return nil
	})
	if err != nil {
		return Result{}, e.fail(span, err)
	}

	err = e.stage(ctx, StagePeriodicity, func(ctx context.Context) error {
		var err error
		periodic, err = periodicity.Detect(ctx, tl, spans, tr.Sessions, periodicity.ParamsFromProfile(*prof), e.workers)
		return err
	})
	if err != nil {
		return Result{}, e.fail(span, err)
	}

	err = e.stage(ctx, StageClassify, func(context.Context) error {
		decisions = classify.Classify(classify.Input{
			Timeline:   tl,
			Spans:      spans,
			Periodic:   periodic.Flags,
			Sessions:   tr.Sessions,
			UserEvents: tr.UserEvents,
			CPU:        tr.CPU,
			TraceStart: start,
			Params:     classify.ParamsFromProfile(*prof),
		})
		return nil
	})
	if err != nil {
		return Result{}, e.fail(span, err)
	}

	err = e.stage(ctx, StageSimulate, func(context.Context) error {
		var err error
		intervals, err = rrc.Simulate(table, spans, start, end)
		return err
	})
	if err != nil {
		return Result{}, e.fail(span, err)
	}

	categories := make([]burst.Category, len(decisions))
	for idx, d := range decisions {
		categories[idx] = d.Category
	}
	err = e.stage(ctx, StageEnergy, func(context.Context) error {
		model = energy.Integrate(intervals, spans, categories, table, start, end)
		return nil
	})
	if err != nil {
		return Result{}, e.fail(span, err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, e.fail(span, err)
	}

	bursts := assemble(tl, spans, decisions, periodic.Flags, model)
	analysis := burst.AnalysisData{
		Bursts:         bursts,
		TotalEnergy:    model.Total,
		LongBurstCount: classify.LongCount(decisions),
		Categories:     burst.Summarize(bursts),
		Periodicity:    periodic.Summary(),
		Stats:          burst.ComputeStats(bursts),
	}
	if intervals == nil {
		intervals = []rrc.Interval{}
	}
	anomalies := tl.Anomalies
	if anomalies == nil {
		anomalies = []timeline.Anomaly{}
	}

	if len(anomalies) > 0 {
		e.log.Warn(ctx, "trace contains anomalies",
			logging.Int("anomalies", len(anomalies)),
			logging.String("first_kind", string(anomalies[0].Kind)),
		)
	}
	span.SetAttributes(
		attribute.Float64(semconv.AttrTraceStart, start),
		attribute.Float64(semconv.AttrTraceEnd, end),
		attribute.Int(semconv.AttrAnomalies, len(anomalies)),
		attribute.Int(semconv.AttrBursts, len(bursts)),
		attribute.Int(semconv.AttrLongBursts, analysis.LongBurstCount),
		attribute.Int(semconv.AttrPeriodicGroups, periodic.DistinctGroups),
		attribute.Int(semconv.AttrIntervals, len(intervals)),
		attribute.Float64(semconv.AttrEnergyJoules, model.Total),
	)
	e.log.Info(ctx, "analysis complete",
		logging.String("technology", string(prof.Technology)),
		logging.Int("bursts", len(bursts)),
		logging.Int("anomalies", len(anomalies)),
		logging.Int("periodic_groups", periodic.DistinctGroups),
		logging.Float("energy_joules", model.Total),
	)
	return Result{
		Analysis:   analysis,
		Energy:     model,
		Intervals:  intervals,
		Anomalies:  anomalies,
		TraceStart: start,
		TraceEnd:   end,
	}, nil
}

func (e *Engine) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := e.tracer.Start(ctx, name)
	defer span.End()

	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started).Seconds()
	e.metrics.ObserveStage(name, elapsed)
	e.log.Debug(ctx, "stage finished", logging.String("stage", name), logging.Duration("seconds", elapsed))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (e *Engine) fail(span oteltrace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// traceWindow returns the simulated time range. It opens at the filter begin
// and closes at the later of the capture duration and the last kept packet,
// clipped to a filter end when one is set.
func traceWindow(tr trace.Trace, tl timeline.Timeline, filter trace.Filter) (float64, float64) {
	start := filter.Begin
	end := math.Max(tr.Duration, tl.LastTimestamp())
	if filter.End > 0 && filter.End < end {
		end = filter.End
	}
	if end < start {
		end = start
	}
	return start, end
}

func assemble(tl timeline.Timeline, spans []timeline.Span, decisions []classify.Decision, periodic []bool, model energy.Model) []burst.Burst {
	out := make([]burst.Burst, len(spans))
	for idx, s := range spans {
		uplink := -1
		if arenaIdx, ok := timeline.FirstUplink(tl, s); ok {
			uplink = tl.Packets[arenaIdx].Ref.Session
		}
		out[idx] = burst.Burst{
			Index:         idx,
			Begin:         s.Begin,
			End:           s.End,
			FirstPacket:   s.First,
			PacketCount:   s.Count,
			Category:      decisions[idx].Category,
			Periodic:      periodic[idx],
			Long:          decisions[idx].Long,
			Payload:       s.Payload,
			UplinkSession: uplink,
			Energy:        model.BurstEnergy[idx],
			ActiveTime:    model.BurstActive[idx],
		}
	}
	return out
}
