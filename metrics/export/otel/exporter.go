package otel

import (
	"context"
	"errors"
	"fmt"

	medauth "github.com/sentinelmed/medauth"
	"github.com/sentinelmed/medauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter is returned when the exporter is constructed without a meter.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is returned when the exporter is constructed without a
	// metrics source.
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() medauth.MetricsSnapshot
	AuditDropped() uint64
}

type boundCounter struct {
	id         medauth.MetricID
	instrument metric.Int64ObservableCounter
}

type boundHistogram struct {
	id      medauth.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter bridges the engine's in-process counters to OpenTelemetry
// observable instruments. All instruments share one registered callback that
// reads a single snapshot per collection, so a scrape observes a consistent
// set of values.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []boundCounter
	histograms   []boundHistogram
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers the engine's metrics on the given meter.
func NewOTelExporter(meter metric.Meter, engine *medauth.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource is the testable constructor: it accepts anything
// that can produce snapshots, not just a full engine.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}

	// counters + (8 buckets + count) per histogram + the audit drop counter
	observables := make([]metric.Observable, 0,
		len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*9+1)

	var err error
	if observables, err = e.bindCounters(meter, observables); err != nil {
		return nil, err
	}
	if observables, err = e.bindHistograms(meter, observables); err != nil {
		return nil, err
	}

	e.auditDropped, err = meter.Int64ObservableCounter(
		"medauth_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) bindCounters(meter metric.Meter, observables []metric.Observable) ([]metric.Observable, error) {
	e.counters = make([]boundCounter, 0, len(internaldefs.CounterDefs))
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, boundCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}
	return observables, nil
}

func (e *OTelExporter) bindHistograms(meter metric.Meter, observables []metric.Observable) ([]metric.Observable, error) {
	e.histograms = make([]boundHistogram, 0, len(internaldefs.HistogramDefs))
	for _, def := range internaldefs.HistogramDefs {
		h := boundHistogram{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}

		count, err := meter.Int64ObservableGauge(
			def.Name+"_count",
			metric.WithDescription("Histogram total sample count."),
		)
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s_count: %w", def.Name, err)
		}
		h.count = count
		observables = append(observables, h.count)
		e.histograms = append(e.histograms, h)
	}
	return observables, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, c := range e.counters {
		observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i, v := range cumulative {
			observer.ObserveInt64(h.buckets[i], int64(v))
		}
		// +Inf bucket doubles as the total sample count.
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback. Safe on a nil receiver.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
