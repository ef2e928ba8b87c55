package metrics

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type source interface {
	Snapshot() Snapshot
}

type observedCounter struct {
	id         Counter
	instrument metric.Int64ObservableCounter
}

// OTelExporter publishes the gate counters through an OpenTelemetry meter.
type OTelExporter struct {
	source       source
	counters     []observedCounter
	registration metric.Registration
}

func NewOTelExporter(meter metric.Meter, src source) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if src == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{
		source:   src,
		counters: make([]observedCounter, 0, len(Defs)),
	}
	observables := make([]metric.Observable, 0, len(Defs))
	for _, def := range Defs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.Snapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	exporter.registration = registration
	return exporter, nil
}

func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
