package metrics

import (
	"context"
	"sort"

	"github.com/prometheus/prometheus/prompb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

// Series names pushed for every reading.
const (
	TemperatureSeries       = "vitals_temperature_celsius"
	RiskScoreSeries         = "vitals_risk_score"
	LiferateSeries          = "vitals_liferate"
	RegisteredSensorsSeries = "vitals_registered_sensors"
)

// BuildVitalsTimeSeries converts readings into remote-write series. labels
// are attached to every series. Readings without a valid sample contribute
// only the liferate and registered sensor series.
func BuildVitalsTimeSeries(ctx context.Context, readings []types.Reading, labels map[string]string) []prompb.TimeSeries {
	_, span := otel.Tracer("metrics").Start(ctx, "metrics.BuildVitalsTimeSeries")
	defer span.End()

	var temperature, score, liferate, registered []prompb.Sample
	for _, r := range readings {
		ts := r.Timestamp.UnixMilli()
		if r.SampleValid {
			temperature = append(temperature, prompb.Sample{Value: r.TemperatureCelsius, Timestamp: ts})
			score = append(score, prompb.Sample{Value: float64(r.Score), Timestamp: ts})
		}
		liferate = append(liferate, prompb.Sample{Value: float64(r.LiferateCode), Timestamp: ts})
		registered = append(registered, prompb.Sample{Value: float64(r.RegisteredSensors), Timestamp: ts})
	}

	var series []prompb.TimeSeries
	for _, s := range []struct {
		name    string
		samples []prompb.Sample
	}{
		{TemperatureSeries, temperature},
		{RiskScoreSeries, score},
		{LiferateSeries, liferate},
		{RegisteredSensorsSeries, registered},
	} {
		if len(s.samples) == 0 {
			continue
		}
		series = append(series, prompb.TimeSeries{
			Labels:  seriesLabels(s.name, labels),
			Samples: s.samples,
		})
	}

	span.SetAttributes(
		attribute.Int("metrics.readings", len(readings)),
		attribute.Int("metrics.time_series_count", len(series)),
	)
	return series
}

// seriesLabels returns __name__ followed by labels sorted by name, as
// remote-write receivers expect.
func seriesLabels(name string, labels map[string]string) []prompb.Label {
	out := make([]prompb.Label, 0, len(labels)+1)
	out = append(out, prompb.Label{Name: "__name__", Value: name})

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, prompb.Label{Name: k, Value: labels[k]})
	}
	return out
}
