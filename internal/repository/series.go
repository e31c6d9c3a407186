package repository

import (
	"context"
	"math"

	"github.com/nakabonne/tstorage"

	"github.com/talkincode/linkscore/internal/domain"
	"github.com/talkincode/linkscore/pkg/metrics"
)

// Link series metric names
const (
	MetricUtilization = "utilization"
	MetricPacketRate  = "packet_rate"
	MetricLatency     = "latency"
)

// SeriesWriter receives the time series points of every scored sample
type SeriesWriter interface {
	WriteSample(ctx context.Context, s *domain.MetricSample) error
}

// SeriesReader reads one link series back
type SeriesReader interface {
	LinkSeries(ctx context.Context, linkID, direction, metric string, start, end int64) ([]metrics.Point, error)
}

// TsdbSeries link series on a metrics.Store, labelled by link_id and
// direction_of_traffic, millisecond timestamps.
type TsdbSeries struct {
	store *metrics.Store
}

func NewTsdbSeries(store *metrics.Store) *TsdbSeries {
	return &TsdbSeries{store: store}
}

func linkLabels(linkID, direction string) []metrics.Label {
	return []metrics.Label{
		{Name: "link_id", Value: linkID},
		{Name: "direction_of_traffic", Value: direction},
	}
}

// WriteSample writes utilization, packet_rate and latency. Samples without a
// latency reading or utilization percentage skip that point.
func (t *TsdbSeries) WriteSample(ctx context.Context, s *domain.MetricSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	labels := linkLabels(s.LinkID, s.Direction)
	ts := s.Timestamp * 1000
	row := func(metric string, v float64) tstorage.Row {
		return tstorage.Row{Metric: metric, Labels: labels, DataPoint: tstorage.DataPoint{Timestamp: ts, Value: v}}
	}

	rows := []tstorage.Row{row(MetricPacketRate, float64(s.PktRate))}
	if !math.IsNaN(s.UtilPer) {
		rows = append(rows, row(MetricUtilization, s.UtilPer))
	}
	if s.Latency != domain.LatencyNoReading {
		rows = append(rows, row(MetricLatency, s.Latency))
	}
	return t.store.InsertRows(rows)
}

func (t *TsdbSeries) LinkSeries(ctx context.Context, linkID, direction, metric string, start, end int64) ([]metrics.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.store.Select(metric, linkLabels(linkID, direction), start, end)
}
