// Package metrics time-series storage on tstorage. A process wide default
// store carries the runtime gauges; link series use their own Store.
package metrics

import (
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Label = tstorage.Label

// Point one data point, timestamp in milliseconds
type Point struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// Store millisecond precision tstorage wrapper
type Store struct {
	storage tstorage.Storage
}

// Open creates a store persisted under dir, or an in-memory one when dir is empty
func Open(dir string, retention, partition time.Duration) (*Store, error) {
	opts := []tstorage.Option{
		tstorage.WithTimestampPrecision(tstorage.Milliseconds),
		tstorage.WithWriteTimeout(5 * time.Second),
	}
	if dir != "" {
		opts = append(opts, tstorage.WithDataPath(dir))
	}
	if retention > 0 {
		opts = append(opts, tstorage.WithRetention(retention))
	}
	if partition > 0 {
		opts = append(opts, tstorage.WithPartitionDuration(partition))
	}
	storage, err := tstorage.NewStorage(opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "open tsdb %q", dir)
	}
	return &Store{storage: storage}, nil
}

// Insert writes one point of metric with labels
func (s *Store) Insert(metric string, labels []Label, ts int64, value float64) error {
	return s.InsertRows([]tstorage.Row{{
		Metric:    metric,
		Labels:    labels,
		DataPoint: tstorage.DataPoint{Timestamp: ts, Value: value},
	}})
}

func (s *Store) InsertRows(rows []tstorage.Row) error {
	if len(rows) == 0 {
		return nil
	}
	return errors.Wrap(s.storage.InsertRows(rows), "insert tsdb rows")
}

// Select returns points in [start, end). An empty range is not an error.
func (s *Store) Select(metric string, labels []Label, start, end int64) ([]Point, error) {
	dps, err := s.storage.Select(metric, labels, start, end)
	if errors.Is(err, tstorage.ErrNoDataPoints) {
		return []Point{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "select %s", metric)
	}
	out := make([]Point, 0, len(dps))
	for _, dp := range dps {
		out = append(out, Point{Timestamp: dp.Timestamp, Value: dp.Value})
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.storage.Close()
}

var (
	defaultMu    sync.RWMutex
	defaultStore *Store
)

// InitMetrics opens the default runtime gauge store in dir
func InitMetrics(dir string) error {
	s, err := Open(dir, 7*24*time.Hour, time.Hour)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defaultStore = s
	defaultMu.Unlock()
	return nil
}

// Default returns the default store, nil before InitMetrics
func Default() *Store {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultStore
}

// SetGauge records value for name at the current time on the default store
func SetGauge(name string, value int64) {
	s := Default()
	if s == nil {
		return
	}
	if err := s.Insert(name, nil, time.Now().UnixMilli(), float64(value)); err != nil {
		zap.L().Warn("set gauge failed", zap.String("namespace", "metrics"), zap.String("name", name), zap.Error(err))
	}
}

func Close() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultStore == nil {
		return nil
	}
	err := defaultStore.Close()
	defaultStore = nil
	return err
}
