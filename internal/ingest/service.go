// Package ingest drives samples through the scoring engine and persists the
// results: fetch state, score, store raw record, store state.
package ingest

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/talkincode/linkscore/config"
	"github.com/talkincode/linkscore/internal/domain"
	"github.com/talkincode/linkscore/internal/repository"
	"github.com/talkincode/linkscore/internal/scoring"
)

// ErrBatchTooLarge is returned by Handle for bodies above the configured batch size
var ErrBatchTooLarge = errors.New("batch too large")

// Summary outcome of one Handle call
type Summary struct {
	Received int `json:"received"`
	Scored   int `json:"scored"`
	Created  int `json:"created"`
	Failed   int `json:"failed"`
}

// Stats cumulative counters since start
type Stats struct {
	Scored       int64 `json:"scored"`
	Created      int64 `json:"created"`
	Malformed    int64 `json:"malformed"`
	StoreErrors  int64 `json:"store_errors"`
	SeriesErrors int64 `json:"series_errors"`
}

type Service struct {
	engine    *scoring.Engine
	scores    repository.ScoreStore
	raw       repository.RawStore
	series    repository.SeriesWriter
	pool      *ants.Pool
	locks     *keyLocks
	batchSize int
	logger    *zap.Logger

	scored       atomic.Int64
	created      atomic.Int64
	malformed    atomic.Int64
	storeErrors  atomic.Int64
	seriesErrors atomic.Int64
}

// NewService wires the engine to a backend. series may be nil.
func NewService(engine *scoring.Engine, backend repository.Backend, series repository.SeriesWriter, cfg config.IngestConfig, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("namespace", "ingest"))
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p interface{}) {
		logger.Error("ingest task panic", zap.Any("panic", p))
	}))
	if err != nil {
		return nil, errors.Wrap(err, "create ingest pool")
	}
	return &Service{
		engine:    engine,
		scores:    backend.Scores(),
		raw:       backend.RawRecords(),
		series:    series,
		pool:      pool,
		locks:     newKeyLocks(cfg.LockStripes),
		batchSize: cfg.BatchSize,
		logger:    logger,
	}, nil
}

// Ingest scores one sample and persists the raw record and the new state.
// Updates of the same key never interleave.
func (s *Service) Ingest(ctx context.Context, sample *domain.MetricSample) (*scoring.Result, error) {
	key := sample.Key()
	unlock := s.locks.lock(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var prior *domain.ScoreState
	st, err := s.scores.Get(ctx, key)
	switch {
	case err == nil:
		prior = st
	case errors.Is(err, repository.ErrNotFound):
	default:
		s.storeErrors.Add(1)
		return nil, errors.Wrapf(err, "fetch score state %s", key)
	}

	res := s.engine.Score(sample, prior)

	if err := s.raw.Put(ctx, &res.Raw); err != nil {
		s.storeErrors.Add(1)
		return nil, errors.Wrapf(err, "store raw record %s", sample.ID)
	}
	if err := s.scores.Put(ctx, &res.State); err != nil {
		s.storeErrors.Add(1)
		return nil, errors.Wrapf(err, "store score state %s", key)
	}

	if s.series != nil {
		if err := s.series.WriteSample(ctx, sample); err != nil {
			s.seriesErrors.Add(1)
			s.logger.Warn("write link series failed", zap.String("key", key), zap.Error(err))
		}
	}

	s.scored.Add(1)
	if res.Created {
		s.created.Add(1)
	}
	return &res, nil
}

// IngestLine parses and ingests one comma separated record
func (s *Service) IngestLine(ctx context.Context, line string) (*scoring.Result, error) {
	sample, err := domain.ParseSample(line)
	if err != nil {
		s.malformed.Add(1)
		return nil, err
	}
	return s.Ingest(ctx, sample)
}

// Handle processes a newline separated body of records. Malformed lines and
// store failures are reported together; the other records are still scored.
// Records of one key keep their order; different keys run on the pool.
func (s *Service) Handle(ctx context.Context, body []byte) (Summary, error) {
	var (
		sum   Summary
		errs  error
		keys  []string
		byKey = map[string][]*domain.MetricSample{}
	)

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) == 1 && strings.TrimSpace(lines[0]) == "" {
		return sum, nil
	}
	if s.batchSize > 0 && len(lines) > s.batchSize {
		return sum, errors.Wrapf(ErrBatchTooLarge, "%d records, limit %d", len(lines), s.batchSize)
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		sum.Received++
		sample, err := domain.ParseSample(line)
		if err != nil {
			s.malformed.Add(1)
			sum.Failed++
			errs = multierr.Append(errs, errors.WithMessagef(err, "line %d", i+1))
			continue
		}
		k := sample.Key()
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], sample)
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(res *scoring.Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			sum.Failed++
			errs = multierr.Append(errs, err)
			return
		}
		sum.Scored++
		if res.Created {
			sum.Created++
		}
	}

	for _, k := range keys {
		samples := byKey[k]
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			for _, sample := range samples {
				record(s.Ingest(ctx, sample))
			}
		})
		if err != nil {
			wg.Done()
			for range samples {
				record(nil, errors.Wrapf(err, "submit %s", k))
			}
		}
	}
	wg.Wait()

	if sum.Failed > 0 {
		s.logger.Warn("batch finished with failures",
			zap.Int("received", sum.Received),
			zap.Int("scored", sum.Scored),
			zap.Int("failed", sum.Failed))
	}
	return sum, errs
}

func (s *Service) Stats() Stats {
	return Stats{
		Scored:       s.scored.Load(),
		Created:      s.created.Load(),
		Malformed:    s.malformed.Load(),
		StoreErrors:  s.storeErrors.Load(),
		SeriesErrors: s.seriesErrors.Load(),
	}
}

func (s *Service) Close() {
	s.pool.Release()
}
