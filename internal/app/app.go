package app

import (
	"context"
	"os"
	"path"
	"time"
	_ "time/tzdata"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/talkincode/linkscore/config"
	"github.com/talkincode/linkscore/internal/domain"
	"github.com/talkincode/linkscore/internal/ingest"
	"github.com/talkincode/linkscore/internal/repository"
	"github.com/talkincode/linkscore/internal/repository/boltstore"
	"github.com/talkincode/linkscore/internal/repository/sqlstore"
	"github.com/talkincode/linkscore/internal/scoring"
	"github.com/talkincode/linkscore/pkg/metrics"
)

type Application struct {
	appConfig *config.AppConfig
	backend   repository.Backend
	tsdb      *metrics.Store
	series    *repository.TsdbSeries
	engine    *scoring.Engine
	ingest    *ingest.Service
	sched     *cron.Cron
}

// Ensure Application implements all interfaces
var (
	_ ConfigProvider    = (*Application)(nil)
	_ StoreProvider     = (*Application)(nil)
	_ SeriesProvider    = (*Application)(nil)
	_ IngestProvider    = (*Application)(nil)
	_ SchedulerProvider = (*Application)(nil)
	_ AppContext        = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) Backend() repository.Backend {
	return a.backend
}

// Series returns nil when the time-series store is disabled
func (a *Application) Series() repository.SeriesReader {
	if a.series == nil {
		return nil
	}
	return a.series
}

func (a *Application) Ingest() *ingest.Service {
	return a.ingest
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

// OverrideBackend replaces the key-value backend (used in tests).
func (a *Application) OverrideBackend(b repository.Backend) {
	a.backend = b
}

// OverrideIngest replaces the ingest service (used in tests).
func (a *Application) OverrideIngest(svc *ingest.Service) {
	a.ingest = svc
}

// OverrideSeries replaces the link series store (used in tests).
func (a *Application) OverrideSeries(s *repository.TsdbSeries) {
	a.series = s
}

func (a *Application) Init(cfg *config.AppConfig) error {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	initLogger(cfg)

	// Runtime gauges live in their own store next to the link series
	err = metrics.InitMetrics(path.Join(cfg.GetTsdbDir(), "runtime"))
	if err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}

	if cfg.Tsdb.Enabled {
		a.tsdb, err = metrics.Open(path.Join(cfg.GetTsdbDir(), "links"),
			time.Duration(cfg.Tsdb.RetentionDays)*24*time.Hour,
			time.Duration(cfg.Tsdb.PartitionHour)*time.Hour)
		if err != nil {
			return errors.Wrap(err, "open link series store")
		}
		a.series = repository.NewTsdbSeries(a.tsdb)
	}

	a.backend, err = openBackend(cfg)
	if err != nil {
		return err
	}
	zap.S().Infof("Kv store ready, backend: %s", a.backend.Name())

	a.engine = scoring.NewEngine(scoring.ThresholdsFromConfig(cfg.Scoring), zap.L())

	var writer repository.SeriesWriter
	if a.series != nil {
		writer = a.series
	}
	a.ingest, err = ingest.NewService(a.engine, a.backend, writer, cfg.Ingest, zap.L())
	if err != nil {
		return err
	}

	a.initJob()
	return nil
}

func initLogger(cfg *config.AppConfig) {
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.OutputPaths = []string{"stdout"}
	if cfg.Logger.FileEnable {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, cfg.Logger.Filename)
	}

	// Build logger with file rotation if enabled
	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger)
}

func openBackend(cfg *config.AppConfig) (repository.Backend, error) {
	kv := cfg.Kvstore
	switch kv.Backend {
	case "sql":
		return sqlstore.Open(cfg.Database, cfg.System.Workdir, kv.ScoreTable, kv.RawTable)
	case "bolt":
		if err := os.MkdirAll(cfg.GetDataDir(), 0o755); err != nil {
			return nil, errors.Wrap(err, "create data dir")
		}
		return boltstore.Open(path.Join(cfg.GetDataDir(), "linkscore.kv"), kv.ScoreTable, kv.RawTable)
	default:
		return nil, errors.Errorf("unknown kvstore backend %q", kv.Backend)
	}
}

// HandleRecords scores a newline separated body of records, as posted to
// /api/v1/records.
func (a *Application) HandleRecords(ctx context.Context, body []byte) (ingest.Summary, error) {
	if a.ingest == nil {
		return ingest.Summary{}, errors.New("ingest service not initialized")
	}
	return a.ingest.Handle(ctx, body)
}

// PurgeRawRecords drops raw partitions older than the retention window.
// A retention of zero keeps everything.
func (a *Application) PurgeRawRecords(ctx context.Context) (int, error) {
	days := a.appConfig.Kvstore.RawRetentionDays
	if days <= 0 {
		return 0, nil
	}
	now := time.Now().In(domain.ScoreZone)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -days)
	n, err := a.backend.RawRecords().DeletePartitionsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	zap.L().Info("raw partitions purged",
		zap.String("namespace", "jobs"),
		zap.Int("removed", n),
		zap.Time("cutoff", cutoff))
	return n, nil
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.ingest != nil {
		a.ingest.Close()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			zap.L().Error("close kv store", zap.Error(err))
		}
	}
	if a.tsdb != nil {
		if err := a.tsdb.Close(); err != nil {
			zap.L().Error("close link series store", zap.Error(err))
		}
	}
	_ = metrics.Close()
	_ = zap.L().Sync()
}
