package sqlstore

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/talkincode/linkscore/config"
	"github.com/talkincode/linkscore/internal/domain"
	"github.com/talkincode/linkscore/internal/repository"
	"github.com/talkincode/linkscore/internal/repository/kvwire"
)

// rawRow raw record row; the kv envelope is kept whole in Item so the
// table stays stable when the sample layout grows.
type rawRow struct {
	PartPath   string `gorm:"column:part_path;primaryKey;size:64"`
	ID         string `gorm:"primaryKey;size:191"`
	Year       int    `gorm:"index:idx_raw_day,priority:1"`
	Month      int    `gorm:"index:idx_raw_day,priority:2"`
	Day        int    `gorm:"index:idx_raw_day,priority:3"`
	TotalScore int
	Item       string `gorm:"type:text"`
}

type rawDay struct {
	PartPath string `gorm:"column:part_path"`
	Year     int
	Month    int
	Day      int
}

// Store gorm implementation of repository.Backend
type Store struct {
	db         *gorm.DB
	scoreTable string
	rawTable   string
}

var (
	_ repository.Backend    = (*Store)(nil)
	_ repository.ScoreStore = (*scoreStore)(nil)
	_ repository.RawStore   = (*rawStore)(nil)
)

// Open connects to the configured database and migrates both tables
func Open(cfg config.DBConfig, workdir, scoreTable, rawTable string) (*Store, error) {
	db, err := getDatabase(cfg, workdir)
	if err != nil {
		return nil, err
	}
	return New(db, scoreTable, rawTable)
}

// New wraps an open connection and migrates both tables
func New(db *gorm.DB, scoreTable, rawTable string) (*Store, error) {
	s := &Store{db: db, scoreTable: scoreTable, rawTable: rawTable}
	if err := db.Table(scoreTable).AutoMigrate(&domain.ScoreState{}); err != nil {
		return nil, errors.Wrapf(err, "migrate %s", scoreTable)
	}
	if err := db.Table(rawTable).AutoMigrate(&rawRow{}); err != nil {
		return nil, errors.Wrapf(err, "migrate %s", rawTable)
	}
	return s, nil
}

func getDatabase(cfg config.DBConfig, workdir string) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if cfg.Debug {
		gcfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dbfile := cfg.Name
		if !filepath.IsAbs(dbfile) {
			dbfile = path.Join(workdir, "data", dbfile)
		}
		dialector = sqlite.Open(dbfile)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Passwd, cfg.Name)
		dialector = postgres.Open(dsn)
	default:
		return nil, errors.Errorf("unsupported database type %q", cfg.Type)
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", cfg.Type)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "database handle")
	}
	if cfg.Type == "sqlite" {
		// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxConn)
		sqlDB.SetMaxIdleConns(cfg.IdleConn)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	zap.L().Info("sql kv store connected",
		zap.String("namespace", "kvstore"),
		zap.String("type", cfg.Type),
		zap.String("name", cfg.Name))
	return db, nil
}

func (s *Store) Name() string {
	return "sql"
}

func (s *Store) Scores() repository.ScoreStore {
	return &scoreStore{s}
}

func (s *Store) RawRecords() repository.RawStore {
	return &rawStore{s}
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type scoreStore struct{ *Store }

func (s *scoreStore) Get(ctx context.Context, key string) (*domain.ScoreState, error) {
	var st domain.ScoreState
	err := s.db.WithContext(ctx).Table(s.scoreTable).Where("id = ?", key).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get score %s", key)
	}
	return &st, nil
}

func (s *scoreStore) Put(ctx context.Context, st *domain.ScoreState) error {
	err := s.db.WithContext(ctx).Table(s.scoreTable).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(st).Error
	return errors.Wrapf(err, "put score %s", st.ID)
}

func (s *scoreStore) List(ctx context.Context, filter repository.ScoreFilter, page, pageSize int) ([]*domain.ScoreState, int64, error) {
	page, pageSize = repository.NormalizePage(page, pageSize)

	query := s.db.WithContext(ctx).Table(s.scoreTable).Where("total_score >= ?", filter.MinTotal)
	if filter.LinkID != "" {
		query = query.Where("link_id = ?", filter.LinkID)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count scores")
	}
	var out []*domain.ScoreState
	err := query.Order("id").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list scores")
	}
	return out, total, nil
}

type rawStore struct{ *Store }

func (s *rawStore) Put(ctx context.Context, rec *domain.RawRecord) error {
	data, err := kvwire.EncodeRawRecord(rec)
	if err != nil {
		return errors.Wrapf(err, "encode raw %s", rec.ID)
	}
	row := &rawRow{
		PartPath:   rec.Partition(),
		ID:         rec.ID,
		Year:       rec.Year,
		Month:      rec.Month,
		Day:        rec.Day,
		TotalScore: rec.TotalScore,
		Item:       string(data),
	}
	err = s.db.WithContext(ctx).Table(s.rawTable).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(row).Error
	return errors.Wrapf(err, "put raw %s%s", row.PartPath, row.ID)
}

func (s *rawStore) ListPartition(ctx context.Context, year, month, day int, page, pageSize int) ([]*domain.RawRecord, int64, error) {
	page, pageSize = repository.NormalizePage(page, pageSize)
	query := s.db.WithContext(ctx).Table(s.rawTable).
		Where("part_path = ?", domain.PartitionPath(year, month, day)).
		Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count raw partition")
	}
	var rows []rawRow
	err := query.Order("id").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list raw partition")
	}
	out := make([]*domain.RawRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := kvwire.DecodeRawRecord([]byte(row.Item))
		if err != nil {
			return nil, 0, errors.Wrapf(err, "raw %s%s", row.PartPath, row.ID)
		}
		out = append(out, rec)
	}
	return out, total, nil
}

func (s *rawStore) DeletePartitionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var days []rawDay
	err := s.db.WithContext(ctx).Table(s.rawTable).
		Distinct("part_path", "year", "month", "day").
		Find(&days).Error
	if err != nil {
		return 0, errors.Wrap(err, "list raw partitions")
	}
	var expired []string
	for _, d := range days {
		if repository.PartitionDay(d.Year, d.Month, d.Day).Before(cutoff) {
			expired = append(expired, d.PartPath)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	err = s.db.WithContext(ctx).Table(s.rawTable).
		Where("part_path IN ?", expired).
		Delete(&rawRow{}).Error
	if err != nil {
		return 0, errors.Wrap(err, "delete raw partitions")
	}
	return len(expired), nil
}
