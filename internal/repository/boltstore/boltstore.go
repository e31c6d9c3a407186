package boltstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/talkincode/linkscore/internal/domain"
	"github.com/talkincode/linkscore/internal/repository"
	"github.com/talkincode/linkscore/internal/repository/kvwire"
)

// Store bbolt implementation of repository.Backend. Score states live in a
// flat bucket; raw records in one nested bucket per day partition.
type Store struct {
	db          *bolt.DB
	scoreBucket []byte
	rawBucket   []byte
}

var (
	_ repository.Backend    = (*Store)(nil)
	_ repository.ScoreStore = (*scoreStore)(nil)
	_ repository.RawStore   = (*rawStore)(nil)
)

// Open opens (creating when missing) the database file and both top level buckets
func Open(path, scoreTable, rawTable string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt db %s", path)
	}
	s := &Store{db: db, scoreBucket: []byte(scoreTable), rawBucket: []byte(rawTable)}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(s.scoreBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(s.rawBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create bolt buckets")
	}
	zap.L().Info("bolt kv store opened",
		zap.String("namespace", "kvstore"),
		zap.String("path", path),
		zap.String("score_table", scoreTable),
		zap.String("raw_table", rawTable),
	)
	return s, nil
}

func (s *Store) Name() string {
	return "bolt"
}

func (s *Store) Scores() repository.ScoreStore {
	return &scoreStore{s}
}

func (s *Store) RawRecords() repository.RawStore {
	return &rawStore{s}
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scoreStore struct{ *Store }

func (s *scoreStore) Get(ctx context.Context, key string) (*domain.ScoreState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(s.scoreBucket).Get([]byte(key)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get score %s", key)
	}
	if data == nil {
		return nil, repository.ErrNotFound
	}
	return kvwire.DecodeScoreState(data)
}

func (s *scoreStore) Put(ctx context.Context, st *domain.ScoreState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := kvwire.EncodeScoreState(st)
	if err != nil {
		return errors.Wrapf(err, "encode score %s", st.ID)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.scoreBucket).Put([]byte(st.ID), data)
	})
	return errors.Wrapf(err, "put score %s", st.ID)
}

func (s *scoreStore) List(ctx context.Context, filter repository.ScoreFilter, page, pageSize int) ([]*domain.ScoreState, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	page, pageSize = repository.NormalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	var (
		out   []*domain.ScoreState
		total int64
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.scoreBucket).ForEach(func(k, v []byte) error {
			st, err := kvwire.DecodeScoreState(v)
			if err != nil {
				return errors.Wrapf(err, "score %s", k)
			}
			if filter.LinkID != "" && st.LinkID != filter.LinkID {
				return nil
			}
			if st.TotalScore < filter.MinTotal {
				return nil
			}
			if total >= int64(offset) && len(out) < pageSize {
				out = append(out, st)
			}
			total++
			return nil
		})
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "list scores")
	}
	return out, total, nil
}

type rawStore struct{ *Store }

func (s *rawStore) Put(ctx context.Context, rec *domain.RawRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := kvwire.EncodeRawRecord(rec)
	if err != nil {
		return errors.Wrapf(err, "encode raw %s", rec.ID)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		part, err := tx.Bucket(s.rawBucket).CreateBucketIfNotExists([]byte(rec.Partition()))
		if err != nil {
			return err
		}
		return part.Put([]byte(rec.ID), data)
	})
	return errors.Wrapf(err, "put raw %s%s", rec.Partition(), rec.ID)
}

func (s *rawStore) ListPartition(ctx context.Context, year, month, day int, page, pageSize int) ([]*domain.RawRecord, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	page, pageSize = repository.NormalizePage(page, pageSize)
	offset := (page - 1) * pageSize
	name := []byte(domain.PartitionPath(year, month, day))

	var (
		out   []*domain.RawRecord
		total int64
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		part := tx.Bucket(s.rawBucket).Bucket(name)
		if part == nil {
			return nil
		}
		total = int64(part.Stats().KeyN)
		c := part.Cursor()
		i := 0
		for k, v := c.First(); k != nil && len(out) < pageSize; k, v = c.Next() {
			if i < offset {
				i++
				continue
			}
			rec, err := kvwire.DecodeRawRecord(v)
			if err != nil {
				return errors.Wrapf(err, "raw %s%s", name, k)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "list raw partition")
	}
	return out, total, nil
}

func (s *rawStore) DeletePartitionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(s.rawBucket)
		var expired [][]byte
		err := root.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil
			}
			var y, m, d int
			if _, err := fmt.Sscanf(string(k), "year=%d/month=%d/day=%d/", &y, &m, &d); err != nil {
				zap.L().Warn("skip unrecognised raw partition",
					zap.String("namespace", "kvstore"),
					zap.ByteString("partition", k))
				return nil
			}
			if repository.PartitionDay(y, m, d).Before(cutoff) {
				expired = append(expired, bytes.Clone(k))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := root.DeleteBucket(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "delete raw partitions")
	}
	return removed, nil
}
