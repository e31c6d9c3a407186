package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/talkincode/linkscore/internal/domain"
)

// ErrNotFound is returned by ScoreStore.Get for a key without a score state
var ErrNotFound = errors.New("record not found")

// ScoreFilter narrows ScoreStore.List
type ScoreFilter struct {
	LinkID   string // exact match when set
	MinTotal int    // total_score >= MinTotal
}

// ScoreStore keyed storage of per-link score states
type ScoreStore interface {
	// Get returns ErrNotFound when no state exists for key
	Get(ctx context.Context, key string) (*domain.ScoreState, error)

	// Put upserts the state under st.ID
	Put(ctx context.Context, st *domain.ScoreState) error

	// List returns one page of states ordered by key, plus the total match count
	List(ctx context.Context, filter ScoreFilter, page, pageSize int) ([]*domain.ScoreState, int64, error)
}

// RawStore day partitioned storage of raw records
type RawStore interface {
	// Put stores rec under its partition and sample id, replacing an existing record
	Put(ctx context.Context, rec *domain.RawRecord) error

	// ListPartition returns one page of the records of a day, ordered by id
	ListPartition(ctx context.Context, year, month, day int, page, pageSize int) ([]*domain.RawRecord, int64, error)

	// DeletePartitionsBefore removes every partition whose day is before cutoff
	// and returns the number of removed partitions
	DeletePartitionsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Backend a key-value backend serving both tables
type Backend interface {
	Name() string
	Scores() ScoreStore
	RawRecords() RawStore
	Close() error
}

// PartitionDay is the ScoreZone midnight of a partition
func PartitionDay(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, domain.ScoreZone)
}

// NormalizePage clamps paging arguments the same way for every backend
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 1000 {
		pageSize = 20
	}
	return page, pageSize
}
