package app

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/talkincode/linkscore/config"
	"github.com/talkincode/linkscore/internal/ingest"
	"github.com/talkincode/linkscore/internal/repository"
)

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// StoreProvider provides the key-value backend
type StoreProvider interface {
	Backend() repository.Backend
}

// SeriesProvider provides link series reads, nil when disabled
type SeriesProvider interface {
	Series() repository.SeriesReader
}

// IngestProvider provides the scoring ingest service
type IngestProvider interface {
	Ingest() *ingest.Service
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// AppContext combines all provider interfaces for full application context
// Services should depend on specific providers or this combined interface
type AppContext interface {
	ConfigProvider
	StoreProvider
	SeriesProvider
	IngestProvider
	SchedulerProvider

	// HandleRecords scores a newline separated body of records
	HandleRecords(ctx context.Context, body []byte) (ingest.Summary, error)
	// PurgeRawRecords drops raw partitions past the retention window
	PurgeRawRecords(ctx context.Context) (int, error)
}
