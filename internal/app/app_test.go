package app

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkincode/linkscore/config"
	"github.com/talkincode/linkscore/internal/domain"
	"github.com/talkincode/linkscore/internal/repository"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := *config.DefaultAppConfig
	cfg.System.Workdir = t.TempDir()
	cfg.Logger.FileEnable = false
	cfg.Kvstore.RawRetentionDays = 7
	return &cfg
}

func record(id, status string, pktRate int, ts time.Time) string {
	t := ts.In(domain.ScoreZone)
	return fmt.Sprintf("%s,L1,OUT,2,10.0.0.1,pe-a,ge-0/0/0,420,1000,10,20,42,%s,%d,4,3.2,3.0,0,%d,pe-b,ge-0/0/1,%d,%d,%d",
		id, status, pktRate, ts.Unix(), t.Year(), int(t.Month()), t.Day())
}

func TestApplicationLifecycle(t *testing.T) {
	cfg := testConfig(t)
	a := NewApplication(cfg)
	require.NoError(t, a.Init(cfg))
	defer a.Release()

	assert.Equal(t, "bolt", a.Backend().Name())
	require.NotNil(t, a.Series())
	require.NotNil(t, a.Ingest())
	require.NotNil(t, a.Scheduler())
	assert.Len(t, a.Scheduler().Entries(), 2)

	ctx := context.Background()
	now := time.Now()
	old := now.AddDate(0, 0, -30)
	body := strings.Join([]string{
		record("r1", "UP", 100, old),
		record("r2", "UP", 100, now.Add(-time.Minute)),
		record("r3", "DOWN", 100, now),
		"not,a,record",
	}, "\n")

	sum, err := a.HandleRecords(ctx, []byte(body))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedSample)
	assert.Equal(t, 4, sum.Received)
	assert.Equal(t, 3, sum.Scored)
	assert.Equal(t, 1, sum.Failed)

	st, err := a.Backend().Scores().Get(ctx, "L1.2")
	require.NoError(t, err)
	assert.Equal(t, 15, st.TotalScore)
	assert.Equal(t, now.Unix(), st.Timestamp)

	points, err := a.Series().LinkSeries(ctx, "L1", "OUT", repository.MetricLatency,
		now.Add(-time.Hour).UnixMilli(), now.UnixMilli()+1)
	require.NoError(t, err)
	assert.Len(t, points, 2)

	removed, err := a.PurgeRawRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	o := old.In(domain.ScoreZone)
	_, total, err := a.Backend().RawRecords().ListPartition(ctx, o.Year(), int(o.Month()), o.Day(), 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestPurgeDisabledKeepsEverything(t *testing.T) {
	cfg := testConfig(t)
	cfg.Kvstore.RawRetentionDays = 0
	a := NewApplication(cfg)
	removed, err := a.PurgeRawRecords(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestInitRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tsdb.Enabled = false
	cfg.Kvstore.Backend = "redis"
	a := NewApplication(cfg)
	defer a.Release()
	assert.Error(t, a.Init(cfg))
}
