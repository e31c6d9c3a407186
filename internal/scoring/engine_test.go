package scoring

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/talkincode/linkscore/config"
	"github.com/talkincode/linkscore/internal/domain"
)

func sampleAt(ts time.Time) *domain.MetricSample {
	t := ts.In(domain.ScoreZone)
	return &domain.MetricSample{
		ID:            "rec-1",
		LinkID:        "L100",
		Direction:     "IN",
		QosID:         "2",
		PeName:        "pe-sg-1",
		SrcInterface:  "xe-1/0/0",
		Util:          300,
		MaxBW:         1000,
		UtilPer:       30,
		LinkStatus:    domain.LinkStatusUp,
		PktRate:       100,
		Latency:       0,
		Timestamp:     ts.Unix(),
		DestPeName:    "pe-hk-1",
		DestInterface: "xe-2/0/0",
		Year:          t.Year(),
		Month:         int(t.Month()),
		Day:           t.Day(),
	}
}

func TestThresholdsFromConfig(t *testing.T) {
	cfg := config.DefaultAppConfig.Scoring
	cfg.UtilizationDownWaitInterval = 9
	th := ThresholdsFromConfig(cfg)
	assert.Equal(t, 9, th.UtilizationDownWaitInterval)
	assert.Equal(t, cfg.LinkUpWaitInterval, th.LinkUpWaitInterval)
}

func TestEngineNewKey(t *testing.T) {
	e := NewEngine(th3, zap.NewNop())
	s := sampleAt(time.Date(2023, 11, 14, 9, 0, 0, 0, domain.ScoreZone))

	res := e.Score(s, nil)
	assert.True(t, res.Created)
	assert.Equal(t, "L100.2", res.State.ID)
	assert.Zero(t, res.State.SubScoreSum())
	assert.Zero(t, res.State.TotalScore)
	assert.Zero(t, res.Raw.TotalScore)
	assert.Equal(t, s.Util, res.State.PeakUtil)
	assert.Equal(t, s.Timestamp, res.State.Timestamp)
	assert.Equal(t, "pe-hk-1", res.State.PeNameDest)
	assert.Equal(t, s.ID, res.Raw.ID)
}

func TestEngineScoresPriorState(t *testing.T) {
	e := NewEngine(th3, nil)
	day := time.Date(2023, 11, 14, 9, 0, 0, 0, domain.ScoreZone)
	first := e.Score(sampleAt(day), nil)

	s := sampleAt(day.Add(time.Minute))
	s.LinkStatus = domain.LinkStatusDown
	s.PktRate = 90
	s.Util = 900
	res := e.Score(s, &first.State)

	assert.False(t, res.Created)
	assert.Equal(t, LinkDownScore, res.State.LinkStatusScore)
	assert.Equal(t, PacketRatePartialScore, res.State.PacketRateScore)
	assert.Equal(t, LinkDownScore+PacketRatePartialScore, res.State.TotalScore)
	assert.Equal(t, res.State.TotalScore, res.Raw.TotalScore)
	assert.Equal(t, 900.0, res.State.PeakUtil)
	assert.Equal(t, s.Timestamp, res.State.Timestamp)

	// prior is not modified
	assert.Zero(t, first.State.TotalScore)
	assert.Equal(t, 300.0, first.State.PeakUtil)
}

func TestEngineStaticAttributesNeverChange(t *testing.T) {
	e := NewEngine(th3, nil)
	day := time.Date(2023, 11, 14, 9, 0, 0, 0, domain.ScoreZone)
	st := e.Score(sampleAt(day), nil).State

	s := sampleAt(day.Add(time.Minute))
	s.PeName = "renamed"
	s.MaxBW = 1
	st = e.Score(s, &st).State
	assert.Equal(t, "pe-sg-1", st.PeName)
	assert.Equal(t, 1000.0, st.MaxBW)
}

func TestEngineTotalIsSumOfSubScores(t *testing.T) {
	e := NewEngine(th3, nil)
	rng := rand.New(rand.NewSource(42))
	ts := time.Date(2023, 11, 14, 0, 0, 0, 0, domain.ScoreZone)
	st := e.Score(sampleAt(ts), nil).State

	statuses := []string{domain.LinkStatusUp, domain.LinkStatusDown}
	latencies := []float64{-1, -4, 0, 3.5}
	for i := 0; i < 2000; i++ {
		ts = ts.Add(7 * time.Minute)
		s := sampleAt(ts)
		s.LinkStatus = statuses[rng.Intn(len(statuses))]
		s.PktRate = 95 + rng.Intn(6)
		s.Latency = latencies[rng.Intn(len(latencies))]
		s.UtilPer = rng.Float64() * 100
		if rng.Intn(10) == 0 {
			s.UtilPer = math.NaN()
		}
		s.Util = rng.Float64() * 1000

		res := e.Score(s, &st)
		st = res.State
		require.Equal(t, st.SubScoreSum(), st.TotalScore)
		require.Equal(t, st.TotalScore, res.Raw.TotalScore)
		require.LessOrEqual(t, st.PacketRateUpCount, CounterCap)
		require.LessOrEqual(t, st.UtilDownCount, CounterCap)
		require.GreaterOrEqual(t, st.LatencyUpCount, 0)
	}
}

func TestEngineLinkUpScenario(t *testing.T) {
	e := NewEngine(th3, nil)
	day := time.Date(2023, 11, 14, 9, 0, 0, 0, domain.ScoreZone)
	st := e.Score(sampleAt(day), nil).State
	st.LinkStatusScore = LinkDownScore
	st.LinkUpCount = th3.LinkUpWaitInterval - 1

	st = e.Score(sampleAt(day.Add(time.Minute)), &st).State
	assert.Equal(t, th3.LinkUpWaitInterval, st.LinkUpCount)
	assert.Equal(t, LinkDownScore, st.LinkStatusScore)

	st = e.Score(sampleAt(day.Add(2*time.Minute)), &st).State
	assert.Zero(t, st.LinkUpCount)
	assert.Zero(t, st.LinkStatusScore)
}

func TestEnginePeakRollsOverAtDayBoundary(t *testing.T) {
	e := NewEngine(th3, nil)
	late := time.Date(2023, 11, 14, 23, 50, 0, 0, domain.ScoreZone)
	s := sampleAt(late)
	s.Util = 800
	st := e.Score(s, nil).State

	next := sampleAt(late.Add(20 * time.Minute))
	next.Util = 120
	st = e.Score(next, &st).State
	assert.Equal(t, 120.0, st.PeakUtil)
}

func TestEngineUnmeasuredUtilization(t *testing.T) {
	e := NewEngine(th3, zap.NewNop())
	day := time.Date(2023, 11, 14, 9, 0, 0, 0, domain.ScoreZone)

	first := sampleAt(day)
	first.Util, first.UtilPer = math.NaN(), math.NaN()
	created := e.Score(first, nil)
	assert.Zero(t, created.State.PeakUtil)

	up := e.Score(sampleAt(day.Add(time.Minute)), &created.State)
	assert.Equal(t, 300.0, up.State.PeakUtil)

	down := sampleAt(day.Add(2 * time.Minute))
	down.LinkStatus = domain.LinkStatusDown
	down.Util, down.UtilPer = math.NaN(), math.NaN()
	res := e.Score(down, &up.State)
	assert.Equal(t, LinkDownScore, res.State.TotalScore)
	assert.Equal(t, 300.0, res.State.PeakUtil)
	assert.Equal(t, up.State.UtilScore, res.State.UtilScore)
}
