package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/talkincode/linkscore/internal/domain"
)

var th3 = Thresholds{
	LinkUpWaitInterval:           3,
	LatencyUpWaitInterval:        3,
	LatencyDownWaitInterval:      3,
	PacketRateUpWaitInterval:     3,
	PacketRateDownWaitInterval:   3,
	Utilization5080WaitInterval:  3,
	Utilization80100WaitInterval: 3,
	UtilizationDownWaitInterval:  3,
}

func TestScoreLinkStatus(t *testing.T) {
	st := ScoreLinkStatus(domain.ScoreState{LinkUpCount: 2}, domain.LinkStatusDown, th3)
	assert.Equal(t, 0, st.LinkUpCount)
	assert.Equal(t, LinkDownScore, st.LinkStatusScore)

	// UP samples count up to the wait interval before clearing the score
	st.LinkUpCount = th3.LinkUpWaitInterval - 1
	st = ScoreLinkStatus(st, domain.LinkStatusUp, th3)
	assert.Equal(t, th3.LinkUpWaitInterval, st.LinkUpCount)
	assert.Equal(t, LinkDownScore, st.LinkStatusScore)

	st = ScoreLinkStatus(st, domain.LinkStatusUp, th3)
	assert.Equal(t, 0, st.LinkUpCount)
	assert.Equal(t, 0, st.LinkStatusScore)
}

func TestScoreLatencyNoReading(t *testing.T) {
	prior := domain.ScoreState{LatencyUpCount: 2, LatencyDownCount: 1, LatencyScore: 8, TotalScore: 8}
	assert.Equal(t, prior, ScoreLatency(prior, domain.LatencyNoReading, th3))
}

func TestScoreLatencyImproving(t *testing.T) {
	st := ScoreLatency(domain.ScoreState{LatencyDownCount: 2}, -5, th3)
	assert.Equal(t, 1, st.LatencyUpCount)
	assert.Equal(t, 0, st.LatencyDownCount)
	assert.Equal(t, 0, st.LatencyScore)

	st = ScoreLatency(domain.ScoreState{LatencyUpCount: 3}, -0.5, th3)
	assert.Equal(t, LatencyMaxScore, st.LatencyScore)
}

func TestScoreLatencyCeilingKeepsUpCount(t *testing.T) {
	// score already at the ceiling: the up counter is left as it was
	st := ScoreLatency(domain.ScoreState{LatencyUpCount: 1, LatencyDownCount: 2, LatencyScore: LatencyMaxScore}, -3, th3)
	assert.Equal(t, LatencyMaxScore, st.LatencyScore)
	assert.Equal(t, 1, st.LatencyUpCount)
	assert.Equal(t, 0, st.LatencyDownCount)

	// wait interval exhausted: same, the counter stays at the interval
	st = ScoreLatency(domain.ScoreState{LatencyUpCount: 3}, -3, th3)
	assert.Equal(t, 3, st.LatencyUpCount)
	st = ScoreLatency(st, -3, th3)
	assert.Equal(t, 3, st.LatencyUpCount)
	assert.Equal(t, LatencyMaxScore, st.LatencyScore)
}

func TestScoreLatencyDegradedClearsAfterWait(t *testing.T) {
	st := domain.ScoreState{LatencyUpCount: 2, LatencyScore: LatencyMaxScore}
	for i := 1; i <= th3.LatencyDownWaitInterval; i++ {
		st = ScoreLatency(st, 4, th3)
		assert.Equal(t, i, st.LatencyDownCount)
		assert.Equal(t, 0, st.LatencyUpCount)
		assert.Equal(t, LatencyMaxScore, st.LatencyScore)
	}
	st = ScoreLatency(st, 0, th3)
	assert.Equal(t, 0, st.LatencyScore)
	assert.Equal(t, 0, st.LatencyDownCount)
	assert.Equal(t, 0, st.LatencyUpCount)
}

func TestScorePacketRateDrops(t *testing.T) {
	st := ScorePacketRate(domain.ScoreState{PacketRateUpCount: 5}, 97, th3)
	assert.Equal(t, PacketRatePartialScore, st.PacketRateScore)
	assert.Equal(t, 0, st.PacketRateUpCount)
	assert.Equal(t, 1, st.PacketRateDownCount)

	st.PacketRateDownCount = th3.PacketRateDownWaitInterval
	st = ScorePacketRate(st, 50, th3)
	assert.Equal(t, PacketRateMaxScore, st.PacketRateScore)
	assert.Equal(t, th3.PacketRateDownWaitInterval+1, st.PacketRateDownCount)

	// once at the maximum the partial penalty is never restored by drops
	st.PacketRateDownCount = 0
	st = ScorePacketRate(st, 99, th3)
	assert.Equal(t, PacketRateMaxScore, st.PacketRateScore)
}

func TestScorePacketRateRecovery(t *testing.T) {
	st := domain.ScoreState{PacketRateScore: PacketRateMaxScore, PacketRateDownCount: 4}
	for i := 1; i <= th3.PacketRateUpWaitInterval; i++ {
		st = ScorePacketRate(st, 100, th3)
		assert.Equal(t, i, st.PacketRateUpCount)
		assert.Equal(t, 0, st.PacketRateDownCount)
		assert.Equal(t, PacketRateMaxScore, st.PacketRateScore)
	}
	st = ScorePacketRate(st, 100, th3)
	assert.Equal(t, 0, st.PacketRateScore)
}

func TestCounterCaps(t *testing.T) {
	st := domain.ScoreState{}
	for i := 0; i < 100; i++ {
		st = ScorePacketRate(st, 100, th3)
		st = ScoreUtilization(st, 10, th3)
		assert.LessOrEqual(t, st.PacketRateUpCount, CounterCap)
		assert.LessOrEqual(t, st.UtilDownCount, CounterCap)
	}
	assert.Equal(t, CounterCap, st.PacketRateUpCount)
	assert.Equal(t, CounterCap, st.UtilDownCount)
}

func TestScoreUtilizationNaN(t *testing.T) {
	prior := domain.ScoreState{Util5080Count: 2, UtilScore: 5}
	assert.Equal(t, prior, ScoreUtilization(prior, math.NaN(), th3))
}

func TestScoreUtilizationBandsAreExclusive(t *testing.T) {
	st := domain.ScoreState{UtilDownCount: 4, Util80100Count: 2}
	st = ScoreUtilization(st, 65, th3)
	assert.Equal(t, 1, st.Util5080Count)
	assert.Zero(t, st.Util80100Count)
	assert.Zero(t, st.UtilDownCount)

	st = ScoreUtilization(st, 90, th3)
	assert.Equal(t, 1, st.Util80100Count)
	assert.Zero(t, st.Util5080Count)

	st = ScoreUtilization(st, 50, th3)
	assert.Equal(t, 1, st.UtilDownCount)
	assert.Zero(t, st.Util80100Count)
	assert.Zero(t, st.Util5080Count)
}

func TestScoreUtilizationEscalation(t *testing.T) {
	st := domain.ScoreState{}
	// 50-80 band sets 5 once the counter has reached its wait interval
	for i := 0; i < th3.Utilization5080WaitInterval; i++ {
		st = ScoreUtilization(st, 70, th3)
		assert.Zero(t, st.UtilScore)
	}
	st = ScoreUtilization(st, 70, th3)
	assert.Equal(t, UtilHighScore, st.UtilScore)

	// 80-100 band escalates a score of 5 to 8 after its own wait interval
	for i := 0; i < th3.Utilization80100WaitInterval; i++ {
		st = ScoreUtilization(st, 85, th3)
		assert.Equal(t, UtilHighScore, st.UtilScore)
	}
	assert.Equal(t, th3.Utilization80100WaitInterval, st.Util80100Count)
	st = ScoreUtilization(st, 85, th3)
	assert.Equal(t, UtilMaxScore, st.UtilScore)
}

func TestScoreUtilizationHighBandNeedsPriorPenalty(t *testing.T) {
	st := domain.ScoreState{Util80100Count: 10}
	st = ScoreUtilization(st, 99, th3)
	assert.Zero(t, st.UtilScore)
	assert.Equal(t, 11, st.Util80100Count)
}

func TestScoreUtilizationDown(t *testing.T) {
	st := domain.ScoreState{UtilScore: UtilMaxScore}
	// the score holds while the counter is within the wait interval
	for i := 0; i <= th3.UtilizationDownWaitInterval; i++ {
		st = ScoreUtilization(st, 20, th3)
		assert.Equal(t, UtilMaxScore, st.UtilScore)
	}
	st = ScoreUtilization(st, 20, th3)
	assert.Zero(t, st.UtilScore)
}

func TestTrackPeakUtil(t *testing.T) {
	day := time.Date(2023, 11, 14, 9, 0, 0, 0, domain.ScoreZone)
	st := domain.ScoreState{PeakUtil: 100, Timestamp: day.Unix()}

	prev := st.PeakUtil
	for _, u := range []float64{120, 300, 280, 50, 10} {
		st = TrackPeakUtil(st, u, 14)
		assert.GreaterOrEqual(t, st.PeakUtil, prev)
		prev = st.PeakUtil
	}
	assert.Equal(t, 300.0, st.PeakUtil)

	st = TrackPeakUtil(st, 5, 15)
	assert.Equal(t, 5.0, st.PeakUtil)
}

func TestTrackPeakUtilIgnoresNaN(t *testing.T) {
	day := time.Date(2023, 11, 14, 9, 0, 0, 0, domain.ScoreZone)
	st := domain.ScoreState{PeakUtil: 100, Timestamp: day.Unix()}
	assert.Equal(t, 100.0, TrackPeakUtil(st, math.NaN(), 14).PeakUtil)
	assert.Equal(t, 100.0, TrackPeakUtil(st, math.NaN(), 15).PeakUtil)
}

func TestTrackPeakUtilUsesScoreZone(t *testing.T) {
	// 2023-11-14 20:00 UTC is already the 15th in UTC+8
	ts := time.Date(2023, 11, 14, 20, 0, 0, 0, time.UTC).Unix()
	st := TrackPeakUtil(domain.ScoreState{PeakUtil: 500, Timestamp: ts}, 40, 15)
	assert.Equal(t, 500.0, st.PeakUtil)
}

func TestLargestAllowedIntervalsStillClear(t *testing.T) {
	th := th3
	th.UtilizationDownWaitInterval = CounterCap - 1
	th.PacketRateUpWaitInterval = CounterCap

	st := domain.ScoreState{UtilScore: UtilMaxScore, PacketRateScore: PacketRateMaxScore}
	for i := 0; i < CounterCap+5; i++ {
		st = ScoreUtilization(st, 10, th)
		st = ScorePacketRate(st, 100, th)
	}
	assert.Zero(t, st.UtilScore)
	assert.Zero(t, st.PacketRateScore)
	assert.Equal(t, CounterCap, st.UtilDownCount)
	assert.Equal(t, CounterCap, st.PacketRateUpCount)
}
