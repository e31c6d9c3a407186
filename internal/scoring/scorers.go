package scoring

import (
	"math"
	"time"

	"github.com/talkincode/linkscore/config"
	"github.com/talkincode/linkscore/internal/domain"
)

// Sub-score values, higher is worse
const (
	LinkDownScore          = 15
	LatencyMaxScore        = 8
	PacketRatePartialScore = 5
	PacketRateMaxScore     = 8
	UtilHighScore          = 5
	UtilMaxScore           = 8

	// CounterCap bounds the counters that keep growing while a metric stays healthy
	CounterCap = config.CounterCap

	packetRateHealthy = 100
	utilHighBand      = 50.0
	utilMaxBand       = 80.0
)

// Each scorer takes the state by value and returns the updated copy; only the
// counters and sub-score of its own metric are touched.

// ScoreLinkStatus clears the link status score only after the link has been
// UP for more than LinkUpWaitInterval consecutive samples.
func ScoreLinkStatus(st domain.ScoreState, status string, th Thresholds) domain.ScoreState {
	switch {
	case status == domain.LinkStatusDown:
		st.LinkUpCount = 0
		st.LinkStatusScore = LinkDownScore
	case st.LinkUpCount < th.LinkUpWaitInterval:
		st.LinkUpCount++
	default:
		st.LinkUpCount = 0
		st.LinkStatusScore = 0
	}
	return st
}

// ScoreLatency applies a signed latency delta. domain.LatencyNoReading leaves
// the state untouched.
func ScoreLatency(st domain.ScoreState, latency float64, th Thresholds) domain.ScoreState {
	switch {
	case latency == domain.LatencyNoReading:
	case latency < 0:
		if st.LatencyUpCount < th.LatencyUpWaitInterval && st.LatencyScore != LatencyMaxScore {
			st.LatencyUpCount++
			st.LatencyDownCount = 0
		} else {
			// LatencyUpCount is not reset on this branch, unlike the
			// non-negative side which clears both counters. Kept as observed
			// in production scoring, see TestScoreLatencyCeilingKeepsUpCount.
			st.LatencyScore = LatencyMaxScore
			st.LatencyDownCount = 0
		}
	case st.LatencyDownCount < th.LatencyDownWaitInterval:
		st.LatencyDownCount++
		st.LatencyUpCount = 0
	default:
		st.LatencyScore = 0
		st.LatencyUpCount = 0
		st.LatencyDownCount = 0
	}
	return st
}

// ScorePacketRate applies a packet delivery rate in percent, 100 meaning no drops.
func ScorePacketRate(st domain.ScoreState, pktRate int, th Thresholds) domain.ScoreState {
	if pktRate < packetRateHealthy {
		if st.PacketRateDownCount < th.PacketRateDownWaitInterval && st.PacketRateScore != PacketRateMaxScore {
			st.PacketRateScore = PacketRatePartialScore
		} else {
			st.PacketRateScore = PacketRateMaxScore
		}
		st.PacketRateUpCount = 0
		st.PacketRateDownCount++
		return st
	}

	if st.PacketRateUpCount >= th.PacketRateUpWaitInterval {
		st.PacketRateScore = 0
	}
	st.PacketRateDownCount = 0
	st.PacketRateUpCount = capped(st.PacketRateUpCount)
	return st
}

// ScoreUtilization applies a utilization percentage. Entering a band zeroes the
// counters of the other two; NaN leaves the state untouched.
func ScoreUtilization(st domain.ScoreState, utilPer float64, th Thresholds) domain.ScoreState {
	switch {
	case math.IsNaN(utilPer):
	case utilPer >= utilMaxBand:
		if st.Util80100Count >= th.Utilization80100WaitInterval && st.UtilScore == UtilHighScore {
			st.UtilScore = UtilMaxScore
		}
		st.Util80100Count++
		st.Util5080Count = 0
		st.UtilDownCount = 0
	case utilPer > utilHighBand:
		if st.Util5080Count >= th.Utilization5080WaitInterval {
			st.UtilScore = UtilHighScore
		}
		st.Util5080Count++
		st.Util80100Count = 0
		st.UtilDownCount = 0
	default:
		if st.UtilDownCount > th.UtilizationDownWaitInterval {
			st.UtilScore = 0
		}
		st.UtilDownCount = capped(st.UtilDownCount)
		st.Util80100Count = 0
		st.Util5080Count = 0
	}
	return st
}

// TrackPeakUtil keeps the running maximum of util within the calendar day of
// the state timestamp (ScoreZone). A sample from another day restarts the window.
// An unmeasured (NaN) util leaves the peak as it is.
func TrackPeakUtil(st domain.ScoreState, util float64, sampleDay int) domain.ScoreState {
	if math.IsNaN(util) {
		return st
	}
	stateDay := time.Unix(st.Timestamp, 0).In(domain.ScoreZone).Day()
	if sampleDay != stateDay || util > st.PeakUtil {
		st.PeakUtil = util
	}
	return st
}

func capped(n int) int {
	if n < CounterCap {
		return n + 1
	}
	return n
}
