// Package scoring turns a stream of link samples into a hysteresis controlled
// health score per link/QoS key. Everything here is pure computation: state
// lookup and persistence belong to the caller.
package scoring

import (
	"go.uber.org/zap"

	"github.com/talkincode/linkscore/config"
	"github.com/talkincode/linkscore/internal/domain"
)

// Thresholds wait intervals, counted in consecutive samples
type Thresholds struct {
	LinkUpWaitInterval           int
	LatencyUpWaitInterval        int
	LatencyDownWaitInterval      int
	PacketRateUpWaitInterval     int
	PacketRateDownWaitInterval   int
	Utilization5080WaitInterval  int
	Utilization80100WaitInterval int
	UtilizationDownWaitInterval  int
}

func ThresholdsFromConfig(cfg config.ScoringConfig) Thresholds {
	return Thresholds{
		LinkUpWaitInterval:           cfg.LinkUpWaitInterval,
		LatencyUpWaitInterval:        cfg.LatencyUpWaitInterval,
		LatencyDownWaitInterval:      cfg.LatencyDownWaitInterval,
		PacketRateUpWaitInterval:     cfg.PacketRateUpWaitInterval,
		PacketRateDownWaitInterval:   cfg.PacketRateDownWaitInterval,
		Utilization5080WaitInterval:  cfg.Utilization5080WaitInterval,
		Utilization80100WaitInterval: cfg.Utilization80100WaitInterval,
		UtilizationDownWaitInterval:  cfg.UtilizationDownWaitInterval,
	}
}

// Result entities produced for one sample
type Result struct {
	Raw     domain.RawRecord
	State   domain.ScoreState
	Created bool // no prior state existed for the key
}

// Engine scores samples against their prior state
type Engine struct {
	th     Thresholds
	logger *zap.Logger
}

// NewEngine returns an engine using th. A nil logger disables logging.
func NewEngine(th Thresholds, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{th: th, logger: logger.With(zap.String("namespace", "scoring"))}
}

func (e *Engine) Thresholds() Thresholds {
	return e.th
}

// Score applies sample to prior. A nil prior creates a fresh state whose
// total score is zero; the sample is not scored against it.
func (e *Engine) Score(sample *domain.MetricSample, prior *domain.ScoreState) Result {
	if prior == nil {
		st := domain.NewScoreState(sample)
		e.logger.Debug("new score state", zap.String("key", st.ID))
		return Result{Raw: domain.NewRawRecord(sample, 0), State: st, Created: true}
	}

	st := *prior
	st = ScoreLinkStatus(st, sample.LinkStatus, e.th)
	st = ScorePacketRate(st, sample.PktRate, e.th)
	st = ScoreLatency(st, sample.Latency, e.th)
	st = ScoreUtilization(st, sample.UtilPer, e.th)
	st = TrackPeakUtil(st, sample.Util, sample.Day)
	st.TotalScore = st.SubScoreSum()
	st.Timestamp = sample.Timestamp

	if st.TotalScore != prior.TotalScore {
		e.logger.Debug("total score changed",
			zap.String("key", st.ID),
			zap.Int("from", prior.TotalScore),
			zap.Int("to", st.TotalScore),
			zap.Int("link_status", st.LinkStatusScore),
			zap.Int("packet_rate", st.PacketRateScore),
			zap.Int("latency", st.LatencyScore),
			zap.Int("util", st.UtilScore),
		)
	}
	return Result{Raw: domain.NewRawRecord(sample, st.TotalScore), State: st}
}
