package domain

import (
	"math"

	jsoniter "github.com/json-iterator/go"
)

// ScoreState running health score of one link/QoS pair, keyed by "<link_id>.<qos_id>".
// The static link attributes are copied from the first sample and never change.
type ScoreState struct {
	ID             string  `json:"id" gorm:"primaryKey;size:191"`
	LinkID         string  `json:"link_id" gorm:"index"`
	PeName         string  `json:"pe_name"`
	PeNameDest     string  `json:"pe_name_dest"`
	Interface      string  `json:"interface"`
	DestInterface  string  `json:"dest_interface"`
	CurrCost1      float64 `json:"curr_cost1"`
	CurrCost2      float64 `json:"curr_cost2"`
	MaxBW          float64 `json:"max_bw"`
	PktRate        int     `json:"pkt_rate"`
	AvgLatency     float64 `json:"avg_latency"`
	BaseAvgLatency float64 `json:"base_avg_latency"`

	// Hysteresis counters
	LinkUpCount         int `json:"link_up_count"`
	LatencyUpCount      int `json:"latency_up_count"`
	LatencyDownCount    int `json:"latency_down_count"`
	UtilDownCount       int `json:"util_down_count"`
	Util5080Count       int `json:"util_50_80_count" gorm:"column:util_50_80_count"`
	Util80100Count      int `json:"util_80_100_count" gorm:"column:util_80_100_count"`
	PacketRateUpCount   int `json:"packet_rate_up_count"`
	PacketRateDownCount int `json:"packet_rate_down_count"`

	// Sub-scores, higher is worse
	LinkStatusScore int `json:"link_status_score"`
	LatencyScore    int `json:"latency_score"`
	UtilScore       int `json:"util_score"`
	PacketRateScore int `json:"packet_rate_score"`

	PeakUtil   float64 `json:"peak_util"`
	TotalScore int     `json:"total_score" gorm:"index"`
	Timestamp  int64   `json:"timestamp"`
}

// NewScoreState initial state of a key seen for the first time: every counter
// and sub-score zero, peak utilization seeded from the sample (zero when the
// sample carries no utilization).
func NewScoreState(s *MetricSample) ScoreState {
	peak := s.Util
	if math.IsNaN(peak) {
		peak = 0
	}
	return ScoreState{
		ID:             s.Key(),
		LinkID:         s.LinkID,
		PeName:         s.PeName,
		PeNameDest:     s.DestPeName,
		Interface:      s.SrcInterface,
		DestInterface:  s.DestInterface,
		CurrCost1:      s.CurrCost1,
		CurrCost2:      s.CurrCost2,
		MaxBW:          s.MaxBW,
		PktRate:        s.PktRate,
		AvgLatency:     s.AvgLatency,
		BaseAvgLatency: s.BaseAvgLatency,
		PeakUtil:       peak,
		Timestamp:      s.Timestamp,
	}
}

// SubScoreSum sum of the four sub-scores
func (s ScoreState) SubScoreSum() int {
	return s.LinkStatusScore + s.LatencyScore + s.UtilScore + s.PacketRateScore
}

// RawRecord a sample as persisted, with the total score after it was applied
type RawRecord struct {
	MetricSample
	TotalScore int `json:"total_score" csv:"total_score"`
}

func NewRawRecord(s *MetricSample, totalScore int) RawRecord {
	return RawRecord{MetricSample: *s, TotalScore: totalScore}
}

// MarshalJSON writes unmeasured (NaN) utilization as null.
func (r RawRecord) MarshalJSON() ([]byte, error) {
	type sample MetricSample
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(struct {
		sample
		Util       *float64 `json:"util"`
		UtilPer    *float64 `json:"util_per"`
		TotalScore int      `json:"total_score"`
	}{sample(r.MetricSample), measured(r.Util), measured(r.UtilPer), r.TotalScore})
}

func measured(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
