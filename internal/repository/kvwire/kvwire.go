// Package kvwire encodes score states and raw records in the typed attribute
// envelope of the key-value store: {"Key":{"id":{"S":..}},"Item":{"name":{"S"|"N":..}}}.
// Numbers travel as strings under "N", strings under "S". The tags never leave
// this package.
package kvwire

import (
	"math"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/talkincode/linkscore/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrBadItem is returned when a stored item misses an attribute or carries a
// value of the wrong type.
var ErrBadItem = errors.New("bad kv item")

// Attr one typed attribute value
type Attr struct {
	S *string `json:"S,omitempty"`
	N *string `json:"N,omitempty"`
}

type Item map[string]Attr

type Envelope struct {
	Key  Item `json:"Key"`
	Item Item `json:"Item"`
}

func (it Item) s(name, v string) {
	it[name] = Attr{S: &v}
}

func (it Item) n(name string, v float64) {
	var str string
	if math.IsNaN(v) {
		str = "NaN"
	} else {
		str = strconv.FormatFloat(v, 'f', -1, 64)
	}
	it[name] = Attr{N: &str}
}

func (it Item) i(name string, v int64) {
	str := strconv.FormatInt(v, 10)
	it[name] = Attr{N: &str}
}

// reader accumulates the first decode error
type reader struct {
	item Item
	err  error
}

func (r *reader) str(name string) string {
	a, ok := r.item[name]
	if !ok || a.S == nil {
		r.fail(name, "missing S attribute")
		return ""
	}
	return *a.S
}

func (r *reader) num(name string) float64 {
	a, ok := r.item[name]
	if !ok || a.N == nil {
		r.fail(name, "missing N attribute")
		return 0
	}
	v, err := cast.ToFloat64E(*a.N)
	if err != nil {
		r.fail(name, err.Error())
	}
	return v
}

func (r *reader) int(name string) int {
	return int(r.num(name))
}

func (r *reader) int64(name string) int64 {
	return int64(r.num(name))
}

func (r *reader) fail(name, msg string) {
	if r.err == nil {
		r.err = errors.Wrapf(ErrBadItem, "%s: %s", name, msg)
	}
}

// EncodeScoreState builds the envelope of a score state keyed by its id
func EncodeScoreState(st *domain.ScoreState) ([]byte, error) {
	key := Item{}
	key.s("id", st.ID)

	it := Item{}
	it.s("link_id", st.LinkID)
	it.s("pe_name", st.PeName)
	it.s("pe_name_dest", st.PeNameDest)
	it.s("interface", st.Interface)
	it.s("dest_interface", st.DestInterface)
	it.n("curr_cost1", st.CurrCost1)
	it.n("curr_cost2", st.CurrCost2)
	it.n("max_bw", st.MaxBW)
	it.n("peak_util", st.PeakUtil)
	it.i("pkt_rate", int64(st.PktRate))
	it.n("avg_latency", st.AvgLatency)
	it.n("base_avg_latency", st.BaseAvgLatency)
	it.i("latency_up_count", int64(st.LatencyUpCount))
	it.i("latency_down_count", int64(st.LatencyDownCount))
	it.i("link_up_count", int64(st.LinkUpCount))
	it.i("util_down_count", int64(st.UtilDownCount))
	it.i("util_50_80_count", int64(st.Util5080Count))
	it.i("util_80_100_count", int64(st.Util80100Count))
	it.i("packet_rate_up_count", int64(st.PacketRateUpCount))
	it.i("packet_rate_down_count", int64(st.PacketRateDownCount))
	it.i("latency_score", int64(st.LatencyScore))
	it.i("util_score", int64(st.UtilScore))
	it.i("packet_rate_score", int64(st.PacketRateScore))
	it.i("link_status_score", int64(st.LinkStatusScore))
	it.i("timestamp", st.Timestamp)
	it.i("total_score", int64(st.TotalScore))

	return json.Marshal(Envelope{Key: key, Item: it})
}

// DecodeScoreState is the inverse of EncodeScoreState
func DecodeScoreState(data []byte) (*domain.ScoreState, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "decode score envelope")
	}
	k := reader{item: env.Key}
	r := reader{item: env.Item}
	st := &domain.ScoreState{
		ID:                  k.str("id"),
		LinkID:              r.str("link_id"),
		PeName:              r.str("pe_name"),
		PeNameDest:          r.str("pe_name_dest"),
		Interface:           r.str("interface"),
		DestInterface:       r.str("dest_interface"),
		CurrCost1:           r.num("curr_cost1"),
		CurrCost2:           r.num("curr_cost2"),
		MaxBW:               r.num("max_bw"),
		PeakUtil:            r.num("peak_util"),
		PktRate:             r.int("pkt_rate"),
		AvgLatency:          r.num("avg_latency"),
		BaseAvgLatency:      r.num("base_avg_latency"),
		LatencyUpCount:      r.int("latency_up_count"),
		LatencyDownCount:    r.int("latency_down_count"),
		LinkUpCount:         r.int("link_up_count"),
		UtilDownCount:       r.int("util_down_count"),
		Util5080Count:       r.int("util_50_80_count"),
		Util80100Count:      r.int("util_80_100_count"),
		PacketRateUpCount:   r.int("packet_rate_up_count"),
		PacketRateDownCount: r.int("packet_rate_down_count"),
		LatencyScore:        r.int("latency_score"),
		UtilScore:           r.int("util_score"),
		PacketRateScore:     r.int("packet_rate_score"),
		LinkStatusScore:     r.int("link_status_score"),
		Timestamp:           r.int64("timestamp"),
		TotalScore:          r.int("total_score"),
	}
	if k.err != nil {
		return nil, k.err
	}
	if r.err != nil {
		return nil, r.err
	}
	return st, nil
}

// EncodeRawRecord builds the envelope of a raw record keyed by the sample id
func EncodeRawRecord(rec *domain.RawRecord) ([]byte, error) {
	key := Item{}
	key.s("id", rec.ID)

	it := Item{}
	it.s("link_id", rec.LinkID)
	it.s("direction", rec.Direction)
	it.n("qos_id", cast.ToFloat64(rec.QosID))
	it.s("qos_key", rec.QosID)
	it.s("pe_add", rec.PeAddr)
	it.s("pe_name", rec.PeName)
	it.s("dest_pe_name", rec.DestPeName)
	it.s("src_interface", rec.SrcInterface)
	it.s("dest_interface", rec.DestInterface)
	it.n("util", rec.Util)
	it.n("max_bw", rec.MaxBW)
	it.n("curr_cost1", rec.CurrCost1)
	it.n("curr_cost2", rec.CurrCost2)
	it.n("util_per", rec.UtilPer)
	it.s("link_status", rec.LinkStatus)
	it.i("pkt_rate", int64(rec.PktRate))
	it.n("latency", rec.Latency)
	it.n("avg_latency", rec.AvgLatency)
	it.n("base_avg_latency", rec.BaseAvgLatency)
	it.i("alarm", int64(rec.Alarm))
	it.i("time_stamp", rec.Timestamp)
	it.i("year", int64(rec.Year))
	it.i("month", int64(rec.Month))
	it.i("day", int64(rec.Day))
	it.i("total_score", int64(rec.TotalScore))

	return json.Marshal(Envelope{Key: key, Item: it})
}

// DecodeRawRecord is the inverse of EncodeRawRecord
func DecodeRawRecord(data []byte) (*domain.RawRecord, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "decode raw envelope")
	}
	k := reader{item: env.Key}
	r := reader{item: env.Item}
	rec := &domain.RawRecord{
		MetricSample: domain.MetricSample{
			ID:             k.str("id"),
			LinkID:         r.str("link_id"),
			Direction:      r.str("direction"),
			QosID:          r.str("qos_key"),
			PeAddr:         r.str("pe_add"),
			PeName:         r.str("pe_name"),
			DestPeName:     r.str("dest_pe_name"),
			SrcInterface:   r.str("src_interface"),
			DestInterface:  r.str("dest_interface"),
			Util:           r.num("util"),
			MaxBW:          r.num("max_bw"),
			CurrCost1:      r.num("curr_cost1"),
			CurrCost2:      r.num("curr_cost2"),
			UtilPer:        r.num("util_per"),
			LinkStatus:     r.str("link_status"),
			PktRate:        r.int("pkt_rate"),
			Latency:        r.num("latency"),
			AvgLatency:     r.num("avg_latency"),
			BaseAvgLatency: r.num("base_avg_latency"),
			Alarm:          r.int("alarm"),
			Timestamp:      r.int64("time_stamp"),
			Year:           r.int("year"),
			Month:          r.int("month"),
			Day:            r.int("day"),
		},
		TotalScore: r.int("total_score"),
	}
	if k.err != nil {
		return nil, k.err
	}
	if r.err != nil {
		return nil, r.err
	}
	return rec, nil
}
