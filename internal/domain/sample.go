package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

const (
	LinkStatusUp   = "UP"
	LinkStatusDown = "DOWN"

	// LatencyNoReading marks a sample without a new latency measurement.
	LatencyNoReading = -1

	// SampleFieldCount is the number of comma separated fields of a full record,
	// sampleBaseFieldCount the count without the trailing year/month/day.
	SampleFieldCount     = 24
	sampleBaseFieldCount = 21

	nullValue = "null"
)

// ErrMalformedSample is returned for records with a wrong field count or
// a non-numeric value in a numeric field.
var ErrMalformedSample = errors.New("malformed sample")

// ScoreZone is the fixed offset used for calendar partitioning and the daily peak window.
var ScoreZone = time.FixedZone("UTC+8", 8*60*60)

// MetricSample one decoded measurement record of a link/QoS pair
type MetricSample struct {
	ID             string  `json:"id" csv:"id"`
	LinkID         string  `json:"link_id" csv:"link_id"`
	Direction      string  `json:"direction" csv:"direction"`
	QosID          string  `json:"qos_id" csv:"qos_id"`
	PeAddr         string  `json:"pe_add" csv:"pe_add"`
	PeName         string  `json:"pe_name" csv:"pe_name"`
	SrcInterface   string  `json:"src_interface" csv:"src_interface"`
	Util           float64 `json:"util" csv:"util"`
	MaxBW          float64 `json:"max_bw" csv:"max_bw"`
	CurrCost1      float64 `json:"curr_cost1" csv:"curr_cost1"`
	CurrCost2      float64 `json:"curr_cost2" csv:"curr_cost2"`
	UtilPer        float64 `json:"util_per" csv:"util_per"` // NaN when not measured
	LinkStatus     string  `json:"link_status" csv:"link_status"`
	PktRate        int     `json:"pkt_rate" csv:"pkt_rate"`
	Latency        float64 `json:"latency" csv:"latency"`
	AvgLatency     float64 `json:"avg_latency" csv:"avg_latency"`
	BaseAvgLatency float64 `json:"base_avg_latency" csv:"base_avg_latency"`
	Alarm          int     `json:"alarm" csv:"alarm"`
	Timestamp      int64   `json:"time_stamp" csv:"time_stamp"`
	DestPeName     string  `json:"dest_pe_name" csv:"dest_pe_name"`
	DestInterface  string  `json:"dest_interface" csv:"dest_interface"`
	Year           int     `json:"year" csv:"year"`
	Month          int     `json:"month" csv:"month"`
	Day            int     `json:"day" csv:"day"`
}

// Key returns the score state key "<link_id>.<qos_id>"
func (s *MetricSample) Key() string {
	return ScoreKey(s.LinkID, s.QosID)
}

// Time returns the sample timestamp in ScoreZone
func (s *MetricSample) Time() time.Time {
	return time.Unix(s.Timestamp, 0).In(ScoreZone)
}

// Partition returns the raw record partition path of the sample day
func (s *MetricSample) Partition() string {
	return PartitionPath(s.Year, s.Month, s.Day)
}

func ScoreKey(linkID, qosID string) string {
	return linkID + "." + qosID
}

func PartitionPath(year, month, day int) string {
	return fmt.Sprintf("year=%d/month=%d/day=%d/", year, month, day)
}

// ParseSample decodes one comma separated record. Records of 21 fields get
// their calendar fields derived from the timestamp.
func ParseSample(line string) (*MetricSample, error) {
	line = strings.TrimSpace(line)
	fields := strings.Split(line, ",")
	if len(fields) != SampleFieldCount && len(fields) != sampleBaseFieldCount {
		return nil, errors.Wrapf(ErrMalformedSample, "got %d fields, want %d", len(fields), SampleFieldCount)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	p := fieldParser{fields: fields}
	s := &MetricSample{
		ID:             p.str(0),
		LinkID:         p.str(1),
		Direction:      p.str(2),
		QosID:          p.str(3),
		PeAddr:         p.str(4),
		PeName:         p.str(5),
		SrcInterface:   p.str(6),
		Util:           p.float(7, "util"),
		MaxBW:          p.float(8, "max_bw"),
		CurrCost1:      p.float(9, "curr_cost1"),
		CurrCost2:      p.float(10, "curr_cost2"),
		UtilPer:        p.float(11, "util_per"),
		LinkStatus:     strings.ToUpper(p.str(12)),
		PktRate:        p.int(13, "pkt_rate"),
		Latency:        p.float(14, "latency"),
		AvgLatency:     p.float(15, "avg_latency"),
		BaseAvgLatency: p.float(16, "base_avg_latency"),
		Alarm:          p.int(17, "alarm"),
		Timestamp:      p.int64(18, "time_stamp"),
		DestPeName:     p.str(19),
		DestInterface:  p.str(20),
	}
	if len(fields) == SampleFieldCount {
		s.Year = p.int(21, "year")
		s.Month = p.int(22, "month")
		s.Day = p.int(23, "day")
	} else if p.err == nil {
		t := s.Time()
		s.Year, s.Month, s.Day = t.Year(), int(t.Month()), t.Day()
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MetricSample) validate() error {
	if s.LinkID == "" || s.QosID == "" {
		return errors.Wrap(ErrMalformedSample, "link_id and qos_id are required")
	}
	if s.LinkStatus != LinkStatusUp && s.LinkStatus != LinkStatusDown {
		return errors.Wrapf(ErrMalformedSample, "link_status %q: want UP|DOWN", s.LinkStatus)
	}
	if s.PktRate < 0 || s.PktRate > 100 {
		return errors.Wrapf(ErrMalformedSample, "pkt_rate %d out of range [0, 100]", s.PktRate)
	}
	// util and util_per may be NaN when the interface was not measured; every
	// other float is persisted in the score state and must be a number.
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"latency", s.Latency},
		{"max_bw", s.MaxBW},
		{"curr_cost1", s.CurrCost1},
		{"curr_cost2", s.CurrCost2},
		{"avg_latency", s.AvgLatency},
		{"base_avg_latency", s.BaseAvgLatency},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return errors.Wrapf(ErrMalformedSample, "%s must be a number", f.name)
		}
	}
	if math.IsInf(s.Util, 0) || math.IsInf(s.UtilPer, 0) {
		return errors.Wrap(ErrMalformedSample, "util must be finite or NaN")
	}
	if s.Month < 1 || s.Month > 12 || s.Day < 1 || s.Day > 31 {
		return errors.Wrapf(ErrMalformedSample, "calendar %d-%d-%d", s.Year, s.Month, s.Day)
	}
	return nil
}

// fieldParser keeps the first conversion error so ParseSample reads as a
// flat field list.
type fieldParser struct {
	fields []string
	err    error
}

func (p *fieldParser) str(i int) string {
	if p.fields[i] == nullValue {
		return ""
	}
	return p.fields[i]
}

func (p *fieldParser) float(i int, name string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := cast.ToFloat64E(p.fields[i])
	if err != nil {
		p.err = errors.Wrapf(ErrMalformedSample, "field %d (%s) %q is not a number", i, name, p.fields[i])
	}
	return v
}

func (p *fieldParser) int(i int, name string) int {
	if p.err != nil {
		return 0
	}
	v, err := cast.ToIntE(decimal(p.fields[i]))
	if err != nil {
		p.err = errors.Wrapf(ErrMalformedSample, "field %d (%s) %q is not an integer", i, name, p.fields[i])
	}
	return v
}

func (p *fieldParser) int64(i int, name string) int64 {
	if p.err != nil {
		return 0
	}
	v, err := cast.ToInt64E(decimal(p.fields[i]))
	if err != nil {
		p.err = errors.Wrapf(ErrMalformedSample, "field %d (%s) %q is not an integer", i, name, p.fields[i])
	}
	return v
}

// decimal drops leading zeros; cast parses integers with base prefixes and
// would read "08" as a bad octal literal.
func decimal(v string) string {
	t := strings.TrimLeft(v, "0")
	if t == "" && v != "" {
		return "0"
	}
	return t
}
