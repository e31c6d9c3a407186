package domain

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullRecord = "r1,L7,IN,05,10.0.0.1,pe-a,ge-0/0/0,420.5,1000,10,20,42.1,up,98,12.5,3.2,3.0,0,1700000000,null,ge-0/0/1,2023,11,08"

func TestParseSampleFullRecord(t *testing.T) {
	s, err := ParseSample(fullRecord)
	require.NoError(t, err)

	assert.Equal(t, "r1", s.ID)
	assert.Equal(t, "L7.05", s.Key())
	assert.Equal(t, LinkStatusUp, s.LinkStatus)
	assert.Equal(t, 420.5, s.Util)
	assert.Equal(t, 42.1, s.UtilPer)
	assert.Equal(t, 98, s.PktRate)
	assert.Equal(t, 12.5, s.Latency)
	assert.Equal(t, int64(1700000000), s.Timestamp)
	assert.Empty(t, s.DestPeName)
	assert.Equal(t, "ge-0/0/1", s.DestInterface)
	assert.Equal(t, 8, s.Day)
	assert.Equal(t, "year=2023/month=11/day=8/", s.Partition())
}

func TestParseSampleDerivesCalendar(t *testing.T) {
	fields := strings.Split(fullRecord, ",")
	s, err := ParseSample(strings.Join(fields[:21], ","))
	require.NoError(t, err)
	// 1700000000 is 2023-11-15 06:13:20 in UTC+8
	assert.Equal(t, 2023, s.Year)
	assert.Equal(t, 11, s.Month)
	assert.Equal(t, 15, s.Day)
}

func TestParseSampleNaNUtilization(t *testing.T) {
	s, err := ParseSample(strings.Replace(fullRecord, ",42.1,", ",NaN,", 1))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(s.UtilPer))
}

func TestParseSampleUnmeasuredUtil(t *testing.T) {
	line := strings.Replace(fullRecord, ",420.5,", ",nan,", 1)
	line = strings.Replace(line, ",42.1,", ",nan,", 1)
	s, err := ParseSample(line)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(s.Util))
	assert.True(t, math.IsNaN(s.UtilPer))

	st := NewScoreState(s)
	assert.Zero(t, st.PeakUtil)

	data, err := json.Marshal(NewRawRecord(s, 15))
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Nil(t, out["util"])
	assert.Nil(t, out["util_per"])
	assert.Equal(t, "L7", out["link_id"])
	assert.EqualValues(t, 15, out["total_score"])
}

func TestParseSampleRejects(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"too few fields", "a,b,c"},
		{"bad number", strings.Replace(fullRecord, ",420.5,", ",abc,", 1)},
		{"unknown status", strings.Replace(fullRecord, ",up,", ",flapping,", 1)},
		{"pkt rate range", strings.Replace(fullRecord, ",98,", ",101,", 1)},
		{"missing link id", strings.Replace(fullRecord, "r1,L7,", "r1,,", 1)},
		{"bad month", strings.Replace(fullRecord, ",2023,11,08", ",2023,13,08", 1)},
		{"nan curr cost", strings.Replace(fullRecord, ",1000,10,20,", ",1000,nan,20,", 1)},
		{"nan avg latency", strings.Replace(fullRecord, ",3.2,3.0,", ",NaN,3.0,", 1)},
		{"infinite util", strings.Replace(fullRecord, ",420.5,", ",+Inf,", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSample(tt.line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedSample))
		})
	}
}

func TestNewScoreStateSeedsPeak(t *testing.T) {
	s, err := ParseSample(fullRecord)
	require.NoError(t, err)
	st := NewScoreState(s)
	assert.Equal(t, "L7.05", st.ID)
	assert.Equal(t, s.Util, st.PeakUtil)
	assert.Zero(t, st.TotalScore)
	assert.Zero(t, st.SubScoreSum())
	assert.Equal(t, s.Timestamp, st.Timestamp)
}
