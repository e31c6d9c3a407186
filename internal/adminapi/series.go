package adminapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/talkincode/linkscore/internal/repository"
	"github.com/talkincode/linkscore/internal/webserver"
)

type seriesResponse struct {
	LinkID    string      `json:"link_id"`
	Direction string      `json:"direction"`
	Metric    string      `json:"metric"`
	Start     int64       `json:"start"`
	End       int64       `json:"end"`
	Points    interface{} `json:"points"`
}

func registerSeriesRoutes() {
	webserver.ApiGET("/links/:link_id/series", GetLinkSeries)
}

// GetLinkSeries reads one link metric series, timestamps in milliseconds.
// The range defaults to the last hour.
// @Summary get link time series
// @Tags Series
// @Param link_id path string true "Link ID"
// @Param metric query string true "utilization|packet_rate|latency"
// @Param direction query string true "Direction of traffic"
// @Param start query int false "Start, unix ms"
// @Param end query int false "End, unix ms, exclusive"
// @Success 200 {object} seriesResponse
// @Router /api/v1/links/{link_id}/series [get]
func GetLinkSeries(c echo.Context) error {
	series := GetAppContext(c).Series()
	if series == nil {
		return fail(c, http.StatusServiceUnavailable, "SERIES_DISABLED", "Time-series store is disabled", nil)
	}

	metric := c.QueryParam("metric")
	switch metric {
	case repository.MetricUtilization, repository.MetricPacketRate, repository.MetricLatency:
	default:
		return fail(c, http.StatusBadRequest, "INVALID_METRIC", "metric must be utilization, packet_rate or latency", nil)
	}
	direction := c.QueryParam("direction")
	if direction == "" {
		return fail(c, http.StatusBadRequest, "INVALID_PARAM", "direction is required", nil)
	}

	end := time.Now().UnixMilli() + 1
	start := end - time.Hour.Milliseconds()
	var err error
	if v := c.QueryParam("end"); v != "" {
		if end, err = strconv.ParseInt(v, 10, 64); err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_PARAM", "end must be unix milliseconds", nil)
		}
	}
	if v := c.QueryParam("start"); v != "" {
		if start, err = strconv.ParseInt(v, 10, 64); err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_PARAM", "start must be unix milliseconds", nil)
		}
	}
	if start >= end {
		return fail(c, http.StatusBadRequest, "INVALID_RANGE", "start must be before end", nil)
	}

	linkID := c.Param("link_id")
	points, err := series.LinkSeries(c.Request().Context(), linkID, direction, metric, start, end)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "QUERY_ERROR", "Failed to read series", err.Error())
	}
	return ok(c, seriesResponse{
		LinkID:    linkID,
		Direction: direction,
		Metric:    metric,
		Start:     start,
		End:       end,
		Points:    points,
	})
}
