package adminapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/talkincode/linkscore/internal/domain"
	"github.com/talkincode/linkscore/internal/webserver"
)

const exportPageSize = 1000

func registerRawRoutes() {
	webserver.ApiGET("/raw", ListRawRecords)
	webserver.ApiGET("/raw/export", ExportRawRecords)
}

// partitionParams reads year, month and day query parameters
func partitionParams(c echo.Context) (year, month, day int, err error) {
	if year, err = strconv.Atoi(c.QueryParam("year")); err != nil {
		return 0, 0, 0, errors.New("year is required")
	}
	if month, err = strconv.Atoi(c.QueryParam("month")); err != nil || month < 1 || month > 12 {
		return 0, 0, 0, errors.New("month must be 1-12")
	}
	if day, err = strconv.Atoi(c.QueryParam("day")); err != nil || day < 1 || day > 31 {
		return 0, 0, 0, errors.New("day must be 1-31")
	}
	return year, month, day, nil
}

// ListRawRecords lists the raw records of a day partition
// @Summary get raw records of a day
// @Tags Raw
// @Param year query int true "Year"
// @Param month query int true "Month"
// @Param day query int true "Day"
// @Param page query int false "Page number"
// @Param perPage query int false "Items per page"
// @Success 200 {object} ListResponse
// @Router /api/v1/raw [get]
func ListRawRecords(c echo.Context) error {
	year, month, day, err := partitionParams(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_PARTITION", err.Error(), nil)
	}
	page, perPage := pageParams(c)

	items, total, err := GetAppContext(c).Backend().RawRecords().
		ListPartition(c.Request().Context(), year, month, day, page, perPage)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "QUERY_ERROR", "Failed to list raw records", err.Error())
	}
	return paged(c, items, total, page, perPage)
}

// ExportRawRecords downloads a whole day partition as CSV
// @Summary export raw records of a day
// @Tags Raw
// @Param year query int true "Year"
// @Param month query int true "Month"
// @Param day query int true "Day"
// @Produce text/csv
// @Router /api/v1/raw/export [get]
func ExportRawRecords(c echo.Context) error {
	year, month, day, err := partitionParams(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_PARTITION", err.Error(), nil)
	}

	raw := GetAppContext(c).Backend().RawRecords()
	var records []*domain.RawRecord
	for page := 1; ; page++ {
		items, total, err := raw.ListPartition(c.Request().Context(), year, month, day, page, exportPageSize)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "QUERY_ERROR", "Failed to read raw records", err.Error())
		}
		records = append(records, items...)
		if len(items) == 0 || int64(len(records)) >= total {
			break
		}
	}

	data, err := gocsv.MarshalBytes(&records)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "EXPORT_ERROR", "Failed to encode CSV", err.Error())
	}
	filename := fmt.Sprintf("raw-%04d%02d%02d.csv", year, month, day)
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+filename)
	return c.Blob(http.StatusOK, "text/csv", data)
}
