package adminapi

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/talkincode/linkscore/internal/domain"
	"github.com/talkincode/linkscore/internal/ingest"
	"github.com/talkincode/linkscore/internal/webserver"
)

type recordsFailure struct {
	Summary ingest.Summary `json:"summary"`
	Errors  []string       `json:"errors"`
}

func registerRecordRoutes() {
	webserver.ApiPOST("/records", PostRecords)
}

// PostRecords scores a text body of comma separated records, one per line.
// Malformed lines are reported back while the remaining records are still scored.
// @Summary score a batch of records
// @Tags Records
// @Accept plain
// @Success 200 {object} ingest.Summary
// @Failure 413 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/v1/records [post]
func PostRecords(c echo.Context) error {
	appCtx := GetAppContext(c)
	if appCtx.Ingest() == nil {
		return fail(c, http.StatusServiceUnavailable, "INGEST_DISABLED", "Ingest service is not running", nil)
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "READ_ERROR", "Failed to read request body", err.Error())
	}

	sum, err := appCtx.HandleRecords(c.Request().Context(), body)
	if err == nil {
		return ok(c, sum)
	}
	if errors.Is(err, ingest.ErrBatchTooLarge) {
		return fail(c, http.StatusRequestEntityTooLarge, "BATCH_TOO_LARGE", err.Error(), nil)
	}

	errs := multierr.Errors(err)
	detail := recordsFailure{Summary: sum, Errors: make([]string, 0, len(errs))}
	status := http.StatusUnprocessableEntity
	for _, e := range errs {
		detail.Errors = append(detail.Errors, e.Error())
		if !errors.Is(e, domain.ErrMalformedSample) {
			status = http.StatusInternalServerError
		}
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("records batch failed",
			zap.String("namespace", "adminapi"),
			zap.Int("failed", sum.Failed),
			zap.Error(err))
		return fail(c, status, "STORE_ERROR", "Some records could not be stored", detail)
	}
	return fail(c, status, "MALFORMED_RECORDS", "Some records are malformed", detail)
}
