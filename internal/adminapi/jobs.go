package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/talkincode/linkscore/internal/webserver"
)

func registerJobRoutes() {
	webserver.ApiPOST("/jobs/raw-purge", TriggerRawPurge)
}

// TriggerRawPurge runs the raw partition retention purge immediately
// @Summary purge expired raw partitions now
// @Tags Jobs
// @Success 200 {object} Response
// @Router /api/v1/jobs/raw-purge [post]
func TriggerRawPurge(c echo.Context) error {
	appCtx := GetAppContext(c)
	removed, err := appCtx.PurgeRawRecords(c.Request().Context())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "RUN_FAILED", "Failed to purge raw partitions", err.Error())
	}
	return ok(c, map[string]interface{}{
		"removed":        removed,
		"retention_days": appCtx.Config().Kvstore.RawRetentionDays,
	})
}
