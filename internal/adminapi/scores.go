package adminapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/talkincode/linkscore/internal/repository"
	"github.com/talkincode/linkscore/internal/webserver"
)

type healthResponse struct {
	Status  string      `json:"status"`
	Backend string      `json:"backend"`
	Series  bool        `json:"series"`
	Time    time.Time   `json:"time"`
	Ingest  interface{} `json:"ingest,omitempty"`
}

func registerHealthRoutes() {
	webserver.ApiGET("/health", Health)
}

func registerScoreRoutes() {
	webserver.ApiGET("/scores", ListScores)
	webserver.ApiGET("/scores/:key", GetScore)
}

// Health liveness and backend information
// @Summary service health
// @Tags System
// @Success 200 {object} healthResponse
// @Router /api/v1/health [get]
func Health(c echo.Context) error {
	appCtx := GetAppContext(c)
	resp := healthResponse{
		Status:  "ok",
		Backend: appCtx.Backend().Name(),
		Series:  appCtx.Series() != nil,
		Time:    time.Now(),
	}
	if svc := appCtx.Ingest(); svc != nil {
		resp.Ingest = svc.Stats()
	}
	return ok(c, resp)
}

// GetScore fetches the score state of one link/QoS key
// @Summary get score state
// @Tags Scores
// @Param key path string true "Score key <link_id>.<qos_id>"
// @Success 200 {object} domain.ScoreState
// @Router /api/v1/scores/{key} [get]
func GetScore(c echo.Context) error {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		return fail(c, http.StatusBadRequest, "INVALID_KEY", "Score key is required", nil)
	}

	st, err := GetAppContext(c).Backend().Scores().Get(c.Request().Context(), key)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Score state not found", nil)
	}
	if err != nil {
		zap.L().Error("get score state", zap.String("key", key), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "QUERY_ERROR", "Failed to read score state", err.Error())
	}
	return ok(c, st)
}

// ListScores lists score states
// @Summary get the score state list
// @Tags Scores
// @Param page query int false "Page number"
// @Param perPage query int false "Items per page"
// @Param link_id query string false "Link ID"
// @Param min_total query int false "Minimum total score"
// @Success 200 {object} ListResponse
// @Router /api/v1/scores [get]
func ListScores(c echo.Context) error {
	page, perPage := pageParams(c)

	filter := repository.ScoreFilter{LinkID: strings.TrimSpace(c.QueryParam("link_id"))}
	if v := c.QueryParam("min_total"); v != "" {
		minTotal, err := strconv.Atoi(v)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_PARAM", "min_total must be an integer", nil)
		}
		filter.MinTotal = minTotal
	}

	items, total, err := GetAppContext(c).Backend().Scores().List(c.Request().Context(), filter, page, perPage)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "QUERY_ERROR", "Failed to list score states", err.Error())
	}
	return paged(c, items, total, page, perPage)
}
