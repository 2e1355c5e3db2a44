package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmehdipour/retreat-sync/internal/repository"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func listEventsHandler(repo repository.EventsAuditRepository, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}
		eventType := strings.TrimSpace(c.QueryParam("type"))

		rows, err := repo.List(c.Request().Context(), eventType, limit, offset)
		if err != nil {
			log.Error("clickhouse list failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		if rows == nil {
			rows = []model.EventRecord{}
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}

func outboxStatsHandler(outbox repository.OutboxRepository, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, err := outbox.Stats(c.Request().Context())
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(http.StatusOK, st)
	}
}
