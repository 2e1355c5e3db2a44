package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/jmehdipour/retreat-sync/internal/errs"
	"github.com/jmehdipour/retreat-sync/internal/model"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

// writeError maps service errors onto status codes. Anything untyped is logged and hidden.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	status := http.StatusInternalServerError
	var unavailable errs.ServiceUnavailable
	switch {
	case errs.IsValidation(err):
		status = http.StatusUnprocessableEntity
	case errs.IsNotFound(err):
		status = http.StatusNotFound
	case errs.IsConflict(err):
		status = http.StatusConflict
	case errs.IsLocked(err):
		status = http.StatusLocked
	case errors.As(err, &unavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.JSON(status, map[string]string{"error": "internal error"})
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

// replaceStatus picks the status of a ReplaceResult. Conflicts win over locks, locks over validation.
func replaceStatus(res model.ReplaceResult) int {
	switch {
	case res.Applied:
		return http.StatusOK
	case res.HasError(model.CodeVersionConflict):
		return http.StatusConflict
	case res.HasError(model.CodeCollectionLocked), res.HasError(model.CodeItemLocked):
		return http.StatusLocked
	default:
		return http.StatusUnprocessableEntity
	}
}

func pathID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}
