package http

import (
	"net/http"
	"strings"

	"github.com/jmehdipour/retreat-sync/internal/channel"
	"github.com/jmehdipour/retreat-sync/internal/service/groups"
	"github.com/jmehdipour/retreat-sync/internal/service/retreat"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type spaceCapacityReq struct {
	Min *int `json:"min"`
	Max *int `json:"max"`
}

type tentCapacityReq struct {
	Capacity *int `json:"capacity"`
}

type changeEmailReq struct {
	Email   string `json:"email"`
	Version *int64 `json:"version"`
}

type triggerGroupsReq struct {
	Channel string `json:"channel"`
}

func spaceCapacityHandler(svc *retreat.Service, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		retreatID, ok := pathID(c, "retreatID")
		if !ok {
			return badRequest(c, "invalid retreat id")
		}
		var req spaceCapacityReq
		if err := c.Bind(&req); err != nil || req.Min == nil || req.Max == nil {
			return badRequest(c, "min and max are required")
		}

		res, err := svc.SetSpaceCapacity(c.Request().Context(), retreatID, *req.Min, *req.Max)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func tentCapacityHandler(svc *retreat.Service, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		retreatID, ok := pathID(c, "retreatID")
		if !ok {
			return badRequest(c, "invalid retreat id")
		}
		var req tentCapacityReq
		if err := c.Bind(&req); err != nil || req.Capacity == nil {
			return badRequest(c, "capacity is required")
		}

		res, err := svc.SetTentCapacity(c.Request().Context(), retreatID, *req.Capacity)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func changeEmailHandler(svc *retreat.Service, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		retreatID, ok := pathID(c, "retreatID")
		if !ok {
			return badRequest(c, "invalid retreat id")
		}
		entryID, ok := pathID(c, "entryID")
		if !ok {
			return badRequest(c, "invalid entry id")
		}
		var req changeEmailReq
		if err := c.Bind(&req); err != nil || req.Version == nil || strings.TrimSpace(req.Email) == "" {
			return badRequest(c, "email and version are required")
		}

		res, err := svc.ChangeEmail(c.Request().Context(), retreatID, *req.Version, entryID, req.Email)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(replaceStatus(res), res)
	}
}

func triggerGroupsHandler(svc *groups.Service, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		retreatID, ok := pathID(c, "retreatID")
		if !ok {
			return badRequest(c, "invalid retreat id")
		}
		var req triggerGroupsReq
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "bad request")
		}
		ch := channel.Kind(strings.ToLower(strings.TrimSpace(req.Channel)))
		if ch == "" {
			ch = channel.WhatsApp
		}

		res, err := svc.TriggerCreation(c.Request().Context(), retreatID, ch)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(http.StatusAccepted, res)
	}
}

func resendGroupHandler(svc *groups.Service, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		retreatID, ok := pathID(c, "retreatID")
		if !ok {
			return badRequest(c, "invalid retreat id")
		}
		familyID, ok := pathID(c, "familyID")
		if !ok {
			return badRequest(c, "invalid family id")
		}

		g, err := svc.ResendNotification(c.Request().Context(), retreatID, familyID)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSON(http.StatusAccepted, g)
	}
}
