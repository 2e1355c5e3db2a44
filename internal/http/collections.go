package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/jmehdipour/retreat-sync/internal/aggregate"
	"github.com/jmehdipour/retreat-sync/internal/model"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type replaceReq[T any] struct {
	Version *int64 `json:"version"`
	Items   []T    `json:"items"`
}

type itemLocksReq struct {
	IDs    []int64 `json:"ids"`
	Locked bool    `json:"locked"`
}

type collectionLockReq struct {
	Locked *bool `json:"locked"`
}

type replaceFunc[T any] func(ctx context.Context, retreatID, version int64, items []T) (model.ReplaceResult, error)

// collection serves the generic endpoints of one versioned collection.
type collection[T aggregate.Item[T]] struct {
	store   *aggregate.Store[T]
	replace replaceFunc[T]
	log     *zap.Logger
}

func registerCollection[T aggregate.Item[T]](g *echo.Group, store *aggregate.Store[T], replace replaceFunc[T], log *zap.Logger) {
	if replace == nil {
		replace = store.ReplaceAll
	}
	h := collection[T]{store: store, replace: replace, log: log}

	prefix := "/" + store.Kind().String()
	g.GET(prefix, h.snapshot)
	g.PUT(prefix, h.replaceAll)
	g.DELETE(prefix, h.deleteAll)
	g.POST(prefix+"/locks", h.setItemLocks)
	g.POST(prefix+"/lock", h.setCollectionLock)
}

func (h collection[T]) snapshot(c echo.Context) error {
	retreatID, ok := pathID(c, "retreatID")
	if !ok {
		return badRequest(c, "invalid retreat id")
	}
	snap, err := h.store.Snapshot(c.Request().Context(), retreatID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if snap.Items == nil {
		snap.Items = []T{}
	}
	return c.JSON(http.StatusOK, snap)
}

func (h collection[T]) replaceAll(c echo.Context) error {
	retreatID, ok := pathID(c, "retreatID")
	if !ok {
		return badRequest(c, "invalid retreat id")
	}
	var req replaceReq[T]
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "bad request")
	}
	if req.Version == nil || *req.Version < 0 {
		return badRequest(c, "version is required")
	}

	res, err := h.replace(c.Request().Context(), retreatID, *req.Version, req.Items)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(replaceStatus(res), res)
}

func (h collection[T]) deleteAll(c echo.Context) error {
	retreatID, ok := pathID(c, "retreatID")
	if !ok {
		return badRequest(c, "invalid retreat id")
	}
	version, err := strconv.ParseInt(c.QueryParam("version"), 10, 64)
	if err != nil || version < 0 {
		return badRequest(c, "version is required")
	}

	res, err := h.store.DeleteAll(c.Request().Context(), retreatID, version)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(replaceStatus(res), res)
}

func (h collection[T]) setItemLocks(c echo.Context) error {
	retreatID, ok := pathID(c, "retreatID")
	if !ok {
		return badRequest(c, "invalid retreat id")
	}
	var req itemLocksReq
	if err := c.Bind(&req); err != nil || len(req.IDs) == 0 {
		return badRequest(c, "ids are required")
	}

	res, err := h.store.SetItemLocks(c.Request().Context(), retreatID, req.IDs, req.Locked)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h collection[T]) setCollectionLock(c echo.Context) error {
	retreatID, ok := pathID(c, "retreatID")
	if !ok {
		return badRequest(c, "invalid retreat id")
	}
	var req collectionLockReq
	if err := c.Bind(&req); err != nil || req.Locked == nil {
		return badRequest(c, "locked is required")
	}

	st, err := h.store.SetCollectionLock(c.Request().Context(), retreatID, *req.Locked)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, st)
}
