// Package http is the admin API of the core service.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmehdipour/retreat-sync/internal/config"
	"github.com/jmehdipour/retreat-sync/internal/http/middleware"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/jmehdipour/retreat-sync/internal/repository"
	"github.com/jmehdipour/retreat-sync/internal/service/groups"
	"github.com/jmehdipour/retreat-sync/internal/service/retreat"
	echo "github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	gommonlog "github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the collaborators the handlers need. Redis and Events may be nil.
type Deps struct {
	Config   config.Config
	Retreat  *retreat.Service
	Groups   *groups.Service
	Outbox   repository.OutboxRepository
	Events   repository.EventsAuditRepository
	Redis    *redis.Client
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(d Deps) *Server {
	log := logger.OrGlobal(d.Log, "http")

	// echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(gommonlog.ERROR)
	e.Use(echoMid.Recover(), echoMid.RequestID())

	if d.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.AdminKeyMiddleware(d.Config.HTTP.AdminKeys)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		RPS:            d.Config.RateLimit.RPS,
		KeyPrefix:      "rl:admin:",
		Window:         time.Second,
		RetryAfterHint: true,
		Logger:         log,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.GET("/outbox/stats", outboxStatsHandler(d.Outbox, log))
	if d.Events != nil {
		v1.GET("/events", listEventsHandler(d.Events, log))
	}

	r := v1.Group("/retreats/:retreatID")
	registerCollection(r, d.Retreat.Families, nil, log)
	registerCollection(r, d.Retreat.Spaces, nil, log)
	registerCollection(r, d.Retreat.Tents, nil, log)
	registerCollection(r, d.Retreat.Roster, d.Retreat.ReplaceRoster, log)

	r.POST("/spaces/capacity", spaceCapacityHandler(d.Retreat, log))
	r.POST("/tents/capacity", tentCapacityHandler(d.Retreat, log))
	r.POST("/roster/:entryID/email", changeEmailHandler(d.Retreat, log))
	r.POST("/families/groups", triggerGroupsHandler(d.Groups, log))
	r.POST("/families/:familyID/groups/resend", resendGroupHandler(d.Groups, log))

	return &Server{e: e, log: log}
}

func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
