// Package server exposes the venue operation surface over HTTP (gin) and the
// event feed over websocket. Caller identity is taken from the request body;
// transport-level authentication is deployment concern, not modeled here.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/veilbook/darkpool/internal/domain"
	"github.com/veilbook/darkpool/internal/events"
	"github.com/veilbook/darkpool/internal/registry"
	"github.com/veilbook/darkpool/internal/tradestore"
	"github.com/veilbook/darkpool/internal/venue"
)

// Server 场内 HTTP/WS 服务
type Server struct {
	venue  *venue.Venue
	trades *tradestore.Store
	bus    *events.Bus
	log    *logrus.Entry
}

// New 创建服务
func New(v *venue.Venue, trades *tradestore.Store, bus *events.Bus, log *logrus.Logger) *Server {
	return &Server{
		venue:  v,
		trades: trades,
		bus:    bus,
		log:    log.WithField("component", "server"),
	}
}

// Router 组装路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ws", s.handleEventFeed)

	api := r.Group("/api")

	commitments := api.Group("/commitments")
	commitments.POST("", s.handleCommit)
	commitments.POST("/:id/reveal", s.handleReveal)
	commitments.POST("/:id/cancel", s.handleCancel)
	commitments.GET("/:id/timestamp", s.handleCommitmentTimestamp)

	orders := api.Group("/orders")
	orders.POST("/expire-due", s.handleExpireDue)
	orders.POST("/:id/tick", s.handleTick)
	orders.GET("/:id", s.handleOrderGet)

	api.GET("/nullifiers/:value", s.handleNullifier)
	api.GET("/params/reveal-delay", s.handleRevealDelay)
	api.GET("/trades", s.handleTrades)

	return r
}

// statusFor 错误分类 → HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrDigestInUse):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrRevealTooEarly):
		return http.StatusTooEarly
	case errors.Is(err, domain.ErrRevealExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrHashMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNullifierReused):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidProof):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrOrderExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrFillBelowMinimum):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSettlementFailed):
		return http.StatusBadGateway
	case errors.Is(err, registry.ErrMalformedFields):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("请求处理失败")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
