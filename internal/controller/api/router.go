// Package api HTTP API поверх сервисов бронирования
package api

import (
	"net/http"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/observability"
	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// Deps зависимости роутера. Hub, HTTPMetrics и Gatherer необязательны.
type Deps struct {
	Sessions     *service.SessionService
	Requests     *service.SessionRequestService
	Availability *service.AvailabilityChecker
	Slots        *service.SlotFinder
	Hub          http.Handler
	HTTPMetrics  *observability.HTTPMetrics
	Gatherer     prometheus.Gatherer
	Logger       *zap.Logger
}

type handler struct {
	sessions     *service.SessionService
	requests     *service.SessionRequestService
	availability *service.AvailabilityChecker
	slots        *service.SlotFinder
	logger       *zap.Logger
}

// NewRouter собирает gin-роутер со всеми маршрутами
func NewRouter(d Deps) *gin.Engine {
	h := &handler{
		sessions:     d.Sessions,
		requests:     d.Requests,
		availability: d.Availability,
		slots:        d.Slots,
		logger:       d.Logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(d.Logger))
	if d.HTTPMetrics != nil {
		r.Use(d.HTTPMetrics.Middleware())
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	if d.Hub != nil {
		r.GET("/ws/events", gin.WrapH(d.Hub))
	}

	api := r.Group("/api")
	{
		requests := api.Group("/requests")
		requests.POST("", h.createRequest)
		requests.GET("", h.listRequests)
		requests.GET("/:id", h.getRequest)
		requests.PATCH("/:id", h.updateRequest)
		requests.DELETE("/:id", h.deleteRequest)
		requests.POST("/:id/respond", h.respondRequest)
		requests.POST("/:id/accept", h.acceptRequest)
		requests.POST("/:id/reject", h.rejectRequest)

		sessions := api.Group("/sessions")
		sessions.POST("", h.createSession)
		sessions.GET("", h.listSessions)
		sessions.GET("/:id", h.getSession)
		sessions.PATCH("/:id", h.updateSession)
		sessions.DELETE("/:id", h.deleteSession)
		sessions.POST("/:id/confirm", h.confirmSession)
		sessions.POST("/:id/start", h.startSession)
		sessions.POST("/:id/complete", h.completeSession)
		sessions.POST("/:id/cancel", h.cancelSession)
		sessions.POST("/:id/reschedule", h.rescheduleSession)

		api.GET("/availability", h.checkAvailability)
		api.GET("/slots", h.findSlots)
	}

	return r
}

// requestID берёт X-Request-ID из запроса или генерирует новый
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDKey)),
		)
	}
}
