// Package api exposes the swap lifecycle and the notification center over HTTP, along with the websocket
// endpoint that clients use to receive live notification events.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/cyverse-de/skill-swap/common"
	"github.com/cyverse-de/skill-swap/notify"
	"github.com/cyverse-de/skill-swap/swaps"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// UserIDHeader is the request header that carries the authenticated caller's identity.
const UserIDHeader = "X-User-Id"

// InternalTokenHeader is the request header that carries the shared token for the internal endpoints.
const InternalTokenHeader = "X-Internal-Token"

const callerKey = "caller"

// API holds the dependencies of the HTTP handlers.
type API struct {
	engine        *swaps.Engine
	dispatcher    *notify.Dispatcher
	upgrader      websocket.Upgrader
	internalToken string
	log           *logrus.Entry
}

// New creates a new API.
func New(engine *swaps.Engine, dispatcher *notify.Dispatcher, log *logrus.Entry) *API {
	return &API{
		engine:     engine,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// WithInternalToken sets the shared token that other services must present to use the internal endpoints.
// The internal endpoints refuse every request until a token is set.
func (a *API) WithInternalToken(token string) *API {
	a.internalToken = token
	return a
}

// Router builds the gin engine that serves the API.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", UserIDHeader, InternalTokenHeader},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/", a.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := r.Group("/internal")
	internal.Use(requireInternalToken(a.internalToken))
	{
		internal.POST("/notifications", a.sendNotification)
	}

	authenticated := r.Group("/")
	authenticated.Use(requireCaller())
	{
		authenticated.GET("/ws", a.live)
	}

	swapRoutes := authenticated.Group("/swaps")
	{
		swapRoutes.POST("", a.submitSwap)
		swapRoutes.GET("", a.listSwaps)
		swapRoutes.GET("/:id", a.getSwap)
		swapRoutes.POST("/:id/accept", a.acceptSwap)
		swapRoutes.POST("/:id/reject", a.rejectSwap)
		swapRoutes.POST("/:id/cancel", a.cancelSwap)
		swapRoutes.POST("/:id/complete", a.completeSwap)
		swapRoutes.POST("/:id/feedback", a.giveFeedback)
	}

	notificationRoutes := authenticated.Group("/notifications")
	{
		notificationRoutes.GET("", a.listNotifications)
		notificationRoutes.DELETE("", a.clearNotifications)
		notificationRoutes.GET("/unread-count", a.unreadCount)
		notificationRoutes.POST("/read-all", a.markAllRead)
		notificationRoutes.POST("/:id/read", a.markRead)
		notificationRoutes.DELETE("/:id", a.deleteNotification)
	}

	return r
}

// requireCaller rejects requests that don't identify the caller.
func requireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if caller == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + UserIDHeader + " header"})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// requireInternalToken rejects requests that don't present the configured shared token.
func requireInternalToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "internal endpoints are disabled"})
			return
		}
		presented := c.GetHeader(InternalTokenHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(
				http.StatusUnauthorized, gin.H{"error": "missing or invalid " + InternalTokenHeader + " header"},
			)
			return
		}
		c.Next()
	}
}

func caller(c *gin.Context) string {
	return c.GetString(callerKey)
}

// statusFor maps an error to the HTTP status code that describes it.
func statusFor(err error) int {
	switch {
	case common.IsInvalidArgument(err):
		return http.StatusBadRequest
	case common.IsForbidden(err):
		return http.StatusForbidden
	case common.IsNotFound(err):
		return http.StatusNotFound
	case common.IsInvalidState(err):
		return http.StatusConflict
	case common.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes an error response. Client errors carry the specific reason for the failure. Server errors are
// logged and described to the client only by their status.
func (a *API) fail(c *gin.Context, err error) {
	status := statusFor(err)
	message := http.StatusText(status)
	if status < http.StatusInternalServerError {
		message = errors.Cause(err).Error()
	} else {
		a.log.WithFields(logrus.Fields{"method": c.Request.Method, "path": c.FullPath()}).
			WithError(err).Error("request failed")
	}
	c.JSON(status, gin.H{"error": message})
}

// badRequest reports a request that could not be decoded.
func (a *API) badRequest(c *gin.Context, err error) {
	a.fail(c, common.NewInvalidArgumentError("invalid request: %s", err.Error()))
}

func (a *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"service": "skill-swap", "status": "ok"})
}
