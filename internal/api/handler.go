package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"retail-service/internal/service"
	"retail-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orderService   *service.OrderService
	productService *service.ProductService
	clientService  *service.ClientService
	authService    *service.AuthService
	checks         map[string]Pinger
	logger         *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	productService *service.ProductService,
	clientService *service.ClientService,
	authService *service.AuthService,
	checks map[string]Pinger,
) *Handler {
	return &Handler{
		orderService:   orderService,
		productService: productService,
		clientService:  clientService,
		authService:    authService,
		checks:         checks,
		logger:         util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/auth/register", h.optionalAuth(), h.register)
	router.POST("/auth/login", h.login)
	router.POST("/token", h.login)

	authed := router.Group("/", h.requireAuth())
	{
		authed.POST("/auth/refresh-token", h.refreshToken)
		authed.GET("/users/me", h.me)

		authed.GET("/orders", h.listOrders)
		authed.POST("/orders", h.createOrder)
		authed.GET("/orders/:id", h.getOrder)
		authed.PUT("/orders/:id", h.updateOrder)
		authed.DELETE("/orders/:id", h.deleteOrder)
		authed.GET("/orders/:id/timeline", h.orderTimeline)
		authed.POST("/orders/:id/products", h.includeProduct)
		authed.DELETE("/orders/:id/products/:product_id", h.removeProduct)
		authed.PUT("/orders/:id/status", h.changeStatus)
		authed.POST("/orders/:id/cancel", h.cancelOrder)

		authed.GET("/products", h.listProducts)
		authed.POST("/products", h.createProduct)
		authed.GET("/products/:id", h.getProduct)
		authed.PUT("/products/:id", h.updateProduct)
		authed.DELETE("/products/:id", h.deleteProduct)

		authed.GET("/clients", h.listClients)
		authed.POST("/clients", h.createClient)
		authed.GET("/clients/:id", h.getClient)
		authed.PUT("/clients/:id", h.updateClient)
		authed.DELETE("/clients/:id", h.deleteClient)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency and reports 503 when one fails
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// paramID parses a positive path id, answering 400 when it is not one
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "ID inválido"})
		return 0, false
	}
	return id, true
}

// queryInt parses an optional non-negative integer query parameter
func queryInt(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Parâmetro inválido: " + name})
		return 0, false
	}
	return v, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
