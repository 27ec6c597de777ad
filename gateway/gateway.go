package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/checkout"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AuditHistory reads the audit trail of an entity.
type AuditHistory interface {
	GetAuditLogs(ctx context.Context, entityID string, limit int64) ([]*repository.AuditLog, error)
}

type Deps struct {
	Config   *config.Config
	Logger   *zap.Logger
	Auth     *auth.Manager
	Cart     *cart.Service
	Checkout *checkout.Service
	// History is optional; without it the order history route reports 503.
	History AuditHistory
	// Ready backs GET /health.
	Ready func(ctx context.Context) error
}

type Gateway struct {
	config   *config.Config
	logger   *zap.Logger
	router   *gin.Engine
	server   *http.Server
	auth     *auth.Manager
	cart     *cart.Service
	checkout *checkout.Service
	history  AuditHistory
	ready    func(ctx context.Context) error
	limiter  *ipRateLimiter
}

func NewGateway(d Deps) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	useJSONFieldNames()
	logger := d.Logger.Named("gateway")

	router := gin.New()
	router.Use(recoveryMiddleware(logger))
	router.Use(loggerMiddleware(logger))

	limit := rate.Limit(d.Config.Checkout.RateLimit)
	if limit <= 0 {
		limit = rate.Inf
	}

	g := &Gateway{
		config:   d.Config,
		logger:   logger,
		router:   router,
		auth:     d.Auth,
		cart:     d.Cart,
		checkout: d.Checkout,
		history:  d.History,
		ready:    d.Ready,
		limiter:  newIPRateLimiter(limit, d.Config.Checkout.RateBurst),
	}
	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.GET("/health", g.health)

	authenticated := auth.Authenticate(g.auth, g.fail)
	adminOnly := auth.RequireRole(g.fail, auth.RoleAdmin)

	v1 := g.router.Group("/api/v1")
	{
		v1.GET("/promotions/active", g.activePromotions)
		v1.POST("/coupons/validate/:code", authenticated, g.validateCoupon)

		carts := v1.Group("/cart", authenticated)
		{
			carts.GET("", g.getCart)
			carts.DELETE("", g.clearCart)
			carts.POST("/items", g.addCartItem)
			carts.PATCH("/items/:id", g.updateCartItem)
			carts.DELETE("/items/:id", g.removeCartItem)
		}

		orders := v1.Group("/orders", authenticated)
		{
			orders.POST("", g.limiter.middleware(g.fail), g.createOrder)
			orders.GET("/me", g.listMyOrders)
			orders.GET("/me/:id", g.getMyOrder)
			orders.POST("/:id/cancel", g.limiter.middleware(g.fail), g.cancelOrder)

			orders.GET("/stats", auth.RequireRole(g.fail, auth.RoleAdmin, auth.RoleManager), g.orderStats)
			orders.GET("", adminOnly, g.listOrders)
			orders.GET("/:id", adminOnly, g.getOrder)
			orders.GET("/:id/history", adminOnly, g.orderHistory)
			orders.PATCH("/:id/status", adminOnly, g.updateOrderStatus)
			orders.PATCH("/:id/payment-status", adminOnly, g.updatePaymentStatus)
		}

		admin := v1.Group("/admin", authenticated, adminOnly)
		{
			admin.POST("/coupons", g.createCoupon)
			admin.POST("/discounts", g.createDiscount)
			admin.POST("/bundles", g.createBundle)
		}
	}
}

// Handler exposes the router for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Start() error {
	addr := fmt.Sprintf("%s:%d", g.config.Gateway.Host, g.config.Gateway.Port)
	g.server = &http.Server{
		Addr:         addr,
		Handler:      g.router,
		ReadTimeout:  g.config.Gateway.ReadTimeout,
		WriteTimeout: g.config.Gateway.WriteTimeout,
	}
	g.logger.Info("Gateway starting", zap.String("address", addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

func (g *Gateway) health(c *gin.Context) {
	if g.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := g.ready(ctx); err != nil {
			g.logger.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
