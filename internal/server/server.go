package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fulfillment/internal/analytics"
	"fulfillment/internal/orders"
	"fulfillment/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderService interface {
	Create(ctx context.Context, req orders.CreateRequest) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	SetStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus) (*models.Order, error)
	Update(ctx context.Context, id uuid.UUID, patch orders.Patch) (*models.Order, error)
}

type KPIService interface {
	Compute(ctx context.Context, q analytics.Query) (*models.KPIs, error)
}

// Projection serves revenue from the event-fed fact tables.
type Projection interface {
	DailyRevenue(ctx context.Context, from, to string) ([]models.RevenueBucket, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Deps struct {
	Orders     OrderService
	KPIs       KPIService
	Projection Projection
	Health     []HealthCheck
	Location   *time.Location
	Logger     *zap.Logger
	Version    string
}

type Server struct {
	router     *gin.Engine
	http       *http.Server
	orders     OrderService
	kpis       KPIService
	projection Projection
	health     []HealthCheck
	loc        *time.Location
	logger     *zap.Logger
	version    string
}

// NewServer creates a new server instance
func NewServer(d Deps) *Server {
	router := gin.New()

	s := &Server{
		router:     router,
		orders:     d.Orders,
		kpis:       d.KPIs,
		projection: d.Projection,
		health:     d.Health,
		loc:        d.Location,
		logger:     d.Logger,
		version:    d.Version,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	router.Use(gin.Recovery(), requestLogger(s.logger))
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.healthCheck)

		api.POST("/orders", s.createOrder)
		api.GET("/orders/:id", s.getOrder)
		api.PATCH("/orders/:id", s.updateOrder)
		api.PATCH("/orders/:id/status", s.setOrderStatus)

		api.GET("/kpis", s.getKPIs)
		if s.projection != nil {
			api.GET("/revenue/daily", s.dailyRevenue)
		}
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("HTTP server listening", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// healthCheck endpoint for monitoring
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for _, h := range s.health {
		if err := h.Check(ctx); err != nil {
			failed[h.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"error":  failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "fulfillment",
		"version": s.version,
	})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("HTTP request", fields...)
			return
		}
		logger.Debug("HTTP request", fields...)
	}
}
