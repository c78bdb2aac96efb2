package status

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/config"
	"github.com/aeolus-works/turbine-sentry/internal/infrastructure/logging"
	"github.com/aeolus-works/turbine-sentry/internal/ready"
)

// API serves the rendered status view, health and readiness probes,
// Prometheus metrics, and the websocket stream.
type API struct {
	cfg      config.StatusConfig
	log      *logging.Logger
	renderer *Renderer
	barrier  *ready.Barrier
	hub      *Hub
	srv      *http.Server
}

// NewAPI builds the router and server. Start must be called to begin
// serving.
func NewAPI(cfg config.StatusConfig, log *logging.Logger, renderer *Renderer, barrier *ready.Barrier, hub *Hub) *API {
	a := &API{
		cfg:      cfg,
		log:      log,
		renderer: renderer,
		barrier:  barrier,
		hub:      hub,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Accept", "Origin"},
		MaxAge:       12 * time.Hour,
	}))
	router.Use(globalRateLimit(cfg.RequestsPerSecond, cfg.Burst))
	router.Use(requestLogger(log))

	router.GET("/healthz", a.healthz)
	router.GET("/readyz", a.readyz)
	router.GET("/api/status", a.status)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", hub.HandleConnection)

	a.srv = &http.Server{
		Addr:              cfg.Host + ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a
}

// Start serves until the listener fails or Shutdown is called.
func (a *API) Start() error {
	a.log.Info("status API listening", zap.String("addr", a.srv.Addr))
	if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases websocket clients.
func (a *API) Shutdown(ctx context.Context) error {
	a.hub.Close()
	return a.srv.Shutdown(ctx)
}

func (a *API) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) readyz(c *gin.Context) {
	if !a.barrier.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "initializing",
			"flags":  a.barrier.Flags(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (a *API) status(c *gin.Context) {
	body, err := sonic.Marshal(a.renderer.Last())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encoding failed"})
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func requestLogger(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.FullPath() == "/ws" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

func globalRateLimit(rps, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
