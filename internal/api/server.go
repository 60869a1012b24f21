package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ammengine/internal/amm"
)

// Server exposes the engine over HTTP.
type Server struct {
	engine   *amm.Engine
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	router   *gin.Engine
}

// NewServer builds the route table. gatherer may be nil to omit /metrics.
func NewServer(engine *amm.Engine, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{engine: engine, gatherer: gatherer, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	r.GET("/health", s.health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/pools", s.listPools)
	r.POST("/pools", s.createPool)
	r.GET("/pools/:id", s.getPool)
	r.GET("/pools/:id/events", s.poolEvents)
	r.GET("/pools/:id/positions/:owner", s.getPosition)
	r.GET("/pools/:id/quote", s.quote)
	r.POST("/pools/:id/swap", s.swap)
	r.POST("/pools/:id/liquidity", s.addLiquidity)
	r.POST("/pools/:id/liquidity/remove", s.removeLiquidity)
	r.POST("/pools/:id/pause", s.pause)
	r.POST("/pools/:id/unpause", s.unpause)
	r.POST("/pools/:id/fees/withdraw", s.withdrawFees)

	r.POST("/pools/:id/program", s.createProgram)
	r.POST("/pools/:id/program/reset", s.resetProgram)
	r.GET("/pools/:id/program", s.getProgram)
	r.POST("/pools/:id/stake", s.stake)
	r.POST("/pools/:id/unstake", s.unstake)
	r.POST("/pools/:id/harvest", s.harvest)
	r.GET("/pools/:id/pending/:user", s.pending)

	r.GET("/route", s.findRoute)
	r.POST("/swap", s.swapRoute)
	r.GET("/fees", s.listFees)
	r.GET("/prices/:token", s.getPrice)
	r.PUT("/prices/:token", s.setPrice)
	r.POST("/admins", s.addAdmin)

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
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
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request", fields...)
			return
		}
		logger.Debug("request", fields...)
	}
}

func (s *Server) health(c *gin.Context) {
	respondOK(c, gin.H{"status": "ok", "pools": len(s.engine.Pools.Pools())})
}
