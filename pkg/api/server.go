package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// shutdownTimeout 关闭HTTP服务时等待请求结束的上限
const shutdownTimeout = 5 * time.Second

// Server 状态查询HTTP服务器
type Server struct {
	router *gin.Engine
	srv    *http.Server
	logger *zap.Logger
}

// NewServer 创建HTTP服务器并注册路由
func NewServer(addr string, handlers *Handlers, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	s := &Server{
		router: router,
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
	s.setupRoutes(handlers)
	return s
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(h *Handlers) {
	s.router.GET("/health", h.HealthCheck)
	s.router.GET("/ready", h.ReadinessCheck)
	s.router.GET("/status", h.Status)
	s.router.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/price", h.GetPrice)
		v1.GET("/cycles/last", h.GetLastCycle)
		v1.GET("/tasks", h.GetTasks)
		v1.POST("/tasks/:name/run", h.RunTask)
	}
}

// Handler 返回路由处理器
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动服务器，ctx 结束时优雅关闭
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP服务器启动", zap.String("addr", s.srv.Addr))
		serverErr <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("正在关闭HTTP服务器...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP服务器关闭失败: %w", err)
		}
		if err := <-serverErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP服务器异常退出: %w", err)
		}
		return nil
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}
