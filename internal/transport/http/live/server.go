package livehttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tunix/internal/logger"
	"tunix/internal/store/model"
)

const maxTradeListLimit = 200

// Status 汇总运行时状态，由交易循环提供快照。
type Status struct {
	Symbol        string          `json:"symbol"`
	Timeframe     string          `json:"timeframe"`
	Position      *PositionStatus `json:"position,omitempty"`
	Wins          int             `json:"win_count"`
	Losses        int             `json:"loss_count"`
	ParamsVersion int64           `json:"params_version"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PositionStatus 描述当前持仓的对外视图。
type PositionStatus struct {
	Side        string  `json:"side"`
	EntryType   string  `json:"entry_type"`
	PositionID  string  `json:"position_id"`
	Quantity    string  `json:"quantity"`
	EntryPrice  float64 `json:"entry_price"`
	StopPrice   float64 `json:"stop_price,omitempty"`
	TargetPrice float64 `json:"target_price,omitempty"`
}

// StatusProvider 提供当前运行状态快照。
type StatusProvider interface {
	Status() Status
}

// TradeLister 提供最近成交记录查询。
type TradeLister interface {
	ListRecent(ctx context.Context, limit int) ([]model.TradeModel, error)
}

// Server 提供最小化的 /api/live HTTP 服务（状态查询 + 成交历史）。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述 live HTTP 服务依赖。
type ServerConfig struct {
	Addr   string
	Status StatusProvider
	Trades TradeLister
}

// NewServer 构建 live HTTP server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Status == nil {
		return nil, errors.New("live http server requires a status provider")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/live")
	api.GET("/status", statusHandler(cfg.Status))
	if cfg.Trades != nil {
		api.GET("/trades", tradesHandler(cfg.Trades))
	}

	return &Server{addr: cfg.Addr, router: router}, nil
}

func statusHandler(provider StatusProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, provider.Status())
	}
}

func tradesHandler(trades TradeLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}
		if limit > maxTradeListLimit {
			limit = maxTradeListLimit
		}
		rows, err := trades.ListRecent(c.Request.Context(), limit)
		if err != nil {
			logger.Errorf("查询成交记录失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trades"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trades": rows, "count": len(rows)})
	}
}

// requestLogger 记录接口调用，便于追踪刷新与外部访问。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
