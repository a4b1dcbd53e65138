package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tunix/internal/agent"
	"tunix/internal/config"
	"tunix/internal/logger"
	livehttp "tunix/internal/transport/http/live"
)

// App 负责应用级编排：加载配置→初始化依赖→启动轮询循环与 HTTP 服务。
type App struct {
	cfg      *config.Config
	live     *agent.LiveService
	liveHTTP *livehttp.Server
	closers  []func() error
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return newBuilder(cfg).build()
}

// Run 启动 HTTP 服务与交易循环，任一退出即整体退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.live == nil {
		return fmt.Errorf("live service not initialized")
	}
	defer a.close()

	group, ctx := errgroup.WithContext(ctx)
	if a.liveHTTP != nil {
		group.Go(func() error {
			if err := a.liveHTTP.Start(ctx); err != nil {
				return fmt.Errorf("live http server: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		return a.live.Run(ctx)
	})
	return group.Wait()
}

// LiveService 暴露底层循环实例，便于测试与重放。
func (a *App) LiveService() *agent.LiveService {
	if a == nil {
		return nil
	}
	return a.live
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnf("关闭依赖失败: %v", err)
		}
	}
}
