package market

import "context"

// Source 抽象 K 线行情来源。轮询型机器人只依赖 REST 历史查询，
// 行情失败由调用方按「跳过本轮」处理。
type Source interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	Close() error
}
