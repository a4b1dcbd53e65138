package binance

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"tunix/internal/config"
	"tunix/internal/market"
	"tunix/internal/pkg/convert"
)

const (
	defaultRESTBaseURL = "https://fapi.binance.com"
	maxHistoryLimit    = 1500
)

// Source 基于 go-binance SDK 实现 market.Source。行情只读，不需要密钥。
// 最后一根 K 线是未收盘的实时数据，信号计算直接使用它，与轮询节奏一致。
type Source struct {
	client *futures.Client
	limit  int
}

func New(cfg config.MarketConfig) *Source {
	client := futures.NewClient("", "")
	if base := strings.TrimSpace(cfg.RESTBaseURL); base != "" {
		client.BaseURL = base
	} else {
		client.BaseURL = defaultRESTBaseURL
	}
	timeout := time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	limit := cfg.CandleLimit
	if limit <= 0 {
		limit = 100
	}
	return &Source{client: client, limit: limit}
}

func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = s.limit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	// Binance requires symbols without slashes (e.g., ETHUSDT)
	cleanSymbol := strings.ReplaceAll(strings.ToUpper(symbol), "/", "")

	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval 不能为空")
	}
	kls, err := s.client.NewKlinesService().Symbol(cleanSymbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("拉取 %s %s K 线失败: %w", cleanSymbol, interval, err)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      convert.ToFloat64(kl.Open),
			High:      convert.ToFloat64(kl.High),
			Low:       convert.ToFloat64(kl.Low),
			Close:     convert.ToFloat64(kl.Close),
			Volume:    convert.ToFloat64(kl.Volume),
		})
	}
	return out, nil
}

func (s *Source) Close() error {
	return nil
}
