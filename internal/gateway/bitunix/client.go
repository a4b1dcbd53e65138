package bitunix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"tunix/internal/config"
)

// Client wraps the Bitunix futures REST API surface this bot depends on.
// 所有请求经统一的 doGet/doPost 签名入口，杜绝散落的签名代码。
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	apiKey     string
	secretKey  string
	symbol     string
	marginCoin string
	leverage   int

	condMaxRetries int
	condRetryDelay time.Duration

	// 测试钩子：固定 nonce/时间戳与跳过真实 sleep。
	nonce func() string
	nowMS func() string
	sleep func(time.Duration)
}

// APIError 表示 HTTP 正常但 code != 0 的应用层错误。
type APIError struct {
	Code int64
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitunix api error: code=%d msg=%s", e.Code, e.Msg)
}

// NewClient constructs a Bitunix client from configuration.
func NewClient(ex config.ExchangeConfig, trading config.TradingConfig, strat config.StrategyConfig) (*Client, error) {
	raw := strings.TrimSpace(ex.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("exchange.base_url 不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("解析 exchange.base_url 失败: %w", err)
	}
	timeout := time.Duration(ex.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:        parsed,
		httpClient:     &http.Client{Timeout: timeout},
		apiKey:         strings.TrimSpace(ex.APIKey),
		secretKey:      strings.TrimSpace(ex.SecretKey),
		symbol:         strings.TrimSpace(trading.Symbol),
		marginCoin:     strings.TrimSpace(trading.MarginCoin),
		leverage:       trading.Leverage,
		condMaxRetries: strat.ConditionalMaxRetries,
		condRetryDelay: time.Duration(strat.ConditionalRetryIntervalMS) * time.Millisecond,
		nonce:          func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
		nowMS:          func() string { return strconv.FormatInt(time.Now().UnixMilli(), 10) },
		sleep:          time.Sleep,
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) resolveEndpoint(path string, query url.Values) (*url.URL, error) {
	if c.baseURL == nil {
		return nil, fmt.Errorf("bitunix API 地址未设置")
	}
	base := *c.baseURL
	base.Path = strings.TrimSuffix(base.Path, "/") + path
	base.RawQuery = query.Encode()
	return &base, nil
}

// doGet 以查询参数签名并发起 GET 请求，返回 envelope 的 data 字段。
func (c *Client) doGet(ctx context.Context, path string, params map[string]string) (gjson.Result, error) {
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	endpoint, err := c.resolveEndpoint(path, query)
	if err != nil {
		return gjson.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("构造请求失败: %w", err)
	}
	for k, v := range authHeaders(c.apiKey, c.secretKey, c.nonce(), c.nowMS(), canonicalQuery(params)) {
		req.Header.Set(k, v)
	}
	return c.execute(req)
}

// doPost 以压缩 JSON 主体签名并发起 POST 请求。
func (c *Client) doPost(ctx context.Context, path string, body any) (gjson.Result, error) {
	payload, err := compactJSON(body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("序列化请求失败: %w", err)
	}
	endpoint, err := c.resolveEndpoint(path, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("构造请求失败: %w", err)
	}
	for k, v := range authHeaders(c.apiKey, c.secretKey, c.nonce(), c.nowMS(), string(payload)) {
		req.Header.Set(k, v)
	}
	return c.execute(req)
}

func (c *Client) execute(req *http.Request) (gjson.Result, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("调用 bitunix 失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("读取 bitunix 响应失败: %w", err)
	}
	if resp.StatusCode >= 300 {
		return gjson.Result{}, fmt.Errorf("bitunix 返回错误(%s): %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("bitunix 响应不是合法 JSON")
	}
	envelope := gjson.ParseBytes(data)
	if code := envelope.Get("code"); code.Int() != 0 {
		return gjson.Result{}, &APIError{Code: code.Int(), Msg: envelope.Get("msg").String()}
	}
	return envelope.Get("data"), nil
}

// compactJSON 生成与签名一致的主体字节：无空白、不转义非 ASCII。
func compactJSON(body any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// formatPrice 以最短精确形式序列化价格，交易所要求价格为字符串。
func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
