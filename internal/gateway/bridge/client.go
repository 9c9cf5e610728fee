// Package bridge 通过 HTTP 访问行情网关，实现历史 K 线拉取与合约目录查询。
package bridge

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"futbars/internal/fetch"
	"futbars/internal/logger"
	"futbars/internal/market"
	"futbars/internal/pkg/circuit"
	"futbars/internal/pkg/text"

	"github.com/tidwall/gjson"
)

const maxResponseBytes = 64 << 20

// 非 JSON 错误体写入失败台账前的最大长度。
const maxErrorBodyChars = 512

// Venue 是 symbol 在网关侧的交易所与币种。
type Venue struct {
	Exchange string
	Currency string
}

// Config 描述网关连接参数。
type Config struct {
	BaseURL    string
	ClientID   int
	Timeout    time.Duration
	WhatToShow string
	UseRTH     bool
	// BarSizes maps granularity keys (1m, 1h...) to gateway bar size text.
	BarSizes         map[string]string
	Venues           map[string]Venue
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Client implements fetch.BarSource and fetch.ContractCatalog.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	cfg        Config
	breaker    *circuit.Breaker

	mu      sync.Mutex
	catalog map[string][]market.Contract
}

var (
	_ fetch.BarSource       = (*Client)(nil)
	_ fetch.ContractCatalog = (*Client)(nil)
)

func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("source.base_url 不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("解析 source.base_url 失败: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if strings.TrimSpace(cfg.WhatToShow) == "" {
		cfg.WhatToShow = "TRADES"
	}
	if len(cfg.BarSizes) == 0 {
		cfg.BarSizes = market.DefaultBarSizes()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		cfg:        cfg,
		breaker:    circuit.New("bridge", cfg.BreakerThreshold, cfg.BreakerCooldown),
		catalog:    make(map[string][]market.Contract),
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) Name() string { return "bridge" }

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) venue(symbol string) Venue {
	return c.cfg.Venues[strings.ToUpper(symbol)]
}

// ListContracts 返回 symbol 的全部合约（含已到期），结果在客户端内缓存。
func (c *Client) ListContracts(ctx context.Context, symbol string) ([]market.Contract, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	c.mu.Lock()
	if cached, ok := c.catalog[symbol]; ok {
		c.mu.Unlock()
		return append([]market.Contract(nil), cached...), nil
	}
	c.mu.Unlock()

	v := c.venue(symbol)
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("sec_type", "FUT")
	q.Set("include_expired", "true")
	setIf(q, "exchange", v.Exchange)
	setIf(q, "currency", v.Currency)
	c.setClientID(q)

	body, err := c.get(ctx, "/contracts", q)
	if err != nil {
		return nil, err
	}
	contracts, err := parseContracts(body, symbol)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.catalog[symbol] = contracts
	c.mu.Unlock()
	logger.Infof("[bridge] %s 合约目录 %d 个", symbol, len(contracts))
	return append([]market.Contract(nil), contracts...), nil
}

// FetchBars 拉取 [req.Start, req.End) 的 K 线，返回按时间升序的 UTC 数据。
func (c *Client) FetchBars(ctx context.Context, req fetch.FetchRequest) ([]market.Bar, error) {
	barSize, ok := c.cfg.BarSizes[strings.ToLower(req.Bar)]
	if !ok {
		return nil, fmt.Errorf("bridge: no bar size for %q", req.Bar)
	}
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(req.Symbol))
	q.Set("sec_type", "FUT")
	q.Set("end", req.End.UTC().Format("20060102-15:04:05"))
	q.Set("duration", DurationString(req.Start, req.End))
	q.Set("bar_size", barSize)
	q.Set("what_to_show", c.cfg.WhatToShow)
	q.Set("use_rth", boolFlag(c.cfg.UseRTH))
	q.Set("format_date", "2")
	c.setClientID(q)

	v := c.venue(req.Symbol)
	exchange, currency := v.Exchange, v.Currency
	switch {
	case req.Contract != nil:
		if req.Contract.ConID > 0 {
			q.Set("con_id", strconv.FormatInt(req.Contract.ConID, 10))
		}
		setIf(q, "local_symbol", req.Contract.LocalSymbol)
		setIf(q, "contract_month", req.Contract.ContractMonth)
		q.Set("include_expired", "true")
		if req.Contract.Exchange != "" {
			exchange = req.Contract.Exchange
		}
		if req.Contract.Currency != "" {
			currency = req.Contract.Currency
		}
	case req.Resolved != nil:
		setIf(q, "contract_month", req.Resolved.ContractMonth)
		if req.Resolved.Exchange != "" {
			exchange = req.Resolved.Exchange
		}
		if req.Resolved.Currency != "" {
			currency = req.Resolved.Currency
		}
	}
	setIf(q, "exchange", exchange)
	setIf(q, "currency", currency)

	body, err := c.get(ctx, "/history", q)
	if err != nil {
		return nil, err
	}
	return parseBars(body, req.Start, req.End)
}

func (c *Client) setClientID(q url.Values) {
	if c.cfg.ClientID > 0 {
		q.Set("client_id", strconv.Itoa(c.cfg.ClientID))
	}
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	endpoint := c.baseURL.JoinPath(path)
	endpoint.RawQuery = q.Encode()
	var body []byte
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
		if err != nil {
			return fmt.Errorf("构造请求失败: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("调用行情网关失败: %w", err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("读取网关响应失败: %w", err)
		}
		if resp.StatusCode >= 300 {
			// 无数据同样可能以错误状态码返回，交给解析层识别。
			if gjson.ValidBytes(data) {
				if noData, _ := responseError(gjson.ParseBytes(data)); noData {
					body = data
					return nil
				}
			}
			msg := strings.TrimSpace(gjson.GetBytes(data, "error.message").String())
			if msg == "" {
				msg = text.Truncate(strings.TrimSpace(string(data)), maxErrorBodyChars)
			}
			if msg == "" {
				return fmt.Errorf("行情网关返回错误: %s", resp.Status)
			}
			return fmt.Errorf("行情网关返回错误(%s): %s", resp.Status, msg)
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// DurationString 把区间换算成网关的 duration 参数：不足一天用秒（"N S"），否则按天向上取整（"N D"）。
func DurationString(start, end time.Time) string {
	span := end.Sub(start)
	if span <= 0 {
		return "1 S"
	}
	if span < 24*time.Hour {
		return fmt.Sprintf("%d S", int64(math.Ceil(span.Seconds())))
	}
	return fmt.Sprintf("%d D", int64(math.Ceil(span.Hours()/24)))
}

func setIf(q url.Values, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		q.Set(key, v)
	}
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
