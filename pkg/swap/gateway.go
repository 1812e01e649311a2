package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GatewayConfig 交易网关配置
type GatewayConfig struct {
	BaseURL     string
	APIKey      string
	SlippageBps int
	Timeout     time.Duration
}

// Gateway 通过 HTTP 调用外部交易服务完成买卖
type Gateway struct {
	conf   GatewayConfig
	client *http.Client
	logger *zap.Logger
}

// NewGateway 创建交易网关客户端
func NewGateway(conf GatewayConfig, logger *zap.Logger) *Gateway {
	if conf.Timeout <= 0 {
		conf.Timeout = 30 * time.Second
	}
	return &Gateway{
		conf:   conf,
		client: &http.Client{Timeout: conf.Timeout},
		logger: logger,
	}
}

var _ Executor = (*Gateway)(nil)

type gatewayResponse struct {
	Signature string          `json:"signature"`
	Amount    decimal.Decimal `json:"amount"`
	Error     string          `json:"error"`
}

type gatewayBuy struct {
	BuyRequest
	SlippageBps int `json:"slippage_bps"`
}

type gatewaySell struct {
	SellRequest
	SlippageBps int `json:"slippage_bps"`
}

// Buy 请求网关买入
func (g *Gateway) Buy(ctx context.Context, req BuyRequest) (*Result, error) {
	var resp gatewayResponse
	if err := g.do(ctx, http.MethodPost, "/buy", gatewayBuy{BuyRequest: req, SlippageBps: g.conf.SlippageBps}, &resp); err != nil {
		return nil, fmt.Errorf("gateway buy %s: %w", req.Address, err)
	}
	return &Result{Signature: resp.Signature}, nil
}

// Sell 请求网关卖出
func (g *Gateway) Sell(ctx context.Context, req SellRequest) (*Result, error) {
	var resp gatewayResponse
	if err := g.do(ctx, http.MethodPost, "/sell", gatewaySell{SellRequest: req, SlippageBps: g.conf.SlippageBps}, &resp); err != nil {
		return nil, fmt.Errorf("gateway sell %s: %w", req.Address, err)
	}
	return &Result{Signature: resp.Signature}, nil
}

// GetBalance 查询网关钱包中的代币余额
func (g *Gateway) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var resp gatewayResponse
	if err := g.do(ctx, http.MethodGet, "/balance/"+url.PathEscape(address), nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	}
	return resp.Amount, nil
}

func (g *Gateway) do(ctx context.Context, method, path string, body any, out *gatewayResponse) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(g.conf.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.conf.APIKey != "" {
		req.Header.Set("X-API-Key", g.conf.APIKey)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	g.logger.Debug("swap gateway call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, out.Error)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
	}
	if out.Error != "" {
		return fmt.Errorf("%s", out.Error)
	}
	return nil
}
