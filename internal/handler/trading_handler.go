package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/daniel8038/tg-golddog-alert/internal/models"
	"github.com/daniel8038/tg-golddog-alert/internal/service"
	"github.com/daniel8038/tg-golddog-alert/internal/xe"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TradingHandler 运维与监控接口
type TradingHandler struct {
	tradingLoop     *service.TradingLoop
	dispatcher      *service.Dispatcher
	positionService *service.PositionService
	orderService    *service.OrderService
	statsService    *service.StatsService
	logger          *zap.Logger
}

// NewTradingHandler 创建交易处理器
func NewTradingHandler(
	tradingLoop *service.TradingLoop,
	dispatcher *service.Dispatcher,
	positionService *service.PositionService,
	orderService *service.OrderService,
	statsService *service.StatsService,
	logger *zap.Logger,
) *TradingHandler {
	return &TradingHandler{
		tradingLoop:     tradingLoop,
		dispatcher:      dispatcher,
		positionService: positionService,
		orderService:    orderService,
		statsService:    statsService,
		logger:          logger,
	}
}

// GetStatus 获取运行状态
// GET /api/trading/status
func (h *TradingHandler) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.tradingLoop.GetStatus())
}

// GetStats 获取统计
// GET /api/stats
func (h *TradingHandler) GetStats(c echo.Context) error {
	stats, err := h.statsService.GetStats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// GetPositions 获取活跃持仓
// GET /api/positions
func (h *TradingHandler) GetPositions(c echo.Context) error {
	ctx := c.Request().Context()
	positions, err := h.positionService.ListActive(ctx)
	if err != nil {
		return err
	}

	items := make([]map[string]interface{}, 0, len(positions))
	for _, pos := range positions {
		items = append(items, map[string]interface{}{
			"id":               pos.ID,
			"address":          pos.Address,
			"symbol":           pos.Symbol,
			"entry_price":      pos.EntryPrice,
			"current_price":    pos.CurrentPrice,
			"highest_price":    pos.HighestPrice,
			"lowest_price":     pos.LowestPrice,
			"capital":          pos.Capital,
			"flag":             pos.Flag,
			"gain_percent":     pos.GainPercent(),
			"drawdown_percent": pos.DrawdownPercent(),
			"holding":          pos.CalculateHoldingStr(),
			"opened_at":        pos.OpenedAt,
			"processing":       h.dispatcher.IsProcessing(ctx, pos.Address),
		})
	}
	return c.JSON(http.StatusOK, items)
}

// GetPosition 获取持仓详情
// GET /api/positions/:address
func (h *TradingHandler) GetPosition(c echo.Context) error {
	detail, err := h.positionService.GetDetail(c.Request().Context(), c.Param("address"))
	if err != nil {
		return err
	}
	if detail == nil {
		return xe.ErrPositionNotFound
	}
	return c.JSON(http.StatusOK, detail)
}

// ClosePosition 手动平仓
// POST /api/positions/:address/close
func (h *TradingHandler) ClosePosition(c echo.Context) error {
	ctx := c.Request().Context()
	address := c.Param("address")

	position, err := h.positionService.GetByAddress(ctx, address)
	if err != nil {
		return err
	}
	if position == nil {
		return xe.ErrPositionNotFound
	}

	ok, err := h.dispatcher.CloseManually(ctx, address)
	if err != nil {
		return err
	}
	if !ok {
		return xe.ErrCloseFailed
	}

	h.logger.Info("position closed manually", zap.String("address", address))
	return c.JSON(http.StatusOK, map[string]interface{}{
		"address": address,
		"closed":  true,
	})
}

// CloseAll 紧急平掉所有持仓
// POST /api/positions/close-all
func (h *TradingHandler) CloseAll(c echo.Context) error {
	report, err := h.dispatcher.EmergencyCloseAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// AddOrder 为持仓追加自定义订单
// POST /api/positions/:address/orders
func (h *TradingHandler) AddOrder(c echo.Context) error {
	var spec service.OrderSpec
	if err := c.Bind(&spec); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&spec); err != nil {
		return err
	}

	order, err := h.positionService.AddOrder(c.Request().Context(), c.Param("address"), spec)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTrigger) || errors.Is(err, models.ErrInvalidRatio) {
			return fmt.Errorf("%w: %v", xe.ErrInvalidOrder, err)
		}
		return err
	}
	if order == nil {
		return xe.ErrPositionNotFound
	}
	return c.JSON(http.StatusOK, order)
}

// GetPendingOrders 获取所有待触发订单
// GET /api/orders/pending
func (h *TradingHandler) GetPendingOrders(c echo.Context) error {
	orders, err := h.statsService.GetPendingOrders(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orders)
}

// CancelOrder 取消待触发订单
// DELETE /api/orders/:id
func (h *TradingHandler) CancelOrder(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ok, err := h.orderService.Cancel(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := h.orderService.GetOrder(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return xe.ErrOrderNotFound
			}
			return err
		}
		return xe.ErrOrderNotCancelable
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":       id,
		"canceled": true,
	})
}

// GetTrades 获取成交记录
// GET /api/trades?limit=50&address=
func (h *TradingHandler) GetTrades(c echo.Context) error {
	ctx := c.Request().Context()
	if address := c.QueryParam("address"); address != "" {
		trades, err := h.statsService.GetTradesByAddress(ctx, address)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, trades)
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	trades, err := h.statsService.GetTradeHistory(ctx, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, trades)
}

// RegisterRoutes 注册路由
func (h *TradingHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/trading/status", h.GetStatus)
	g.GET("/stats", h.GetStats)

	g.GET("/positions", h.GetPositions)
	g.POST("/positions/close-all", h.CloseAll)
	g.GET("/positions/:address", h.GetPosition)
	g.POST("/positions/:address/close", h.ClosePosition)
	g.POST("/positions/:address/orders", h.AddOrder)

	g.GET("/orders/pending", h.GetPendingOrders)
	g.DELETE("/orders/:id", h.CancelOrder)

	g.GET("/trades", h.GetTrades)
}
