package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/daniel8038/tg-golddog-alert/internal/config"
	"github.com/daniel8038/tg-golddog-alert/internal/models"
	"github.com/daniel8038/tg-golddog-alert/internal/repo"
	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 开仓被拒绝的原因，属于正常业务结果
var (
	ErrMaxPositionsReached = errors.New("max positions reached")
	ErrPositionExists      = errors.New("position already exists")
	ErrOpenBuyFailed       = errors.New("opening buy failed")
)

// IsRejection 是否为开仓被拒绝
func IsRejection(err error) bool {
	return errors.Is(err, ErrMaxPositionsReached) ||
		errors.Is(err, ErrPositionExists) ||
		errors.Is(err, ErrOpenBuyFailed)
}

// OpenRequest 开仓参数
type OpenRequest struct {
	Address  string
	Symbol   string
	Price    float64
	Capital  float64
	Metadata map[string]any
}

// PositionDetail 持仓详情
type PositionDetail struct {
	Position        models.Position `json:"position"`
	GainPercent     float64         `json:"gain_percent"`
	DrawdownPercent float64         `json:"drawdown_percent"`
	Holding         string          `json:"holding"`
	Orders          []models.Order  `json:"orders"`
}

// PositionService 持仓引擎：开仓、行情更新、平仓
type PositionService struct {
	logger *zap.Logger

	*orz.Service
	*repo.PositionRepo

	orderService *OrderService
	notifier     Notifier
	conf         config.TradingConf

	// openMu 串行化开仓前的风控检查与写入，保证持仓数量不超过上限
	openMu sync.Mutex
}

// NewPositionService 创建持仓服务
func NewPositionService(logger *zap.Logger, db *gorm.DB, conf *config.Config, orderService *OrderService, notifier Notifier) *PositionService {
	return &PositionService{
		logger:       logger,
		Service:      orz.NewService(db),
		PositionRepo: repo.NewPositionRepo(db),
		orderService: orderService,
		notifier:     notifier,
		conf:         conf.Trading,
	}
}

// Create 开仓：风控检查、写入持仓与默认订单、执行买入。买入未成交时回滚，成交结果未能写入时保留持仓
func (s *PositionService) Create(ctx context.Context, req OpenRequest) (*models.Position, error) {
	position, err := s.insert(ctx, req)
	if err != nil {
		return nil, err
	}

	ok, err := s.orderService.CreateAndExecuteImmediate(ctx, position, models.OrderTypeBuy, 100, "开仓买入")
	if errors.Is(err, ErrOutcomeUnrecorded) {
		// 买入可能已经成交，保留持仓，避免代币无人跟踪
		s.logger.Error("opening buy outcome not recorded, position kept",
			zap.String("position_id", position.ID),
			zap.String("address", position.Address),
			zap.Error(err))
		s.notifier.Notify(ctx, NotifyOrderFailed, RenderNotify(NotifyOrderFailed, map[string]string{
			"order_type": string(models.OrderTypeBuy),
			"symbol":     position.Symbol,
			"address":    position.Address,
			"error":      err.Error(),
		}))
		return position, err
	}
	if err != nil || !ok {
		rmErr := s.Transaction(ctx, func(ctx context.Context) error {
			return s.remove(ctx, position)
		})
		if rmErr != nil {
			s.logger.Error("failed to roll back position",
				zap.String("address", position.Address),
				zap.Error(rmErr))
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrOpenBuyFailed
	}

	s.logger.Info("position opened",
		zap.String("position_id", position.ID),
		zap.String("address", position.Address),
		zap.String("symbol", position.Symbol),
		zap.Float64("price", position.EntryPrice),
		zap.Float64("capital", position.Capital))
	s.notifier.Notify(ctx, NotifyPositionOpened, positionOpenedText(position))
	return position, nil
}

func (s *PositionService) insert(ctx context.Context, req OpenRequest) (*models.Position, error) {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	count, err := s.PositionRepo.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count positions: %w", err)
	}
	if count >= int64(s.conf.MaxPositions) {
		return nil, ErrMaxPositionsReached
	}

	exists, err := s.PositionRepo.ExistsByAddress(ctx, req.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to check position: %w", err)
	}
	if exists {
		return nil, ErrPositionExists
	}

	var metadata datatypes.JSON
	if len(req.Metadata) > 0 {
		data, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = data
	}

	now := time.Now()
	position := &models.Position{
		ID:           ulid.Make().String(),
		Address:      req.Address,
		Symbol:       req.Symbol,
		EntryPrice:   req.Price,
		CurrentPrice: req.Price,
		HighestPrice: req.Price,
		LowestPrice:  req.Price,
		Capital:      req.Capital,
		Flag:         0,
		Status:       models.PositionStatusActive,
		Metadata:     metadata,
		OpenedAt:     now,
	}

	err = s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.PositionRepo.Create(ctx, position); err != nil {
			return fmt.Errorf("failed to create position: %w", err)
		}
		if _, err := s.orderService.CreateDefaultOrders(ctx, position); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return position, nil
}

// Update 写入最新行情并检查订单。持仓不存在或已被关闭时返回 nil
func (s *PositionService) Update(ctx context.Context, address string, price float64, flag bool) (*models.Position, error) {
	position, err := s.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, nil
	}

	position.ApplyTick(price, flag)
	alive, err := s.PositionRepo.UpdateMarket(ctx, position)
	if err != nil {
		return nil, fmt.Errorf("failed to update position: %w", err)
	}
	if !alive {
		return nil, nil
	}

	shouldClose, err := s.orderService.EvaluateAndExecute(ctx, position)
	if err != nil {
		return nil, err
	}
	if shouldClose {
		if err := s.Close(ctx, address); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return position, nil
}

// Close 取消待触发订单并删除持仓及其订单，持仓不存在时不做任何事
func (s *PositionService) Close(ctx context.Context, address string) error {
	position, err := s.GetByAddress(ctx, address)
	if err != nil {
		return err
	}
	if position == nil {
		return nil
	}

	var canceled int64
	err = s.Transaction(ctx, func(ctx context.Context) error {
		count, err := s.orderService.CancelAllForPosition(ctx, position.ID)
		if err != nil {
			return err
		}
		canceled = count
		return s.remove(ctx, position)
	})
	if err != nil {
		return fmt.Errorf("failed to close position: %w", err)
	}

	s.logger.Info("position closed",
		zap.String("position_id", position.ID),
		zap.String("address", position.Address),
		zap.Int64("canceled_orders", canceled),
		zap.Float64("gain_percent", position.GainPercent()))
	s.notifier.Notify(ctx, NotifyPositionClosed, positionClosedText(position))
	return nil
}

// remove 先删订单再删持仓，需在事务中调用
func (s *PositionService) remove(ctx context.Context, position *models.Position) error {
	if err := s.orderService.DeleteByPositionID(ctx, position.ID); err != nil {
		return err
	}
	return s.PositionRepo.HardDeleteById(ctx, position.ID)
}

// CloseManually 立即全部卖出，成功后平仓。卖出失败时持仓与订单保持不变
func (s *PositionService) CloseManually(ctx context.Context, address string) (bool, error) {
	position, err := s.GetByAddress(ctx, address)
	if err != nil {
		return false, err
	}
	if position == nil {
		return false, nil
	}

	ok, err := s.orderService.CreateAndExecuteImmediate(ctx, position, models.OrderTypeManual, 100, "手动平仓")
	if err != nil {
		return false, err
	}
	if !ok {
		s.logger.Warn("manual close failed, position kept",
			zap.String("address", address))
		return false, nil
	}
	if err := s.Close(ctx, address); err != nil {
		return true, err
	}
	return true, nil
}

// GetByAddress 根据地址获取持仓，不存在时返回 nil
func (s *PositionService) GetByAddress(ctx context.Context, address string) (*models.Position, error) {
	position, err := s.PositionRepo.FindByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load position: %w", err)
	}
	return &position, nil
}

// ListActive 所有活跃持仓
func (s *PositionService) ListActive(ctx context.Context) ([]models.Position, error) {
	return s.PositionRepo.FindAllActive(ctx)
}

// GetDetail 持仓详情，包含收益、回撤与全部订单
func (s *PositionService) GetDetail(ctx context.Context, address string) (*PositionDetail, error) {
	position, err := s.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, nil
	}
	orders, err := s.orderService.FindByPositionID(ctx, position.ID)
	if err != nil {
		return nil, err
	}
	return &PositionDetail{
		Position:        *position,
		GainPercent:     position.GainPercent(),
		DrawdownPercent: position.DrawdownPercent(),
		Holding:         position.CalculateHoldingStr(),
		Orders:          orders,
	}, nil
}

// AddOrder 为持仓追加自定义订单
func (s *PositionService) AddOrder(ctx context.Context, address string, spec OrderSpec) (*models.Order, error) {
	position, err := s.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, nil
	}
	return s.orderService.CreateOrder(ctx, position, spec)
}
