package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/daniel8038/tg-golddog-alert/internal/config"
	"github.com/daniel8038/tg-golddog-alert/internal/feed"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// statsCron 定时输出运行概况
const statsCron = "@every 10m"

// TradingLoop 运行时：接收行情并定时执行维护任务
type TradingLoop struct {
	config       config.RetryConf
	dispatcher   *Dispatcher
	orderService *OrderService
	statsService *StatsService
	source       feed.Source
	logger       *zap.Logger

	mu        sync.Mutex
	startTime time.Time
	isRunning bool
	stopChan  chan struct{}
	cron      *cron.Cron
	cancel    context.CancelFunc
}

// NewTradingLoop 创建交易循环，source 为空时只运行维护任务
func NewTradingLoop(
	config *config.Config,
	dispatcher *Dispatcher,
	orderService *OrderService,
	statsService *StatsService,
	source feed.Source,
	logger *zap.Logger,
) *TradingLoop {
	return &TradingLoop{
		config:       config.Retry,
		dispatcher:   dispatcher,
		orderService: orderService,
		statsService: statsService,
		source:       source,
		logger:       logger,
	}
}

// Start 启动交易循环，阻塞直到 Stop 被调用或 ctx 结束
func (t *TradingLoop) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return fmt.Errorf("trading loop is already running")
	}
	t.isRunning = true
	t.startTime = time.Now()
	t.stopChan = make(chan struct{})
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	stopChan := t.stopChan

	t.cron = cron.New()
	if _, err := t.cron.AddFunc(t.config.Cron, func() { t.RunMaintenance(context.Background()) }); err != nil {
		t.isRunning = false
		t.mu.Unlock()
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	if _, err := t.cron.AddFunc(statsCron, func() { t.logStats(context.Background()) }); err != nil {
		t.isRunning = false
		t.mu.Unlock()
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	t.cron.Start()
	t.mu.Unlock()

	t.logger.Info("trading loop started", zap.String("maintenance_cron", t.config.Cron))

	// 启动时先处理上次中断遗留的订单
	t.RunMaintenance(loopCtx)

	feedDone := make(chan error, 1)
	if t.source != nil {
		go func() {
			feedDone <- t.dispatcher.Run(loopCtx, t.source)
		}()
	}

	select {
	case <-stopChan:
		t.logger.Info("trading loop stopped by user")
		return nil
	case <-ctx.Done():
		t.logger.Info("trading loop stopped by context")
		t.Stop()
		return ctx.Err()
	case err := <-feedDone:
		// 行情源因 Stop 或外部 ctx 结束而退出
		if loopCtx.Err() != nil {
			t.Stop()
			return ctx.Err()
		}
		t.logger.Error("tick feed exited", zap.Error(err))
		t.Stop()
		return err
	}
}

// Stop 停止接收行情，等待维护任务和已接收的行情处理完成
func (t *TradingLoop) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isRunning {
		return
	}

	t.logger.Info("stopping trading loop...")
	t.dispatcher.Stop()

	if t.cron != nil {
		ctx := t.cron.Stop()
		<-ctx.Done()
		t.logger.Info("cron scheduler stopped")
	}

	if t.cancel != nil {
		t.cancel()
	}
	t.dispatcher.Wait()

	t.isRunning = false
	close(t.stopChan)
	t.logger.Info("trading loop stopped")
}

// RunMaintenance 重试失败订单并修复中断的订单
func (t *TradingLoop) RunMaintenance(ctx context.Context) {
	reconciled, err := t.orderService.ReconcileStaleOrders(ctx)
	if err != nil {
		t.logger.Error("failed to reconcile stale orders", zap.Error(err))
	} else if reconciled > 0 {
		t.logger.Info("stale orders reconciled", zap.Int("count", reconciled))
	}

	requeued, err := t.orderService.RetryFailedOrders(ctx)
	if err != nil {
		t.logger.Error("failed to retry orders", zap.Error(err))
	} else if requeued > 0 {
		t.logger.Info("failed orders requeued", zap.Int("count", requeued))
	}
}

func (t *TradingLoop) logStats(ctx context.Context) {
	stats, err := t.statsService.GetStats(ctx)
	if err != nil {
		t.logger.Error("failed to load stats", zap.Error(err))
		return
	}
	t.logger.Info("trading stats",
		zap.Int64("active_positions", stats.ActivePositions),
		zap.Int64("pending_orders", stats.PendingOrders),
		zap.Int64("trades_last_24h", stats.TradesLast24h),
		zap.Float64("total_capital", stats.TotalCapital),
		zap.Float64("average_gain", stats.AverageGain),
		zap.Int64("dropped_ticks", t.dispatcher.DroppedTicks()))
}

// GetStatus 获取运行状态
func (t *TradingLoop) GetStatus() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	var uptime string
	if t.isRunning {
		uptime = time.Since(t.startTime).Round(time.Second).String()
	}
	return map[string]interface{}{
		"is_running":    t.isRunning,
		"start_time":    t.startTime,
		"uptime":        uptime,
		"feed_enabled":  t.source != nil,
		"handled_ticks": t.dispatcher.HandledTicks(),
		"dropped_ticks": t.dispatcher.DroppedTicks(),
	}
}
