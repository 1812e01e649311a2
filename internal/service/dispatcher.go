package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/daniel8038/tg-golddog-alert/internal/config"
	"github.com/daniel8038/tg-golddog-alert/internal/feed"
	"github.com/daniel8038/tg-golddog-alert/internal/guard"
	"github.com/daniel8038/tg-golddog-alert/internal/xe"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EmergencyReport 紧急平仓结果
type EmergencyReport struct {
	Closed []string `json:"closed"`
	Failed []string `json:"failed"`
	Busy   []string `json:"busy"` // 正在处理行情而跳过的代币
}

// Dispatcher 行情入口：按代币分发，同一代币同一时刻只处理一条行情
type Dispatcher struct {
	logger          *zap.Logger
	positionService *PositionService
	admission       AdmissionFilter
	notifier        Notifier
	processing      guard.Locker
	conf            config.TradingConf

	// mu 保证 stopped 检查与 inflight.Add 不会和 Stop 交错
	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
	dropped  atomic.Int64
	handled  atomic.Int64
}

func NewDispatcher(logger *zap.Logger, conf *config.Config, positionService *PositionService,
	admission AdmissionFilter, notifier Notifier, processing guard.Locker) *Dispatcher {
	return &Dispatcher{
		logger:          logger,
		positionService: positionService,
		admission:       admission,
		notifier:        notifier,
		processing:      processing,
		conf:            conf.Trading,
	}
}

// Run 从行情源读取直到 ctx 结束或 Stop 被调用
func (d *Dispatcher) Run(ctx context.Context, source feed.Source) error {
	return source.Run(ctx, d.HandleBatch)
}

// HandleBatch 异步处理一批行情，不阻塞行情源的读取。
// 行情源停止后已开始的处理继续执行完毕
func (d *Dispatcher) HandleBatch(ctx context.Context, batch []feed.Tick) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.inflight.Done()
		d.Dispatch(context.WithoutCancel(ctx), batch)
	}()
}

// Dispatch 同步处理一批行情：按代币去重后并发处理，等待全部完成
func (d *Dispatcher) Dispatch(ctx context.Context, batch []feed.Tick) {
	ticks := latestPerAddress(batch)

	g, ctx := errgroup.WithContext(ctx)
	if d.conf.MaxConcurrency > 0 {
		g.SetLimit(d.conf.MaxConcurrency)
	}
	for _, tick := range ticks {
		g.Go(func() error {
			d.process(ctx, tick)
			return nil
		})
	}
	_ = g.Wait()
}

// latestPerAddress 同一批次内每个代币只保留最后一条行情，保持首次出现的顺序
func latestPerAddress(batch []feed.Tick) []feed.Tick {
	index := make(map[string]int, len(batch))
	ticks := make([]feed.Tick, 0, len(batch))
	for _, tick := range batch {
		if !tick.Valid() {
			continue
		}
		if i, ok := index[tick.Address]; ok {
			ticks[i] = tick
			continue
		}
		index[tick.Address] = len(ticks)
		ticks = append(ticks, tick)
	}
	return ticks
}

func (d *Dispatcher) process(ctx context.Context, tick feed.Tick) {
	logger := d.logger.With(zap.String("address", tick.Address), zap.String("symbol", tick.Symbol))

	unlock, ok, err := d.processing.TryLock(ctx, tick.Address)
	if err != nil {
		logger.Error("failed to acquire instrument guard", zap.Error(err))
		return
	}
	if !ok {
		d.dropped.Add(1)
		logger.Debug("instrument busy, tick dropped")
		return
	}
	defer unlock()
	d.handled.Add(1)

	position, err := d.positionService.GetByAddress(ctx, tick.Address)
	if err != nil {
		logger.Error("failed to load position", zap.Error(err))
		return
	}

	if position != nil {
		if _, err := d.positionService.Update(ctx, tick.Address, tick.Price, tick.Flag.True()); err != nil {
			logger.Error("failed to update position", zap.Error(err))
		}
		return
	}

	admitted, err := d.admission.Admit(ctx, tick)
	if err != nil {
		logger.Warn("admission filter failed", zap.Error(err))
		return
	}
	if !admitted {
		return
	}

	_, err = d.positionService.Create(ctx, OpenRequest{
		Address:  tick.Address,
		Symbol:   tick.Symbol,
		Price:    tick.Price,
		Capital:  d.conf.BuyAmount,
		Metadata: tick.Metadata,
	})
	if err != nil {
		if IsRejection(err) {
			logger.Info("position rejected", zap.String("reason", err.Error()))
			return
		}
		logger.Error("failed to open position", zap.Error(err))
	}
}

// IsProcessing 代币当前是否正在处理行情
func (d *Dispatcher) IsProcessing(ctx context.Context, address string) bool {
	busy, err := d.processing.Locked(ctx, address)
	if err != nil {
		d.logger.Warn("failed to check instrument guard", zap.String("address", address), zap.Error(err))
		return true
	}
	return busy
}

// CloseManually 手动平仓，与行情处理互斥
func (d *Dispatcher) CloseManually(ctx context.Context, address string) (bool, error) {
	unlock, ok, err := d.processing.TryLock(ctx, address)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, xe.ErrInstrumentBusy
	}
	defer unlock()
	return d.positionService.CloseManually(ctx, address)
}

// EmergencyCloseAll 依次平掉所有持仓，正在处理行情的代币跳过并记录
func (d *Dispatcher) EmergencyCloseAll(ctx context.Context) (*EmergencyReport, error) {
	positions, err := d.positionService.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	report := &EmergencyReport{
		Closed: []string{},
		Failed: []string{},
		Busy:   []string{},
	}
	for _, position := range positions {
		ok, err := d.CloseManually(ctx, position.Address)
		switch {
		case errors.Is(err, xe.ErrInstrumentBusy):
			report.Busy = append(report.Busy, position.Address)
		case err != nil:
			d.logger.Error("emergency close failed", zap.String("address", position.Address), zap.Error(err))
			report.Failed = append(report.Failed, position.Address)
		case !ok:
			report.Failed = append(report.Failed, position.Address)
		default:
			report.Closed = append(report.Closed, position.Address)
		}
	}

	d.logger.Warn("emergency close all finished",
		zap.Int("closed", len(report.Closed)),
		zap.Int("failed", len(report.Failed)),
		zap.Int("busy", len(report.Busy)))
	d.notifier.Notify(ctx, NotifyEmergency, RenderNotify(NotifyEmergency, map[string]string{
		"closed": strconv.Itoa(len(report.Closed)),
		"failed": strconv.Itoa(len(report.Failed)),
		"busy":   strconv.Itoa(len(report.Busy)),
	}))
	return report, nil
}

// Stop 停止接收新的行情批次
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}

// Wait 等待已接收的批次处理完成
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// DroppedTicks 因代币正在处理而丢弃的行情数
func (d *Dispatcher) DroppedTicks() int64 {
	return d.dropped.Load()
}

// HandledTicks 已处理的行情数
func (d *Dispatcher) HandledTicks() int64 {
	return d.handled.Load()
}
