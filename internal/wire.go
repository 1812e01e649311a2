//go:build wireinject
// +build wireinject

package internal

import (
	"github.com/google/wire"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/daniel8038/tg-golddog-alert/internal/config"
	"github.com/daniel8038/tg-golddog-alert/internal/handler"
	"github.com/daniel8038/tg-golddog-alert/internal/service"
)

var (
	handlerSet = wire.NewSet(
		handler.NewTradingHandler,
	)

	tradingSet = wire.NewSet(
		provideExecutor,
		provideOpenAIClient,
		provideAdmissionFilter,
		provideInstrumentGuard,
		provideTickSource,
		service.NewNotifyService,
		wire.Bind(new(service.Notifier), new(*service.NotifyService)),
		service.NewOrderService,
		service.NewPositionService,
		service.NewStatsService,
		service.NewDispatcher,
		service.NewTradingLoop,
	)
)

// InitializeApp 初始化应用
func InitializeApp(logger *zap.Logger, db *gorm.DB, conf *config.Config) (*AppComponents, error) {
	wire.Build(
		handlerSet,
		tradingSet,
		provideTelegram,
		wire.Struct(new(AppComponents), "*"),
	)
	return nil, nil
}
