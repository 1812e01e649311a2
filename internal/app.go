package internal

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/daniel8038/tg-golddog-alert/internal/config"
	"github.com/daniel8038/tg-golddog-alert/internal/handler"
	"github.com/daniel8038/tg-golddog-alert/internal/middleware"
	"github.com/daniel8038/tg-golddog-alert/internal/models"
	"github.com/daniel8038/tg-golddog-alert/internal/service"
	"github.com/daniel8038/tg-golddog-alert/internal/telegram"
	"github.com/daniel8038/tg-golddog-alert/pkg/nostd"
	"github.com/go-orz/orz"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func Run(configPath string) error {
	app := NewAlertApp()

	framework, err := orz.NewFramework(
		orz.WithConfig(configPath),
		orz.WithLoggerFromConfig(),
		orz.WithDatabase(),
		orz.WithHTTP(),
		orz.WithApplication(app),
	)
	if err != nil {
		return err
	}

	return framework.Run()
}

func NewAlertApp() orz.Application {
	return &AlertApp{}
}

var _ orz.Application = (*AlertApp)(nil)

type AppComponents struct {
	TradingHandler *handler.TradingHandler

	TradingLoop     *service.TradingLoop
	PositionService *service.PositionService
	StatsService    *service.StatsService

	tg *telegram.Telegram
}

type AlertApp struct {
	components *AppComponents
	conf       *config.Config
}

// GetComponents 获取应用组件
func (r *AlertApp) GetComponents() *AppComponents {
	return r.components
}

func (r *AlertApp) Configure(app *orz.App) error {
	logger := app.Logger()
	e := app.GetEcho()
	db := app.GetDatabase()

	var conf config.Config
	err := app.GetConfig().App.Unmarshal(&conf)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %v", err)
	}
	conf.ApplyDefaults()

	components, err := InitializeApp(logger, db, &conf)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %v", err)
	}
	r.components = components
	r.conf = &conf

	if err := db.AutoMigrate(
		models.Position{}, models.Order{}, models.Trade{},
	); err != nil {
		logger.Fatal("database auto migrate failed", zap.Error(err))
	}

	if err := r.Init(logger); err != nil {
		logger.Fatal("app init failed", zap.Error(err))
	}

	e.HidePort = true
	e.HideBanner = true

	e.Use(echoMiddleware.Gzip())
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		Skipper:      echoMiddleware.DefaultSkipper,
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
	}))
	e.Use(echoMiddleware.RecoverWithConfig(echoMiddleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			sugar := logger.Sugar()
			sugar.Error(fmt.Sprintf("[PANIC RECOVER] %v %s\n", err, stack))
			return err
		},
	}))
	e.Use(WithErrorHandler(logger))
	customValidator := nostd.CustomValidator{Validator: validator.New()}
	if err := customValidator.TransInit(); err != nil {
		logger.Sugar().Fatal("failed to init custom validator", zap.Error(err))
	}
	e.Validator = &customValidator

	api := e.Group("/api", middleware.TokenAuth(middleware.TokenAuthConfig{
		TokenHash: conf.API.TokenHash,
		Logger:    logger,
	}))
	{
		if r.components.TradingHandler != nil {
			r.components.TradingHandler.RegisterRoutes(api)
		}
	}

	return nil
}

func (r *AlertApp) Init(logger *zap.Logger) error {
	logger.Info("=================================================")
	logger.Info("Golddog Alert Trading Agent Starting...")
	logger.Info("=================================================")

	components := r.GetComponents()
	if components == nil {
		return fmt.Errorf("components not initialized")
	}

	if components.TradingLoop == nil {
		return fmt.Errorf("trading loop not available")
	}

	if components.tg != nil {
		components.tg.HandleCommand("/status", func() string {
			return r.statusText(context.Background())
		})
		components.tg.Start()
	}

	logger.Info("Trading loop initialized, starting...",
		zap.Bool("live_trading", r.conf.Trading.Enabled),
		zap.Int("max_positions", r.conf.Trading.MaxPositions))

	go func() {
		if err := components.TradingLoop.Start(context.Background()); err != nil {
			logger.Error("trading loop error", zap.Error(err))
		}
	}()
	return nil
}

// statusText telegram /status 命令的回复
func (r *AlertApp) statusText(ctx context.Context) string {
	stats, err := r.components.StatsService.GetStats(ctx)
	if err != nil {
		return "获取统计失败: " + err.Error()
	}
	return "持仓: " + strconv.FormatInt(stats.ActivePositions, 10) +
		"\n待触发订单: " + strconv.FormatInt(stats.PendingOrders, 10) +
		"\n24小时成交: " + strconv.FormatInt(stats.TradesLast24h, 10) +
		"\n投入资金: " + strconv.FormatFloat(stats.TotalCapital, 'f', -1, 64) +
		"\n平均收益: " + strconv.FormatFloat(stats.AverageGain, 'f', 2, 64) + "%"
}
