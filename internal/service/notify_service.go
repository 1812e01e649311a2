package service

import (
	"context"
	"strconv"

	"github.com/daniel8038/tg-golddog-alert/internal/config"
	"github.com/daniel8038/tg-golddog-alert/internal/models"
	"github.com/daniel8038/tg-golddog-alert/internal/telegram"
	"github.com/valyala/fasttemplate"
	"go.uber.org/zap"
)

// NotifyCategory 通知分类
type NotifyCategory string

const (
	NotifyPositionOpened NotifyCategory = "position_opened"
	NotifyOrderExecuted  NotifyCategory = "order_executed"
	NotifyOrderFailed    NotifyCategory = "order_failed"
	NotifyPositionClosed NotifyCategory = "position_closed"
	NotifyEmergency      NotifyCategory = "emergency"
)

// Notifier 通知出口，发送失败只记录日志，不影响交易流程
type Notifier interface {
	Notify(ctx context.Context, category NotifyCategory, text string)
}

const (
	positionOpenedTemplate = "🟢 *开仓* {{symbol}}\n" +
		"地址: `{{address}}`\n" +
		"价格: {{price}}\n" +
		"投入: {{capital}}"

	orderExecutedTemplate = "✅ *{{order_type}}* {{symbol}}\n" +
		"地址: `{{address}}`\n" +
		"比例: {{ratio}}%  收益: {{gain}}%\n" +
		"{{description}}\n" +
		"签名: `{{signature}}`"

	orderFailedTemplate = "❌ *{{order_type}} 失败* {{symbol}}\n" +
		"地址: `{{address}}`\n" +
		"原因: {{error}}"

	positionClosedTemplate = "⚪️ *平仓* {{symbol}}\n" +
		"地址: `{{address}}`\n" +
		"收益: {{gain}}%  持仓: {{holding}}"

	emergencyTemplate = "🚨 *紧急平仓*\n" +
		"成功: {{closed}}  失败: {{failed}}  处理中跳过: {{busy}}"
)

var notifyTemplates = map[NotifyCategory]*fasttemplate.Template{
	NotifyPositionOpened: fasttemplate.New(positionOpenedTemplate, "{{", "}}"),
	NotifyOrderExecuted:  fasttemplate.New(orderExecutedTemplate, "{{", "}}"),
	NotifyOrderFailed:    fasttemplate.New(orderFailedTemplate, "{{", "}}"),
	NotifyPositionClosed: fasttemplate.New(positionClosedTemplate, "{{", "}}"),
	NotifyEmergency:      fasttemplate.New(emergencyTemplate, "{{", "}}"),
}

// RenderNotify 渲染通知模板，变量值会做 Markdown 转义
func RenderNotify(category NotifyCategory, vars map[string]string) string {
	tpl, ok := notifyTemplates[category]
	if !ok {
		return ""
	}
	values := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		values[k] = telegram.EscapeMarkdown(v)
	}
	return tpl.ExecuteString(values)
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func positionOpenedText(p *models.Position) string {
	return RenderNotify(NotifyPositionOpened, map[string]string{
		"symbol":  p.Symbol,
		"address": p.Address,
		"price":   formatFloat(p.EntryPrice, -1),
		"capital": formatFloat(p.Capital, -1),
	})
}

func orderExecutedText(o *models.Order, p *models.Position, signature string) string {
	return RenderNotify(NotifyOrderExecuted, map[string]string{
		"order_type":  string(o.OrderType),
		"symbol":      p.Symbol,
		"address":     p.Address,
		"ratio":       formatFloat(o.Ratio, -1),
		"gain":        formatFloat(p.GainPercent(), 2),
		"description": o.Description,
		"signature":   signature,
	})
}

func orderFailedText(o *models.Order, p *models.Position, reason string) string {
	return RenderNotify(NotifyOrderFailed, map[string]string{
		"order_type": string(o.OrderType),
		"symbol":     p.Symbol,
		"address":    p.Address,
		"error":      reason,
	})
}

func positionClosedText(p *models.Position) string {
	return RenderNotify(NotifyPositionClosed, map[string]string{
		"symbol":  p.Symbol,
		"address": p.Address,
		"gain":    formatFloat(p.GainPercent(), 2),
		"holding": p.CalculateHoldingStr(),
	})
}

func NewNotifyService(logger *zap.Logger, conf *config.Config, bot *telegram.Telegram) *NotifyService {
	return &NotifyService{
		logger: logger,
		chatID: conf.Telegram.ChatID,
		bot:    bot,
	}
}

// NotifyService 通过 telegram 发送交易通知，未配置机器人时只写日志
type NotifyService struct {
	logger *zap.Logger
	chatID string
	bot    *telegram.Telegram
}

func (s *NotifyService) Notify(ctx context.Context, category NotifyCategory, text string) {
	if s.bot == nil || s.chatID == "" {
		s.logger.Info("notify", zap.String("category", string(category)), zap.String("text", text))
		return
	}
	go func() {
		if err := s.bot.Notify(s.chatID, text); err != nil {
			s.logger.Error("failed to send notification",
				zap.String("category", string(category)),
				zap.Error(err))
		}
	}()
}
