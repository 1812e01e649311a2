package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/daniel8038/tg-golddog-alert/internal/config"
	"github.com/daniel8038/tg-golddog-alert/internal/feed"
	"github.com/daniel8038/tg-golddog-alert/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"github.com/spf13/cast"
	"github.com/valyala/fasttemplate"
	"go.uber.org/zap"
)

// AdmissionFilter 判断一个未持仓的代币是否应当开仓
type AdmissionFilter interface {
	Admit(ctx context.Context, tick feed.Tick) (bool, error)
}

// RuleFilter 按配置的字段规则过滤，全部规则满足才通过
type RuleFilter struct {
	rules []config.RuleConf
}

func NewRuleFilter(rules []config.RuleConf) *RuleFilter {
	return &RuleFilter{rules: rules}
}

func (f *RuleFilter) Admit(_ context.Context, tick feed.Tick) (bool, error) {
	for _, rule := range f.rules {
		actual, ok := ruleValue(tick, rule.Field)
		if !ok {
			return false, nil
		}
		if !models.TriggerOp(rule.Op).Compare(actual, rule.Value) {
			return false, nil
		}
	}
	return true, nil
}

// ruleValue 取规则字段的值，price 和 lfg 来自行情本身，其余来自附加数据
func ruleValue(tick feed.Tick, field string) (float64, bool) {
	switch field {
	case "price":
		return tick.Price, true
	case "lfg":
		if tick.Flag.True() {
			return 1, true
		}
		return 0, true
	}
	raw, ok := tick.Metadata[field]
	if !ok || raw == nil {
		return 0, false
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

const admissionPromptTemplate = `你是一个链上新币筛选助手。根据下面的代币数据判断是否值得买入。
只回答 yes 或 no。

代币: {{symbol}}
地址: {{address}}
价格: {{price}}
信号(lfg): {{lfg}}
附加数据: {{metadata}}`

// LLMFilter 先按规则过滤，再由大模型给出 yes/no
type LLMFilter struct {
	logger *zap.Logger
	rules  *RuleFilter
	client *openai.Client
	model  string
	tmpl   *fasttemplate.Template
}

func NewLLMFilter(logger *zap.Logger, rules *RuleFilter, client *openai.Client, model string) *LLMFilter {
	return &LLMFilter{
		logger: logger,
		rules:  rules,
		client: client,
		model:  model,
		tmpl:   fasttemplate.New(admissionPromptTemplate, "{{", "}}"),
	}
}

func (f *LLMFilter) Admit(ctx context.Context, tick feed.Tick) (bool, error) {
	ok, err := f.rules.Admit(ctx, tick)
	if err != nil || !ok {
		return ok, err
	}

	prompt, err := f.renderPrompt(tick)
	if err != nil {
		return false, err
	}

	resp, err := f.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(f.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to call OpenAI API: %w", err)
	}
	if len(resp.Choices) == 0 {
		return false, nil
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content))
	admitted := strings.HasPrefix(answer, "yes")
	f.logger.Debug("llm admission",
		zap.String("address", tick.Address),
		zap.String("answer", answer),
		zap.Bool("admitted", admitted))
	return admitted, nil
}

func (f *LLMFilter) renderPrompt(tick feed.Tick) (string, error) {
	metadata := "{}"
	if len(tick.Metadata) > 0 {
		data, err := json.Marshal(tick.Metadata)
		if err != nil {
			return "", err
		}
		metadata = string(data)
	}
	return f.tmpl.ExecuteString(map[string]interface{}{
		"symbol":   tick.Symbol,
		"address":  tick.Address,
		"price":    formatFloat(tick.Price, -1),
		"lfg":      cast.ToString(tick.Flag.True()),
		"metadata": metadata,
	}), nil
}
