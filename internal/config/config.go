package config

import "time"

type Config struct {
	Telegram  TelegramConf  `json:"telegram"`
	Trading   TradingConf   `json:"trading"`
	Retry     RetryConf     `json:"retry"`
	Feed      FeedConf      `json:"feed"`
	Swap      SwapConf      `json:"swap"`
	Admission AdmissionConf `json:"admission"`
	LLM       LlmConf       `json:"llm"`
	Redis     RedisConf     `json:"redis"`
	API       APIConf       `json:"api"`
}

type TelegramConf struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  string `json:"chat_id"`
}

type TradingConf struct {
	Enabled              bool            `json:"enabled"`                 // 是否启用真实交易，false时使用纸钱包模式
	PaperWallet          PaperWalletConf `json:"paper_wallet"`            // 纸钱包配置
	MaxPositions         int             `json:"max_positions"`           // 最大持仓数，默认5
	BuyAmount            float64         `json:"buy_amount"`              // 单个持仓投入资金
	StopLossPercent      float64         `json:"stop_loss_percent"`       // 止损收益率（负数），默认-65
	StopLossRatio        float64         `json:"stop_loss_ratio"`         // 止损卖出比例，默认100
	DoubleProfitPercent  float64         `json:"double_profit_percent"`   // 翻倍止盈收益率，默认100
	DoubleProfitRatio    float64         `json:"double_profit_ratio"`     // 翻倍止盈卖出比例
	DoubleProfitMaxEntry float64         `json:"double_profit_max_entry"` // 开仓价高于此值时不挂翻倍止盈，0表示不限制
	TargetPrice1         float64         `json:"target_price_1"`          // 目标价一档
	TargetRatio1         float64         `json:"target_ratio_1"`          // 目标价一档卖出比例
	TargetPrice2         float64         `json:"target_price_2"`          // 目标价二档
	TargetRatio2         float64         `json:"target_ratio_2"`          // 目标价二档卖出比例
	FlagSellRatio        float64         `json:"flag_sell_ratio"`         // 信号卖出比例
	FlagSellDelaySeconds int             `json:"flag_sell_delay_seconds"` // 信号卖出前等待秒数，默认3
	MaxConcurrency       int             `json:"max_concurrency"`         // 单批行情并发处理的代币数，默认16
}

type PaperWalletConf struct {
	InitialBalance float64 `json:"initial_balance"` // 初始资金，默认10
}

type RetryConf struct {
	Enabled        bool   `json:"enabled"`
	MaxRetries     int    `json:"max_retries"`     // 失败订单最多重试次数，默认3
	BackoffSeconds int    `json:"backoff_seconds"` // 首次重试等待秒数，之后指数增长，默认30
	StaleSeconds   int    `json:"stale_seconds"`   // 触发/执行中状态停留超过该时间视为中断，默认300
	Cron           string `json:"cron"`            // 维护任务调度表达式，默认 @every 1m
}

type FeedConf struct {
	URL              string `json:"url"`               // 行情 websocket 地址
	ReconnectSeconds int    `json:"reconnect_seconds"` // 断线重连间隔，默认3
}

type SwapConf struct {
	BaseURL        string `json:"base_url"`        // 交易网关地址
	APIKey         string `json:"api_key"`         // 交易网关密钥
	SlippageBps    int    `json:"slippage_bps"`    // 滑点（基点）
	TimeoutSeconds int    `json:"timeout_seconds"` // 请求超时
}

type AdmissionConf struct {
	Mode  string     `json:"mode"`  // rules / llm
	Rules []RuleConf `json:"rules"` // 准入规则，全部满足才开仓
}

type RuleConf struct {
	Field string  `json:"field"` // 行情附带的字段名
	Op    string  `json:"op"`    // gte / lte / eq
	Value float64 `json:"value"`
}

type LlmConf struct {
	BaseURL  string `json:"base_url"`  // LLM API基础URL
	APIKey   string `json:"api_key"`   // LLM API密钥
	Model    string `json:"model"`     // 模型名称
	ProxyURL string `json:"proxy_url"` // 代理地址，例如: http://127.0.0.1:7890
}

type RedisConf struct {
	Enabled        bool   `json:"enabled"`
	Addr           string `json:"addr"`
	Password       string `json:"password"`
	DB             int    `json:"db"`
	LockTTLSeconds int    `json:"lock_ttl_seconds"` // 代币处理锁过期时间，默认120
}

type APIConf struct {
	TokenHash string `json:"token_hash"` // 接口令牌的 bcrypt 哈希，为空时不校验
}

// ApplyDefaults 填充未配置的默认值
func (c *Config) ApplyDefaults() {
	t := &c.Trading
	if t.MaxPositions <= 0 {
		t.MaxPositions = 5
	}
	if t.StopLossPercent == 0 {
		t.StopLossPercent = -65
	}
	if t.StopLossRatio == 0 {
		t.StopLossRatio = 100
	}
	if t.DoubleProfitPercent == 0 {
		t.DoubleProfitPercent = 100
	}
	if t.FlagSellDelaySeconds == 0 {
		t.FlagSellDelaySeconds = 3
	}
	if t.MaxConcurrency <= 0 {
		t.MaxConcurrency = 16
	}
	if t.PaperWallet.InitialBalance == 0 {
		t.PaperWallet.InitialBalance = 10
	}

	r := &c.Retry
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if r.BackoffSeconds == 0 {
		r.BackoffSeconds = 30
	}
	if r.StaleSeconds == 0 {
		r.StaleSeconds = 300
	}
	if r.Cron == "" {
		r.Cron = "@every 1m"
	}

	if c.Feed.ReconnectSeconds == 0 {
		c.Feed.ReconnectSeconds = 3
	}
	if c.Admission.Mode == "" {
		c.Admission.Mode = "rules"
	}
	if c.Redis.LockTTLSeconds == 0 {
		c.Redis.LockTTLSeconds = 120
	}
}

// FlagSellDelay 信号卖出前的等待时间
func (t TradingConf) FlagSellDelay() time.Duration {
	return time.Duration(t.FlagSellDelaySeconds) * time.Second
}

// Backoff 首次重试等待时间
func (r RetryConf) Backoff() time.Duration {
	return time.Duration(r.BackoffSeconds) * time.Second
}

// Stale 状态停留的最长时间
func (r RetryConf) Stale() time.Duration {
	return time.Duration(r.StaleSeconds) * time.Second
}
