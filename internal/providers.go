package internal

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/daniel8038/tg-golddog-alert/internal/cache/redis"
	"github.com/daniel8038/tg-golddog-alert/internal/config"
	"github.com/daniel8038/tg-golddog-alert/internal/feed"
	"github.com/daniel8038/tg-golddog-alert/internal/guard"
	"github.com/daniel8038/tg-golddog-alert/internal/service"
	"github.com/daniel8038/tg-golddog-alert/internal/telegram"
	"github.com/daniel8038/tg-golddog-alert/pkg/swap"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

const (
	telegramHTTPTimeout     = 10 * time.Second
	openaiProviderName      = "openai"
	logFieldConfiguredModel = "model"
	instrumentLockPrefix    = "golddog:instrument:"
)

// provideTelegram provides telegram instance
func provideTelegram(logger *zap.Logger, conf *config.Config) *telegram.Telegram {
	if !conf.Telegram.Enabled {
		return nil
	}

	httpClient := &http.Client{Timeout: telegramHTTPTimeout}

	tg, err := telegram.NewTelegram(logger, telegram.Settings{
		Token:  conf.Telegram.Token,
		Client: httpClient,
	})
	if err != nil {
		logger.Error("failed to init telegram", zap.Error(err))
		return nil
	}

	return tg
}

// provideExecutor 未开启真实交易时使用纸钱包
func provideExecutor(conf *config.Config, logger *zap.Logger) swap.Executor {
	if !conf.Trading.Enabled {
		logger.Info("paper wallet enabled",
			zap.Float64("initial_balance", conf.Trading.PaperWallet.InitialBalance))
		return swap.NewPaperWallet(conf.Trading.PaperWallet.InitialBalance, logger)
	}

	if conf.Swap.BaseURL == "" {
		logger.Fatal("swap gateway base_url is required when trading is enabled")
	}
	logger.Info("swap gateway enabled", zap.String("base_url", conf.Swap.BaseURL))
	return swap.NewGateway(swap.GatewayConfig{
		BaseURL:     conf.Swap.BaseURL,
		APIKey:      conf.Swap.APIKey,
		SlippageBps: conf.Swap.SlippageBps,
		Timeout:     time.Duration(conf.Swap.TimeoutSeconds) * time.Second,
	}, logger)
}

// provideOpenAIClient provides OpenAI client
func provideOpenAIClient(conf *config.Config, logger *zap.Logger) *openai.Client {
	if conf.Admission.Mode != "llm" {
		return nil
	}

	var options = []option.RequestOption{
		option.WithBaseURL(conf.LLM.BaseURL),
		option.WithAPIKey(conf.LLM.APIKey),
	}
	if conf.LLM.ProxyURL != "" {
		u, err := url.Parse(conf.LLM.ProxyURL)
		if err != nil {
			logger.Fatal("failed to parse proxy URL", zap.Error(err))
		}
		httpClient := &http.Client{
			Timeout: time.Minute,
			Transport: &http.Transport{
				Proxy: http.ProxyURL(u),
			},
		}
		options = append(options, option.WithHTTPClient(httpClient))
	}

	client := openai.NewClient(options...)

	logger.Info("OpenAI client initialized",
		zap.String(logFieldConfiguredModel, conf.LLM.Model),
		zap.String("provider", openaiProviderName),
	)
	return &client
}

// provideAdmissionFilter 按配置选择准入过滤方式
func provideAdmissionFilter(conf *config.Config, logger *zap.Logger, client *openai.Client) service.AdmissionFilter {
	rules := service.NewRuleFilter(conf.Admission.Rules)
	if conf.Admission.Mode == "llm" && client != nil {
		return service.NewLLMFilter(logger, rules, client, conf.LLM.Model)
	}
	return rules
}

// provideInstrumentGuard 配置 redis 时使用分布式锁，否则使用进程内锁
func provideInstrumentGuard(conf *config.Config, logger *zap.Logger) guard.Locker {
	if !conf.Redis.Enabled {
		return guard.NewKeyedGuard()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rdb, err := redis.NewClient(ctx, redis.ClientConfig{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err != nil {
		logger.Error("failed to connect redis, fallback to in-process guard", zap.Error(err))
		return guard.NewKeyedGuard()
	}
	ttl := time.Duration(conf.Redis.LockTTLSeconds) * time.Second
	return redis.NewLocker(rdb, instrumentLockPrefix, ttl)
}

// provideTickSource 未配置行情地址时只提供接口服务
func provideTickSource(conf *config.Config, logger *zap.Logger) feed.Source {
	if conf.Feed.URL == "" {
		logger.Warn("feed url not configured, tick ingestion disabled")
		return nil
	}
	reconnect := time.Duration(conf.Feed.ReconnectSeconds) * time.Second
	return feed.NewWSFeed(logger, conf.Feed.URL, nil, reconnect)
}
