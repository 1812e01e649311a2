package middleware

import (
	"github.com/daniel8038/tg-golddog-alert/internal/xe"
	"github.com/daniel8038/tg-golddog-alert/pkg/nostd"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TokenAuthConfig 接口令牌认证配置
type TokenAuthConfig struct {
	TokenHash string // 令牌的 bcrypt 哈希，为空时不校验
	Logger    *zap.Logger
}

// TokenAuth 校验请求携带的令牌
func TokenAuth(config TokenAuthConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.TokenHash == "" {
				return next(c)
			}

			token := nostd.GetToken(c)
			if token == "" {
				config.Logger.Warn("api token missing",
					zap.String("path", c.Request().URL.Path),
					zap.String("remote_ip", c.RealIP()))
				return xe.ErrInvalidToken
			}

			if err := nostd.BcryptMatch([]byte(config.TokenHash), []byte(token)); err != nil {
				config.Logger.Warn("invalid api token",
					zap.String("path", c.Request().URL.Path),
					zap.String("remote_ip", c.RealIP()))
				return xe.ErrInvalidToken
			}

			return next(c)
		}
	}
}
