package internal

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/daniel8038/tg-golddog-alert/internal/xe"
	"github.com/go-orz/orz"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// orzErrorStatus 业务错误对应的 HTTP 状态码，未列出的按 400 处理
func orzErrorStatus(err error) int {
	switch {
	case errors.Is(err, xe.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, xe.ErrPositionNotFound), errors.Is(err, xe.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, xe.ErrInstrumentBusy), errors.Is(err, xe.ErrOrderNotCancelable):
		return http.StatusConflict
	case errors.Is(err, xe.ErrCloseFailed):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func WithErrorHandler(logger *zap.Logger) func(next echo.HandlerFunc) echo.HandlerFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := next(c); err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					return c.JSON(he.Code, orz.Map{
						"code":    he.Code,
						"message": fmt.Sprint(he.Message),
					})
				}

				var oe *orz.Error
				if errors.As(err, &oe) {
					return c.JSON(orzErrorStatus(err), orz.Map{
						"code":    oe.Code,
						"message": err.Error(),
					})
				}

				logger.Sugar().Error("api", zap.Error(err))

				return c.JSON(500, orz.Map{
					"code":    500,
					"message": err.Error(),
				})
			}
			return nil
		}
	}
}
