package nostd

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const Token = "Alert-Token"

// GetToken 依次从请求头、Authorization、查询参数、Cookie 中读取令牌
func GetToken(c echo.Context) string {
	token := c.Request().Header.Get(Token)
	if len(token) > 0 {
		return token
	}
	if auth := c.Request().Header.Get(echo.HeaderAuthorization); auth != "" {
		if bearer, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return bearer
		}
	}
	token = c.QueryParam(Token)
	if token != "" {
		return token
	}
	cookie, err := c.Cookie(Token)
	if err != nil {
		return ""
	}
	return cookie.Value
}
