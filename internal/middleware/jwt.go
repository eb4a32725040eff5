package middleware

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/bundlehub/internal/utils"
)

// JWT verifies the bearer token and exposes user_id, role and email on the context
func JWT(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: jwt.SigningMethodHS256.Name,
		TokenLookup:   "header:Authorization:Bearer ",
		NewClaimsFunc: func(echo.Context) jwt.Claims { return new(utils.Claims) },
		SuccessHandler: func(c echo.Context) {
			tok, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return
			}
			if claims, ok := tok.Claims.(*utils.Claims); ok {
				c.Set("user_id", claims.CallerID())
				c.Set("role", claims.Role)
				c.Set("email", claims.Email)
			}
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		},
	})
}
