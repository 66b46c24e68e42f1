package middlewares

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// CurrentUserIDContextKey is the key to retrieve the current user id from echo.Context.
const CurrentUserIDContextKey = "current_user_id"

// TokenLookup lists where the access token is read from.
// Browsers can not set headers on EventSource and WebSocket requests, hence the query fallback.
const TokenLookup = "header:Authorization:Bearer ,query:access_token"

// Authenticate returns a JWT auth middleware.
// It stores the token subject (the user id) into echo.Context.
func Authenticate(signingKey []byte) echo.MiddlewareFunc {
	verify := echojwt.WithConfig(echojwt.Config{
		SigningKey:    signingKey,
		SigningMethod: jwt.SigningMethodHS256.Alg(),
		TokenLookup:   TokenLookup,
		ErrorHandler: func(c echo.Context, err error) error {
			return unauthorized(c)
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return verify(func(c echo.Context) error {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				panic("token implementation has changed")
			}

			subject, err := token.Claims.GetSubject()
			if err != nil || subject == "" {
				return unauthorized(c)
			}

			c.Set(CurrentUserIDContextKey, subject)
			return next(c)
		})
	}
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{
		"error": echo.Map{
			"tag":     "invalid-auth",
			"message": "Invalid login credentials.",
		},
	})
}
