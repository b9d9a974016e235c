package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// AuthMiddleware accepts requests carrying a bearer token that verifies
// against the app's key set. Without a key set every request passes.
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ac := c.(*AppContext)
		if ac.App.Keyfunc == nil {
			return next(c)
		}

		authHeader := c.Request().Header.Get("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		parsed, err := jwt.Parse(token, ac.App.Keyfunc)
		if err != nil || !parsed.Valid {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		subject, _ := claims.GetSubject()
		role := "user"
		if roleClaim, ok := claims["role"].(string); ok {
			role = roleClaim
		}

		ac.User = &AppUser{
			Subject: subject,
			Role:    role,
		}
		return next(c)
	}
}
