package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// AuthMiddleware resolves the requesting principal from a Bearer token: the
// master API key maps to the configured master user, anything else must be
// a JWT verified against the identity provider's JWKS.
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		cc := c.(*AppContext)
		app := cc.App

		if app.MasterAPIKey != "" && app.MasterUserID != "" && token == app.MasterAPIKey {
			cc.User = &AppUser{UserID: app.MasterUserID, Role: "admin"}
			return next(c)
		}

		if app.Key == nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		k := *app.Key
		parsed, err := jwt.Parse(token, k.Keyfunc)
		if err != nil || !parsed.Valid {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}

		userID := ""
		switch idClaim := claims["id"].(type) {
		case string:
			userID = idClaim
		case float64:
			userID = fmt.Sprintf("%.0f", idClaim)
		}
		if userID == "" {
			if sub, err := claims.GetSubject(); err == nil {
				userID = sub
			}
		}
		if userID == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid user ID"})
		}

		role := "user"
		if roleClaim, ok := claims["role"].(string); ok {
			role = roleClaim
		}

		cc.User = &AppUser{UserID: userID, Role: role}
		return next(c)
	}
}
