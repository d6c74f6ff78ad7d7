package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/reservation-engine/internal/model"
	"github.com/iliyamo/reservation-engine/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// stores the caller as a model.Actor under the "actor" context key.  Tokens
// whose role is neither CONSUMER nor OPERATOR are rejected here, so handlers
// can rely on ActorFrom always returning a known role.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header starts with "Bearer " followed by the JWT.
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			actor := model.Actor{ID: claims.Subject, Role: model.Role(strings.ToUpper(claims.Role))}
			if !actor.Role.Valid() {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "unknown role"})
			}

			c.Set(actorKey, actor)
			return next(c)
		}
	}
}
