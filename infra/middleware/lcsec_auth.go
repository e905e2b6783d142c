package middleware

import (
	"strings"

	"lcsec_server/pkg/apperr"
	"lcsec_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JWTAuth protects the review endpoints with a shared-secret HS256 token.
// The token subject is stored in locals for request logging.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			// Review surface is disabled without a configured secret
			return apperr.ErrUnauthorized
		}

		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return apperr.ErrUnauthorized
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))

		if err != nil || !token.Valid {
			requestID, _ := c.Locals("request_id").(string)
			logger.WithField("request_id", requestID).WithError(err).Warn("Rejected review token")
			return apperr.ErrInvalidToken
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if sub, err := claims.GetSubject(); err == nil {
				c.Locals("subject", sub)
			}
		}

		return c.Next()
	}
}
