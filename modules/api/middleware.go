package api

import (
	"strings"

	"github.com/example/taskboard/modules/auth"
	"github.com/gofiber/fiber/v2"
)

const (
	// UserContextKey is the key used to store user claims in the Fiber context.
	UserContextKey = "user"
)

// AuthMiddleware rejects requests without a valid bearer token and stores
// the token's claims under UserContextKey.
func AuthMiddleware(authAdapter auth.AuthPort) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, message := bearerToken(c.Get(fiber.HeaderAuthorization))
		if message != "" {
			return unauthorized(c, message)
		}

		claims, err := authAdapter.ValidateToken(c.UserContext(), token)
		if err != nil {
			return unauthorized(c, "Invalid or expired token")
		}

		c.Locals(UserContextKey, claims)
		return c.Next()
	}
}

// bearerToken extracts the token from an Authorization header. A non-empty
// message describes why the header was rejected.
func bearerToken(header string) (token, message string) {
	if header == "" {
		return "", "Authorization header is required"
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", "Invalid authorization header format. Use: Bearer <token>"
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", "Token is required"
	}
	return token, ""
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
		Error:   "unauthorized",
		Message: message,
	})
}
