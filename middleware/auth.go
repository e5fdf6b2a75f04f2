// middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var ErrInvalidToken = errors.New("invalid token")

// UserIDKey is the fiber locals key holding the authenticated user id.
const UserIDKey = "user_id"

// Verifier turns a bearer credential into a numeric user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (int64, error)
}

// Verifiers tries each verifier in order and returns the first success.
type Verifiers []Verifier

func (vs Verifiers) Verify(ctx context.Context, token string) (int64, error) {
	err := ErrInvalidToken
	for _, v := range vs {
		id, verr := v.Verify(ctx, token)
		if verr == nil {
			return id, nil
		}
		err = verr
	}
	return 0, err
}

// TokenFromRequest reads "Authorization: Bearer <token>", falling back to
// the token query parameter, which browsers use for websocket upgrades.
func TokenFromRequest(c *fiber.Ctx) string {
	if h := strings.TrimSpace(c.Get(fiber.HeaderAuthorization)); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return h
	}
	return strings.TrimSpace(c.Query("token"))
}

// BearerAuth rejects requests without a valid credential with 401 and stores
// the caller's id for UserID.
func BearerAuth(v Verifier, log *zap.Logger) fiber.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "auth"))
	return func(c *fiber.Ctx) error {
		token := TokenFromRequest(c)
		if token == "" {
			log.Debug("missing credential", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
		}
		userID, err := v.Verify(c.UserContext(), token)
		if err != nil {
			log.Debug("credential rejected", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid bearer token"})
		}
		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

// UserID returns the id stored by BearerAuth.
func UserID(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals(UserIDKey).(int64)
	return id, ok
}
