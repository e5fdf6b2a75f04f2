package middleware

import (
	"context"
	"fmt"

	"pong-match-system/services"
)

// ServiceVerifier validates credentials against the external auth service.
type ServiceVerifier struct {
	Client *services.AuthServiceClient
}

func (v ServiceVerifier) Verify(ctx context.Context, token string) (int64, error) {
	resp, err := v.Client.ValidateToken(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return parseUserID(resp.UserID)
}
