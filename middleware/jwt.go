package middleware

import (
	"context"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier accepts HS256 tokens signed with Secret. The user id is read
// from the "identity" claim, falling back to "sub".
type JWTVerifier struct {
	Secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{Secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (int64, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	for _, name := range []string{"identity", "sub"} {
		if raw, ok := claims[name]; ok {
			return parseUserID(raw)
		}
	}
	return 0, fmt.Errorf("%w: no identity claim", ErrInvalidToken)
}

func parseUserID(raw any) (int64, error) {
	var id int64
	switch v := raw.(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%w: non-integer identity %v", ErrInvalidToken, v)
		}
		id = int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: identity %q is not numeric", ErrInvalidToken, v)
		}
		id = n
	default:
		return 0, fmt.Errorf("%w: identity has type %T", ErrInvalidToken, raw)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: identity %d out of range", ErrInvalidToken, id)
	}
	return id, nil
}
