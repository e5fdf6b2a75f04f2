package middleware

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestJWTVerifier(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		want    int64
		wantErr bool
	}{
		{
			name:  "numeric identity",
			token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"identity": 42, "exp": future}),
			want:  42,
		},
		{
			name:  "string sub",
			token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "7"}),
			want:  7,
		},
		{
			name:    "wrong secret",
			token:   sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"identity": 1}),
			wantErr: true,
		},
		{
			name:    "expired",
			token:   sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"identity": 1, "exp": time.Now().Add(-time.Hour).Unix()}),
			wantErr: true,
		},
		{
			name:    "non numeric identity",
			token:   sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"identity": "alice"}),
			wantErr: true,
		},
		{
			name:    "no identity",
			token:   sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"role": "user"}),
			wantErr: true,
		},
		{
			name:    "unsigned",
			token:   sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"identity": 1}),
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "not-a-jwt",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(context.Background(), tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToken) {
					t.Fatalf("err = %v, want ErrInvalidToken", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("Verify = (%d, %v), want %d", got, err, tt.want)
			}
		})
	}
}

type staticVerifier map[string]int64

func (s staticVerifier) Verify(_ context.Context, token string) (int64, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return 0, ErrInvalidToken
}

func TestVerifiersFirstSuccessWins(t *testing.T) {
	vs := Verifiers{staticVerifier{"a": 1}, staticVerifier{"b": 2}}
	if id, err := vs.Verify(context.Background(), "b"); err != nil || id != 2 {
		t.Fatalf("Verify(b) = %d, %v", id, err)
	}
	if _, err := vs.Verify(context.Background(), "c"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify(c) err = %v", err)
	}
	if _, err := (Verifiers{}).Verify(context.Background(), "a"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty chain accepted a token")
	}
}

func TestBearerAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/me", BearerAuth(staticVerifier{"good": 9}, nil), func(c *fiber.Ctx) error {
		id, _ := UserID(c)
		return c.SendString(strconv.FormatInt(id, 10))
	})

	tests := []struct {
		name   string
		target string
		header string
		status int
		body   string
	}{
		{name: "header", target: "/me", header: "Bearer good", status: fiber.StatusOK, body: "9"},
		{name: "query", target: "/me?token=good", status: fiber.StatusOK, body: "9"},
		{name: "missing", target: "/me", status: fiber.StatusUnauthorized},
		{name: "bad", target: "/me", header: "Bearer nope", status: fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.body != "" {
				b, _ := io.ReadAll(resp.Body)
				if string(b) != tt.body {
					t.Fatalf("body = %q, want %q", b, tt.body)
				}
			}
		})
	}
}

func TestGatewayAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/internal", GatewayAuth("svc-token", nil), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	for header, want := range map[string]int{
		"":                 fiber.StatusUnauthorized,
		"Bearer wrong":     fiber.StatusUnauthorized,
		"Bearer svc-token": fiber.StatusNoContent,
		"svc-token":        fiber.StatusNoContent,
	} {
		req := httptest.NewRequest("GET", "/internal", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != want {
			t.Fatalf("header %q: status = %d, want %d", header, resp.StatusCode, want)
		}
	}
}
