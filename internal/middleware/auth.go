package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// UserContextKey 是存储在 context 中的用户身份的键。
type UserContextKey struct{}

// UserClaims 是鉴权层解析出的最小身份信息。
type UserClaims struct {
	ID      string
	Teacher bool
}

// JWTAuth 创建 JWT 鉴权中间件。
// 支持 HMAC（共享密钥）与 JWKS（远程公钥）两种验签方式；
// 验证成功后把 sub 与 teacher 声明放进 context。
func JWTAuth(jwksURL, jwtSecret string) func(http.Handler) http.Handler {
	var jwks *keyfunc.JWKS
	var err error

	if jwksURL != "" {
		jwks, err = keyfunc.Get(jwksURL, keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				fmt.Printf("[AuthError] JWKS refresh failed: %v\n", err)
			},
		})
		if err != nil {
			fmt.Printf("[AuthWarning] JWKS init failed (%s): %v. Falling back to HMAC only.\n", jwksURL, err)
			jwks = nil
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				writeAuthError(w, http.StatusUnauthorized, "invalid Authorization format, expected: Bearer <token>")
				return
			}

			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
			if tokenString == "" {
				writeAuthError(w, http.StatusUnauthorized, "empty token")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
					if jwtSecret != "" {
						return []byte(jwtSecret), nil
					}
				}
				if jwks != nil {
					return jwks.Keyfunc(token)
				}
				return nil, fmt.Errorf("no suitable verification method")
			})
			if err != nil || !token.Valid {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			sub, _ := claims["sub"].(string)
			if sub == "" {
				writeAuthError(w, http.StatusUnauthorized, "token has no subject")
				return
			}
			teacher, _ := claims["teacher"].(bool)

			ctx := context.WithValue(r.Context(), UserContextKey{}, UserClaims{ID: sub, Teacher: teacher})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser 从 context 中获取经过鉴权的用户身份。
func GetUser(ctx context.Context) (UserClaims, bool) {
	claims, ok := ctx.Value(UserContextKey{}).(UserClaims)
	return claims, ok
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="Classdesk API"`)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
