package auth

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/gonglijing/nbconsole/internal/errors"
)

// ErrInvalidToken token 签名、算法或有效期校验失败
var ErrInvalidToken = errors.New("invalid token")

const (
	// DefaultTokenTTL 签发 token 的默认有效期
	DefaultTokenTTL = 7 * 24 * time.Hour
	minSecretLen    = 16
)

// JWTManager 签发与校验 HS256 Bearer Token
type JWTManager struct {
	secret []byte
	now    func() time.Time
}

type sessionInfoContextKey struct{}

// Claims token 载荷
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SessionInfo 会话信息
type SessionInfo struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// NewJWTManager 创建 JWT 管理器，过短的密钥经 SHA-256 扩展
func NewJWTManager(secretKey []byte) *JWTManager {
	if len(secretKey) < minSecretLen {
		sum := sha256.Sum256(secretKey)
		secretKey = sum[:]
	}
	return &JWTManager{secret: secretKey, now: time.Now}
}

// GenerateToken 签发 JWT(HS256)
func (m *JWTManager) GenerateToken(subject, role string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := m.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ParseToken 解析并验证 JWT，只接受 HS256
func (m *JWTManager) ParseToken(tokenStr string) (*SessionInfo, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (interface{}, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	info := &SessionInfo{Subject: claims.Subject, Role: claims.Role}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// RequireAuth 校验 Authorization: Bearer，失败返回 401 + E_UNAUTHORIZED
func (m *JWTManager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			writeUnauthorized(w)
			return
		}
		info, err := m.ParseToken(tokenStr)
		if err != nil {
			writeUnauthorized(w)
			return
		}
		ctx := context.WithValue(r.Context(), sessionInfoContextKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFromContext 取出 RequireAuth 写入的会话信息
func SessionFromContext(ctx context.Context) (*SessionInfo, bool) {
	info, ok := ctx.Value(sessionInfoContextKey{}).(*SessionInfo)
	return info, ok && info != nil
}

func extractToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("WWW-Authenticate", `Bearer realm="nbconsole"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   apperrors.ResolveMessage(apperrors.CodeUnauthorized, "", ""),
		"code":    apperrors.CodeUnauthorized,
	})
}
