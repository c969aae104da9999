package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/phoenixpulsar/auto-chain-verify/internal/common/config"
)

// GenerateAccountToken 为签入账号生成 HS256 token。
// subject 即外部账号名（如 alice.near），业务侧将其作为不透明身份使用。
func GenerateAccountToken(cfg config.AuthConfig, account string, ttl time.Duration) (token string, expiresAt time.Time, err error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return "", time.Time{}, fmt.Errorf("account is empty")
	}
	if cfg.JWTSecret == "" {
		return "", time.Time{}, fmt.Errorf("jwt_secret is empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	now := time.Now()
	expiresAt = now.Add(ttl)

	c := jwt.RegisteredClaims{
		Subject:   account,
		Issuer:    cfg.Issuer,
		Audience:  audience(cfg.Audience),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := t.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyAccountToken 校验 token 并取出账号名。
// 校验 HS256 签名与 exp/nbf（jwt/v5 默认），可选校验 iss/aud。
func VerifyAccountToken(cfg config.AuthConfig, tokenStr string) (string, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return "", fmt.Errorf("token is empty")
	}
	if cfg.JWTSecret == "" {
		return "", fmt.Errorf("jwt_secret is empty")
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return []byte(cfg.JWTSecret), nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil || parsed == nil || !parsed.Valid {
		return "", fmt.Errorf("invalid token")
	}

	if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
		return "", fmt.Errorf("invalid issuer")
	}
	if cfg.Audience != "" && !audienceContains(claims.Audience, cfg.Audience) {
		return "", fmt.Errorf("invalid audience")
	}

	account := strings.TrimSpace(claims.Subject)
	if account == "" {
		return "", fmt.Errorf("empty subject")
	}
	return account, nil
}

func audience(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	want = strings.TrimSpace(want)
	if want == "" || len(aud) == 0 {
		return false
	}
	for _, v := range aud {
		if strings.TrimSpace(v) == want {
			return true
		}
	}
	return false
}
