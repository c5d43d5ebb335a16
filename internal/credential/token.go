package credential

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryFromToken はアクセストークンのexpクレームから有効期限を返す。
// 署名はバックエンドが検証するためここでは検証しない。
// JWTでない場合やexpが無い場合はfallbackを返す。
func ExpiryFromToken(token string, fallback time.Time) time.Time {
	if token == "" {
		return fallback
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fallback
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}
	return exp.Time
}

// RetainUntil は資格情報をストアに保持する期限を返す。
// now+ttlより早くはならない。expクレームがそれより後の場合はexpまで延ばす。
// 有効期限が過ぎたトークンもこの期限までは読み出せ、バックエンドの401で失効する。
func RetainUntil(token string, now time.Time, ttl time.Duration) time.Time {
	retain := now.Add(ttl)
	if exp := ExpiryFromToken(token, retain); exp.After(retain) {
		return exp
	}
	return retain
}
