package domain

import "github.com/golang-jwt/jwt/v5"

// AccessClaims is the fixed claim set of an access token. The user id travels
// in the registered subject claim and the token id in jti.
type AccessClaims struct {
	Roles         []string `json:"roles"`
	SecurityStamp string   `json:"security_stamp"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}
