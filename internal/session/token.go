package session

import (
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var bearerPrefix = regexp.MustCompile(`^(?i:bearer)\s+`)

// StripBearer removes any leading "Bearer " prefixes so the header is never
// written as "Bearer Bearer ...".
func StripBearer(token string) string {
	for bearerPrefix.MatchString(token) {
		token = bearerPrefix.ReplaceAllString(token, "")
	}
	return token
}

// ExpiresAt decodes the exp claim of a JWT without verifying its signature;
// the client never holds the signing key. ok is false when the token is not a
// decodable JWT or carries no exp claim.
func ExpiresAt(token string) (exp time.Time, ok bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(StripBearer(token), &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Expired reports whether token is decodable and its expiry is before now.
func Expired(token string, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	return ok && exp.Before(now)
}

// OAuthToken wraps a raw credential as a bearer oauth2 token, carrying the
// JWT expiry when one can be decoded.
func OAuthToken(raw string) *oauth2.Token {
	tok := &oauth2.Token{AccessToken: StripBearer(raw), TokenType: "Bearer"}
	if exp, ok := ExpiresAt(raw); ok {
		tok.Expiry = exp
	}
	return tok
}
