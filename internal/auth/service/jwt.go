package service

import (
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/launchpad/internal/auth/domain"
)

// jwtVerifier accepts HS256 bearer tokens minted by the external identity
// provider. The subject claim carries the user id.
type jwtVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func newJWTVerifier(secret string) *jwtVerifier {
	if strings.TrimSpace(secret) == "" {
		return nil
	}
	return &jwtVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

func (v *jwtVerifier) subject(raw string) (snowflake.ID, error) {
	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, domain.ErrSessionExpired
		}
		return 0, domain.ErrInvalidSession
	}
	id, err := snowflake.ParseString(claims.Subject)
	if err != nil {
		return 0, domain.ErrInvalidSession
	}
	return id, nil
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}
