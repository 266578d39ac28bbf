package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/blagoySimandov/careerpilot/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingClaims = errors.New("missing required claims")
)

// JWTVerifier validates bearer tokens issued by the identity provider.
type JWTVerifier struct {
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
	stop    context.CancelFunc
}

// NewJWTVerifier fetches the JWKS at cfg.JWKSURL and keeps it refreshed until Close.
func NewJWTVerifier(ctx context.Context, cfg config.AuthConfig) (*JWTVerifier, error) {
	ctx, cancel := context.WithCancel(ctx)
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}
	v := NewJWTVerifierWithKeyfunc(jwks.Keyfunc, cfg)
	v.stop = cancel
	return v, nil
}

func NewJWTVerifierWithKeyfunc(kf jwt.Keyfunc, cfg config.AuthConfig) *JWTVerifier {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &JWTVerifier{keyfunc: kf, parser: jwt.NewParser(opts...)}
}

func (v *JWTVerifier) VerifyToken(tokenString string) (*User, error) {
	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, v.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := claims.GetSubject()
	if err != nil || userID == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrMissingClaims)
	}
	email, _ := claims["email"].(string)

	return newUser(userID, email), nil
}

func (v *JWTVerifier) Close() {
	if v.stop != nil {
		v.stop()
	}
}
