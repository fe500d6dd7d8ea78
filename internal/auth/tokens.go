package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/hivemind-app/hivemind-back/internal/config"
)

var (
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenSignature    = errors.New("token signature invalid")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenMissingClaim = errors.New("token identity claim missing")
)

// TokenAuthority issues and verifies the signed bearer tokens that
// carry a user identity between login and subsequent requests. Tokens
// are HMAC-signed with the process-wide secret; nothing about them is
// stored server-side.
type TokenAuthority struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenAuthority(cfg *config.Config) (*TokenAuthority, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("empty JWT secret")
	}
	return &TokenAuthority{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
	}, nil
}

// Issue signs a token binding the given user id. The identity claim is
// the decimal string form of the id.
func (a *TokenAuthority) Issue(userID uint64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":  strconv.FormatUint(userID, 10),
		"iat": now.Unix(),
	}
	if a.ttl != 0 {
		claims["exp"] = now.Add(a.ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Verify checks the signature and returns the embedded user id.
func (a *TokenAuthority) Verify(tokenString string) (uint64, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return 0, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return 0, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return 0, ErrTokenSignature
		default:
			return 0, errors.Wrap(ErrTokenSignature, err.Error())
		}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrTokenMissingClaim
	}
	raw, ok := claims["id"].(string)
	if !ok {
		return 0, ErrTokenMissingClaim
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, ErrTokenMissingClaim
	}

	return id, nil
}
