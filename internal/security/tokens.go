package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"esign-workflow/internal/platform/actor"
)

// ErrInvalidToken is returned when a token is malformed, expired or signed by someone else.
var ErrInvalidToken = errors.New("invalid token")

// ActorClaims are the claims of an actor access token issued by the front office.
type ActorClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenProvider issues and validates actor tokens using RS256 or ES256.
// Issuing needs the private key; validation only the public key.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider. privateKey may be nil for validate-only use.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, ttl time.Duration) *TokenProvider {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Issue signs a token naming a as subject and role.
func (p *TokenProvider) Issue(a actor.Actor) (token string, expiresAt time.Time, err error) {
	if err := a.Validate(); err != nil {
		return "", time.Time{}, err
	}
	if p.privateKey == nil {
		return "", time.Time{}, ErrInvalidKey
	}
	now := p.now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: string(a.Role),
	}
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", time.Time{}, ErrInvalidKey
	}
	token, err = jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
	return token, expiresAt, err
}

// Validate checks signature, expiry, issuer and audience and returns the actor the token names.
func (p *TokenProvider) Validate(tokenString string) (actor.Actor, error) {
	claims := &ActorClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, KeyFunc(p.publicKey),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return actor.Actor{}, ErrInvalidToken
	}
	a := actor.Actor{ID: claims.Subject, Role: actor.Role(claims.Role)}
	// system identity is never granted by token
	if a.Validate() != nil || a.Role == actor.RoleSystem {
		return actor.Actor{}, ErrInvalidToken
	}
	return a, nil
}

// KeyFunc returns a jwt.Keyfunc accepting only RSA and ECDSA signatures made with pub.
func KeyFunc(pub crypto.PublicKey) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return pub, nil
		}
		return nil, ErrInvalidToken
	}
}
