package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrInvalidSig = errors.New("jwtx: invalid signature")
	ErrExpired    = errors.New("jwtx: token expired")
	ErrWrongType  = errors.New("jwtx: wrong token type")

	errShortSecret = errors.New("jwtx: secret must be at least 32 bytes")
)

// MinSecretLen is the minimum accepted HMAC secret length.
const MinSecretLen = 32

// Codec signs and verifies both token classes with a single shared HS256
// secret. It is stateless: the output is a pure function of claims, secret
// and clock.
type Codec struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewCodec builds a Codec. The secret must carry at least 256 bits.
func NewCodec(secret []byte, issuer string) (*Codec, error) {
	if len(secret) < MinSecretLen {
		return nil, errShortSecret
	}
	return &Codec{
		secret: secret,
		issuer: issuer,
		leeway: 30 * time.Second,
	}, nil
}

// Issuer returns the issuer stamped into every token this codec signs.
func (c *Codec) Issuer() string { return c.issuer }

// Sign serialises claims into a signed compact JWT.
func (c *Codec) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// VerifyPreAuth verifies a token and requires the pre-auth class.
func (c *Codec) VerifyPreAuth(token string) (Claims, error) {
	return c.verify(token, TokenTypePreAuth)
}

// VerifySession verifies a token and requires the session class.
func (c *Codec) VerifySession(token string) (Claims, error) {
	return c.verify(token, TokenTypeSession)
}

func (c *Codec) verify(token string, want TokenType) (Claims, error) {
	var claims Claims

	_, err := jwt.ParseWithClaims(
		token,
		&claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithLeeway(c.leeway),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSig
		default:
			return Claims{}, ErrMalformed
		}
	}

	// Check the discriminant before trusting anything else in the payload.
	if claims.Type != want {
		return Claims{}, ErrWrongType
	}
	if claims.UserID == "" {
		return Claims{}, ErrMalformed
	}

	return claims, nil
}
