package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, forged, expired, or of the wrong type.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidSigningKey is returned by the constructors when no usable key is supplied.
	ErrInvalidSigningKey = errors.New("invalid signing key")
)

// TokenType distinguishes access tokens from refresh tokens inside the signed claims.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims holds JWT claims for both token types. Refresh tokens carry only the
// subject and type; email and role are omitted so a leaked refresh token says
// nothing about the account.
type Claims struct {
	jwt.RegisteredClaims
	Email string    `json:"email,omitempty"`
	Role  string    `json:"role,omitempty"`
	Type  TokenType `json:"type"`
}

// TokenProvider issues and validates JWT access and refresh tokens. It signs with
// HS256 (shared secret) or RS256/ES256 (private/public key) and performs no I/O.
type TokenProvider struct {
	method     jwt.SigningMethod
	signKey    interface{}
	verifyKey  interface{}
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and validated on every Verify.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenProvider, error) {
	if privateKey == nil || publicKey == nil {
		return nil, ErrInvalidSigningKey
	}
	var method jwt.SigningMethod
	switch privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidSigningKey
	}
	return newProvider(method, privateKey, publicKey, issuer, audience, accessTTL, refreshTTL), nil
}

// NewHMACTokenProvider returns a TokenProvider that signs with HS256 using secret.
// The secret must be at least 32 bytes.
func NewHMACTokenProvider(secret []byte, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenProvider, error) {
	if len(secret) < 32 {
		return nil, ErrInvalidSigningKey
	}
	key := append([]byte(nil), secret...)
	return newProvider(jwt.SigningMethodHS256, key, key, issuer, audience, accessTTL, refreshTTL), nil
}

func newProvider(method jwt.SigningMethod, signKey, verifyKey interface{}, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenProvider{
		method:     method,
		signKey:    signKey,
		verifyKey:  verifyKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock replaces the provider's time source. Used by tests to move past expiry.
func (p *TokenProvider) WithClock(now func() time.Time) *TokenProvider {
	if now != nil {
		p.now = now
	}
	return p
}

// AccessTTL returns the access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues a short-lived access JWT carrying the user's email and role.
// Returns the token string and its expiration time.
func (p *TokenProvider) IssueAccess(userID, email, role string) (token string, expiresAt time.Time, err error) {
	return p.issue(Claims{Email: email, Role: role, Type: TokenTypeAccess}, userID, p.accessTTL)
}

// IssueRefresh issues a long-lived refresh JWT. The caller stores its hash as a session.
func (p *TokenProvider) IssueRefresh(userID string) (token string, expiresAt time.Time, err error) {
	return p.issue(Claims{Type: TokenTypeRefresh}, userID, p.refreshTTL)
}

func (p *TokenProvider) issue(claims Claims, userID string, ttl time.Duration) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.now().UTC()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti,
		Subject:   userID,
		Issuer:    p.issuer,
		Audience:  jwt.ClaimStrings{p.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(p.method, claims).SignedString(p.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify parses and validates tokenString (signature, algorithm, exp, iss, aud)
// and checks that its type is want. Every failure returns ErrInvalidToken so
// callers treat them all as "unauthenticated".
func (p *TokenProvider) Verify(tokenString string, want TokenType) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(p.now),
	)
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return p.verifyKey, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != want || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
