package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// RoleAdmin is the only role issued by this service.
const RoleAdmin = "admin"

// ErrBadPassword is returned by Authenticator.Login for a wrong password.
var ErrBadPassword = errors.New("invalid password")

// Claims represents the admin session JWT payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs an HS256 token for subject valid for ttl.
func Issue(subject, role, issuer, key string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}

// Authenticator checks the admin password and issues session tokens. With an
// empty password hash, admin pages are open.
type Authenticator struct {
	PasswordHash string
	Issuer       string
	SigningKey   string
	TTL          time.Duration
}

// Enabled reports whether admin routes require a session.
func (a Authenticator) Enabled() bool {
	return a.PasswordHash != ""
}

// Login verifies password against the bcrypt hash and returns a signed token.
func (a Authenticator) Login(password string) (string, time.Time, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return "", time.Time{}, ErrBadPassword
	}
	return Issue(RoleAdmin, RoleAdmin, a.Issuer, a.SigningKey, a.TTL)
}

// Verify parses token and checks it carries the admin role.
func (a Authenticator) Verify(token string) (Claims, error) {
	claims, err := Parse(token, a.SigningKey, a.Issuer)
	if err != nil {
		return Claims{}, err
	}
	if claims.Role != RoleAdmin {
		return Claims{}, errors.New("not an admin token")
	}
	return claims, nil
}
