package devserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	errUserExists      = errors.New("username already registered")
	errBadCredentials  = errors.New("incorrect username or password")
	errInvalidToken    = errors.New("invalid token")
	errMissingBearer   = errors.New("not authenticated")
	errMissingPassword = errors.New("username and password are required")
)

type user struct {
	name  string
	email string
	hash  []byte
}

func (s *Server) register(name, email, password string) (string, error) {
	if name == "" || password == "" {
		return "", errMissingPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	if _, ok := s.users[name]; ok {
		s.mu.Unlock()
		return "", errUserExists
	}
	s.users[name] = user{name: name, email: email, hash: hash}
	s.mu.Unlock()

	return s.issue(name)
}

func (s *Server) login(name, password string) (string, error) {
	s.mu.RLock()
	u, ok := s.users[name]
	s.mu.RUnlock()
	if !ok {
		return "", errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return "", errBadCredentials
	}
	return s.issue(name)
}

// IssueToken signs a token for name without a registered account.
func (s *Server) IssueToken(name string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   name,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
}

func (s *Server) issue(name string) (string, error) {
	return s.IssueToken(name, s.opts.TokenTTL)
}

func (s *Server) verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.opts.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

func bearer(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", errMissingBearer
	}
	return token, nil
}
