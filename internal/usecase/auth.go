package usecase

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// AuthService covers registration, login and bearer token verification.
// Tokens are HMAC-signed opaque strings: base64(userID|expiry|sig).
type AuthService struct {
	users  domain.UserRepository
	secret []byte
	ttl    time.Duration
}

// NewAuthService wires the auth service.
func NewAuthService(users domain.UserRepository, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{users: users, secret: []byte(secret), ttl: ttl}
}

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail applies the short RFC 5322 form and rejects injection-prone
// character sequences.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if !emailRe.MatchString(email) {
		return fmt.Errorf("op=auth.email: malformed: %w", domain.ErrInvalidArgument)
	}
	if strings.ContainsAny(email, `';-`) && (strings.Contains(email, "'") || strings.Contains(email, ";") || strings.Contains(email, "--")) {
		return fmt.Errorf("op=auth.email: disallowed characters: %w", domain.ErrInvalidArgument)
	}
	return nil
}

// ValidatePassword enforces length 8-128 with upper, lower and digit classes.
func ValidatePassword(pw string) error {
	if len(pw) < 8 || len(pw) > 128 {
		return fmt.Errorf("op=auth.password: length must be 8-128: %w", domain.ErrInvalidArgument)
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return fmt.Errorf("op=auth.password: needs upper, lower and digit: %w", domain.ErrInvalidArgument)
	}
	return nil
}

// Register creates a user with a bcrypt password verifier.
func (s *AuthService) Register(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := ValidateEmail(email); err != nil {
		return domain.User{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return domain.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=auth.register: %w", domain.ErrInternal)
	}
	u := domain.User{Email: email, PasswordHash: string(hash), CreatedAt: time.Now().UTC()}
	id, err := s.users.Create(ctx, u)
	if err != nil {
		return domain.User{}, err
	}
	u.ID = id
	u.PasswordHash = ""
	return u, nil
}

// Login verifies credentials and issues a bearer token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("op=auth.login: %w", domain.ErrUnauthorized)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", fmt.Errorf("op=auth.login: %w", domain.ErrUnauthorized)
	}
	return s.issue(u.ID), nil
}

func (s *AuthService) issue(userID string) string {
	exp := time.Now().Add(s.ttl).Unix()
	msg := fmt.Sprintf("%s|%d", userID, exp)
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(msg))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return base64.RawURLEncoding.EncodeToString([]byte(msg + "|" + sig))
}

// Verify resolves a bearer token to a user id, implementing
// domain.TokenVerifier. Mismatched or expired tokens are unauthorized.
func (s *AuthService) Verify(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("op=auth.verify: %w", domain.ErrUnauthorized)
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 {
		return "", fmt.Errorf("op=auth.verify: %w", domain.ErrUnauthorized)
	}
	userID, expStr, sig := parts[0], parts[1], parts[2]
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(userID + "|" + expStr))
	want := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return "", fmt.Errorf("op=auth.verify: %w", domain.ErrUnauthorized)
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil || time.Now().Unix() > exp {
		return "", fmt.Errorf("op=auth.verify: expired: %w", domain.ErrUnauthorized)
	}
	return userID, nil
}
