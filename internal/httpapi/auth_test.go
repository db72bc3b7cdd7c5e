package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"posledger/internal/domain"
)

type userStoreStub struct {
	mu    sync.Mutex
	users map[string]domain.UserAccount
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func mustHash(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func stubWithUser(t *testing.T, username, password, role string, active bool) *userStoreStub {
	t.Helper()
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			username: {
				Username:  username,
				Password:  mustHash(t, password),
				Role:      role,
				Active:    active,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, stubWithUser(t, "admin", "admin123", "admin", true))

	resp, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("expected role admin, got %q", resp.Role)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginUsernameIsCaseInsensitive(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, stubWithUser(t, "admin", "admin123", "admin", true))

	if _, err := manager.Login(domain.LoginRequest{Username: "  Admin ", Password: "admin123"}); err != nil {
		t.Fatalf("expected trimmed lowercase match, got %v", err)
	}
}

func TestLoginRejectsWrongPasswordAndInactiveUser(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, stubWithUser(t, "admin", "admin123", "admin", true))
	if _, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "nope"}); err == nil {
		t.Fatalf("expected wrong password rejection")
	}

	manager = NewAuthManager("test-secret", time.Hour, stubWithUser(t, "ghost", "pass1234", "seller", false))
	if _, err := manager.Login(domain.LoginRequest{Username: "ghost", Password: "pass1234"}); err == nil {
		t.Fatalf("expected inactive account rejection")
	}
}

// Accounts whose stored password is not a bcrypt hash never authenticate.
// There is no plain-text comparison path.
func TestLoginSkipsPlaintextAccounts(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"legacy": {
				Username: "legacy",
				Password: "plaintext-password",
				Role:     "seller",
				Active:   true,
			},
		},
	}
	manager := NewAuthManager("test-secret", time.Hour, store)

	if _, err := manager.Login(domain.LoginRequest{Username: "legacy", Password: "plaintext-password"}); err == nil {
		t.Fatalf("expected plain-text account to be unusable")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	store := stubWithUser(t, "admin", "admin123", "admin", true)
	signer := NewAuthManager("secret-one", time.Hour, store)
	verifier := NewAuthManager("secret-two", time.Hour, store)

	resp, err := signer.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Nanosecond, stubWithUser(t, "admin", "admin123", "admin", true))

	resp, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected expired token rejection")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)
	for _, token := range []string{"", "not-a-token", strings.Repeat("a.", 3)} {
		if _, err := manager.ParseToken(token); err == nil {
			t.Fatalf("expected rejection for %q", token)
		}
	}
}
