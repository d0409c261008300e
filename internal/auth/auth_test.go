package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/arisectf/arise-server/internal/errs"
	"github.com/arisectf/arise-server/internal/store"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	return NewService(repo, []byte("test-secret"), bcrypt.MinCost)
}

func validInput() RegisterInput {
	return RegisterInput{
		Username: "jinwoo",
		Email:    "jinwoo@example.com",
		Contact:  "1234567890",
		Password: "arise",
		Guild:    "Ahjin",
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)

	user, token, err := svc.Register(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID == 0 {
		t.Error("registered user has no ID")
	}
	if user.Score != 0 {
		t.Errorf("new user score = %d, want 0", user.Score)
	}
	if token == "" {
		t.Error("Register returned empty token")
	}
	if user.PasswordHash == "arise" {
		t.Error("password stored in plaintext")
	}

	// Login works with username, email and contact number alike.
	for _, identifier := range []string{"jinwoo", "jinwoo@example.com", "1234567890"} {
		got, _, err := svc.Login(context.Background(), identifier, "arise")
		if err != nil {
			t.Errorf("Login(%s): %v", identifier, err)
			continue
		}
		if got.ID != user.ID {
			t.Errorf("Login(%s) resolved user %d, want %d", identifier, got.ID, user.ID)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)

	cases := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"missing username", func(in *RegisterInput) { in.Username = "" }},
		{"missing password", func(in *RegisterInput) { in.Password = "" }},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }},
		{"contact too short", func(in *RegisterInput) { in.Contact = "12345" }},
		{"contact not numeric", func(in *RegisterInput) { in.Contact = "12345abcde" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			if _, _, err := svc.Register(context.Background(), in); !errors.Is(err, errs.ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc := newTestService(t)

	if _, _, err := svc.Register(context.Background(), validInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	in := validInput()
	in.Contact = "0987654321"
	if _, _, err := svc.Register(context.Background(), in); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Errorf("duplicate registration: got %v, want ErrAlreadyExists", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)

	if _, _, err := svc.Register(context.Background(), validInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, _, err := svc.Login(context.Background(), "jinwoo", "wrong"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("wrong password: got %v, want ErrUnauthorized", err)
	}
	if _, _, err := svc.Login(context.Background(), "nobody", "arise"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("unknown user: got %v, want ErrUnauthorized", err)
	}
	if _, _, err := svc.Login(context.Background(), "", ""); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("missing credentials: got %v, want ErrValidation", err)
	}
}

func TestAuthenticateToken(t *testing.T) {
	svc := newTestService(t)

	user, token, err := svc.Register(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := svc.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != user.ID || got.Username != user.Username {
		t.Errorf("Authenticate resolved %+v, want user %d", got, user.ID)
	}

	if _, err := svc.Authenticate(context.Background(), "not-a-token"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("garbage token: got %v, want ErrUnauthorized", err)
	}

	other := NewService(svc.repo, []byte("different-secret"), bcrypt.MinCost)
	if _, err := other.Authenticate(context.Background(), token); !errors.Is(err, errs.ErrUnauthorized) {
		t.Errorf("foreign-key token: got %v, want ErrUnauthorized", err)
	}
}
