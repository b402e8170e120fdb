package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
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

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func stubWithAdmin(password string) *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  password,
				Role:      domain.RoleAdmin,
				OrgID:     "org-a",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := stubWithAdmin("admin123")

	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, users)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.OrganizationID != "org-a" {
		t.Fatalf("expected organization org-a, got %q", resp.OrganizationID)
	}

	saved, err := users.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected 1 user, got %d", len(saved))
	}
	if !strings.HasPrefix(saved[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", saved[0].Password)
	}
	if users.updates == 0 {
		t.Fatalf("expected the upgraded hash to be written back")
	}
}

func TestTokenCarriesOrganizationAndRole(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, stubWithAdmin("admin123"))
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "ADMIN ", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin || actor.OrgID != "org-a" {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager(context.Background(), "another-secret", time.Hour, nil)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	orgless, err := manager.sign("ghost", domain.RoleAdmin, "", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := manager.ParseToken(orgless); err == nil {
		t.Fatalf("expected token without organization to be rejected")
	}

	expired, err := manager.sign("admin", domain.RoleAdmin, "org-a", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := manager.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestLoginRejectsWrongPasswordAndInactiveAccount(t *testing.T) {
	users := stubWithAdmin("admin123")
	users.users["gone"] = domain.UserAccount{Username: "gone", Password: "gone1234", Role: domain.RoleStaff, OrgID: "org-a", Active: false}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, users)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "nope"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "gone", Password: "gone1234"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
}

func TestCreateStaffStoresHashInAdminOrganization(t *testing.T) {
	users := stubWithAdmin("admin123")
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, users)

	staff, err := manager.CreateStaff(context.Background(), "org-a", domain.StaffCreateRequest{Username: "Gudang1", Password: "pass1234"})
	if err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if staff.Username != "gudang1" || staff.Role != domain.RoleStaff {
		t.Fatalf("unexpected staff %+v", staff)
	}

	saved := users.users["gudang1"]
	if saved.OrgID != "org-a" {
		t.Fatalf("expected staff in org-a, got %q", saved.OrgID)
	}
	if !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", saved.Password)
	}

	if _, err := manager.CreateStaff(context.Background(), "org-a", domain.StaffCreateRequest{Username: "gudang1", Password: "pass1234"}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected duplicate username to be a validation error, got %v", err)
	}
	if _, err := manager.CreateStaff(context.Background(), "org-a", domain.StaffCreateRequest{Username: "abc", Password: "pass1234"}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected short username to be rejected, got %v", err)
	}

	if got := manager.ListStaff(context.Background(), "org-a"); len(got) != 1 {
		t.Fatalf("expected 1 staff in org-a, got %d", len(got))
	}
	if got := manager.ListStaff(context.Background(), "org-b"); len(got) != 0 {
		t.Fatalf("expected no staff in org-b, got %d", len(got))
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "gudang1", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login with new staff failed: %v", err)
	}
	if resp.Role != domain.RoleStaff {
		t.Fatalf("expected staff role, got %s", resp.Role)
	}
}
