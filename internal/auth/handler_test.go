package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/identity"
	"github.com/gatekeep/gatekeep/internal/shared"
	"github.com/gatekeep/gatekeep/internal/users"
	_ "github.com/gatekeep/gatekeep/testing"
)

type stubUserRepo struct {
	byEmail map[string]*users.User
	nextID  int64
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{byEmail: map[string]*users.User{}, nextID: 1}
}

func (s *stubUserRepo) FindByID(ctx context.Context, id int64) (*users.User, error) {
	for _, user := range s.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, shared.ErrUserNotFound
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	user, ok := s.byEmail[email]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return user, nil
}

func (s *stubUserRepo) Create(ctx context.Context, email, name, passwordHash string) (*users.User, error) {
	if _, exists := s.byEmail[email]; exists {
		return nil, shared.ErrDuplicateEmail
	}
	user := &users.User{
		ID:           s.nextID,
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	s.nextID++
	s.byEmail[email] = user
	return user, nil
}

type stubSessionRepo struct {
	created map[string]int64
	deleted []string
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{created: map[string]int64{}}
}

func (s *stubSessionRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.created[id] = userID
	return nil
}

func (s *stubSessionRepo) DeleteSession(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubSessionRepo) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func newAuthHandler(t *testing.T, userRepo users.Repository, sessionRepo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(client, "test_session", time.Hour, false)
	userSvc := users.NewService(userRepo)
	handler := auth.NewHandler(nil, auth.NewService(userSvc, sessionRepo), userSvc, sessionManager)
	return handler, sessionManager
}

func seedUser(t *testing.T, repo *stubUserRepo, email, password string) *users.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := repo.Create(context.Background(), email, "Test User", string(hash))
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func withSession(req *http.Request, sess *shared.Session) *http.Request {
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestRegister(t *testing.T) {
	handler, _ := newAuthHandler(t, newStubUserRepo(), newStubSessionRepo())

	body := `{"email": "new@example.com", "name": "New User", "password": "longenough"}`
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.HandleRegister(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", res.Code, res.Body.String())
	}
	if strings.Contains(res.Body.String(), "longenough") {
		t.Fatalf("password material leaked into response")
	}
	if !strings.Contains(res.Body.String(), `"password":"******"`) {
		t.Fatalf("expected masked password in response, got %s", res.Body.String())
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "taken@example.com", "password123")
	handler, _ := newAuthHandler(t, repo, newStubSessionRepo())

	body := `{"email": "taken@example.com", "name": "Other", "password": "longenough"}`
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.HandleRegister(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", res.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	handler, _ := newAuthHandler(t, newStubUserRepo(), newStubSessionRepo())

	body := `{"email": "not-an-email", "name": "", "password": "short"}`
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.HandleRegister(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", res.Code)
	}
}

func TestLogin(t *testing.T) {
	repo := newStubUserRepo()
	user := seedUser(t, repo, "user@example.com", "password123")
	sessionRepo := newStubSessionRepo()
	handler, sessionManager := newAuthHandler(t, repo, sessionRepo)

	sess := sessionManager.Create()
	body := `{"email": "user@example.com", "password": "password123"}`
	req := withSession(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body)), sess)
	res := httptest.NewRecorder()
	handler.HandleLogin(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", res.Code, res.Body.String())
	}
	if !sess.LoggedIn() {
		t.Fatalf("expected session to be logged in")
	}
	if sess.User() != "1" {
		t.Fatalf("expected session user 1, got %q", sess.User())
	}
	if !strings.Contains(res.Body.String(), "Logged in") {
		t.Fatalf("expected login message, got %s", res.Body.String())
	}
	if sessionRepo.created[sess.ID] != user.ID {
		t.Fatalf("expected login session audit record for user %d", user.ID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "user@example.com", "password123")
	handler, sessionManager := newAuthHandler(t, repo, newStubSessionRepo())

	sess := sessionManager.Create()
	body := `{"email": "user@example.com", "password": "wrong-password"}`
	req := withSession(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body)), sess)
	res := httptest.NewRecorder()
	handler.HandleLogin(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", res.Code)
	}
	if sess.LoggedIn() {
		t.Fatalf("session must not be logged in after failed login")
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, newStubUserRepo(), newStubSessionRepo())

	sess := sessionManager.Create()
	body := `{"email": "ghost@example.com", "password": "password123"}`
	req := withSession(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body)), sess)
	res := httptest.NewRecorder()
	handler.HandleLogin(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", res.Code)
	}
}

func TestLoginAlreadyLoggedIn(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "user@example.com", "password123")
	handler, sessionManager := newAuthHandler(t, repo, newStubSessionRepo())

	sess := sessionManager.Create()
	sess.Login("1")
	req := withSession(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{}`)), sess)
	res := httptest.NewRecorder()
	handler.HandleLogin(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Already logged in") {
		t.Fatalf("expected already-logged-in message, got %s", res.Body.String())
	}
}

func TestLoginInactiveUser(t *testing.T) {
	repo := newStubUserRepo()
	user := seedUser(t, repo, "user@example.com", "password123")
	user.IsActive = false
	handler, sessionManager := newAuthHandler(t, repo, newStubSessionRepo())

	sess := sessionManager.Create()
	body := `{"email": "user@example.com", "password": "password123"}`
	req := withSession(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body)), sess)
	res := httptest.NewRecorder()
	handler.HandleLogin(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for inactive user, got %d", res.Code)
	}
}

func TestLogoutKeepsUserID(t *testing.T) {
	sessionRepo := newStubSessionRepo()
	handler, sessionManager := newAuthHandler(t, newStubUserRepo(), sessionRepo)

	sess := sessionManager.Create()
	sess.Login("42")
	req := withSession(httptest.NewRequest(http.MethodPost, "/logout", nil), sess)
	res := httptest.NewRecorder()
	handler.HandleLogout(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if sess.LoggedIn() {
		t.Fatalf("expected session logged out")
	}
	if sess.User() != "42" {
		t.Fatalf("expected userID to survive logout, got %q", sess.User())
	}
	if len(sessionRepo.deleted) != 1 || sessionRepo.deleted[0] != sess.ID {
		t.Fatalf("expected audit record removal for %s, got %v", sess.ID, sessionRepo.deleted)
	}
}

func TestLogoutWithoutSession(t *testing.T) {
	handler, _ := newAuthHandler(t, newStubUserRepo(), newStubSessionRepo())

	res := httptest.NewRecorder()
	handler.HandleLogout(res, httptest.NewRequest(http.MethodGet, "/logout", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Logged out") {
		t.Fatalf("expected logout message, got %s", res.Body.String())
	}
}

func TestCurrentUserAnonymous(t *testing.T) {
	handler, _ := newAuthHandler(t, newStubUserRepo(), newStubSessionRepo())

	res := httptest.NewRecorder()
	handler.HandleCurrentUser(res, httptest.NewRequest(http.MethodGet, "/user", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Not logged in") {
		t.Fatalf("expected not-logged-in message, got %s", res.Body.String())
	}
}

func TestCurrentUserAuthenticated(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "user@example.com", "password123")
	handler, _ := newAuthHandler(t, repo, newStubSessionRepo())

	req := httptest.NewRequest(http.MethodGet, "/user", nil)
	req = req.WithContext(identity.ContextWithIdentity(req.Context(), identity.Authenticated("1", []string{"user"})))
	res := httptest.NewRecorder()
	handler.HandleCurrentUser(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "user@example.com") {
		t.Fatalf("expected user payload, got %s", res.Body.String())
	}
	if !strings.Contains(res.Body.String(), `"password":"******"`) {
		t.Fatalf("expected masked password, got %s", res.Body.String())
	}
}
