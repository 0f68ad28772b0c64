package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

// Session holds per-request session state keyed by an opaque token.
// Logout keeps the record alive: it clears loggedIn and retains userID.
type Session struct {
	ID             string
	userID         string
	loggedIn       bool
	createdAt      time.Time
	lastAccessedAt time.Time
	isNew          bool
	dirty          bool
}

type sessionPayload struct {
	UserID         string    `json:"user_id"`
	LoggedIn       bool      `json:"logged_in"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
	}
}

// Create allocates a session with a fresh token. Tokens are never
// recycled: a missing or garbled token always yields a new one, so a
// stale cookie can never be reattached to a different identity.
func (sm *SessionManager) Create() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:             sm.generateToken(),
		createdAt:      now,
		lastAccessedAt: now,
		isNew:          true,
		dirty:          true,
	}
}

// Load fetches the session stored under token. A missing, expired or
// malformed token returns ErrSessionNotFound rather than an internal
// error so callers can degrade to an anonymous session.
func (sm *SessionManager) Load(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	payload, err := sm.client.Get(ctx, sm.redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, ErrSessionNotFound
	}
	return &Session{
		ID:             token,
		userID:         stored.UserID,
		loggedIn:       stored.LoggedIn,
		createdAt:      stored.CreatedAt,
		lastAccessedAt: stored.LastAccessedAt,
	}, nil
}

// LoadRequest resolves the session referenced by the request cookie,
// creating a new session when the request carries none.
func (sm *SessionManager) LoadRequest(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.Create(), nil
		}
		return nil, err
	}
	sess, err := sm.Load(ctx, cookie.Value)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return sm.Create(), nil
		}
		return nil, err
	}
	return sess, nil
}

// Save persists the full session record, overwriting by token.
func (sm *SessionManager) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	sess.lastAccessedAt = time.Now().UTC()
	payload := sessionPayload{
		UserID:         sess.userID,
		LoggedIn:       sess.loggedIn,
		CreatedAt:      sess.createdAt,
		LastAccessedAt: sess.lastAccessedAt,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err(); err != nil {
		return err
	}
	sess.isNew = false
	sess.dirty = false
	return nil
}

// Commit persists the session when needed and writes the cookie header.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}
	if sess.dirty || sess.isNew {
		if err := sm.Save(ctx, sess); err != nil {
			return err
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(sm.ttl),
	})
	return nil
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Login associates the session with a user and marks it logged in.
func (s *Session) Login(userID string) {
	s.userID = userID
	s.loggedIn = true
	s.dirty = true
}

// Logout clears the login flag. The userID is retained: the session
// outlives the login, only the authenticated state is dropped.
func (s *Session) Logout() {
	s.loggedIn = false
	s.dirty = true
}

// User returns the user ID last associated with the session.
func (s *Session) User() string {
	return s.userID
}

// LoggedIn reports whether the session carries an active login.
func (s *Session) LoggedIn() bool {
	return s.loggedIn
}

// IsNew reports whether the session has never been persisted.
func (s *Session) IsNew() bool {
	return s.isNew
}

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastAccessedAt returns the time of the most recent save.
func (s *Session) LastAccessedAt() time.Time {
	return s.lastAccessedAt
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

// generateToken mints an unguessable session token. Tokens must never
// be predictable, so exhausting every entropy source is fatal rather
// than an excuse to degrade.
func (sm *SessionManager) generateToken() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("session token entropy unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
