package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
)

const SessionName = "notex-session"

// Sessions wraps the cookie store holding the authenticated user id. It is
// constructed once from the configured session key and injected into the
// handlers; nothing reads session state through a global.
type Sessions struct {
	store *sessions.CookieStore
}

func NewSessions(sessionKey string, secure bool) *Sessions {
	// Derive two 32-byte keys from the session key to ensure secure encryption
	// Auth key for signing (HMAC)
	authKey := sha256.Sum256([]byte(sessionKey + "auth"))
	// Encryption key for content encryption (AES)
	encKey := sha256.Sum256([]byte(sessionKey + "encryption"))

	store := sessions.NewCookieStore(authKey[:], encKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Sessions{store: store}
}

// UserID returns the authenticated user id for the request, or 0 when the
// session carries no identity.
func (s *Sessions) UserID(r *http.Request) int64 {
	session, _ := s.store.Get(r, SessionName)
	if id, ok := session.Values["userID"].(int64); ok {
		return id
	}
	return 0
}

func (s *Sessions) SignIn(w http.ResponseWriter, r *http.Request, userID int64) error {
	session, _ := s.store.Get(r, SessionName)
	session.Values["userID"] = userID
	return session.Save(r, w)
}

// SignOut clears the session. Signing out without an active session is not
// an error.
func (s *Sessions) SignOut(w http.ResponseWriter, r *http.Request) {
	session, _ := s.store.Get(r, SessionName)
	session.Options.MaxAge = -1
	session.Save(r, w)
}

func (s *Sessions) AddFlash(w http.ResponseWriter, r *http.Request, message string) {
	session, _ := s.store.Get(r, SessionName)
	session.AddFlash(message)
	session.Save(r, w)
}

// Flashes drains and returns the pending flash messages.
func (s *Sessions) Flashes(w http.ResponseWriter, r *http.Request) []string {
	session, _ := s.store.Get(r, SessionName)
	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	session.Save(r, w)

	messages := make([]string, 0, len(raw))
	for _, f := range raw {
		if msg, ok := f.(string); ok {
			messages = append(messages, msg)
		}
	}
	return messages
}

// MinPasswordLength applies to registration only; existing hashes keep
// verifying whatever they were derived from.
const MinPasswordLength = 8

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// NewToken returns an opaque random token for the JSON API.
func NewToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// If we can't generate random numbers, the system is in a critical state.
		panic(fmt.Sprintf("critical security error: failed to generate random token: %v", err))
	}
	return base64.URLEncoding.EncodeToString(b)
}
