package core

import (
	"context"
	"sync"
)

// SessionManager owns the authentication token and current-user identity.
// It is the single source of truth for "who is the current user and are
// they authenticated", and the only writer of the gateway's bearer
// credential. Leaf dependency: it knows nothing about the cart.
//
// The token and user are set and cleared together. A failed login or
// register never partially mutates state; a failed logout still fully
// clears local state, since a stale local session is a worse outcome
// than a stale remote one.
type SessionManager struct {
	gateway *APIGateway
	store   CredentialStore
	logger  Logger

	mu    sync.RWMutex
	user  *User
	token string

	listenerMu sync.Mutex
	listeners  []func(authenticated bool)
}

type authRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

type authResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

type userEnvelope struct {
	User User `json:"user"`
}

// NewSessionManager creates a session manager. The session starts
// anonymous; call Restore once at startup to adopt a persisted session.
func NewSessionManager(gateway *APIGateway, store CredentialStore, logger Logger) *SessionManager {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if store == nil {
		store = NewMemoryCredentialStore()
	}
	return &SessionManager{
		gateway: gateway,
		store:   store,
		logger:  logger,
	}
}

// OnAuthChange registers a listener fired after every authentication
// transition (login/register success, logout, restore outcome). The cart
// store uses this to hydrate on the transition to authenticated.
// Listeners run synchronously, outside the session lock.
func (s *SessionManager) OnAuthChange(fn func(authenticated bool)) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// IsAuthenticated reports whether a token is present
func (s *SessionManager) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// User returns a copy of the current user, or nil when anonymous
func (s *SessionManager) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	copied := *s.user
	return &copied
}

// Restore runs once at startup. It reads the persisted session record,
// optimistically adopts it, and validates the token against the remote
// collaborator. On success the authoritative user replaces the snapshot
// and is re-persisted; on any failure (rejected token or network) the
// session degrades silently to anonymous and the record is cleared.
// Restore is best-effort and produces no error either way.
func (s *SessionManager) Restore(ctx context.Context) {
	creds, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn("Failed to load persisted session", map[string]interface{}{
			"operation": "session_restore",
			"error":     err.Error(),
		})
		return
	}
	if creds == nil {
		s.logger.Debug("No persisted session", map[string]interface{}{
			"operation": "session_restore",
		})
		return
	}

	// Tentative adoption: the snapshot becomes current state so the
	// validation call itself is authorized.
	s.mu.Lock()
	user := creds.User
	s.user = &user
	s.token = creds.Token
	s.mu.Unlock()
	s.gateway.SetToken(creds.Token)

	resp := s.gateway.Get(ctx, "/api/auth/me")
	if !resp.OK() {
		s.logger.Info("Persisted session rejected, falling back to anonymous", map[string]interface{}{
			"operation": "session_restore",
			"status":    resp.Status,
		})
		s.clearLocal(ctx)
		s.notify(false)
		return
	}

	var envelope userEnvelope
	if err := resp.Decode(&envelope); err != nil {
		s.logger.Warn("Could not decode session validation response", map[string]interface{}{
			"operation": "session_restore",
			"error":     err.Error(),
		})
		s.clearLocal(ctx)
		s.notify(false)
		return
	}

	s.mu.Lock()
	s.user = &envelope.User
	token := s.token
	s.mu.Unlock()

	if err := s.store.Save(ctx, &Credentials{Token: token, User: envelope.User}); err != nil {
		s.logger.Error("Failed to re-persist session", map[string]interface{}{
			"operation": "session_restore",
			"error":     err.Error(),
		})
	}

	s.logger.Info("Session restored", map[string]interface{}{
		"operation": "session_restore",
		"user_id":   envelope.User.ID.String(),
		"role":      string(envelope.User.Role),
	})
	s.notify(true)
}

// Login authenticates with the remote collaborator. On success the token
// and user are stored atomically and true is returned; on any failure
// (bad credentials, network, server fault) existing session state is
// left untouched and false is returned.
func (s *SessionManager) Login(ctx context.Context, email, password string, role Role) bool {
	resp := s.gateway.Post(ctx, "/api/auth/login", authRequest{
		Email:    email,
		Password: password,
		Role:     role,
	})
	return s.adoptAuthResponse(ctx, "session_login", resp)
}

// Register creates an account. Structurally identical to Login, with a
// display name added.
func (s *SessionManager) Register(ctx context.Context, name, email, password string, role Role) bool {
	resp := s.gateway.Post(ctx, "/api/auth/register", authRequest{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     role,
	})
	return s.adoptAuthResponse(ctx, "session_register", resp)
}

func (s *SessionManager) adoptAuthResponse(ctx context.Context, op string, resp *APIResponse) bool {
	if !resp.OK() {
		s.logger.Info("Authentication failed", map[string]interface{}{
			"operation": op,
			"status":    resp.Status,
			"error":     resp.Err,
		})
		return false
	}

	var auth authResponse
	if err := resp.Decode(&auth); err != nil || auth.Token == "" {
		s.logger.Warn("Authentication response missing token", map[string]interface{}{
			"operation": op,
		})
		return false
	}

	s.mu.Lock()
	s.user = &auth.User
	s.token = auth.Token
	s.mu.Unlock()
	s.gateway.SetToken(auth.Token)

	if err := s.store.Save(ctx, &Credentials{Token: auth.Token, User: auth.User}); err != nil {
		// The in-memory session is authoritative; a persistence failure
		// only costs the next restart its restore.
		s.logger.Error("Failed to persist session", map[string]interface{}{
			"operation": op,
			"error":     err.Error(),
		})
	}

	s.logger.Info("Authenticated", map[string]interface{}{
		"operation": op,
		"user_id":   auth.User.ID.String(),
		"role":      string(auth.User.Role),
	})
	s.notify(true)
	return true
}

// Logout attempts remote invalidation (best-effort) and then
// unconditionally clears local state. After Logout resolves the session
// is anonymous even under network partition.
func (s *SessionManager) Logout(ctx context.Context) {
	resp := s.gateway.Post(ctx, "/api/auth/logout", nil)
	if !resp.OK() {
		// Expected under partition; the local clear below still runs.
		s.logger.Warn("Remote logout failed", map[string]interface{}{
			"operation": "session_logout",
			"status":    resp.Status,
			"error":     resp.Err,
		})
	}

	s.clearLocal(ctx)
	s.logger.Info("Logged out", map[string]interface{}{
		"operation": "session_logout",
	})
	s.notify(false)
}

// RefreshUser re-fetches the authoritative user while keeping the token.
// Returns false when anonymous or when the fetch fails.
func (s *SessionManager) RefreshUser(ctx context.Context) bool {
	if !s.IsAuthenticated() {
		return false
	}

	resp := s.gateway.Get(ctx, "/api/auth/me")
	if !resp.OK() {
		s.logger.Debug("User refresh failed", map[string]interface{}{
			"operation": "session_refresh",
			"status":    resp.Status,
		})
		return false
	}

	var envelope userEnvelope
	if err := resp.Decode(&envelope); err != nil {
		return false
	}

	s.mu.Lock()
	s.user = &envelope.User
	token := s.token
	s.mu.Unlock()

	if token != "" {
		if err := s.store.Save(ctx, &Credentials{Token: token, User: envelope.User}); err != nil {
			s.logger.Error("Failed to persist refreshed user", map[string]interface{}{
				"operation": "session_refresh",
				"error":     err.Error(),
			})
		}
	}
	return true
}

// UpdateProfile pushes profile changes and adopts the server's record
func (s *SessionManager) UpdateProfile(ctx context.Context, name, email string) (*User, error) {
	resp := s.gateway.Put(ctx, "/api/auth/me", map[string]string{
		"name":  name,
		"email": email,
	})
	if err := resp.Error(); err != nil {
		return nil, NewClientError("session.UpdateProfile", "auth", err)
	}

	var envelope userEnvelope
	if err := resp.Decode(&envelope); err != nil {
		return nil, NewClientError("session.UpdateProfile", "auth", err)
	}

	s.mu.Lock()
	if s.user != nil {
		// The update endpoint echoes only the changed fields; keep the
		// rest of the identity record.
		s.user.Name = envelope.User.Name
		s.user.Email = envelope.User.Email
		envelope.User = *s.user
	}
	token := s.token
	s.mu.Unlock()

	if token != "" {
		if err := s.store.Save(ctx, &Credentials{Token: token, User: envelope.User}); err != nil {
			s.logger.Error("Failed to persist updated profile", map[string]interface{}{
				"operation": "session_update_profile",
				"error":     err.Error(),
			})
		}
	}

	copied := envelope.User
	return &copied, nil
}

// ResetPassword requests a password reset mail for the given address
func (s *SessionManager) ResetPassword(ctx context.Context, email string) bool {
	resp := s.gateway.Post(ctx, "/api/auth/password/reset", map[string]string{"email": email})
	return resp.OK()
}

// clearLocal drops the token, user, gateway credential, and persisted
// record. Store failures are logged, never surfaced: local correctness
// comes first.
func (s *SessionManager) clearLocal(ctx context.Context) {
	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.mu.Unlock()
	s.gateway.ClearToken()

	if err := s.store.Clear(ctx); err != nil {
		s.logger.Error("Failed to clear persisted session", map[string]interface{}{
			"operation": "session_clear",
			"error":     err.Error(),
		})
	}
}

func (s *SessionManager) notify(authenticated bool) {
	s.listenerMu.Lock()
	listeners := make([]func(bool), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.Unlock()

	for _, fn := range listeners {
		fn(authenticated)
	}
}
