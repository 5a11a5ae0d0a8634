package stubapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func chainMiddleware(h http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chained := h
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}

func (s *Server) loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("stub request")
		next(w, r)
	}
}

// failureMiddleware serves the injected failures queued by FailNext. The
// auth surface stays exempt so recovery flows remain testable.
func (s *Server) failureMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/auth/") && r.URL.Path != "/auth/me" {
			next(w, r)
			return
		}
		s.mu.Lock()
		inject := s.failNextCount > 0
		status := s.failNextStatus
		header := s.failNextHeader
		if inject {
			s.failNextCount--
		}
		s.mu.Unlock()
		if !inject {
			next(w, r)
			return
		}
		for k, vs := range header {
			for _, v := range vs {
				w.Header().Set(k, v)
			}
		}
		switch status {
		case http.StatusTooManyRequests:
			writeError(w, status, "rate_limited", "too many requests")
		case http.StatusUnauthorized:
			writeError(w, status, "token_not_valid", "access token rejected")
		default:
			writeError(w, status, "injected_failure", "injected failure")
		}
	}
}

func (s *Server) requireAuth(next func(http.ResponseWriter, *http.Request, User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			writeError(w, http.StatusUnauthorized, "authentication_failed", "missing bearer token")
			return
		}
		userID, err := s.verifyAccess(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "token_not_valid", "access token rejected")
			return
		}
		user, ok := s.userByID(userID)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication_failed", "unknown user")
			return
		}
		next(w, r, user)
	}
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.signInCalls++
	s.mu.Unlock()

	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}

	s.mu.Lock()
	user, ok := s.users[creds.Email]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "authentication_failed", "invalid credentials")
		return
	}

	access, err := s.mintAccess(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "token minting failed")
		return
	}

	refresh := uuid.NewString()
	s.mu.Lock()
	s.refreshTokens[refresh] = user.ID
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refresh,
		Path:     "/auth/",
		HttpOnly: true,
		Expires:  time.Now().Add(24 * time.Hour),
	})

	writeData(w, http.StatusOK, map[string]any{
		"access": access,
		"user":   map[string]string{"id": user.ID, "email": user.Email, "name": user.Name},
		"org":    map[string]string{"externalId": user.OrgExternalID, "name": user.OrgName},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.refreshCalls++
	broken := s.refreshFails
	s.mu.Unlock()
	if broken {
		writeError(w, http.StatusUnauthorized, "token_not_valid", "refresh rejected")
		return
	}

	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "token_not_valid", "no refresh cookie")
		return
	}
	s.mu.Lock()
	userID, ok := s.refreshTokens[cookie.Value]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "token_not_valid", "unknown refresh token")
		return
	}

	access, err := s.mintAccess(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "token minting failed")
		return
	}
	writeData(w, http.StatusOK, map[string]any{"access": access})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.signOutCalls++
	s.mu.Unlock()
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		s.mu.Lock()
		delete(s.refreshTokens, cookie.Value)
		s.mu.Unlock()
	}
	writeData(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user User) {
	s.countResource(r.URL.Path)
	writeData(w, http.StatusOK, map[string]any{
		"user": map[string]string{"id": user.ID, "email": user.Email, "name": user.Name},
		"org":  map[string]string{"externalId": user.OrgExternalID, "name": user.OrgName},
	})
}

// handleEntries is a representative list endpoint with ETag revalidation.
func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request, _ User) {
	s.countResource(r.URL.Path)
	const etag = `"entries-v1"`
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	writeData(w, http.StatusOK, []map[string]any{
		{"id": "e-1", "description": "office rent", "amount": "-1200.00"},
		{"id": "e-2", "description": "invoice 1042", "amount": "3400.00"},
	})
}

func (s *Server) handleBanks(w http.ResponseWriter, r *http.Request, _ User) {
	s.countResource(r.URL.Path)
	writeData(w, http.StatusOK, []map[string]any{
		{"id": "b-1", "name": "Main checking"},
	})
}

func (s *Server) countResource(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resourceCalls[path]++
}
