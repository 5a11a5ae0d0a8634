// Package stubapi is a minimal flowkeep backend used by tests and the demo
// binary. It implements just enough of the HTTP contract the client core
// expects: bearer-authenticated endpoints, cookie-based refresh, envelope
// bodies, 304 revalidation and injectable 401/429 failures.
package stubapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const refreshCookieName = "fk_refresh"

// User is an account known to the stub backend.
type User struct {
	ID            string
	Email         string
	Name          string
	PasswordHash  string
	OrgExternalID string
	OrgName       string
}

// Server is the fake backend. Mount it on httptest.NewServer.
type Server struct {
	mux    *http.ServeMux
	secret []byte
	log    zerolog.Logger

	mu             sync.Mutex
	users          map[string]User   // by email
	refreshTokens  map[string]string // cookie value -> user id
	accessTTL      time.Duration
	signInCalls    int
	refreshCalls   int
	signOutCalls   int
	resourceCalls  map[string]int
	failNextStatus int
	failNextCount  int
	failNextHeader http.Header
	refreshFails   bool
}

// Option configures the stub server.
type Option func(*Server)

// WithAccessTTL sets the lifetime of minted access tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) { s.accessTTL = d }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates an empty stub backend.
func New(options ...Option) *Server {
	s := &Server{
		mux:           http.NewServeMux(),
		secret:        []byte(uuid.NewString()),
		log:           zerolog.Nop(),
		users:         make(map[string]User),
		refreshTokens: make(map[string]string),
		accessTTL:     time.Hour,
		resourceCalls: make(map[string]int),
	}
	for _, opt := range options {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.handle("POST /auth/sign-in", s.handleSignIn)
	s.handle("POST /auth/refresh", s.handleRefresh)
	s.handle("POST /auth/sign-out", s.handleSignOut)
	s.handle("GET /auth/me", s.requireAuth(s.handleMe))
	s.handle("GET /entries", s.requireAuth(s.handleEntries))
	s.handle("GET /banks", s.requireAuth(s.handleBanks))
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, chainMiddleware(h, s.loggingMiddleware, s.failureMiddleware))
}

// AddUser registers an account, hashing the password with bcrypt.
func (s *Server) AddUser(u User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("stubapi: hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Email] = u
	return nil
}

// FailNext makes the next n matched requests answer with the given status
// and headers before normal handling resumes. Sign-in, refresh and
// sign-out are exempt so tests can steer only the resource surface.
func (s *Server) FailNext(status, n int, header http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextStatus = status
	s.failNextCount = n
	s.failNextHeader = header
}

// BreakRefresh makes the refresh endpoint fail until fixed.
func (s *Server) BreakRefresh(broken bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFails = broken
}

// ExpireAccessTokens invalidates every outstanding bearer token by rotating
// the signing secret.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = []byte(uuid.NewString())
}

// Counters for test assertions.

func (s *Server) SignInCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signInCalls
}

func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

func (s *Server) SignOutCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signOutCalls
}

// ResourceCalls reports how many times a resource path reached its handler.
func (s *Server) ResourceCalls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resourceCalls[path]
}

func (s *Server) mintAccess(userID string) (string, error) {
	s.mu.Lock()
	secret := s.secret
	ttl := s.accessTTL
	s.mu.Unlock()
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": jwt.NewNumericDate(time.Now().Add(ttl)),
		"iat": jwt.NewNumericDate(time.Now()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (s *Server) verifyAccess(raw string) (string, error) {
	s.mu.Lock()
	secret := s.secret
	s.mu.Unlock()
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("stubapi: invalid token: %w", err)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("stubapi: token has no subject")
	}
	return sub, nil
}

func (s *Server) userByID(id string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

func writeData(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": payload})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
		"code":    code,
		"message": message,
		"status":  status,
	}})
}

func retryAfterHeader(seconds int) http.Header {
	h := http.Header{}
	h.Set("Retry-After", strconv.Itoa(seconds))
	return h
}

// RetryAfter builds the header set FailNext needs for a 429 answer.
func RetryAfter(seconds int) http.Header {
	return retryAfterHeader(seconds)
}
