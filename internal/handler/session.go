package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	appI18n "github.com/pavelanni/teachmate/internal/i18n"
	"github.com/pavelanni/teachmate/internal/orchestrator"
	"github.com/pavelanni/teachmate/internal/store"
)

// rateBurst is how many generation requests may be sent back to back.
const rateBurst = 3

// userSession is the in-memory state behind one login token.
type userSession struct {
	state    *orchestrator.Session
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sessionRegistry maps login tokens to their in-memory state.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*userSession
	perMin   int
}

func newSessionRegistry(perMinute int) *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*userSession), perMin: perMinute}
}

// get returns the state for token, creating it on first use.
func (s *sessionRegistry) get(token string) *userSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	us, ok := s.sessions[token]
	if !ok {
		s.pruneLocked(now)
		us = &userSession{state: orchestrator.NewSession(), limiter: s.newLimiter()}
		s.sessions[token] = us
	}
	us.lastSeen = now
	return us
}

func (s *sessionRegistry) drop(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

func (s *sessionRegistry) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// pruneLocked forgets sessions idle for longer than a login lasts.
func (s *sessionRegistry) pruneLocked(now time.Time) {
	for token, us := range s.sessions {
		if now.Sub(us.lastSeen) > store.AuthSessionTTL {
			delete(s.sessions, token)
		}
	}
}

func (s *sessionRegistry) newLimiter() *rate.Limiter {
	if s.perMin <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMin)), rateBurst)
}

type sessionCtxKey struct{}

func contextWithSession(ctx context.Context, us *userSession) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, us)
}

// sessionFrom returns the state of the signed-in session. requireAuth
// guarantees it is present on authenticated routes.
func sessionFrom(r *http.Request) *userSession {
	us, _ := r.Context().Value(sessionCtxKey{}).(*userSession)
	if us == nil {
		return &userSession{state: orchestrator.NewSession(), limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return us
}

// rateLimit rejects generation requests beyond the per-session budget.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sessionFrom(r).limiter.Allow() {
			w.Header().Set("Retry-After", "60")
			h.renderFailure(w, r, http.StatusTooManyRequests, appI18n.T(r.Context(), "ErrTooManyRequests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
