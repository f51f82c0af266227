package orchestrator

import (
	"slices"
	"sync"

	"github.com/pavelanni/teachmate/internal/model"
)

// Session is the per-user state of one signed-in browser session: chat
// turns, the last artifact of every feature and the last Q&A answer.
type Session struct {
	mu        sync.Mutex
	turns     []model.ChatTurn
	resolving bool
	artifacts map[model.FeatureKind]model.Artifact
	lastQA    *QAResult
}

// NewSession returns an idle session with no history.
func NewSession() *Session {
	return &Session{artifacts: make(map[model.FeatureKind]model.Artifact)}
}

// Turns returns a copy of the chat history, oldest first.
func (s *Session) Turns() []model.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.turns)
}

// Pending reports whether a chat message is awaiting its reply.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingIndex() >= 0
}

// pendingIndex returns the index of the pending turn or -1. Callers hold mu.
func (s *Session) pendingIndex() int {
	if n := len(s.turns); n > 0 && s.turns[n-1].Pending() {
		return n - 1
	}
	return -1
}

// ClearChat empties the chat history. It fails while a reply is pending.
func (s *Session) ClearChat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingIndex() >= 0 {
		return ErrChatPending
	}
	s.turns = nil
	return nil
}

// Artifact returns the last successful result of kind.
func (s *Session) Artifact(kind model.FeatureKind) (model.Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[kind]
	return a, ok
}

func (s *Session) setArtifact(a model.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[a.Kind] = a
}

// LastAnswer returns the most recent Q&A answer, if any.
func (s *Session) LastAnswer() (QAResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastQA == nil {
		return QAResult{}, false
	}
	return *s.lastQA, true
}

func (s *Session) setLastAnswer(r QAResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQA = &r
}
