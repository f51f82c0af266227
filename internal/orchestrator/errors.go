package orchestrator

import (
	"errors"
	"fmt"

	"github.com/pavelanni/teachmate/internal/llm"
	"github.com/pavelanni/teachmate/internal/model"
)

var (
	// ErrChatPending is returned when a chat message arrives while the
	// previous one is still waiting for its reply.
	ErrChatPending = errors.New("previous message is still awaiting a reply")
	// ErrNoPendingTurn is returned by Resolve when there is nothing to answer.
	ErrNoPendingTurn = errors.New("no chat message awaiting a reply")
	// ErrNoReply marks a chat turn whose backend call ended without a reply.
	ErrNoReply = errors.New("the assistant stopped before replying")
	// ErrNoArtifact is wrapped by ExportError when nothing was generated yet.
	ErrNoArtifact = errors.New("nothing generated yet")
)

// GenerationError reports a failed backend call for a feature.
type GenerationError struct {
	Kind model.FeatureKind
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Reason names the backend failure kind, or "" for failures before the call.
func (e *GenerationError) Reason() string {
	return llm.KindOf(e.Err)
}

// ExportError reports a failed document export.
type ExportError struct {
	Kind model.FeatureKind
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Kind, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// describe turns a backend error into the text stored in a failed chat turn.
func describe(err error) string {
	switch {
	case errors.Is(err, llm.ErrAuth):
		return "the assistant rejected the configured API key"
	case errors.Is(err, llm.ErrRateLimit):
		return "the assistant is receiving too many requests, try again shortly"
	case errors.Is(err, llm.ErrMalformedResponse):
		return "the assistant returned an unreadable response"
	case errors.Is(err, llm.ErrNetwork):
		return "the assistant could not be reached"
	case errors.Is(err, ErrNoReply):
		return ErrNoReply.Error()
	}
	return err.Error()
}
