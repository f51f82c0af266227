// Package orchestrator runs every feature through the same pipeline:
// validate the typed request, build the prompt, call the backend, and keep
// the result in the user's session for display and export.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/teachmate/internal/export"
	"github.com/pavelanni/teachmate/internal/llm"
	"github.com/pavelanni/teachmate/internal/llm/prompts"
	"github.com/pavelanni/teachmate/internal/model"
	"github.com/pavelanni/teachmate/internal/retrieval"
	"github.com/pavelanni/teachmate/internal/validation"
)

// Generator produces text for a prompt. *llm.Client implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// FeedbackAppender records feedback entries. *logstore.FeedbackLog implements it.
type FeedbackAppender interface {
	Append(e model.FeedbackEntry) error
}

// QAResult is an answer together with the document passages it was based on.
type QAResult struct {
	Question    string
	Answer      string
	Context     []string
	GeneratedAt time.Time
}

// FromDocuments reports whether any document context was used.
func (r QAResult) FromDocuments() bool { return len(r.Context) > 0 }

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Orchestrator coordinates validation, prompt building and backend calls.
type Orchestrator struct {
	validator *validation.Validator
	prompts   *prompts.Builder
	backend   Generator
	feedback  FeedbackAppender
	retriever retrieval.ContextRetriever
	now       func() time.Time
}

// New creates an orchestrator. feedback and retriever may be nil: feedback
// submissions then fail, and Q&A answers from general knowledge only.
func New(backend Generator, builder *prompts.Builder, feedback FeedbackAppender, retriever retrieval.ContextRetriever) *Orchestrator {
	return &Orchestrator{
		validator: validation.New(),
		prompts:   builder,
		backend:   backend,
		feedback:  feedback,
		retriever: retriever,
		now:       time.Now,
	}
}

// Validator returns the request validator shared with the HTTP layer.
func (o *Orchestrator) Validator() *validation.Validator { return o.validator }

// Generate runs a form request. Invalid requests fail with a
// *validation.ValidationError before any backend call. On success the result
// of an exportable kind becomes the session's artifact for that kind; on
// failure the previous artifact is kept.
func (o *Orchestrator) Generate(ctx context.Context, sess *Session, req model.Request) (model.GenerationResult, error) {
	result, err := o.generate(ctx, req)
	if err != nil {
		return model.GenerationResult{}, err
	}
	if sess != nil && req.Kind().Exportable() {
		sess.setArtifact(artifactFor(req, result))
	}
	return result, nil
}

// SubmitFeedback generates suggestions for a weekly reflection and appends
// the entry to the feedback log. The session's feedback artifact changes
// only once the entry is saved.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, sess *Session, req model.FeedbackRequest) (model.FeedbackEntry, error) {
	if o.feedback == nil {
		return model.FeedbackEntry{}, fmt.Errorf("submit feedback: no feedback log configured")
	}
	result, err := o.generate(ctx, req)
	if err != nil {
		return model.FeedbackEntry{}, err
	}
	entry := model.FeedbackEntry{
		Course:     strings.TrimSpace(req.Course),
		Timestamp:  result.GeneratedAt,
		WhatWorked: req.WhatWorked,
		WhatDidNot: req.WhatDidNot,
		Suggestion: result.Text,
		Rating:     req.Rating,
	}
	if err := o.feedback.Append(entry); err != nil {
		return entry, fmt.Errorf("save feedback: %w", err)
	}
	if sess != nil {
		sess.setArtifact(artifactFor(req, result))
	}
	slog.Info("feedback saved", "course", entry.Course, "rated", entry.Rated())
	return entry, nil
}

func (o *Orchestrator) generate(ctx context.Context, req model.Request) (model.GenerationResult, error) {
	if err := o.validator.Check(req); err != nil {
		return model.GenerationResult{}, err
	}
	text, err := o.call(ctx, req)
	if err != nil {
		return model.GenerationResult{}, err
	}
	return model.GenerationResult{Kind: req.Kind(), Text: text, GeneratedAt: o.now().UTC()}, nil
}

// Ask answers a question using retrieved document context when available.
// Retriever failures are logged and the question is answered without context.
func (o *Orchestrator) Ask(ctx context.Context, sess *Session, req model.QARequest) (QAResult, error) {
	req.Context = nil
	if err := o.validator.Check(req); err != nil {
		return QAResult{}, err
	}
	if o.retriever != nil {
		chunks, err := o.retriever.Retrieve(ctx, req.Question)
		if err != nil {
			slog.Warn("context retrieval failed, answering without documents", "error", err)
		} else {
			req.Context = chunks
		}
	}

	text, err := o.call(ctx, req)
	if err != nil {
		return QAResult{}, err
	}
	res := QAResult{
		Question:    req.Question,
		Answer:      text,
		Context:     req.Context,
		GeneratedAt: o.now().UTC(),
	}
	if sess != nil {
		sess.setLastAnswer(res)
	}
	return res, nil
}

// Submit adds a chat message as the pending turn. Blank messages fail with
// a *validation.ValidationError and a second message while one is pending
// fails with ErrChatPending; neither changes the session.
func (o *Orchestrator) Submit(sess *Session, text string) (model.ChatTurn, error) {
	if err := o.validator.Check(model.ChatRequest{Message: text}); err != nil {
		return model.ChatTurn{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.pendingIndex() >= 0 {
		return model.ChatTurn{}, ErrChatPending
	}
	turn := model.ChatTurn{
		ID:        uuid.NewString(),
		UserText:  strings.TrimSpace(text),
		Timestamp: o.now().UTC(),
	}
	sess.turns = append(sess.turns, turn)
	return turn, nil
}

// Resolve makes exactly one backend call for the pending turn and records
// the reply. On failure the turn gets an error marker instead, so the
// session is idle again either way; the returned error is a *GenerationError.
func (o *Orchestrator) Resolve(ctx context.Context, sess *Session) (turn model.ChatTurn, err error) {
	sess.mu.Lock()
	idx := sess.pendingIndex()
	if idx < 0 {
		sess.mu.Unlock()
		return model.ChatTurn{}, ErrNoPendingTurn
	}
	if sess.resolving {
		sess.mu.Unlock()
		return model.ChatTurn{}, ErrChatPending
	}
	sess.resolving = true
	pending := sess.turns[idx]
	req := model.ChatRequest{Message: pending.UserText, History: slices.Clone(sess.turns[:idx])}
	sess.mu.Unlock()

	var text string
	// Runs on panic too, so the turn never stays pending.
	defer func() {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		sess.resolving = false
		t := &sess.turns[idx]
		switch {
		case err != nil:
			t.AIText = "Error: " + describe(err)
			t.Failed = true
		case text == "":
			t.AIText = "Error: " + describe(ErrNoReply)
			t.Failed = true
		default:
			t.AIText = text
		}
		turn = *t
	}()

	text, err = o.call(ctx, req)
	return turn, err
}

// Chat submits a message and resolves it.
func (o *Orchestrator) Chat(ctx context.Context, sess *Session, text string) (model.ChatTurn, error) {
	if _, err := o.Submit(sess, text); err != nil {
		return model.ChatTurn{}, err
	}
	return o.Resolve(ctx, sess)
}

// Export renders the session's artifact of kind as a downloadable file.
func (o *Orchestrator) Export(sess *Session, kind model.FeatureKind, format export.Format) (ExportFile, error) {
	art, ok := sess.Artifact(kind)
	if !ok {
		return ExportFile{}, &ExportError{Kind: kind, Err: ErrNoArtifact}
	}
	data, err := export.Render(export.Document{
		Title:     art.Title,
		Body:      art.Body,
		Generated: art.GeneratedAt,
	}, format)
	if err != nil {
		return ExportFile{}, &ExportError{Kind: kind, Err: err}
	}
	return ExportFile{
		Filename:    export.Filename(art.Subject, string(kind), format),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

// call builds the prompt for req and sends it to the backend.
func (o *Orchestrator) call(ctx context.Context, req model.Request) (string, error) {
	prompt, err := o.prompts.Build(req)
	if err != nil {
		return "", &GenerationError{Kind: req.Kind(), Err: err}
	}
	start := time.Now()
	text, err := o.backend.Generate(ctx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("%w: blank reply", llm.ErrMalformedResponse)
	}
	if err != nil {
		slog.Warn("generation failed", "kind", req.Kind(), "reason", llm.KindOf(err), "error", err)
		return "", &GenerationError{Kind: req.Kind(), Err: err}
	}
	slog.Info("generated", "kind", req.Kind(), "prompt_len", len(prompt), "text_len", len(text), "elapsed", time.Since(start))
	return text, nil
}

func artifactFor(req model.Request, res model.GenerationResult) model.Artifact {
	a := model.Artifact{Kind: res.Kind, Body: res.Text, GeneratedAt: res.GeneratedAt}
	switch r := req.(type) {
	case model.SyllabusRequest:
		a.Subject = r.CourseTitle
		a.Title = "Syllabus: " + r.CourseTitle
	case model.LessonPlanRequest:
		a.Subject = r.CourseTitle
		a.Title = "Lesson Plan: " + r.CourseTitle
	case model.AssessmentRequest:
		a.Subject = r.CourseTitle
		a.Title = fmt.Sprintf("Assessment: %s (%s)", r.CourseTitle, r.UnitName)
	case model.ResourcesRequest:
		a.Subject = r.Topic
		a.Title = "Learning Resources: " + r.Topic
	case model.FeedbackRequest:
		a.Subject = r.Course
		a.Title = "Teaching Feedback: " + r.Course
	}
	a.Subject = strings.TrimSpace(a.Subject)
	a.Title = strings.TrimSpace(a.Title)
	return a
}
