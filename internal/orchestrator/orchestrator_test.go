package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/teachmate/internal/export"
	"github.com/pavelanni/teachmate/internal/llm"
	"github.com/pavelanni/teachmate/internal/llm/prompts"
	"github.com/pavelanni/teachmate/internal/logstore"
	"github.com/pavelanni/teachmate/internal/model"
	"github.com/pavelanni/teachmate/internal/validation"
)

type fakeBackend struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	reply   string
	err     error
	block   chan struct{}
}

func (f *fakeBackend) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.err != nil {
		return "", f.err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return fmt.Sprintf("reply %d", f.calls), nil
}

func (f *fakeBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type backendFunc func(ctx context.Context, prompt string) (string, error)

func (f backendFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type failingAppender struct{}

func (failingAppender) Append(model.FeedbackEntry) error { return errors.New("disk full") }

type fakeRetriever struct {
	chunks []string
	err    error
}

func (f fakeRetriever) Retrieve(ctx context.Context, query string) ([]string, error) {
	return f.chunks, f.err
}

func newTestOrchestrator(t *testing.T, backend *fakeBackend) (*Orchestrator, *logstore.FeedbackLog) {
	t.Helper()
	builder, err := prompts.New()
	if err != nil {
		t.Fatalf("prompts.New: %v", err)
	}
	log, err := logstore.OpenFeedbackLog(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFeedbackLog: %v", err)
	}
	o := New(backend, builder, log, nil)
	o.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return o, log
}

func validRequests() []model.Request {
	four := 4
	return []model.Request{
		model.SyllabusRequest{CourseTitle: "Intro to CS", DurationWeeks: 15, Objectives: "Learn loops"},
		model.LessonPlanRequest{CourseTitle: "Intro to CS", NumWeeks: 12, ClassDuration: "2 hours", StudentLevel: "Beginner", Outcomes: "Write programs"},
		model.AssessmentRequest{CourseTitle: "Intro to CS", UnitName: "Recursion", NumQuestions: 10, QuestionType: "MCQs", BloomLevel: "Apply"},
		model.ResourcesRequest{Topic: "Graph theory", StudentLevel: "Advanced", Formats: []string{"Blogs", "PDFs"}},
		model.FeedbackRequest{Course: "CS101", WhatWorked: "labs", WhatDidNot: "pacing", Rating: &four},
		model.QARequest{Question: "What is recursion?"},
	}
}

// blankRequired returns req with its first required text field emptied.
func blankRequired(req model.Request) model.Request {
	switch r := req.(type) {
	case model.SyllabusRequest:
		r.Objectives = "   "
		return r
	case model.LessonPlanRequest:
		r.Outcomes = ""
		return r
	case model.AssessmentRequest:
		r.UnitName = ""
		return r
	case model.ResourcesRequest:
		r.Topic = "\t"
		return r
	case model.FeedbackRequest:
		r.WhatWorked = ""
		return r
	case model.QARequest:
		r.Question = " "
		return r
	}
	panic("unknown request")
}

func TestGenerateValidationMakesNoBackendCall(t *testing.T) {
	for _, req := range validRequests() {
		t.Run(string(req.Kind()), func(t *testing.T) {
			backend := &fakeBackend{}
			o, _ := newTestOrchestrator(t, backend)
			sess := NewSession()

			var err error
			switch r := blankRequired(req).(type) {
			case model.QARequest:
				_, err = o.Ask(context.Background(), sess, r)
			case model.FeedbackRequest:
				_, err = o.SubmitFeedback(context.Background(), sess, r)
			default:
				_, err = o.Generate(context.Background(), sess, r)
			}

			var verr *validation.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if backend.Calls() != 0 {
				t.Errorf("backend called %d times, want 0", backend.Calls())
			}
		})
	}

	backend := &fakeBackend{}
	o, _ := newTestOrchestrator(t, backend)
	if _, err := o.Submit(NewSession(), "  "); err == nil {
		t.Error("blank chat message should be rejected")
	}
	if backend.Calls() != 0 {
		t.Error("blank chat message should not reach the backend")
	}
}

func TestGenerateStoresArtifact(t *testing.T) {
	backend := &fakeBackend{reply: "Week 1: Variables"}
	o, _ := newTestOrchestrator(t, backend)
	sess := NewSession()

	req := model.SyllabusRequest{CourseTitle: "Intro to CS", DurationWeeks: 15, Objectives: "Learn loops"}
	res, err := o.Generate(context.Background(), sess, req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "Week 1: Variables" || res.Kind != model.KindSyllabus {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(backend.prompts[0], "Intro to CS") || !strings.Contains(backend.prompts[0], "15") {
		t.Errorf("prompt does not embed the request fields: %q", backend.prompts[0])
	}

	art, ok := sess.Artifact(model.KindSyllabus)
	if !ok {
		t.Fatal("expected syllabus artifact")
	}
	if art.Subject != "Intro to CS" || art.Body != "Week 1: Variables" || art.Title != "Syllabus: Intro to CS" {
		t.Errorf("artifact = %+v", art)
	}
}

func TestGenerateFailureKeepsPreviousArtifact(t *testing.T) {
	backend := &fakeBackend{reply: "first"}
	o, _ := newTestOrchestrator(t, backend)
	sess := NewSession()
	req := model.SyllabusRequest{CourseTitle: "Intro", DurationWeeks: 10, Objectives: "x"}

	if _, err := o.Generate(context.Background(), sess, req); err != nil {
		t.Fatal(err)
	}
	backend.err = fmt.Errorf("%w: boom", llm.ErrRateLimit)
	_, err := o.Generate(context.Background(), sess, req)

	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("error = %v, want *GenerationError", err)
	}
	if gerr.Reason() != "rate_limit" || !errors.Is(err, llm.ErrRateLimit) {
		t.Errorf("Reason() = %q, want rate_limit", gerr.Reason())
	}
	art, _ := sess.Artifact(model.KindSyllabus)
	if art.Body != "first" {
		t.Errorf("artifact body = %q, want previous result", art.Body)
	}
}

func TestSubmitFeedback(t *testing.T) {
	backend := &fakeBackend{reply: "Slow down in week 3."}
	o, log := newTestOrchestrator(t, backend)
	four := 4

	entry, err := o.SubmitFeedback(context.Background(), NewSession(), model.FeedbackRequest{
		Course: "CS101", WhatWorked: "labs", WhatDidNot: "pacing", Rating: &four,
	})
	if err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	if entry.Suggestion != "Slow down in week 3." {
		t.Errorf("suggestion = %q", entry.Suggestion)
	}

	hist, err := log.History()
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].Course != "CS101" || hist[0].Rating == nil || *hist[0].Rating != 4 {
		t.Fatalf("history = %+v, want one CS101 entry rated 4", hist)
	}
	if !hist[0].Timestamp.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", hist[0].Timestamp)
	}
}

func TestSubmitFeedbackFailureWritesNothing(t *testing.T) {
	backend := &fakeBackend{err: fmt.Errorf("%w: down", llm.ErrNetwork)}
	o, log := newTestOrchestrator(t, backend)

	_, err := o.SubmitFeedback(context.Background(), NewSession(), model.FeedbackRequest{
		Course: "CS101", WhatWorked: "labs", WhatDidNot: "pacing",
	})
	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("error = %v, want *GenerationError", err)
	}
	all, _ := log.LoadAll()
	if len(all) != 0 {
		t.Errorf("feedback log has %d entries after a failed generation, want 0", len(all))
	}
}

func TestSubmitFeedbackSaveFailureKeepsArtifact(t *testing.T) {
	builder, err := prompts.New()
	if err != nil {
		t.Fatal(err)
	}
	o := New(&fakeBackend{reply: "Slow down."}, builder, failingAppender{}, nil)
	sess := NewSession()

	_, err = o.SubmitFeedback(context.Background(), sess, model.FeedbackRequest{
		Course: "CS101", WhatWorked: "labs", WhatDidNot: "pacing",
	})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("SubmitFeedback error = %v, want save failure", err)
	}
	if _, ok := sess.Artifact(model.KindFeedback); ok {
		t.Error("an unsaved feedback entry should not become the session artifact")
	}
}

func TestChatStateMachine(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	o, _ := newTestOrchestrator(t, backend)
	sess := NewSession()

	if _, err := o.Submit(sess, "Explain recursion"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	turns := sess.Turns()
	if len(turns) != 1 || turns[0].UserText != "Explain recursion" || turns[0].AIText != "" {
		t.Fatalf("turns = %+v, want one pending turn", turns)
	}
	if !sess.Pending() {
		t.Error("session should be awaiting a reply")
	}

	if _, err := o.Submit(sess, "Another question"); !errors.Is(err, ErrChatPending) {
		t.Errorf("second Submit error = %v, want ErrChatPending", err)
	}
	if err := sess.ClearChat(); !errors.Is(err, ErrChatPending) {
		t.Errorf("ClearChat while pending = %v, want ErrChatPending", err)
	}

	done := make(chan model.ChatTurn)
	go func() {
		turn, _ := o.Resolve(context.Background(), sess)
		done <- turn
	}()

	// Wait until the first Resolve has reached the backend.
	for backend.Calls() == 0 {
		time.Sleep(time.Millisecond)
	}
	if _, err := o.Resolve(context.Background(), sess); !errors.Is(err, ErrChatPending) {
		t.Errorf("concurrent Resolve error = %v, want ErrChatPending", err)
	}
	close(backend.block)
	turn := <-done

	if turn.AIText == "" || turn.Failed {
		t.Errorf("resolved turn = %+v", turn)
	}
	if sess.Pending() {
		t.Error("session should be idle after the reply")
	}
	if backend.Calls() != 1 {
		t.Errorf("backend called %d times, want 1", backend.Calls())
	}
	if _, err := o.Resolve(context.Background(), sess); !errors.Is(err, ErrNoPendingTurn) {
		t.Errorf("Resolve with nothing pending = %v, want ErrNoPendingTurn", err)
	}
}

func TestChatFailureWritesMarker(t *testing.T) {
	backend := &fakeBackend{err: fmt.Errorf("%w: bad key", llm.ErrAuth)}
	o, _ := newTestOrchestrator(t, backend)
	sess := NewSession()

	turn, err := o.Chat(context.Background(), sess, "Hello")
	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("Chat error = %v, want *GenerationError", err)
	}
	if !turn.Failed || !strings.HasPrefix(turn.AIText, "Error: ") {
		t.Errorf("failed turn = %+v, want error marker", turn)
	}
	if sess.Pending() {
		t.Error("a failed reply should return the session to idle")
	}

	backend.err = nil
	backend.reply = "Hi there"
	turn, err = o.Chat(context.Background(), sess, "Hello again")
	if err != nil {
		t.Fatalf("Chat after failure: %v", err)
	}
	if turn.AIText != "Hi there" {
		t.Errorf("AIText = %q", turn.AIText)
	}
	if n := len(sess.Turns()); n != 2 {
		t.Errorf("turns = %d, want 2", n)
	}
	// The failed turn is left out of the history sent with the second message.
	if strings.Contains(backend.prompts[1], "Error: ") {
		t.Error("failed turns should not be sent as history")
	}

	if err := sess.ClearChat(); err != nil {
		t.Fatalf("ClearChat: %v", err)
	}
	if len(sess.Turns()) != 0 {
		t.Error("ClearChat should empty the history")
	}
}

func TestChatHistoryInPrompt(t *testing.T) {
	backend := &fakeBackend{}
	o, _ := newTestOrchestrator(t, backend)
	sess := NewSession()

	if _, err := o.Chat(context.Background(), sess, "What is Bloom's taxonomy?"); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Chat(context.Background(), sess, "Give an example"); err != nil {
		t.Fatal(err)
	}
	p := backend.prompts[1]
	if !strings.Contains(p, "What is Bloom's taxonomy?") || !strings.Contains(p, "reply 1") || !strings.Contains(p, "Give an example") {
		t.Errorf("second prompt lacks history: %q", p)
	}
}

func TestAsk(t *testing.T) {
	tests := []struct {
		name        string
		retriever   fakeRetriever
		wantContext bool
	}{
		{"with context", fakeRetriever{chunks: []string{"Recursion is a function calling itself."}}, true},
		{"no context", fakeRetriever{}, false},
		{"retriever error", fakeRetriever{err: errors.New("index offline")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{reply: "An answer"}
			o, _ := newTestOrchestrator(t, backend)
			o.retriever = tt.retriever
			sess := NewSession()

			res, err := o.Ask(context.Background(), sess, model.QARequest{Question: "What is recursion?"})
			if err != nil {
				t.Fatalf("Ask: %v", err)
			}
			if res.Answer != "An answer" || res.FromDocuments() != tt.wantContext {
				t.Errorf("result = %+v", res)
			}
			p := backend.prompts[0]
			if tt.wantContext && !strings.Contains(p, "Recursion is a function calling itself.") {
				t.Error("prompt should include the retrieved context")
			}
			if !tt.wantContext && !strings.Contains(p, "general knowledge") {
				t.Error("prompt should ask for a general-knowledge disclaimer")
			}
			if last, ok := sess.LastAnswer(); !ok || last.Answer != "An answer" {
				t.Error("session should keep the last answer")
			}
		})
	}
}

func TestExport(t *testing.T) {
	backend := &fakeBackend{reply: "Q1. What is a loop?\nQ2. What is a list?"}
	o, _ := newTestOrchestrator(t, backend)
	sess := NewSession()

	if _, err := o.Export(sess, model.KindAssessment, export.FormatDOCX); !errors.Is(err, ErrNoArtifact) {
		t.Fatalf("Export before generating = %v, want ErrNoArtifact", err)
	}
	var eerr *ExportError
	_, err := o.Export(sess, model.KindAssessment, export.FormatDOCX)
	if !errors.As(err, &eerr) {
		t.Fatalf("Export error = %v, want *ExportError", err)
	}

	req := model.AssessmentRequest{CourseTitle: "Intro to CS", UnitName: "Loops", NumQuestions: 5, QuestionType: "Short Answer", BloomLevel: "Remember"}
	if _, err := o.Generate(context.Background(), sess, req); err != nil {
		t.Fatal(err)
	}

	f1, err := o.Export(sess, model.KindAssessment, export.FormatDOCX)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if f1.Filename != "Intro_to_CS_assessment.docx" {
		t.Errorf("Filename = %q", f1.Filename)
	}
	if f1.ContentType != export.FormatDOCX.ContentType() || len(f1.Data) == 0 {
		t.Errorf("unexpected export file: %q, %d bytes", f1.ContentType, len(f1.Data))
	}
	f2, _ := o.Export(sess, model.KindAssessment, export.FormatDOCX)
	if string(f1.Data) != string(f2.Data) {
		t.Error("exporting the same artifact twice should give identical bytes")
	}

	txt, err := o.Export(sess, model.KindAssessment, export.FormatTXT)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(txt.Data), "Q2. What is a list?") {
		t.Errorf("txt export = %q", txt.Data)
	}
	if _, err := o.Export(sess, model.KindAssessment, export.Format("odt")); !errors.As(err, &eerr) {
		t.Errorf("unknown format error = %v, want *ExportError", err)
	}
}

func TestChatBlankReplyReturnsToIdle(t *testing.T) {
	builder, err := prompts.New()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name  string
		reply string
	}{
		{"empty", ""},
		{"whitespace", "  \n "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(backendFunc(func(context.Context, string) (string, error) { return tt.reply, nil }), builder, nil, nil)
			sess := NewSession()

			turn, err := o.Chat(context.Background(), sess, "Hello")
			if !errors.Is(err, llm.ErrMalformedResponse) {
				t.Fatalf("Chat error = %v, want ErrMalformedResponse", err)
			}
			if !turn.Failed || !strings.HasPrefix(turn.AIText, "Error: ") {
				t.Errorf("turn = %+v, want error marker", turn)
			}
			if sess.Pending() {
				t.Fatal("session should be idle after a blank reply")
			}
			if _, err := o.Submit(sess, "Next"); err != nil {
				t.Errorf("Submit after blank reply: %v", err)
			}
		})
	}
}

func TestChatBackendPanicReturnsToIdle(t *testing.T) {
	builder, err := prompts.New()
	if err != nil {
		t.Fatal(err)
	}
	o := New(backendFunc(func(context.Context, string) (string, error) { panic("backend bug") }), builder, nil, nil)
	sess := NewSession()

	func() {
		defer func() {
			if recover() == nil {
				t.Error("the panic should reach the caller")
			}
		}()
		_, _ = o.Chat(context.Background(), sess, "Hello")
	}()

	if sess.Pending() {
		t.Fatal("session should be idle after a panicking backend")
	}
	turns := sess.Turns()
	if len(turns) != 1 || !turns[0].Failed {
		t.Errorf("turns = %+v, want one failed turn", turns)
	}
	if err := sess.ClearChat(); err != nil {
		t.Errorf("ClearChat: %v", err)
	}
}

func TestGenerateBlankReplyKeepsArtifact(t *testing.T) {
	builder, err := prompts.New()
	if err != nil {
		t.Fatal(err)
	}
	o := New(backendFunc(func(context.Context, string) (string, error) { return " ", nil }), builder, nil, nil)
	sess := NewSession()
	_, err = o.Generate(context.Background(), sess, model.SyllabusRequest{CourseTitle: "CS", DurationWeeks: 10, Objectives: "x"})
	var gerr *GenerationError
	if !errors.As(err, &gerr) || gerr.Reason() != "malformed_response" {
		t.Fatalf("Generate error = %v, want malformed_response GenerationError", err)
	}
	if _, ok := sess.Artifact(model.KindSyllabus); ok {
		t.Error("a blank reply should not become an artifact")
	}
}
