package views

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/teachmate/internal/i18n"
	"github.com/pavelanni/teachmate/internal/model"
)

func TestPagesRender(t *testing.T) {
	ctx := model.ContextWithUser(context.Background(), &model.User{Username: "ann", DisplayName: "Ann Lee"})
	ctx = model.ContextWithCSRFToken(ctx, "tok123")
	ctx = model.ContextWithBasePath(ctx, "/teach")

	rating := 4
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	art := &model.Artifact{Kind: model.KindSyllabus, Title: "Syllabus: Physics", Subject: "Physics", Body: "Week 1\n<b>Forces</b>", GeneratedAt: now}
	entry := model.FeedbackEntry{Course: "CS101", Timestamp: now, WhatWorked: "a", WhatDidNot: "b", Suggestion: "c", Rating: &rating}

	tests := map[string]templ.Component{
		"login": LoginPage("bad password"),
		"index": IndexPage(IndexData{
			Features:  []model.FeatureKind{model.KindSyllabus},
			Artifacts: []model.Artifact{*art},
			Documents: 2,
		}),
		"feature syllabus": FeaturePage(FeatureData{Kind: model.KindSyllabus, Values: url.Values{}, Result: art}),
		"feature lesson plan": FeaturePage(FeatureData{
			Kind:        model.KindLessonPlan,
			Values:      url.Values{"class_duration": {"2 hours"}},
			FieldErrors: map[string]string{"outcomes": "outcomes is required"},
			Error:       "Please check",
		}),
		"feature assessment": FeaturePage(FeatureData{Kind: model.KindAssessment, Values: url.Values{}}),
		"feature resources":  FeaturePage(FeatureData{Kind: model.KindResources, Values: url.Values{"formats": {"Blogs"}}}),
		"chat": ChatPage(ChatData{Turns: []model.ChatTurn{
			{UserText: "hi", AIText: "hello"},
			{UserText: "again", AIText: "Error: down", Failed: true},
			{UserText: "pending"},
		}, Pending: true}),
		"documents": DocumentsPage(DocumentsData{Documents: []model.Document{{ID: "d1", Filename: "notes.txt", Size: 2048, Chunks: 3, UploadedAt: now}}, MaxUploadMB: 10}),
		"qa": QAPage(QAData{Chunks: 3, Answer: &Answer{Question: "q", Text: "a", Context: []string{"ctx"}, FromDocuments: true, GeneratedAt: now}}),
		"feedback": FeedbackPage(FeedbackData{History: []model.FeedbackEntry{entry}, Values: url.Values{"rating": {"4"}}, Latest: &entry}),
		"profile":  ProfilePage(ProfileData{Profile: model.UserProfile{Username: "ann", Role: "Lecturer"}, Saved: true}),
		"error":    ErrorPage(ErrorData{Status: 500, Message: "boom"}),
	}

	for name, c := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := c.Render(ctx, &buf); err != nil {
				t.Fatalf("Render: %v", err)
			}
			out := buf.String()
			if !strings.Contains(out, "<html") {
				t.Error("full render should include the layout")
			}
			if !strings.Contains(out, "tok123") {
				t.Error("page should carry the CSRF token")
			}
		})
	}
}

func TestPageEscapesContent(t *testing.T) {
	art := &model.Artifact{Kind: model.KindSyllabus, Title: "T", Body: "<script>alert(1)</script>"}
	var buf bytes.Buffer
	if err := FeaturePage(FeatureData{Kind: model.KindSyllabus, Values: url.Values{}, Result: art}).Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "<script>alert") {
		t.Error("generated text must be escaped")
	}
	if !strings.Contains(buf.String(), "&lt;script&gt;") {
		t.Error("escaped text should be present")
	}
}

func TestPartialRender(t *testing.T) {
	ctx := WithPartial(context.Background())
	var buf bytes.Buffer
	if err := ChatPage(ChatData{}).Render(ctx, &buf); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "<html") {
		t.Error("partial render should omit the layout")
	}
	if !strings.Contains(buf.String(), `name="message"`) {
		t.Error("partial render should include the page content")
	}
}

func TestBasePathLinks(t *testing.T) {
	ctx := model.ContextWithUser(context.Background(), &model.User{Username: "ann"})
	ctx = model.ContextWithBasePath(ctx, "/teach")
	var buf bytes.Buffer
	if err := IndexPage(IndexData{}).Render(ctx, &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `href="/teach/chat"`) {
		t.Error("links should carry the base path")
	}
}

func TestLanguageLinks(t *testing.T) {
	if err := appI18n.Init("en"); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := LoginPage("").Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`href="?lang=en"`, `href="?lang=ru"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("page should link %s", want)
		}
	}
}

func TestLoginComponent(t *testing.T) {
	ctx := model.ContextWithCSRFToken(WithPartial(context.Background()), "tok123")
	ctx = model.ContextWithBasePath(ctx, "/teach")
	var buf bytes.Buffer
	if err := LoginPage(`<b>"wrong"</b>`).Render(ctx, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "<html") {
		t.Error("partial render should omit the layout")
	}
	for _, want := range []string{
		`action="/teach/login"`,
		`name="csrf_token" value="tok123"`,
		`&lt;b&gt;&#34;wrong&#34;&lt;/b&gt;`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("login form missing %s:\n%s", want, out)
		}
	}
}

func TestErrorComponentOmitsEmptyAlert(t *testing.T) {
	var buf bytes.Buffer
	if err := ErrorPage(ErrorData{Status: 404}).Render(WithPartial(context.Background()), &buf); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), `class="alert error"`) {
		t.Error("no alert should be rendered without a message")
	}
	if !strings.Contains(buf.String(), `href="/"`) {
		t.Error("error page should link home")
	}
}
