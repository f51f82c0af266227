package views

import (
	"net/url"
	"time"

	"github.com/a-h/templ"

	"github.com/pavelanni/teachmate/internal/model"
)

// IndexData feeds the dashboard.
type IndexData struct {
	Features  []model.FeatureKind
	Profile   model.UserProfile
	Documents int
	Artifacts []model.Artifact
	ChatTurns int
}

// FeatureData feeds a generation form and its latest result.
type FeatureData struct {
	Kind        model.FeatureKind
	Values      url.Values
	FieldErrors map[string]string
	Error       string
	Result      *model.Artifact
}

type ChatData struct {
	Turns   []model.ChatTurn
	Pending bool
	Error   string
	Draft   string
}

type DocumentsData struct {
	Documents   []model.Document
	MaxUploadMB int64
	Notice      string
	Error       string
}

// Answer is the last document Q&A result shown on the Q&A page.
type Answer struct {
	Question      string
	Text          string
	Context       []string
	FromDocuments bool
	GeneratedAt   time.Time
}

type QAData struct {
	Question string
	Chunks   int
	Error    string
	Answer   *Answer
}

type FeedbackData struct {
	History     []model.FeedbackEntry
	Values      url.Values
	FieldErrors map[string]string
	Error       string
	Latest      *model.FeedbackEntry
}

type ProfileData struct {
	Profile     model.UserProfile
	FieldErrors map[string]string
	Error       string
	Saved       bool
}

type ErrorData struct {
	Status  int
	Message string
}

// LoginPage renders the sign-in form with an optional error message.
func LoginPage(errMsg string) templ.Component {
	return page("component", loginForm(errMsg))
}

func IndexPage(d IndexData) templ.Component         { return page("index", d) }
func FeaturePage(d FeatureData) templ.Component     { return page("feature", d) }
func ChatPage(d ChatData) templ.Component           { return page("chat", d) }
func DocumentsPage(d DocumentsData) templ.Component { return page("documents", d) }
func QAPage(d QAData) templ.Component               { return page("qa", d) }
func FeedbackPage(d FeedbackData) templ.Component   { return page("feedback", d) }
func ProfilePage(d ProfileData) templ.Component     { return page("profile", d) }

// ErrorPage renders a failure message with a link back home.
func ErrorPage(d ErrorData) templ.Component { return page("component", errorContent(d)) }
