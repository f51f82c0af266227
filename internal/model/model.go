package model

import (
	"context"
	"time"
)

// User represents a system user allowed to sign in.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// ChatTurn is one user message and the assistant reply to it.
// AIText stays empty while the turn is pending and is set exactly once.
type ChatTurn struct {
	ID        string    `json:"id"`
	UserText  string    `json:"user_text"`
	AIText    string    `json:"ai_text"`
	Failed    bool      `json:"failed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Pending reports whether the turn is still waiting for a reply.
func (t ChatTurn) Pending() bool {
	return t.AIText == ""
}

// FeedbackEntry is one logged weekly reflection.
type FeedbackEntry struct {
	Course     string    `json:"course"`
	Timestamp  time.Time `json:"timestamp"`
	WhatWorked string    `json:"what_worked"`
	WhatDidNot string    `json:"what_did_not"`
	Suggestion string    `json:"suggestion"`
	Rating     *int      `json:"rating,omitempty"`
}

// Rated reports whether the entry carries a 1-5 rating.
func (e FeedbackEntry) Rated() bool {
	return e.Rating != nil && *e.Rating >= 1 && *e.Rating <= 5
}

// ProfileRoles lists the selectable profile roles; the empty role means unset.
var ProfileRoles = []string{"", "Professor", "Lecturer", "Teaching Assistant", "Researcher", "Other"}

// UserProfile holds the editable details of a signed-in user.
type UserProfile struct {
	Username    string `json:"-"`
	FullName    string `json:"full_name" validate:"max=200"`
	Email       string `json:"email" validate:"omitempty,email"`
	Role        string `json:"role" validate:"omitempty,profile_role"`
	Institution string `json:"institution" validate:"max=200"`
}

// Empty reports whether no profile field has been filled in.
func (p UserProfile) Empty() bool {
	return p.FullName == "" && p.Email == "" && p.Role == "" && p.Institution == ""
}

// GenerationResult is the text produced for a single request.
type GenerationResult struct {
	Kind        FeatureKind
	Text        string
	GeneratedAt time.Time
}

// Artifact is an exportable document derived from a generation result.
type Artifact struct {
	Kind        FeatureKind
	Title       string
	Subject     string
	Body        string
	GeneratedAt time.Time
}

// DocumentKind is the type of an uploaded course document.
type DocumentKind string

const (
	DocumentPDF  DocumentKind = "pdf"
	DocumentDOCX DocumentKind = "docx"
	DocumentTXT  DocumentKind = "txt"
)

// Document describes an uploaded course document.
type Document struct {
	ID         string       `json:"id"`
	Filename   string       `json:"filename"`
	Kind       DocumentKind `json:"kind"`
	Size       int64        `json:"size"`
	Chunks     int          `json:"chunks"`
	UploadedBy string       `json:"uploaded_by"`
	UploadedAt time.Time    `json:"uploaded_at"`
}

// Chunk is one indexed slice of an uploaded document's text.
type Chunk struct {
	DocumentID string
	Filename   string
	Seq        int
	Text       string
}

// UserImport is used for loading users from YAML.
type UserImport struct {
	Username     string `yaml:"username"`
	DisplayName  string `yaml:"display_name"`
	PasswordHash string `yaml:"password_hash"`
	Active       *bool  `yaml:"active,omitempty"`
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	BasePath      string // URL prefix for sub-path deployments (e.g. "/ru")
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	RateLimit     int    // generation requests per minute per session, 0 disables
	MaxUploadMB   int64
}
