package model

// FeatureKind identifies one of the generation use-cases.
type FeatureKind string

const (
	KindSyllabus   FeatureKind = "syllabus"
	KindLessonPlan FeatureKind = "lesson_plan"
	KindAssessment FeatureKind = "assessment"
	KindResources  FeatureKind = "resources"
	KindFeedback   FeatureKind = "feedback"
	KindChat       FeatureKind = "chat"
	KindQA         FeatureKind = "qa"
)

// AllKinds lists every feature kind.
var AllKinds = []FeatureKind{
	KindSyllabus, KindLessonPlan, KindAssessment, KindResources,
	KindFeedback, KindChat, KindQA,
}

// ParseKind returns the feature kind with the given name.
func ParseKind(s string) (FeatureKind, bool) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Exportable reports whether results of this kind can be downloaded as documents.
func (k FeatureKind) Exportable() bool {
	switch k {
	case KindSyllabus, KindLessonPlan, KindAssessment, KindResources, KindFeedback:
		return true
	}
	return false
}

// Choice sets for enumerated fields.
var (
	ClassDurations  = []string{"1 hour", "2 hours", "3 hours", "4 hours", "5 hours"}
	StudentLevels   = []string{"Beginner", "Intermediate", "Advanced"}
	QuestionTypes   = []string{"MCQs", "Short Answer", "Long Answer", "Case Scenario"}
	BloomLevels     = []string{"Remember", "Understand", "Apply", "Analyze", "Evaluate", "Create"}
	ResourceFormats = []string{"YouTube Videos", "Blogs", "Slides (PPT)", "PDFs", "Research Papers", "Lab Assignments", "Case Studies"}
)

// Default numeric values used when a form omits them.
const (
	DefaultSyllabusWeeks   = 15
	DefaultLessonPlanWeeks = 12
	DefaultNumQuestions    = 10
)

// Request is a validated-before-use generation request for one feature kind.
type Request interface {
	Kind() FeatureKind
}

// SyllabusRequest asks for a week-by-week course syllabus.
type SyllabusRequest struct {
	CourseTitle   string `json:"course_title" validate:"notblank"`
	DurationWeeks int    `json:"duration_weeks" validate:"min=4,max=20"`
	Objectives    string `json:"objectives" validate:"notblank"`
}

func (SyllabusRequest) Kind() FeatureKind { return KindSyllabus }

// LessonPlanRequest asks for a weekly lesson plan.
type LessonPlanRequest struct {
	CourseTitle   string `json:"course_title" validate:"notblank"`
	NumWeeks      int    `json:"num_weeks" validate:"min=4,max=20"`
	ClassDuration string `json:"class_duration" validate:"class_duration"`
	StudentLevel  string `json:"student_level" validate:"student_level"`
	Outcomes      string `json:"outcomes" validate:"notblank"`
}

func (LessonPlanRequest) Kind() FeatureKind { return KindLessonPlan }

// AssessmentRequest asks for a bank of assessment questions.
type AssessmentRequest struct {
	CourseTitle  string `json:"course_title" validate:"notblank"`
	UnitName     string `json:"unit_name" validate:"notblank"`
	NumQuestions int    `json:"num_questions" validate:"min=5,max=20"`
	QuestionType string `json:"question_type" validate:"question_type"`
	BloomLevel   string `json:"bloom_level" validate:"bloom_level"`
}

func (AssessmentRequest) Kind() FeatureKind { return KindAssessment }

// ResourcesRequest asks for recommended learning resources.
type ResourcesRequest struct {
	Topic        string   `json:"topic" validate:"notblank"`
	StudentLevel string   `json:"student_level" validate:"student_level"`
	Formats      []string `json:"formats" validate:"min=1,dive,resource_format"`
}

func (ResourcesRequest) Kind() FeatureKind { return KindResources }

// FeedbackRequest carries a weekly reflection to turn into suggestions.
type FeedbackRequest struct {
	Course     string `json:"course" validate:"notblank"`
	WhatWorked string `json:"what_worked" validate:"notblank"`
	WhatDidNot string `json:"what_did_not" validate:"notblank"`
	Rating     *int   `json:"rating" validate:"omitempty,min=1,max=5"`
}

func (FeedbackRequest) Kind() FeatureKind { return KindFeedback }

// ChatRequest is one assistant message with the resolved turns before it.
type ChatRequest struct {
	Message string     `json:"message" validate:"notblank"`
	History []ChatTurn `json:"-" validate:"-"`
}

func (ChatRequest) Kind() FeatureKind { return KindChat }

// QARequest is a question answered against retrieved document context.
type QARequest struct {
	Question string   `json:"question" validate:"notblank"`
	Context  []string `json:"-" validate:"-"`
}

func (QARequest) Kind() FeatureKind { return KindQA }
