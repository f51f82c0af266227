package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/teachmate/internal/export"
	"github.com/pavelanni/teachmate/internal/handler/views"
	"github.com/pavelanni/teachmate/internal/model"
)

// formKinds are the features driven by a single form on /generate/{kind}.
var formKinds = []model.FeatureKind{
	model.KindSyllabus, model.KindLessonPlan, model.KindAssessment, model.KindResources,
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListDocuments()
	if err != nil {
		slog.Error("failed to list documents", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	profile, err := h.profiles.Get(username(r.Context()))
	if err != nil {
		slog.Warn("failed to load profile", "username", username(r.Context()), "error", err)
	}

	sess := sessionFrom(r).state
	var artifacts []model.Artifact
	for _, k := range model.AllKinds {
		if a, ok := sess.Artifact(k); ok {
			artifacts = append(artifacts, a)
		}
	}

	render(w, r, http.StatusOK, views.IndexPage(views.IndexData{
		Features:  formKinds,
		Profile:   profile,
		Documents: len(docs),
		Artifacts: artifacts,
		ChatTurns: len(sess.Turns()),
	}))
}

func (h *Handler) handleFeaturePage(w http.ResponseWriter, r *http.Request) {
	kind, ok := formKind(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	data := views.FeatureData{Kind: kind, Values: formDefaults(kind)}
	if a, ok := sessionFrom(r).state.Artifact(kind); ok {
		data.Result = &a
	}
	render(w, r, http.StatusOK, views.FeaturePage(data))
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	kind, ok := formKind(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	sess := sessionFrom(r).state
	data := views.FeatureData{Kind: kind, Values: r.PostForm}
	_, err := h.orch.Generate(r.Context(), sess, requestFromForm(kind, r.PostForm))
	if a, ok := sess.Artifact(kind); ok {
		data.Result = &a
	}
	if err != nil {
		status, msg := failure(r.Context(), err)
		logFailure(r, status, err)
		data.Error = msg
		data.FieldErrors = fieldErrors(err)
		render(w, r, status, views.FeaturePage(data))
		return
	}
	render(w, r, http.StatusOK, views.FeaturePage(data))
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	kind, ok := model.ParseKind(chi.URLParam(r, "kind"))
	if !ok || !kind.Exportable() {
		http.NotFound(w, r)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, err := h.orch.Export(sessionFrom(r).state, kind, format)
	if err != nil {
		status, msg := failure(r.Context(), err)
		logFailure(r, status, err)
		h.renderFailure(w, r, status, msg)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	if _, err := w.Write(file.Data); err != nil {
		slog.Error("failed to write download", "kind", kind, "error", err)
	}
}

func formKind(r *http.Request) (model.FeatureKind, bool) {
	kind, ok := model.ParseKind(chi.URLParam(r, "kind"))
	if !ok || !slices.Contains(formKinds, kind) {
		return "", false
	}
	return kind, true
}

// formDefaults pre-fills a fresh form.
func formDefaults(kind model.FeatureKind) url.Values {
	v := url.Values{}
	switch kind {
	case model.KindSyllabus:
		v.Set("duration_weeks", strconv.Itoa(model.DefaultSyllabusWeeks))
	case model.KindLessonPlan:
		v.Set("num_weeks", strconv.Itoa(model.DefaultLessonPlanWeeks))
		v.Set("class_duration", model.ClassDurations[0])
		v.Set("student_level", model.StudentLevels[0])
	case model.KindAssessment:
		v.Set("num_questions", strconv.Itoa(model.DefaultNumQuestions))
		v.Set("question_type", model.QuestionTypes[0])
		v.Set("bloom_level", model.BloomLevels[0])
	case model.KindResources:
		v.Set("student_level", model.StudentLevels[0])
	}
	return v
}

// requestFromForm builds the typed request for kind. Blank numbers take
// their defaults; unparsable ones become 0 and fail validation.
func requestFromForm(kind model.FeatureKind, v url.Values) model.Request {
	switch kind {
	case model.KindSyllabus:
		return model.SyllabusRequest{
			CourseTitle:   v.Get("course_title"),
			DurationWeeks: formInt(v, "duration_weeks", model.DefaultSyllabusWeeks),
			Objectives:    v.Get("objectives"),
		}
	case model.KindLessonPlan:
		return model.LessonPlanRequest{
			CourseTitle:   v.Get("course_title"),
			NumWeeks:      formInt(v, "num_weeks", model.DefaultLessonPlanWeeks),
			ClassDuration: v.Get("class_duration"),
			StudentLevel:  v.Get("student_level"),
			Outcomes:      v.Get("outcomes"),
		}
	case model.KindAssessment:
		return model.AssessmentRequest{
			CourseTitle:  v.Get("course_title"),
			UnitName:     v.Get("unit_name"),
			NumQuestions: formInt(v, "num_questions", model.DefaultNumQuestions),
			QuestionType: v.Get("question_type"),
			BloomLevel:   v.Get("bloom_level"),
		}
	case model.KindResources:
		return model.ResourcesRequest{
			Topic:        v.Get("topic"),
			StudentLevel: v.Get("student_level"),
			Formats:      v["formats"],
		}
	}
	return nil
}

func formInt(v url.Values, key string, def int) int {
	s := strings.TrimSpace(v.Get(key))
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
