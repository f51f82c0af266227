package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/pavelanni/teachmate/internal/export"
	"github.com/pavelanni/teachmate/internal/handler/views"
	"github.com/pavelanni/teachmate/internal/model"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) handleFeedbackPage(w http.ResponseWriter, r *http.Request) {
	h.renderFeedback(w, r, http.StatusOK, views.FeedbackData{})
}

func (h *Handler) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	req := model.FeedbackRequest{
		Course:     r.PostForm.Get("course"),
		WhatWorked: r.PostForm.Get("what_worked"),
		WhatDidNot: r.PostForm.Get("what_did_not"),
		Rating:     parseRating(r.PostForm.Get("rating")),
	}

	entry, err := h.orch.SubmitFeedback(r.Context(), sessionFrom(r).state, req)
	if err != nil {
		status, msg := failure(r.Context(), err)
		logFailure(r, status, err)
		h.renderFeedback(w, r, status, views.FeedbackData{
			Values:      r.PostForm,
			Error:       msg,
			FieldErrors: fieldErrors(err),
		})
		return
	}
	h.renderFeedback(w, r, http.StatusOK, views.FeedbackData{Latest: &entry})
}

func (h *Handler) handleFeedbackExport(w http.ResponseWriter, r *http.Request) {
	entries, err := h.feedback.LoadAll()
	if err != nil {
		slog.Error("failed to load feedback log", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	var contentType, filename string
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "xlsx":
		if err := export.WriteFeedbackWorkbook(&buf, entries); err != nil {
			slog.Error("failed to build feedback workbook", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		contentType, filename = xlsxContentType, "feedback_log.xlsx"
	case "json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			slog.Error("failed to encode feedback log", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		contentType, filename = "application/json", "feedback_log.json"
	default:
		http.Error(w, "unknown export format", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("failed to write feedback export", "error", err)
	}
}

func (h *Handler) renderFeedback(w http.ResponseWriter, r *http.Request, status int, data views.FeedbackData) {
	history, err := h.feedback.History()
	if err != nil {
		slog.Error("failed to load feedback history", "error", err)
	}
	data.History = history
	if data.Values == nil {
		data.Values = map[string][]string{}
	}
	render(w, r, status, views.FeedbackPage(data))
}

// parseRating reads the optional 1-5 rating. Blank and 0 mean unrated;
// anything unparsable is kept out of range so validation rejects it.
func parseRating(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		n = -1
	}
	return &n
}
