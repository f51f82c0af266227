package handler

import (
	"log/slog"
	"net/http"

	"github.com/pavelanni/teachmate/internal/handler/views"
	"github.com/pavelanni/teachmate/internal/model"
)

func (h *Handler) handleProfilePage(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Get(username(r.Context()))
	if err != nil {
		slog.Error("failed to load profile", "username", username(r.Context()), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	render(w, r, http.StatusOK, views.ProfilePage(views.ProfileData{Profile: profile}))
}

func (h *Handler) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	profile := model.UserProfile{
		Username:    username(r.Context()),
		FullName:    r.FormValue("full_name"),
		Email:       r.FormValue("email"),
		Role:        r.FormValue("role"),
		Institution: r.FormValue("institution"),
	}

	if err := h.orch.Validator().CheckProfile(profile); err != nil {
		status, msg := failure(r.Context(), err)
		logFailure(r, status, err)
		render(w, r, status, views.ProfilePage(views.ProfileData{
			Profile:     profile,
			Error:       msg,
			FieldErrors: fieldErrors(err),
		}))
		return
	}
	if err := h.profiles.Upsert(profile); err != nil {
		slog.Error("failed to save profile", "username", profile.Username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.Info("profile saved", "username", profile.Username)

	saved, err := h.profiles.Get(profile.Username)
	if err != nil {
		saved = profile
	}
	render(w, r, http.StatusOK, views.ProfilePage(views.ProfileData{Profile: saved, Saved: true}))
}
