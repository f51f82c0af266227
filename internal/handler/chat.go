package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pavelanni/teachmate/internal/handler/views"
	"github.com/pavelanni/teachmate/internal/orchestrator"
)

type chatStatus struct {
	Pending bool `json:"pending"`
	Turns   int  `json:"turns"`
}

func (h *Handler) handleChatPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, views.ChatPage(chatData(sessionFrom(r).state)))
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r).state
	message := r.FormValue("message")

	_, err := h.orch.Chat(r.Context(), sess, message)
	var gerr *orchestrator.GenerationError
	if err != nil && !errors.As(err, &gerr) {
		status, msg := failure(r.Context(), err)
		logFailure(r, status, err)
		data := chatData(sess)
		data.Error = msg
		data.Draft = message
		render(w, r, status, views.ChatPage(data))
		return
	}

	// A failed backend call is recorded in the turn itself.
	if !isHTMX(r) {
		http.Redirect(w, r, h.path("/chat"), http.StatusSeeOther)
		return
	}
	render(w, r, http.StatusOK, views.ChatPage(chatData(sess)))
}

func (h *Handler) handleChatClear(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r).state
	if err := sess.ClearChat(); err != nil {
		status, msg := failure(r.Context(), err)
		logFailure(r, status, err)
		data := chatData(sess)
		data.Error = msg
		render(w, r, status, views.ChatPage(data))
		return
	}
	slog.Info("chat cleared", "username", username(r.Context()))
	if !isHTMX(r) {
		http.Redirect(w, r, h.path("/chat"), http.StatusSeeOther)
		return
	}
	render(w, r, http.StatusOK, views.ChatPage(chatData(sess)))
}

func (h *Handler) handleChatStatus(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r).state
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(chatStatus{Pending: sess.Pending(), Turns: len(sess.Turns())}); err != nil {
		slog.Error("failed to encode chat status", "error", err)
	}
}

func chatData(sess *orchestrator.Session) views.ChatData {
	return views.ChatData{Turns: sess.Turns(), Pending: sess.Pending()}
}
