package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/teachmate/internal/handler/views"
	appI18n "github.com/pavelanni/teachmate/internal/i18n"
	"github.com/pavelanni/teachmate/internal/model"
	"github.com/pavelanni/teachmate/internal/retrieval"
)

// uploadHashPrefix namespaces upload hashes in the metadata table.
const uploadHashPrefix = "upload:"

func (h *Handler) maxUploadBytes() int64 {
	if h.config.MaxUploadMB <= 0 {
		return 10 << 20
	}
	return h.config.MaxUploadMB << 20
}

func (h *Handler) handleDocumentsPage(w http.ResponseWriter, r *http.Request) {
	h.renderDocuments(w, r, http.StatusOK, views.DocumentsData{})
}

func (h *Handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUploadBytes()); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.documentFailure(w, r, retrieval.ErrFileTooLarge)
			return
		}
		slog.Warn("bad upload form", "error", err)
		h.renderDocuments(w, r, http.StatusBadRequest, views.DocumentsData{
			Error: appI18n.T(r.Context(), "ErrNoFile"),
		})
		return
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		h.renderDocuments(w, r, http.StatusBadRequest, views.DocumentsData{
			Error: appI18n.T(r.Context(), "ErrNoFile"),
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes()+1))
	if err != nil {
		slog.Error("failed to read upload", "filename", header.Filename, "error", err)
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	name, err := retrieval.CleanFilename(header.Filename)
	if err != nil {
		h.documentFailure(w, r, err)
		return
	}
	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	storedHash, err := h.store.GetImportedFileHash(uploadHashPrefix + name)
	if err != nil {
		slog.Error("failed to check upload status", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if storedHash == hash {
		h.renderDocuments(w, r, http.StatusOK, views.DocumentsData{
			Notice: appI18n.T(r.Context(), "UploadDuplicate"),
		})
		return
	}

	doc, err := h.ingestor.Ingest(r.Context(), name, data, username(r.Context()))
	if err != nil {
		h.documentFailure(w, r, err)
		return
	}

	if err := h.store.SetImportedFileHash(uploadHashPrefix+doc.Filename, hash); err != nil {
		slog.Error("failed to record upload", "error", err)
	}

	h.renderDocuments(w, r, http.StatusOK, views.DocumentsData{
		Notice: appI18n.Td(r.Context(), "UploadDone", map[string]any{"Name": doc.Filename}) + " " +
			appI18n.Tp(r.Context(), "ChunksStored", doc.Chunks),
	})
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "docID")
	doc, err := h.store.GetDocument(id)
	if err != nil {
		slog.Error("failed to get document", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.NotFound(w, r)
		return
	}
	if err := h.ingestor.Remove(id); err != nil {
		slog.Error("failed to delete document", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	// Forget the hash so the same file can be uploaded again.
	if err := h.store.SetImportedFileHash(uploadHashPrefix+doc.Filename, ""); err != nil {
		slog.Error("failed to reset upload hash", "filename", doc.Filename, "error", err)
	}
	slog.Info("document deleted", "filename", doc.Filename, "username", username(r.Context()))

	if !isHTMX(r) {
		http.Redirect(w, r, h.path("/documents"), http.StatusSeeOther)
		return
	}
	h.renderDocuments(w, r, http.StatusOK, views.DocumentsData{})
}

func (h *Handler) documentFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := failure(r.Context(), err)
	logFailure(r, status, err)
	h.renderDocuments(w, r, status, views.DocumentsData{Error: msg})
}

func (h *Handler) renderDocuments(w http.ResponseWriter, r *http.Request, status int, data views.DocumentsData) {
	docs, err := h.store.ListDocuments()
	if err != nil {
		slog.Error("failed to list documents", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	data.Documents = docs
	data.MaxUploadMB = h.maxUploadBytes() >> 20
	render(w, r, status, views.DocumentsPage(data))
}

func (h *Handler) handleQAPage(w http.ResponseWriter, r *http.Request) {
	h.renderQA(w, r, http.StatusOK, views.QAData{})
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	question := r.FormValue("question")
	_, err := h.orch.Ask(r.Context(), sessionFrom(r).state, model.QARequest{Question: question})
	if err != nil {
		status, msg := failure(r.Context(), err)
		logFailure(r, status, err)
		h.renderQA(w, r, status, views.QAData{Question: question, Error: msg})
		return
	}
	h.renderQA(w, r, http.StatusOK, views.QAData{})
}

func (h *Handler) renderQA(w http.ResponseWriter, r *http.Request, status int, data views.QAData) {
	count, err := h.store.ChunkCount()
	if err != nil {
		slog.Error("failed to count chunks", "error", err)
	}
	data.Chunks = count
	if res, ok := sessionFrom(r).state.LastAnswer(); ok {
		data.Answer = &views.Answer{
			Question:      res.Question,
			Text:          res.Answer,
			Context:       res.Context,
			FromDocuments: res.FromDocuments(),
			GeneratedAt:   res.GeneratedAt,
		}
		if data.Question == "" {
			data.Question = res.Question
		}
	}
	render(w, r, status, views.QAPage(data))
}
