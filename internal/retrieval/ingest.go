package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/teachmate/internal/model"
)

// Upload errors. ErrUnreadableFile marks content that does not parse as its kind.
var (
	ErrFileTooLarge   = errors.New("file too large")
	ErrNoText         = errors.New("no text found in document")
	ErrBadFilename    = errors.New("invalid file name")
	ErrUnreadableFile = errors.New("unreadable document")
)

// DocumentStore persists documents with their chunks.
type DocumentStore interface {
	SaveDocument(doc model.Document, chunks []string) error
	GetDocument(id string) (*model.Document, error)
	DeleteDocument(id string) error
}

// Ingestor saves uploads under a directory and indexes their text.
type Ingestor struct {
	dir       string
	docs      DocumentStore
	maxBytes  int64
	chunkSize int
	now       func() time.Time
}

// NewIngestor returns an ingestor writing into dir. maxBytes <= 0 disables
// the size limit.
func NewIngestor(dir string, docs DocumentStore, maxBytes int64) *Ingestor {
	return &Ingestor{
		dir:       dir,
		docs:      docs,
		maxBytes:  maxBytes,
		chunkSize: DefaultChunkSize,
		now:       time.Now,
	}
}

// KindFromFilename maps a file extension to a document kind.
func KindFromFilename(name string) (model.DocumentKind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return model.DocumentPDF, nil
	case ".docx":
		return model.DocumentDOCX, nil
	case ".txt":
		return model.DocumentTXT, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFile, filepath.Ext(name))
}

// CleanFilename reduces an uploaded filename, which may carry a client path
// with either separator, to the base name documents are stored under.
func CleanFilename(filename string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(filename, `\`, "/")))
	if name == "/" || name == "." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrBadFilename, filename)
	}
	return name, nil
}

// Ingest stores data under its base filename, extracts and chunks the text,
// and records the document. Nothing is left on disk if any step fails.
func (in *Ingestor) Ingest(ctx context.Context, filename string, data []byte, user string) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return model.Document{}, err
	}

	name, err := CleanFilename(filename)
	if err != nil {
		return model.Document{}, err
	}
	kind, err := KindFromFilename(name)
	if err != nil {
		return model.Document{}, err
	}
	if in.maxBytes > 0 && int64(len(data)) > in.maxBytes {
		return model.Document{}, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(data), in.maxBytes)
	}

	if err := os.MkdirAll(in.dir, 0o755); err != nil {
		return model.Document{}, fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(in.dir, name)
	tmp := filepath.Join(in.dir, "."+name+".upload")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return model.Document{}, fmt.Errorf("save upload: %w", err)
	}
	defer func() { _ = os.Remove(tmp) }()

	doc, err := in.index(name, kind, data, user)
	if err != nil {
		return model.Document{}, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = in.docs.DeleteDocument(doc.ID)
		return model.Document{}, fmt.Errorf("save upload: %w", err)
	}
	slog.Info("document ingested", "filename", doc.Filename, "kind", doc.Kind, "size", doc.Size, "chunks", doc.Chunks, "user", user)
	return doc, nil
}

func (in *Ingestor) index(name string, kind model.DocumentKind, data []byte, user string) (model.Document, error) {
	text, err := ExtractText(kind, data)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFile) {
			return model.Document{}, fmt.Errorf("extract text from %s: %w", name, err)
		}
		return model.Document{}, fmt.Errorf("%w: %s: %w", ErrUnreadableFile, name, err)
	}
	chunks := SplitChunks(text, in.chunkSize)
	if len(chunks) == 0 {
		return model.Document{}, fmt.Errorf("%w: %s", ErrNoText, name)
	}

	doc := model.Document{
		ID:         uuid.NewString(),
		Filename:   name,
		Kind:       kind,
		Size:       int64(len(data)),
		Chunks:     len(chunks),
		UploadedBy: user,
		UploadedAt: in.now().UTC(),
	}
	if err := in.docs.SaveDocument(doc, chunks); err != nil {
		return model.Document{}, fmt.Errorf("index %s: %w", name, err)
	}
	return doc, nil
}

// Remove deletes a document, its chunks and its saved file.
func (in *Ingestor) Remove(id string) error {
	doc, err := in.docs.GetDocument(id)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	if doc == nil {
		return nil
	}
	if err := in.docs.DeleteDocument(id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	path := filepath.Join(in.dir, doc.Filename)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove upload", "path", path, "error", err)
	}
	slog.Info("document removed", "filename", doc.Filename)
	return nil
}
