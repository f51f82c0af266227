package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/teachmate/internal/model"
)

// SaveDocument stores a document and its chunks, replacing any earlier
// document with the same filename.
func (s *Store) SaveDocument(doc model.Document, chunks []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var oldID string
	err = tx.QueryRow(`SELECT id FROM documents WHERE filename = ?`, doc.Filename).Scan(&oldID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("look up document: %w", err)
	default:
		if _, err := tx.Exec(`DELETE FROM chunks WHERE document_id = ?`, oldID); err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, oldID); err != nil {
			return fmt.Errorf("delete old document: %w", err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO documents (id, filename, kind, size, uploaded_by, uploaded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.Kind, doc.Size, doc.UploadedBy, doc.UploadedAt,
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO chunks (document_id, seq, text) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, c := range chunks {
		if _, err := stmt.Exec(doc.ID, i, c); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// ListDocuments returns all documents, newest first, with their chunk counts.
func (s *Store) ListDocuments() ([]model.Document, error) {
	rows, err := s.db.Query(
		`SELECT d.id, d.filename, d.kind, d.size, d.uploaded_by, d.uploaded_at, COUNT(c.id)
		 FROM documents d LEFT JOIN chunks c ON c.document_id = d.id
		 GROUP BY d.id ORDER BY d.uploaded_at DESC, d.filename`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.Kind, &d.Size, &d.UploadedBy, &d.UploadedAt, &d.Chunks); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetDocument returns a document by ID, or nil if there is none.
func (s *Store) GetDocument(id string) (*model.Document, error) {
	var d model.Document
	err := s.db.QueryRow(
		`SELECT d.id, d.filename, d.kind, d.size, d.uploaded_by, d.uploaded_at,
		        (SELECT COUNT(*) FROM chunks c WHERE c.document_id = d.id)
		 FROM documents d WHERE d.id = ?`, id,
	).Scan(&d.ID, &d.Filename, &d.Kind, &d.Size, &d.UploadedBy, &d.UploadedAt, &d.Chunks)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDocument removes a document and its chunks.
func (s *Store) DeleteDocument(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SearchChunks returns chunks containing any of the terms, case-insensitively,
// in document and sequence order. No terms means no results.
func (s *Store) SearchChunks(terms []string) ([]model.Chunk, error) {
	var conds []string
	var args []any
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		conds = append(conds, `lower(c.text) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(t)+"%")
	}
	if len(conds) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(
		`SELECT c.document_id, d.filename, c.seq, c.text
		 FROM chunks c JOIN documents d ON d.id = c.document_id
		 WHERE `+strings.Join(conds, " OR ")+`
		 ORDER BY d.uploaded_at, c.document_id, c.seq`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []model.Chunk
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(&c.DocumentID, &c.Filename, &c.Seq, &c.Text); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ChunkCount returns the total number of stored chunks.
func (s *Store) ChunkCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
