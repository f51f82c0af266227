// Package logstore persists feedback entries and user profiles as flat JSON
// files. Every change rewrites the whole file through a temporary file and a
// rename, so readers see either the old or the new collection.
package logstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// CorruptionError reports stored content that is not valid JSON or does not
// match the expected shape. Stores log it and continue with an empty collection.
type CorruptionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt store %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt store %s: %s", e.Path, e.Reason)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// jsonFile is one JSON document on disk checked against a schema on read.
type jsonFile struct {
	path   string
	schema *gojsonschema.Schema
}

func newJSONFile(path, schema string) (jsonFile, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return jsonFile{}, fmt.Errorf("compile schema for %s: %w", path, err)
	}
	return jsonFile{path: path, schema: s}, nil
}

// read decodes the file into v. It reports false when the file does not exist
// or is empty, and a *CorruptionError when the content is unusable.
func (f jsonFile) read(v any) (bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return false, nil
	}

	result, err := f.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return false, &CorruptionError{Path: f.path, Reason: "not valid JSON", Err: err}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return false, &CorruptionError{Path: f.path, Reason: strings.Join(msgs, "; ")}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, &CorruptionError{Path: f.path, Reason: "decode", Err: err}
	}
	return true, nil
}

// write replaces the file with the JSON encoding of v.
func (f jsonFile) write(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

// quarantine moves a corrupt file aside before it is overwritten, keeping
// the bad content for inspection.
func (f jsonFile) quarantine() {
	dst := f.path + ".corrupt"
	if err := os.Rename(f.path, dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not move corrupt store aside", "path", f.path, "error", err)
		return
	}
	slog.Warn("corrupt store moved aside", "path", f.path, "backup", dst)
}

// loadOrEmpty reads the file into v, treating corruption as an empty store.
// It reports whether the file was corrupt.
func (f jsonFile) loadOrEmpty(v any) (corrupt bool, err error) {
	_, err = f.read(v)
	var ce *CorruptionError
	if errors.As(err, &ce) {
		slog.Warn("store is corrupt, treating as empty", "path", f.path, "error", ce)
		return true, nil
	}
	return false, err
}
