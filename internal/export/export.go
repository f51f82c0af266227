// Package export turns generated text into downloadable documents.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Format is an export file format.
type Format string

const (
	FormatDOCX Format = "docx"
	FormatTXT  Format = "txt"
)

// ErrUnknownFormat is returned for formats the exporter cannot produce.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat returns the format with the given name; empty means DOCX.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "docx":
		return FormatDOCX, nil
	case "txt", "text":
		return FormatTXT, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatTXT:
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

// Document is the input of an export: a heading and a plain-text body.
// Generated is printed under the heading when non-zero; it is never filled
// in by the exporter so that output depends only on the input.
type Document struct {
	Title     string
	Body      string
	Generated time.Time
}

// Render produces the document bytes in the given format.
func Render(doc Document, format Format) ([]byte, error) {
	switch format {
	case FormatDOCX:
		var buf bytes.Buffer
		if err := WriteDOCX(&buf, doc); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatTXT:
		return renderText(doc), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Filename builds "{subject}_{kind}.{ext}" with spaces replaced by underscores.
func Filename(subject, kind string, format Format) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "teachmate"
	}
	name := strings.ReplaceAll(subject+"_"+kind, " ", "_")
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, name)
	return name + "." + string(format)
}

// Paragraphs splits body into paragraphs, one per line. Blank lines are kept
// as empty paragraphs so the newline structure survives the export.
func Paragraphs(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.TrimRight(body, "\n")
	if body == "" {
		return nil
	}
	return strings.Split(body, "\n")
}

func renderText(doc Document) []byte {
	var b strings.Builder
	b.WriteString(doc.Title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", len([]rune(doc.Title))))
	b.WriteString("\n")
	if !doc.Generated.IsZero() {
		b.WriteString("Generated: " + doc.Generated.UTC().Format(time.RFC3339) + "\n")
	}
	b.WriteString("\n")
	for _, p := range Paragraphs(doc.Body) {
		b.WriteString(p)
		b.WriteString("\n")
	}
	return []byte(b.String())
}
