// Package textsource acquires plain text from uploaded documents.
//
// Sources are the collaborators that sit in front of the extraction engine:
// they turn an uploaded file (plain text, PDF, or a canned sample) into the
// decoded UTF-8 text the engine consumes. They may block on disk or
// subprocesses; the engine never does.
package textsource

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// ErrUnsupported is returned when no source can handle a document.
var ErrUnsupported = errors.New("unsupported document format")

// Document is one uploaded file.
type Document struct {
	Name string // original file name, used for format detection and export naming
	Data []byte
}

// Source turns a document into text.
type Source interface {
	Text(ctx context.Context, doc Document) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, doc Document) (string, error)

// Text calls f.
func (f SourceFunc) Text(ctx context.Context, doc Document) (string, error) {
	return f(ctx, doc)
}

var pdfMagic = []byte("%PDF-")

// IsPDF reports whether the document looks like a PDF, by content or name.
func IsPDF(doc Document) bool {
	if bytes.HasPrefix(bytes.TrimLeft(doc.Data, "\x00\t\r\n "), pdfMagic) {
		return true
	}
	return strings.EqualFold(filepath.Ext(doc.Name), ".pdf")
}

// Auto dispatches PDFs to PDF and everything else to Plain.
type Auto struct {
	PDF   Source
	Plain Source
}

// Text implements Source.
func (a Auto) Text(ctx context.Context, doc Document) (string, error) {
	if IsPDF(doc) {
		if a.PDF == nil {
			return "", ErrUnsupported
		}
		return a.PDF.Text(ctx, doc)
	}
	if a.Plain == nil {
		return "", ErrUnsupported
	}
	return a.Plain.Text(ctx, doc)
}

// Normalize prepares acquired text for the engine: strips a UTF-8 BOM,
// converts line endings to "\n", turns form feeds (page breaks) into blank
// lines, and composes accents to NFC so "Proprietário" matches whether the
// text layer stored "á" precomposed or decomposed.
func Normalize(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\f", "\n\n")
	return norm.NFC.String(text)
}

// decodeText returns data as UTF-8. Bytes that are not valid UTF-8 are
// treated as Windows-1252, the usual encoding of spreadsheet and ERP exports.
func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
