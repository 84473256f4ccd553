// Package tabular renders owner records for spreadsheet tools.
package tabular

import (
	"io"
	"strings"

	"github.com/hurttlocker/ownerscan/internal/extract"
)

// Header labels, in the product locale (pt-BR).
const (
	HeaderName  = "Nome do Proprietário"
	HeaderPhone = "Celular"
)

// CSVContentType is the media type for CSV downloads.
const CSVContentType = "text/csv; charset=utf-8"

// FormatCSV renders records as comma-separated text. The header row is always
// present, rows are joined with "\n", and there is no trailing newline.
func FormatCSV(records []extract.Record) string {
	var b strings.Builder
	writeRow(&b, HeaderName, HeaderPhone)
	for _, r := range records {
		b.WriteByte('\n')
		writeRow(&b, r.Name, r.Phone)
	}
	return b.String()
}

// WriteCSV writes FormatCSV output to w.
func WriteCSV(w io.Writer, records []extract.Record) error {
	_, err := io.WriteString(w, FormatCSV(records))
	return err
}

func writeRow(b *strings.Builder, cells ...string) {
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(EscapeCell(c))
	}
}

// EscapeCell quotes a cell only when it holds a comma, a double quote, or a
// line break; embedded quotes are doubled.
func EscapeCell(cell string) string {
	if !strings.ContainsAny(cell, ",\"\n\r") {
		return cell
	}
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}

// DownloadName derives the export file name from the uploaded document name:
// "lista.pdf" becomes "lista_proprietarios.csv".
func DownloadName(source, ext string) string {
	base := source
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	base = strings.TrimSpace(base)
	if base == "" {
		base = "proprietarios"
	} else {
		base += "_proprietarios"
	}
	if ext == "" {
		ext = "csv"
	}
	return base + "." + strings.TrimPrefix(ext, ".")
}
