// Package extract reduces uploaded files to plain text for prompting:
// txt/markdown pass through, CSV and XLSX become row-per-line text, PDF and
// DOCX get their text layers pulled out.
package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// ErrUnsupported marks a file type outside the extraction allowlist.
var ErrUnsupported = errors.New("unsupported file type")

var allowedExtensions = map[string]struct{}{
	".txt": {}, ".text": {}, ".md": {}, ".markdown": {},
	".csv": {}, ".xlsx": {}, ".xls": {},
	".pdf":  {},
	".docx": {}, ".doc": {},
}

// Allowed reports whether the filename's extension is accepted for upload.
func Allowed(filename string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// AllowedList returns the accepted extensions for error messages.
func AllowedList() []string {
	out := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		out = append(out, ext)
	}
	return out
}

// Text converts file bytes to plain text, dispatching on the filename
// extension. Unknown extensions fall back to a UTF-8 passthrough when the
// bytes look like text.
func Text(data []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	log.Debug().Str("filename", filename).Str("ext", ext).Int("bytes", len(data)).Msg("extracting text")

	switch ext {
	case ".txt", ".text", ".md", ".markdown":
		return plainText(data)
	case ".csv":
		return csvText(data)
	case ".xlsx", ".xls":
		return xlsxText(data)
	case ".pdf":
		return pdfText(data)
	case ".docx", ".doc":
		return docxText(data)
	default:
		if utf8.Valid(data) {
			return plainText(data)
		}
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

func plainText(data []byte) (string, error) {
	s := strings.TrimPrefix(string(data), "\ufeff")
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("file is not valid UTF-8 text")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("file contains no text")
	}
	return s, nil
}

func csvText(data []byte) (string, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}
	var sb strings.Builder
	for _, row := range rows {
		sb.WriteString(strings.Join(row, "\t"))
		sb.WriteByte('\n')
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("csv contains no rows")
	}
	return out, nil
}
