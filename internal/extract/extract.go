// Package extract turns uploaded files into plain text for the analysis prompt.
package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
)

// MaxTextBytes caps the text taken from a single file.
const MaxTextBytes = 64 << 10

const truncatedMarker = "\n...[truncated]"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// File is an uploaded file stored on disk.
type File struct {
	Name     string // Original client-side name; selects the parser by extension.
	Path     string
	MimeType string // As reported by the client; may be empty.
	Size     int64
}

// Text extracts the content of f. Unsupported formats yield a one-line summary
// instead of an error.
func Text(f File) (string, error) {
	if strings.TrimSpace(f.Path) == "" {
		return "", errors.New("extract: missing file path")
	}
	var (
		text    string
		errText error
	)
	switch ext := strings.ToLower(filepath.Ext(f.Name)); ext {
	case ".xlsx", ".xlsm", ".xltx":
		text, errText = spreadsheet(f.Path)
	case ".csv":
		text, errText = csvText(f.Path)
	case ".txt", ".md", ".json", ".log", ".tsv", ".xml", ".yaml", ".yml":
		text, errText = plain(f.Path)
	default:
		return Summary(f), nil
	}
	if errText != nil {
		return "", fmt.Errorf("extract: %s: %w", f.Name, errText)
	}
	return truncate(text), nil
}

// Summary describes a file whose content is not extracted.
func Summary(f File) string {
	mime := strings.TrimSpace(f.MimeType)
	if mime == "" || mime == "application/octet-stream" {
		if detected, errDetect := mimetype.DetectFile(f.Path); errDetect == nil {
			mime = detected.String()
		}
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	size := f.Size
	if size <= 0 {
		if info, errStat := os.Stat(f.Path); errStat == nil {
			size = info.Size()
		}
	}
	return fmt.Sprintf("[%s file, size: %.2fKB]", mime, float64(size)/1024)
}

func spreadsheet(path string) (string, error) {
	book, errOpen := excelize.OpenFile(path)
	if errOpen != nil {
		return "", errOpen
	}
	defer func() { _ = book.Close() }()

	var b strings.Builder
	for _, sheet := range book.GetSheetList() {
		rows, errRows := book.GetRows(sheet)
		if errRows != nil {
			return "", fmt.Errorf("sheet %s: %w", sheet, errRows)
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Sheet: ")
		b.WriteString(sheet)
		b.WriteByte('\n')
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
		if b.Len() > MaxTextBytes {
			break
		}
	}
	return b.String(), nil
}

func csvText(path string) (string, error) {
	raw, errRead := os.ReadFile(path)
	if errRead != nil {
		return "", errRead
	}
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var b strings.Builder
	for {
		record, errRecord := reader.Read()
		if errors.Is(errRecord, io.EOF) {
			break
		}
		if errRecord != nil {
			return "", errRecord
		}
		b.WriteString(strings.Join(record, "\t"))
		b.WriteByte('\n')
		if b.Len() > MaxTextBytes {
			break
		}
	}
	return b.String(), nil
}

func plain(path string) (string, error) {
	file, errOpen := os.Open(path)
	if errOpen != nil {
		return "", errOpen
	}
	defer func() { _ = file.Close() }()
	raw, errRead := io.ReadAll(io.LimitReader(file, MaxTextBytes+1))
	if errRead != nil {
		return "", errRead
	}
	return string(bytes.TrimPrefix(raw, utf8BOM)), nil
}

// truncate cuts text to MaxTextBytes on a rune boundary.
func truncate(text string) string {
	if len(text) <= MaxTextBytes {
		return text
	}
	cut := MaxTextBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + truncatedMarker
}
