// Package pdftext turns statement PDFs into per-page text. It layers
// several extraction strategies: the structured ledongthuc/pdf reader
// first (row grouping, coordinate reconstruction, plain text), then a
// raw content-stream scan with ToUnicode CMap decoding for files the
// library cannot digest. Garbage output never leaves the package; a
// readability gate rejects binary noise and scanned images.
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/insightdelivered/statement-extractor/internal/metrics"
)

var (
	// ErrPasswordRequired means the PDF is encrypted and no password
	// was supplied.
	ErrPasswordRequired = errors.New("pdf is encrypted and requires a password")
	// ErrWrongPassword means every supplied password candidate was
	// rejected. Passwords are case-sensitive.
	ErrWrongPassword = errors.New("pdf password is incorrect")
	// ErrNoTextContent means the file opened but produced no readable
	// text, usually a scanned or image-only statement.
	ErrNoTextContent = errors.New("no readable text in pdf; the file may be scanned or image-based")
	// ErrNoPages means the document tree holds zero pages.
	ErrNoPages = errors.New("pdf has no pages")
)

// ExtractPages returns the readable text of each page, in order.
// Encrypted documents are opened with the supplied password, retrying
// with surrounding whitespace stripped before giving up.
func ExtractPages(data []byte, password string) ([]string, error) {
	r, err := open(data, password)
	if err != nil {
		return nil, err
	}

	pages, libErr := libraryPages(r)
	if libErr == nil && readable(pages) {
		metrics.PagesExtracted.Add(float64(len(pages)))
		return pages, nil
	}

	// The raw scan ignores the document structure entirely, so it can
	// recover text from files whose xref or font tables are broken.
	if raw := rawScan(data); readable(raw) {
		metrics.PagesExtracted.Add(float64(len(raw)))
		return raw, nil
	}

	if libErr != nil {
		return nil, fmt.Errorf("pdf text extraction failed: %w", libErr)
	}
	return nil, ErrNoTextContent
}

// open builds a reader, feeding password candidates to the decryptor.
// The library tries the empty user password on its own, so candidates
// only cover the caller-supplied secret and its trimmed form.
func open(data []byte, password string) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("malformed pdf: %v", p)
		}
	}()

	candidates := passwordCandidates(password)
	next := 0
	pw := func() string {
		if next >= len(candidates) {
			return ""
		}
		c := candidates[next]
		next++
		return c
	}

	r, err = pdf.NewReaderEncrypted(bytes.NewReader(data), int64(len(data)), pw)
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			if password == "" {
				return nil, ErrPasswordRequired
			}
			return nil, ErrWrongPassword
		}
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return r, nil
}

func passwordCandidates(password string) []string {
	if password == "" {
		return nil
	}
	candidates := []string{password}
	if trimmed := strings.TrimSpace(password); trimmed != "" && trimmed != password {
		candidates = append(candidates, trimmed)
	}
	return candidates
}

func numPages(r *pdf.Reader) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	return r.NumPage()
}

func isEncrypted(r *pdf.Reader) bool {
	return !r.Trailer().Key("Encrypt").IsNull()
}

// libraryPages walks the structured extraction methods from best
// layout fidelity to worst, returning the first readable result.
func libraryPages(r *pdf.Reader) (pages []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			pages, err = nil, fmt.Errorf("pdf reader crashed: %v", p)
		}
	}()

	n := r.NumPage()
	if n == 0 {
		return nil, ErrNoPages
	}

	if pages = pagesByRow(r, n); readable(pages) {
		return pages, nil
	}
	if pages = pagesByContent(r, n); readable(pages) {
		return pages, nil
	}
	if pages = pagesByPlainText(r, n); readable(pages) {
		return pages, nil
	}
	if text := documentPlainText(r); readable([]string{text}) {
		return []string{text}, nil
	}
	return pages, nil
}

// pagesByRow uses GetTextByRow, which keeps table rows intact on
// well-formed statements.
func pagesByRow(r *pdf.Reader, n int) []string {
	var pages []string
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			var parts []string
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// pagesByContent rebuilds rows from raw text positions: fragments
// share a row when their Y coordinates round to the same integer,
// then sort left to right. A horizontal gap wider than 15 units is
// treated as a column boundary.
func pagesByContent(r *pdf.Reader, n int) []string {
	type fragment struct {
		x float64
		s string
	}
	var pages []string
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		if len(content.Text) == 0 {
			continue
		}

		rows := make(map[int][]fragment)
		for _, t := range content.Text {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			y := int(math.Round(t.Y))
			rows[y] = append(rows[y], fragment{x: t.X, s: t.S})
		}

		// PDF Y runs bottom to top.
		ys := make([]int, 0, len(rows))
		for y := range rows {
			ys = append(ys, y)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(ys)))

		var lines []string
		for _, y := range ys {
			frags := rows[y]
			sort.Slice(frags, func(a, b int) bool { return frags[a].x < frags[b].x })

			var sb strings.Builder
			var prevX float64
			for j, f := range frags {
				if j > 0 && f.x-prevX > 15 {
					sb.WriteString("  ")
				}
				sb.WriteString(f.s)
				prevX = f.x
			}
			if line := strings.TrimSpace(sb.String()); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// pagesByPlainText decodes each page through its font maps.
func pagesByPlainText(r *pdf.Reader, n int) []string {
	var pages []string
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			f := page.Font(name)
			fonts[name] = &f
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return pages
}

// documentPlainText extracts the whole document through the reader's
// own text path, losing page boundaries.
func documentPlainText(r *pdf.Reader) string {
	reader, err := r.GetPlainText()
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// statementWords are terms at least one of which shows up in any
// Indian bank statement. Text with none of them is decoder garbage.
var statementWords = []string{
	"bank", "account", "balance", "date", "statement", "transaction",
	"credit", "debit", "amount", "total", "branch", "ifsc", "upi",
	"customer", "opening", "closing", "period", "number", "page",
}

// readable accepts pages only when they carry enough text, the bulk
// of it is plain ASCII, and at least one statement term appears.
// Identity-encoded fonts decode into accented noise that passes
// unicode.IsPrint, hence the strict ASCII ratio.
func readable(pages []string) bool {
	total := 0
	ascii := 0
	for _, page := range pages {
		for _, r := range page {
			total++
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
				(r >= '0' && r <= '9') || unicode.IsSpace(r) ||
				strings.ContainsRune(`.,-/:;()'"%&@#!?+=*₹`, r) {
				ascii++
			}
		}
	}
	if textLength(pages) <= 50 {
		return false
	}
	if float64(ascii)/float64(total) <= 0.6 {
		return false
	}

	combined := strings.ToLower(strings.Join(pages, " "))
	for _, w := range statementWords {
		if strings.Contains(combined, w) {
			return true
		}
	}
	return false
}

func textLength(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p))
	}
	return n
}
