// Package extractor turns a statement PDF into one text string per page.
package extractor

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned when a PDF opens but yields no readable text,
// typically a scanned statement. Callers treat it as a statement with no
// transactions rather than a failure.
var ErrNoText = errors.New("no readable text in PDF")

// PageBreak separates pages in pre-extracted text sent by clients.
const PageBreak = "\n---PAGE_BREAK---\n"

// ExtractFile opens a PDF on disk and extracts its pages.
func ExtractFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return ExtractPages(f, st.Size())
}

// ExtractPages reads a PDF and returns the text of each page, trying the
// library's extraction methods in order of layout fidelity until one
// yields readable text.
func ExtractPages(r io.ReaderAt, size int64) (pages []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("PDF library crashed: %v", rec)
		}
	}()

	rd, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("read PDF: %w", err)
	}

	numPages := rd.NumPage()
	if numPages == 0 {
		return nil, ErrNoText
	}

	methods := []func(*pdf.Reader, int) []string{
		extractByRow,
		extractByContent,
		extractByPagePlainText,
		extractByReaderPlainText,
	}
	for _, extract := range methods {
		if pages := extract(rd, numPages); IsReadable(pages) {
			return pages, nil
		}
	}
	return nil, ErrNoText
}

// SplitPages splits client-extracted text on PageBreak, dropping empty
// pages.
func SplitPages(text string) []string {
	var pages []string
	for _, page := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), PageBreak) {
		if page = strings.TrimSpace(page); page != "" {
			pages = append(pages, page)
		}
	}
	return pages
}

// statementWords appear in virtually every card statement. Text with none
// of them is almost certainly a mis-decoded font.
var statementWords = []string{
	"statement", "account", "balance", "payment", "purchase", "credit",
	"card", "transaction", "amount", "date", "closing", "minimum", "due",
	"interest", "page",
}

// IsReadable reports whether pages hold enough mostly-ASCII text with at
// least one word expected on a card statement.
func IsReadable(pages []string) bool {
	if totalTextLen(pages) <= 50 || textQuality(pages) <= 0.6 {
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

// textQuality is the share of characters that are plain ASCII letters,
// digits, whitespace or common punctuation. unicode.IsLetter is too broad:
// identity-encoded fonts decode to accented garbage.
func textQuality(pages []string) float64 {
	total, readable := 0, 0
	for _, page := range pages {
		for _, r := range page {
			total++
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) ||
				strings.ContainsRune(".,-/:;()'\"$%&@#!?+=*", r)) {
				readable++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

func totalTextLen(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p))
	}
	return n
}

// extractByRow uses the library's row grouping, which keeps the
// date / description / amount columns on one line.
func extractByRow(r *pdf.Reader, numPages int) []string {
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			pages = append(pages, "")
			continue
		}
		var lines []string
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
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

type textItem struct {
	x float64
	s string
}

// extractByContent rebuilds rows from raw text objects grouped by their Y
// coordinate, then orders each row left to right.
func extractByContent(r *pdf.Reader, numPages int) []string {
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		rowMap := make(map[int][]textItem)
		for _, t := range page.Content().Text {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			y := int(math.Round(t.Y))
			rowMap[y] = append(rowMap[y], textItem{x: t.X, s: t.S})
		}
		pages = append(pages, joinRows(rowMap))
	}
	return pages
}

// joinRows renders rows top to bottom (PDF Y grows upwards). A wide gap
// between neighbouring items becomes a column separator.
func joinRows(rowMap map[int][]textItem) string {
	ys := make([]int, 0, len(rowMap))
	for y := range rowMap {
		ys = append(ys, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ys)))

	lines := make([]string, 0, len(ys))
	for _, y := range ys {
		items := rowMap[y]
		sort.Slice(items, func(a, b int) bool { return items[a].x < items[b].x })

		var sb strings.Builder
		for j, item := range items {
			if j > 0 && item.x-items[j-1].x > 15 {
				sb.WriteString("  ")
			}
			sb.WriteString(item.s)
		}
		if line := strings.TrimSpace(sb.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func extractByPagePlainText(r *pdf.Reader, numPages int) []string {
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			f := page.Font(name)
			fonts[name] = &f
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages
}

// extractByReaderPlainText is the last resort; it loses page boundaries
// and returns the whole document as one page.
func extractByReaderPlainText(r *pdf.Reader, _ int) []string {
	reader, err := r.GetPlainText()
	if err != nil {
		return nil
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil
	}
	return []string{strings.TrimSpace(string(data))}
}
