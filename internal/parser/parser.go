package parser

import (
	"archive/zip"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"multilingual-rag/internal/models"
)

var (
	xmlTagRe   = regexp.MustCompile(`<[^>]+>`)
	slideRe    = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	docxParaRe = regexp.MustCompile(`</w:p>`)
)

// Ingest extracts the document text and slices it into fixed-size chunks.
// Each non-empty page or section is trimmed and followed by separator.
func Ingest(filePath string, chunkSize int, separator string) ([]models.Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	segments, err := ExtractSegments(filePath)
	if err != nil {
		return nil, err
	}
	text := JoinSegments(segments, separator)
	chunks := ChunkText(text, chunkSize)
	log.Info().
		Str("file", filePath).
		Int("segments", len(segments)).
		Int("characters", len([]rune(text))).
		Int("chunks", len(chunks)).
		Msg("Ingested document")
	return chunks, nil
}

// ExtractSegments returns the text of each page (or section) of the document
// in reading order. Segments that cannot be extracted are skipped.
func ExtractSegments(filePath string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return parsePDF(filePath)
	case ".docx":
		return parseDOCX(filePath)
	case ".pptx":
		return parsePPTX(filePath)
	case ".xlsx":
		return parseXLSX(filePath)
	case ".xlsm":
		return parseXLSM(filePath)
	case ".md", ".markdown":
		return parseMarkdown(filePath)
	case ".txt":
		return parseText(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

// JoinSegments concatenates the trimmed, non-empty segments, each followed by
// sep. Invalid UTF-8 is replaced with U+FFFD so the result chunks losslessly.
func JoinSegments(segments []string, sep string) string {
	var b strings.Builder
	for _, s := range segments {
		s = strings.TrimSpace(strings.ToValidUTF8(s, "\uFFFD"))
		if s == "" {
			continue
		}
		b.WriteString(s)
		b.WriteString(sep)
	}
	return b.String()
}

// ChunkText slices valid UTF-8 text into consecutive chunks of size
// characters. Only the last chunk may be shorter; no characters are dropped
// or repeated.
func ChunkText(text string, size int) []models.Chunk {
	if size <= 0 || text == "" {
		return nil
	}
	runes := []rune(text)
	chunks := make([]models.Chunk, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, models.Chunk{
			Index:   len(chunks),
			Content: string(runes[start:end]),
		})
	}
	return chunks
}

func parsePDF(filePath string) (segments []string, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	// the pdf package panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			segments, err = nil, fmt.Errorf("failed to read pdf %s: %v", filePath, r)
		}
	}()

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf %s: %w", filePath, err)
	}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		text, err := pageText(reader, i)
		if err != nil {
			log.Warn().Err(err).Int("page", i).Msg("Skipping page")
			continue
		}
		segments = append(segments, text)
	}
	return segments, nil
}

func pageText(reader *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page %d: %v", num, r)
		}
	}()
	page := reader.Page(num)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func parseDOCX(filePath string) ([]string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var segments []string
	for _, p := range docxParaRe.Split(content, -1) {
		text := stripXML(p)
		if strings.TrimSpace(text) == "" {
			continue
		}
		segments = append(segments, text)
	}
	return segments, nil
}

func parsePPTX(filePath string) ([]string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		m := slideRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: num, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var segments []string
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			log.Warn().Err(err).Int("slide", s.num).Msg("Skipping slide")
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			log.Warn().Err(err).Int("slide", s.num).Msg("Skipping slide")
			continue
		}
		segments = append(segments, extractTextFromXML(string(data)))
	}
	return segments, nil
}

func parseXLSX(filePath string) ([]string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var segments []string
	for _, sheet := range f.Sheets {
		rows := make([][]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		segments = append(segments, sheetText(sheet.Name, rows))
	}
	return segments, nil
}

func parseXLSM(filePath string) ([]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var segments []string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			log.Warn().Err(err).Str("sheet", name).Msg("Skipping sheet")
			continue
		}
		segments = append(segments, sheetText(name, rows))
	}
	return segments, nil
}

func parseText(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []string{string(data)}, nil
}

// sheetText renders a sheet as tab separated rows under a title line.
func sheetText(name string, rows [][]string) string {
	var text strings.Builder
	fmt.Fprintf(&text, "Sheet: %s\n", name)
	empty := true
	for _, row := range rows {
		line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
		if line == "" {
			continue
		}
		empty = false
		text.WriteString(line)
		text.WriteString("\n")
	}
	if empty {
		return ""
	}
	return text.String()
}

func stripXML(s string) string {
	return html.UnescapeString(xmlTagRe.ReplaceAllString(s, ""))
}

func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		endIdx := strings.Index(part, "</a:t>")
		if endIdx >= 0 {
			text.WriteString(html.UnescapeString(part[:endIdx]) + " ")
		}
	}
	return text.String()
}
