package services

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"multimodal-rag-platform/internal/logger"
	"multimodal-rag-platform/models"
	"multimodal-rag-platform/utils"
)

// ExtractionOutput is everything one document yields: ordered content chunks
// plus the paths of picture artifacts materialized next to the document.
type ExtractionOutput struct {
	Chunks []models.Chunk
	Images []string
}

// formatAdapter converts one file format into chunks on the builder.
type formatAdapter func(path string, b *docBuilder) error

// Extractor routes documents to per-format adapters by extension.
type Extractor struct {
	adapters      map[string]formatAdapter
	includeDigest bool
}

// NewExtractor builds the format dispatch table. includeDigest appends a
// full-document digest chunk so broad queries can match whole-document context.
func NewExtractor(includeDigest bool) *Extractor {
	e := &Extractor{
		adapters:      make(map[string]formatAdapter),
		includeDigest: includeDigest,
	}

	e.adapters[".pdf"] = extractPDF
	e.adapters[".txt"] = extractPlainText
	e.adapters[".csv"] = extractCSV
	e.adapters[".html"] = extractHTML
	e.adapters[".htm"] = extractHTML
	e.adapters[".xlsx"] = extractExcel
	e.adapters[".docx"] = extractDocx
	e.adapters[".pptx"] = extractPptx
	e.adapters[".odt"] = extractODT

	// Legacy binary formats need an external converter we don't ship.
	// They stay in the dispatch table so callers get a precise reason
	// instead of a generic unsupported-extension error.
	for _, ext := range []string{".doc", ".xls", ".ppt", ".rtf", ".msg"} {
		e.adapters[ext] = extractLegacyUnsupported
	}

	return e
}

// Extract parses one document into chunks. Table CSV exports and picture PNGs
// are written under artifactDir. A failure here is scoped to this document;
// callers record it and move on to the next file.
func (e *Extractor) Extract(path, artifactDir string) (*ExtractionOutput, error) {
	ext := strings.ToLower(filepath.Ext(path))
	adapter, ok := e.adapters[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported document format %q", ext)
	}

	b := newDocBuilder(path, artifactDir)
	if err := adapter(path, b); err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", filepath.Base(path), err)
	}

	if e.includeDigest {
		b.appendDigest()
	}

	logger.Debug("document extracted",
		"source", filepath.Base(path),
		"chunks", len(b.out.Chunks),
		"pictures", len(b.out.Images))

	return b.out, nil
}

// SupportedFormats lists the extensions the dispatch table accepts, sorted.
func (e *Extractor) SupportedFormats() []string {
	formats := make([]string, 0, len(e.adapters))
	for ext := range e.adapters {
		formats = append(formats, ext)
	}
	sort.Strings(formats)
	return formats
}

func extractLegacyUnsupported(path string, _ *docBuilder) error {
	return fmt.Errorf("legacy format %s requires conversion to its modern equivalent before upload",
		strings.ToLower(filepath.Ext(path)))
}

// docBuilder accumulates chunks for a single document and owns the
// per-document artifact counters. Table and picture numbering is 1-based and
// monotonically increasing in extraction order, so artifact names are stable
// across re-runs of the same file.
type docBuilder struct {
	out         *ExtractionOutput
	source      string
	stem        string
	artifactDir string
	tableSeq    int
	pictureSeq  int
}

func newDocBuilder(path, artifactDir string) *docBuilder {
	base := filepath.Base(path)
	return &docBuilder{
		out:         &ExtractionOutput{},
		source:      base,
		stem:        strings.TrimSuffix(base, filepath.Ext(base)),
		artifactDir: artifactDir,
	}
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// AddText appends a single prose chunk, dropping whitespace-only content.
func (b *docBuilder) AddText(page int, text string) {
	text = strings.TrimSpace(sanitizeText(text))
	if text == "" {
		return
	}
	b.out.Chunks = append(b.out.Chunks, models.Chunk{
		Content:     text,
		Source:      b.source,
		ElementKind: models.ElementText,
		Page:        page,
	})
}

// AddTextBlocks splits raw text on blank lines and appends one chunk per
// paragraph, preserving document order.
func (b *docBuilder) AddTextBlocks(page int, text string) {
	for _, block := range paragraphBreak.Split(text, -1) {
		b.AddText(page, block)
	}
}

// AddTable renders rows to markdown for the index and exports the raw rows as
// a CSV artifact. A table whose markdown rendering comes out empty still gets
// a placeholder chunk so its CSV artifact stays discoverable.
func (b *docBuilder) AddTable(page int, rows [][]string, meta map[string]interface{}) {
	content := renderMarkdownTable(rows)
	if content == "" {
		content = "[table content]"
	}

	b.tableSeq++
	name := fmt.Sprintf("%s-table-%d.csv", b.stem, b.tableSeq)
	localPath := filepath.Join(b.artifactDir, name)
	if err := exportTableCSV(localPath, rows); err != nil {
		logger.Warn("failed to export table artifact", "artifact", name, "error", err)
		localPath = ""
	}

	b.out.Chunks = append(b.out.Chunks, models.Chunk{
		Content:     content,
		Source:      b.source,
		ElementKind: models.ElementTable,
		Page:        page,
		LocalPath:   localPath,
		Metadata:    meta,
	})
}

// AddPicture normalizes embedded image bytes to a PNG artifact and appends a
// reference placeholder chunk pointing at it. Undecodable image data is
// skipped with a warning, but its sequence number stays consumed so later
// pictures keep their document-order numbering.
func (b *docBuilder) AddPicture(page int, data []byte) {
	b.pictureSeq++
	name := fmt.Sprintf("%s_picture_%d.png", b.stem, b.pictureSeq)
	destPath := filepath.Join(b.artifactDir, name)
	if err := utils.NormalizeToPNG(data, destPath); err != nil {
		logger.Warn("failed to materialize picture artifact",
			"source", b.source, "artifact", name, "error", err)
		return
	}

	b.out.Chunks = append(b.out.Chunks, models.Chunk{
		Content:     fmt.Sprintf("[IMAGE: %s]", name),
		Source:      b.source,
		ElementKind: models.ElementPicture,
		Page:        page,
		LocalPath:   destPath,
	})
	b.out.Images = append(b.out.Images, destPath)
}

// appendDigest concatenates every textual chunk into one full-document chunk.
func (b *docBuilder) appendDigest() {
	var parts []string
	for _, c := range b.out.Chunks {
		if c.ElementKind == models.ElementText || c.ElementKind == models.ElementTable {
			parts = append(parts, c.Content)
		}
	}
	if len(parts) == 0 {
		return
	}
	b.out.Chunks = append(b.out.Chunks, models.Chunk{
		Content:     strings.Join(parts, "\n\n"),
		Source:      b.source,
		ElementKind: models.ElementFullDocument,
	})
}

func extractPlainText(path string, b *docBuilder) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	b.AddTextBlocks(0, string(data))
	return nil
}

func extractCSV(path string, b *docBuilder) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	b.AddTable(0, rows, nil)
	return nil
}

// sanitizeText strips control characters and normalizes line endings. PDF text
// layers in particular carry nulls and surrogate garbage.
func sanitizeText(s string) string {
	if s == "" {
		return s
	}

	var sb strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r < 0xD800) || (r >= 0xE000 && r <= 0xFFFD) {
			sb.WriteRune(r)
		}
	}

	clean := strings.ReplaceAll(sb.String(), "\r\n", "\n")
	clean = strings.ReplaceAll(clean, "\r", "\n")
	return clean
}
