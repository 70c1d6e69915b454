package services

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"

	"multimodal-rag-platform/internal/logger"
)

// extractPDF reads the PDF text layer page by page. ledongthuc/pdf is tried
// first since it is pure Go; when its output fails the quality gate for the
// whole document (encrypted fonts, CID gibberish) the mupdf-backed path takes
// over, and pages with no usable text there are rendered as picture artifacts
// so scanned documents still yield retrievable content.
func extractPDF(path string, b *docBuilder) error {
	if extractPDFTextLayer(path, b) {
		return nil
	}
	return extractPDFWithFitz(path, b)
}

func extractPDFTextLayer(path string, b *docBuilder) bool {
	f, reader, err := pdf.Open(path)
	if err != nil {
		logger.Debug("pdf text layer open failed", "source", b.source, "error", err)
		return false
	}
	defer f.Close()

	type pageText struct {
		page int
		text string
	}
	var pages []pageText
	var all strings.Builder

	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		t, err := p.GetPlainText(fonts)
		if err != nil {
			continue
		}
		pages = append(pages, pageText{page: i, text: t})
		all.WriteString(t)
		all.WriteString("\n")
	}

	if !pdfTextUsable(all.String()) {
		return false
	}

	for _, pt := range pages {
		b.AddTextBlocks(pt.page, pt.text)
	}
	return true
}

func extractPDFWithFitz(path string, b *docBuilder) error {
	doc, err := fitz.New(path)
	if err != nil {
		return fmt.Errorf("failed to open pdf: %w", err)
	}
	defer doc.Close()

	for n := 0; n < doc.NumPage(); n++ {
		text, err := doc.Text(n)
		if err == nil && pdfTextUsable(text) {
			b.AddTextBlocks(n+1, text)
			continue
		}

		// No usable text layer on this page. Render it so a vision caption
		// can still index the content.
		img, err := doc.Image(n)
		if err != nil {
			logger.Warn("failed to render pdf page", "source", b.source, "page", n+1, "error", err)
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			logger.Warn("failed to encode pdf page render", "source", b.source, "page", n+1, "error", err)
			continue
		}
		b.AddPicture(n+1, buf.Bytes())
	}

	return nil
}

// pdfTextUsable gates text layer output: enough length and a high ratio of
// printable runes, with few replacement characters.
func pdfTextUsable(s string) bool {
	if len(strings.TrimSpace(s)) < 20 {
		return false
	}

	total := 0
	printable := 0
	replacements := 0
	for _, r := range s {
		total++
		if r == '�' {
			replacements++
		}
		if r == '\n' || r == '\t' || (r >= 32 && r < 0xD800) || (r >= 0xE000 && r <= 0xFFFD) {
			printable++
		}
	}
	if total == 0 {
		return false
	}

	return float64(printable)/float64(total) > 0.85 && replacements < 10
}
