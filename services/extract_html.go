package services

import (
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractHTML parses markup into block-level text chunks and table chunks.
// Tables are lifted out first so their cell text doesn't bleed into prose.
func extractHTML(path string, b *docBuilder) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, noscript, iframe").Remove()

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		var rows [][]string
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var row []string
			tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				row = append(row, strings.TrimSpace(cell.Text()))
			})
			if len(row) > 0 {
				rows = append(rows, row)
			}
		})
		if len(rows) > 0 {
			b.AddTable(0, rows, nil)
		}
		table.Remove()
	})

	blocks := doc.Find("h1, h2, h3, h4, h5, h6, p, li, blockquote, pre, dd, dt")
	if blocks.Length() == 0 {
		// Markup with no block structure still carries text.
		b.AddTextBlocks(0, doc.Find("body").Text())
		return nil
	}

	blocks.Each(func(_ int, block *goquery.Selection) {
		// Skip containers whose text was already emitted by a nested block.
		if block.Find("h1, h2, h3, h4, h5, h6, p, li, blockquote, pre").Length() > 0 {
			return
		}
		b.AddText(0, block.Text())
	})

	return nil
}
