package services

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// renderMarkdownTable turns raw rows into a GitHub-style markdown table. The
// first row becomes the header. Ragged rows are padded to the widest row so
// the rendering stays well formed. Returns "" when there is nothing to render.
func renderMarkdownTable(rows [][]string) string {
	width := 0
	hasContent := false
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				hasContent = true
			}
		}
	}
	if width == 0 || !hasContent {
		return ""
	}

	var sb strings.Builder
	writeRow := func(row []string) {
		sb.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			sb.WriteString(" ")
			sb.WriteString(escapeMarkdownCell(cell))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}

	writeRow(rows[0])
	sb.WriteString("|")
	for i := 0; i < width; i++ {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")
	for _, row := range rows[1:] {
		writeRow(row)
	}

	return strings.TrimRight(sb.String(), "\n")
}

func escapeMarkdownCell(cell string) string {
	cell = strings.ReplaceAll(cell, "\n", " ")
	cell = strings.ReplaceAll(cell, "|", "\\|")
	return strings.TrimSpace(cell)
}

// exportTableCSV writes the raw rows as a CSV artifact for download alongside
// the markdown rendering kept in the index.
func exportTableCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv artifact: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv artifact: %w", err)
	}
	return nil
}
