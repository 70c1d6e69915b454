package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"multimodal-rag-platform/internal/logger"
)

func extractExcel(path string, b *docBuilder) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			logger.Warn("failed to read sheet", "source", b.source, "sheet", sheet, "error", err)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		b.AddTable(0, rows, map[string]interface{}{"sheet": sheet})
	}

	return nil
}

func extractDocx(path string, b *docBuilder) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open docx archive: %w", err)
	}
	defer zr.Close()

	data, err := readZipFile(&zr.Reader, "word/document.xml")
	if err != nil {
		return fmt.Errorf("failed to read document body: %w", err)
	}
	if err := walkOfficeXML(data, 0, b); err != nil {
		return err
	}

	extractZipMedia(&zr.Reader, "word/media/", 0, b)
	return nil
}

var pptxSlidePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func extractPptx(path string, b *docBuilder) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open pptx archive: %w", err)
	}
	defer zr.Close()

	// Slide part names are not ordered inside the archive.
	type slideRef struct {
		num  int
		name string
	}
	var slides []slideRef
	for _, f := range zr.File {
		m := pptxSlidePattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slideRef{num: n, name: f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	for _, s := range slides {
		data, err := readZipFile(&zr.Reader, s.name)
		if err != nil {
			logger.Warn("failed to read slide", "source", b.source, "slide", s.num, "error", err)
			continue
		}
		if err := walkOfficeXML(data, s.num, b); err != nil {
			return fmt.Errorf("slide %d: %w", s.num, err)
		}
	}

	extractZipMedia(&zr.Reader, "ppt/media/", 0, b)
	return nil
}

func extractODT(path string, b *docBuilder) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open odt archive: %w", err)
	}
	defer zr.Close()

	data, err := readZipFile(&zr.Reader, "content.xml")
	if err != nil {
		return fmt.Errorf("failed to read document content: %w", err)
	}
	if err := walkODTContent(data, b); err != nil {
		return err
	}

	extractZipMedia(&zr.Reader, "Pictures/", 0, b)
	return nil
}

// walkOfficeXML streams through WordprocessingML or DrawingML body XML. Both
// vocabularies share the local names that matter here: p for paragraphs, t for
// text runs, tbl/tr/tc for tables. Namespace prefixes differ and are ignored.
func walkOfficeXML(data []byte, page int, b *docBuilder) error {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var para, cell strings.Builder
	var row []string
	var table [][]string
	tableDepth := 0
	inCell := false
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("malformed office xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					table = nil
				}
			case "tr":
				if tableDepth == 1 {
					row = nil
				}
			case "tc":
				if tableDepth == 1 {
					inCell = true
					cell.Reset()
				}
			case "t":
				inText = true
			case "br", "cr":
				if inCell {
					cell.WriteString(" ")
				} else {
					para.WriteString("\n")
				}
			case "tab":
				if inCell {
					cell.WriteString(" ")
				} else {
					para.WriteString("\t")
				}
			}

		case xml.CharData:
			if !inText {
				break
			}
			if inCell {
				cell.Write(t)
			} else {
				para.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if inCell {
					cell.WriteString(" ")
				} else if tableDepth == 0 {
					b.AddText(page, para.String())
					para.Reset()
				}
			case "tc":
				if tableDepth == 1 {
					row = append(row, strings.TrimSpace(cell.String()))
					inCell = false
				}
			case "tr":
				if tableDepth == 1 {
					table = append(table, row)
				}
			case "tbl":
				tableDepth--
				if tableDepth == 0 && len(table) > 0 {
					b.AddTable(page, table, nil)
				}
			}
		}
	}

	return nil
}

// walkODTContent streams through OpenDocument content.xml. Text lives directly
// inside text:p and text:h elements; tables use the table: vocabulary.
func walkODTContent(data []byte, b *docBuilder) error {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var para, cell strings.Builder
	var row []string
	var table [][]string
	paraDepth := 0
	tableDepth := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("malformed odt content: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p", "h":
				paraDepth++
			case "table":
				tableDepth++
				if tableDepth == 1 {
					table = nil
				}
			case "table-row":
				if tableDepth == 1 {
					row = nil
				}
			case "table-cell":
				if tableDepth == 1 {
					cell.Reset()
				}
			case "s", "tab":
				if paraDepth > 0 {
					if tableDepth > 0 {
						cell.WriteString(" ")
					} else {
						para.WriteString(" ")
					}
				}
			case "line-break":
				if paraDepth > 0 && tableDepth == 0 {
					para.WriteString("\n")
				}
			}

		case xml.CharData:
			if paraDepth == 0 {
				break
			}
			if tableDepth > 0 {
				cell.Write(t)
			} else {
				para.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "p", "h":
				paraDepth--
				if tableDepth > 0 {
					cell.WriteString(" ")
				} else if paraDepth == 0 {
					b.AddText(0, para.String())
					para.Reset()
				}
			case "table-cell":
				if tableDepth == 1 {
					row = append(row, strings.TrimSpace(cell.String()))
				}
			case "table-row":
				if tableDepth == 1 {
					table = append(table, row)
				}
			case "table":
				tableDepth--
				if tableDepth == 0 && len(table) > 0 {
					b.AddTable(0, table, nil)
				}
			}
		}
	}

	return nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("archive entry %s not found", name)
}

// extractZipMedia materializes every recognized image under prefix, in
// archive-name order so picture numbering stays deterministic.
func extractZipMedia(zr *zip.Reader, prefix string, page int, b *docBuilder) {
	var names []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, prefix) && IsImagePath(f.Name) {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := readZipFile(zr, name)
		if err != nil {
			logger.Warn("failed to read embedded media", "source", b.source, "entry", name, "error", err)
			continue
		}
		b.AddPicture(page, data)
	}
}
