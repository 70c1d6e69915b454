package services

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"multimodal-rag-platform/internal/logger"
)

// Extension sets recognized by the classifier. Anything else in an upload
// directory is ignored.
var documentExtensions = map[string]bool{
	".pdf": true, ".txt": true, ".docx": true, ".doc": true,
	".xlsx": true, ".xls": true, ".csv": true,
	".pptx": true, ".ppt": true, ".html": true, ".htm": true,
	".rtf": true, ".odt": true, ".msg": true,
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".gif": true,
}

// ClassifyUploads partitions the files of dir into document and image path
// lists, sorted by filename for deterministic ingestion order.
// Subdirectories and unrecognized extensions are skipped. A missing or
// unreadable directory is a normal state for a tenant with no uploads, so it
// yields two empty lists and a warning, never an error.
func ClassifyUploads(dir string) (documents []string, images []string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("upload directory not readable", "dir", dir, "error", err)
		return nil, nil
	}

	names := make([]string, 0, len(entries))
	byName := make(map[string]os.DirEntry, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
		byName[entry.Name()] = entry
	}
	sort.Strings(names)

	for _, name := range names {
		entry := byName[name]
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		path := filepath.Join(dir, name)
		switch {
		case documentExtensions[ext]:
			documents = append(documents, path)
		case imageExtensions[ext]:
			images = append(images, path)
		}
	}

	return documents, images
}

// IsImagePath reports whether a path carries a recognized image extension.
func IsImagePath(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}
