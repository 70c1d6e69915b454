package services

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
}

func TestClassifyUploadsPartitionsByExtension(t *testing.T) {
	dir := t.TempDir()

	touch(t, filepath.Join(dir, "report.PDF"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "sheet.xlsx"))
	touch(t, filepath.Join(dir, "photo.JPG"))
	touch(t, filepath.Join(dir, "diagram.png"))
	touch(t, filepath.Join(dir, "archive.zip")) // unrecognized
	if err := os.Mkdir(filepath.Join(dir, "nested.pdf"), 0755); err != nil {
		t.Fatal(err)
	}

	docs, imgs := ClassifyUploads(dir)

	wantDocs := []string{
		filepath.Join(dir, "notes.txt"),
		filepath.Join(dir, "report.PDF"),
		filepath.Join(dir, "sheet.xlsx"),
	}
	wantImgs := []string{
		filepath.Join(dir, "diagram.png"),
		filepath.Join(dir, "photo.JPG"),
	}

	if len(docs) != len(wantDocs) {
		t.Fatalf("documents = %v, want %v", docs, wantDocs)
	}
	for i, want := range wantDocs {
		if docs[i] != want {
			t.Errorf("documents[%d] = %q, want %q", i, docs[i], want)
		}
	}

	if len(imgs) != len(wantImgs) {
		t.Fatalf("images = %v, want %v", imgs, wantImgs)
	}
	for i, want := range wantImgs {
		if imgs[i] != want {
			t.Errorf("images[%d] = %q, want %q", i, imgs[i], want)
		}
	}
}

func TestClassifyUploadsMissingDirectory(t *testing.T) {
	docs, imgs := ClassifyUploads(filepath.Join(t.TempDir(), "does-not-exist"))
	if len(docs) != 0 || len(imgs) != 0 {
		t.Fatalf("expected empty lists for missing directory, got %v / %v", docs, imgs)
	}
}

func TestClassifyUploadsEmptyDirectory(t *testing.T) {
	docs, imgs := ClassifyUploads(t.TempDir())
	if len(docs) != 0 || len(imgs) != 0 {
		t.Fatalf("expected empty lists for empty directory, got %v / %v", docs, imgs)
	}
}
