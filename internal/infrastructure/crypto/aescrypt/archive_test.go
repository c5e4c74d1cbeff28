package aescrypt

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"testing"
)

func buildZip(t *testing.T, entries map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range order {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := f.Write([]byte(entries[name])); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func testExtractor() *ArchiveExtractor {
	return NewArchiveExtractor(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExtractSingleReturnsOnlyEntry(t *testing.T) {
	data := buildZip(t, map[string]string{"通知.docx": "正文内容"}, []string{"通知.docx"})

	name, content, err := testExtractor().ExtractSingle(data)
	if err != nil {
		t.Fatalf("ExtractSingle returned error: %v", err)
	}
	if name != "通知.docx" {
		t.Errorf("name = %q, want 通知.docx", name)
	}
	if string(content) != "正文内容" {
		t.Errorf("content = %q", content)
	}
}

func TestExtractSingleFirstEntryWins(t *testing.T) {
	data := buildZip(t, map[string]string{
		"first.txt":  "first",
		"second.txt": "second",
	}, []string{"first.txt", "second.txt"})

	name, content, err := testExtractor().ExtractSingle(data)
	if err != nil {
		t.Fatalf("ExtractSingle returned error: %v", err)
	}
	if name != "first.txt" || string(content) != "first" {
		t.Errorf("picked %q/%q, want the first entry", name, content)
	}
}

func TestExtractSingleSkipsMacOSMetadata(t *testing.T) {
	data := buildZip(t, map[string]string{
		"__MACOSX/._通知.docx": "junk",
		"docs/通知.docx":       "正文",
	}, []string{"__MACOSX/._通知.docx", "docs/通知.docx"})

	name, content, err := testExtractor().ExtractSingle(data)
	if err != nil {
		t.Fatalf("ExtractSingle returned error: %v", err)
	}
	if name != "通知.docx" {
		t.Errorf("name = %q, want the base name of the real entry", name)
	}
	if string(content) != "正文" {
		t.Errorf("content = %q", content)
	}
}

func TestExtractSingleRejectsEmptyArchive(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if _, _, err := testExtractor().ExtractSingle(buf.Bytes()); err == nil {
		t.Fatal("expected error for archive without files")
	}
}

func TestExtractSingleRejectsGarbage(t *testing.T) {
	if _, _, err := testExtractor().ExtractSingle([]byte("not a zip")); err == nil {
		t.Fatal("expected error for non-zip input")
	}
}
