package aescrypt

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ArchiveExtractor unpacks the single document a packaged OA blob is expected
// to hold. Packages with several entries are degraded input: the first
// regular file wins and the rest are logged.
type ArchiveExtractor struct {
	log *slog.Logger
}

func NewArchiveExtractor(log *slog.Logger) *ArchiveExtractor {
	return &ArchiveExtractor{log: log}
}

func (e *ArchiveExtractor) ExtractSingle(data []byte) (string, []byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("open archive: %w", err)
	}

	var picked *zip.File
	entries := 0
	for _, f := range reader.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		entries++
		if picked == nil {
			picked = f
		}
	}
	if picked == nil {
		return "", nil, fmt.Errorf("archive holds no files")
	}
	if entries > 1 {
		e.log.Warn("archive holds multiple entries, using the first",
			slog.Int("entries", entries),
			slog.String("picked", picked.Name))
	}

	rc, err := picked.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open archive entry %s: %w", picked.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return "", nil, fmt.Errorf("read archive entry %s: %w", picked.Name, err)
	}
	return baseName(picked.Name), content, nil
}

func baseName(name string) string {
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		return name[i+1:]
	}
	return name
}
