package datimport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/ports"
)

// Stats summarizes one import run.
type Stats struct {
	Lines   int `json:"lines"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

// Importer loads DAT export files into the file table. Existing records keep
// their processing state; only descriptive fields are refreshed.
type Importer struct {
	repo ports.FileRepository
	log  *slog.Logger

	now func() time.Time
}

func NewImporter(repo ports.FileRepository, log *slog.Logger) *Importer {
	return &Importer{repo: repo, log: log, now: time.Now}
}

func (im *Importer) ImportFile(ctx context.Context, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open dat file: %w", err)
	}
	defer f.Close()

	stats, err := im.ImportReader(ctx, f)
	if err != nil {
		return stats, err
	}
	im.log.Info("dat import finished",
		slog.String("path", path),
		slog.Int("lines", stats.Lines),
		slog.Int("created", stats.Created),
		slog.Int("updated", stats.Updated),
		slog.Int("errors", stats.Errors))
	return stats, nil
}

func (im *Importer) ImportReader(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		stats.Lines++

		rec, err := ParseLine(line)
		if err != nil {
			im.log.Warn("skipping malformed dat line",
				slog.Int("line", stats.Lines),
				slog.String("error", err.Error()))
			stats.Errors++
			continue
		}

		created, err := im.upsert(ctx, rec)
		if err != nil {
			im.log.Error("dat upsert failed",
				slog.String("file_id", rec.ImageFileID),
				slog.String("error", err.Error()))
			stats.Errors++
			continue
		}
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read dat file: %w", err)
	}
	return stats, nil
}

func (im *Importer) upsert(ctx context.Context, rec *domain.FileRecord) (bool, error) {
	now := im.now().UTC()

	existing, err := im.repo.GetByFileID(ctx, rec.ImageFileID)
	if err != nil {
		if !domain.IsKind(err, domain.ErrFileNotFound) {
			return false, err
		}
		rec.CreatedAt = now
		rec.UpdatedAt = now
		return true, im.repo.Create(ctx, rec)
	}

	rec.ID = existing.ID
	rec.Status = existing.Status
	rec.UpdatedAt = now
	return false, im.repo.Update(ctx, rec)
}

// LatestDATFile finds the newest .dat export under dir for the given day,
// following the producer's <dir>/<yyyyMMdd>/ layout.
func LatestDATFile(dir string, day time.Time) (string, error) {
	dayDir := filepath.Join(dir, day.Format("20060102"))
	entries, err := os.ReadDir(dayDir)
	if err != nil {
		return "", fmt.Errorf("read export dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".dat") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no dat files under %s", dayDir)
	}
	sort.Strings(names)
	return filepath.Join(dayDir, names[len(names)-1]), nil
}
