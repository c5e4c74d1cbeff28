package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/ports"
)

// contentLoader replays the download/decrypt/extract/parse stages for a
// record outside the main pipeline. Sweeps use it to obtain content previews
// for already-published documents.
type contentLoader struct {
	storage   ports.ObjectStorage
	decryptor ports.Decryptor
	extractor ports.ArchiveExtractor
	parser    ports.ContentParser
}

func (l *contentLoader) loadText(ctx context.Context, rec *domain.FileRecord) (string, error) {
	data, err := l.storage.Fetch(ctx, rec.StorageToken)
	if err != nil {
		return "", fmt.Errorf("fetch object: %w", err)
	}

	if rec.DecryptCode != "" {
		data, err = l.decryptor.Decrypt(data, rec.DecryptCode)
		if err != nil {
			return "", fmt.Errorf("decrypt object: %w", err)
		}
	}

	filename := rec.Filename
	if rec.IsArchive {
		innerName, inner, err := l.extractor.ExtractSingle(data)
		if err != nil {
			return "", fmt.Errorf("extract archive: %w", err)
		}
		filename, data = innerName, inner
	}

	parsed := l.parser.Parse(ctx, data, filename)
	if !parsed.Success {
		return "", fmt.Errorf("parse content: %s", parsed.Error)
	}
	return parsed.Content, nil
}

func (l *contentLoader) preview(ctx context.Context, rec *domain.FileRecord, limit int) (string, error) {
	text, err := l.loadText(ctx, rec)
	if err != nil {
		return "", err
	}
	runes := []rune(text)
	if len(runes) > limit {
		return string(runes[:limit]), nil
	}
	return text, nil
}
