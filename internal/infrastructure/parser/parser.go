package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

type formatParser func(data []byte) (string, domain.ParseMetadata, error)

// Parser converts raw document bytes into plain text. Format dispatch is by
// file extension first, content sniffing second. Unsupported or corrupt input
// is reported inside the result so one bad file never aborts a batch.
type Parser struct {
	formats map[string]formatParser
	log     *slog.Logger
}

func New(log *slog.Logger) *Parser {
	p := &Parser{log: log}
	p.formats = map[string]formatParser{
		".pdf":  parsePDF,
		".docx": parseDOCX,
		".xlsx": parseXLSX,
		".txt":  parseText,
		".md":   parseText,
		".csv":  parseText,
		".html": parseHTML,
		".htm":  parseHTML,
		".xml":  parseXML,
	}
	return p
}

func (p *Parser) Parse(ctx context.Context, data []byte, filename string) domain.ParseResult {
	if err := ctx.Err(); err != nil {
		return failure(filename, err.Error())
	}
	if len(data) == 0 {
		return failure(filename, "empty file")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	parse, ok := p.formats[ext]
	if !ok {
		ext = sniffExtension(data)
		parse, ok = p.formats[ext]
	}
	if !ok {
		return failure(filename, fmt.Sprintf("unsupported file format %q", filepath.Ext(filename)))
	}

	content, meta, err := parse(data)
	if err != nil {
		p.log.Warn("parse failed",
			slog.String("filename", filename),
			slog.String("format", ext),
			slog.String("error", err.Error()))
		return failure(filename, err.Error())
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return failure(filename, "no extractable text")
	}
	if meta.FileType == "" {
		meta.FileType = strings.TrimPrefix(ext, ".")
	}
	if meta.ChunkCount == 0 {
		meta.ChunkCount = countParagraphs(content)
	}
	return domain.ParseResult{Success: true, Content: content, Metadata: meta}
}

func failure(filename, reason string) domain.ParseResult {
	return domain.ParseResult{
		Success: false,
		Error:   reason,
		Metadata: domain.ParseMetadata{
			FileType: strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."),
		},
	}
}

func sniffExtension(data []byte) string {
	switch http.DetectContentType(data) {
	case "application/pdf":
		return ".pdf"
	case "text/html; charset=utf-8":
		return ".html"
	case "text/xml; charset=utf-8":
		return ".xml"
	case "text/plain; charset=utf-8":
		return ".txt"
	default:
		return ""
	}
}

func countParagraphs(content string) int {
	n := 0
	for _, block := range strings.Split(content, "\n") {
		if strings.TrimSpace(block) != "" {
			n++
		}
	}
	return n
}
