package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

func parsePDF(data []byte) (string, domain.ParseMetadata, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.ParseMetadata{}, fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	fonts := make(map[string]*pdf.Font)
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			// Skip unreadable pages; a partially extracted PDF is
			// still analyzable.
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	return b.String(), domain.ParseMetadata{
		FileType: "pdf",
		Pages:    pages,
	}, nil
}
