package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

// parseXLSX flattens every sheet into tab-separated rows, prefixed by the
// sheet name. Formulas are read as their cached values.
func parseXLSX(data []byte) (string, domain.ParseMetadata, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", domain.ParseMetadata{}, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	var b strings.Builder
	rowsTotal := 0
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", domain.ParseMetadata{}, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		fmt.Fprintf(&b, "[%s]\n", sheet)
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteString("\n")
			rowsTotal++
		}
	}

	return b.String(), domain.ParseMetadata{
		FileType:   "xlsx",
		ChunkCount: rowsTotal,
	}, nil
}
