package parser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

// parseXML collects all character data, one line per text node.
func parseXML(data []byte) (string, domain.ParseMetadata, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	var b strings.Builder
	nodes := 0
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", domain.ParseMetadata{}, fmt.Errorf("decode xml: %w", err)
		}
		if cd, ok := tok.(xml.CharData); ok {
			text := strings.TrimSpace(string(cd))
			if text != "" {
				b.WriteString(text)
				b.WriteString("\n")
				nodes++
			}
		}
	}

	return b.String(), domain.ParseMetadata{
		FileType:   "xml",
		ChunkCount: nodes,
	}, nil
}
