package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

// parseDOCX walks word/document.xml and collects run text, one line per
// paragraph. Formatting, tables layout and embedded objects are ignored.
func parseDOCX(data []byte) (string, domain.ParseMetadata, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.ParseMetadata{}, fmt.Errorf("open docx container: %w", err)
	}

	var doc *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", domain.ParseMetadata{}, fmt.Errorf("docx has no word/document.xml")
	}

	rc, err := doc.Open()
	if err != nil {
		return "", domain.ParseMetadata{}, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	var b strings.Builder
	paragraphs := 0
	decoder := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", domain.ParseMetadata{}, fmt.Errorf("decode document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
				paragraphs++
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	return b.String(), domain.ParseMetadata{
		FileType:   "docx",
		ChunkCount: paragraphs,
	}, nil
}
