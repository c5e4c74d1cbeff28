package parser

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

// parseHTML extracts visible text, skipping script and style subtrees, and
// records the page title when present.
func parseHTML(data []byte) (string, domain.ParseMetadata, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", domain.ParseMetadata{}, fmt.Errorf("parse html: %w", err)
	}

	var b strings.Builder
	title := ""
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	return b.String(), domain.ParseMetadata{
		FileType: "html",
		Title:    title,
	}, nil
}
