package parser

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

// parseText handles plain text. OA producers emit both UTF-8 and GBK; input
// that is not valid UTF-8 gets one GBK decoding attempt before giving up.
func parseText(data []byte) (string, domain.ParseMetadata, error) {
	if utf8.Valid(data) {
		return string(data), domain.ParseMetadata{FileType: "txt", Encoding: "utf-8"}, nil
	}

	decoded, _, err := transform.Bytes(simplifiedchinese.GBK.NewDecoder(), data)
	if err != nil {
		return "", domain.ParseMetadata{}, fmt.Errorf("text is neither utf-8 nor gbk: %w", err)
	}
	return string(decoded), domain.ParseMetadata{FileType: "txt", Encoding: "gbk"}, nil
}
