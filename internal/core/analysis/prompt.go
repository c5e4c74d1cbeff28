package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

const (
	analysisSystemPrompt = "你是一个专业的文档分析专家，负责评估文档是否适合加入企业知识库。" +
		"请根据文档内容、结构、价值和完整性进行综合评估。返回JSON格式的分析结果。"
	versionSystemPrompt = "你是一个专业的文档版本分析专家，擅长通过文档内容判断版本新旧。"
	expirySystemPrompt  = "你是一个专业的文档有效期分析专家，擅长判断文档是否过期。"

	analysisPreviewChars = 2000
)

func buildAnalysisPrompt(content, filename string, meta domain.ParseMetadata, req CategoryRequirements, override string) string {
	emphasis := req.Emphasis
	if strings.TrimSpace(override) != "" {
		emphasis = override
	}

	metadataSpec := "ai_metadata: {effective_date: 生效日期, expiration_date: 失效日期（长期有效填\"永久\"）}"
	if containsField(req.MetadataFields, "version_number") {
		metadataSpec = "ai_metadata: {version_number: 版本号或发文号, document_action: 文档动作（发布/修订/废止等）}"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "请分析以下文档是否适合加入企业知识库：\n\n")
	fmt.Fprintf(&b, "业务分类: %s\n", req.Label)
	fmt.Fprintf(&b, "文件名: %s\n", filename)
	fmt.Fprintf(&b, "文档类型: %s\n", orUnknown(meta.FileType))
	fmt.Fprintf(&b, "内容长度: %d 字符\n", len([]rune(content)))
	if meta.ChunkCount > 0 {
		fmt.Fprintf(&b, "段落/分块数: %d\n", meta.ChunkCount)
	}
	fmt.Fprintf(&b, "\n文档内容预览:\n%s\n\n", truncateRunes(content, analysisPreviewChars))
	fmt.Fprintf(&b, "该分类的评估侧重: %s\n\n", emphasis)
	b.WriteString(`请从以下维度进行评估并返回JSON格式结果：
1. suitable_for_kb: 是否适合加入知识库 (true/false)
2. confidence_score: 置信度 (0-100)
3. category: 文档类别 (contract/policy/report/manual/notice/other)
4. reasons: 判断理由列表
5. summary: 文档内容摘要 (50字以内)
6. key_topics: 关键主题列表 (最多5个)
7. quality_score: 内容质量评分 (0-100)
8. completeness: 内容完整性 (complete/partial/fragment)
9. `)
	b.WriteString(metadataSpec)
	b.WriteString("\n")
	return b.String()
}

func buildVersionComparisonPrompt(candidates []domain.VersionCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "现在有 %d 个相似的文档，需要你判断哪个是最新版本。\n", len(candidates))
	for idx, c := range candidates {
		fmt.Fprintf(&b, "\n文档 %d:\n- 文件ID: %s\n- 文件名: %s\n- 内容预览:\n%s\n", idx+1, c.FileID, c.Filename, c.Preview)
	}
	b.WriteString(`
请仔细分析每个文档的内容预览，特别关注：
1. 文档开头的发文号
2. 文档中提到的版本号、修订日期等信息
3. 文档名中的修订标识

请返回JSON格式的结果，包含以下字段：
{
    "latest_document_id": "最新版本文档的文件ID",
    "reasoning": "判断理由",
    "version_comparison": "版本对比说明",
    "old_document_ids": ["旧版本文档的文件ID列表"]
}
`)
	return b.String()
}

func buildExpirationPrompt(filename, preview string, today time.Time) string {
	return fmt.Sprintf(`今天的日期是: %s

请分析以下文档是否已经过期。重点关注：
1. 文档标题中的日期信息
2. 文档内容中提到的时间区间、有效期
3. 文档中的生效日期和失效日期

文档信息：
- 文件名: %s
- 内容预览:
%s

请返回JSON格式的结果：
{
    "is_expired": true/false,
    "reasoning": "判断理由",
    "expiration_date": "过期日期（如果能找到）",
    "confidence": 0-100
}
`, today.Format("2006-01-02"), filename, preview)
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
