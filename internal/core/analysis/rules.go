package analysis

import (
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

const ruleModelVersion = "rule_v1.0"

var filenameBlacklist = []string{
	"test", "temp", "tmp", "backup", "log", "cache", "debug",
	"测试", "临时", "备份", "日志", "草稿",
}

var sensitiveKeywords = []string{
	"password", "密码", "secret", "token", "私钥", "身份证号",
}

var categoryKeywords = map[string][]string{
	"contract": {"合同", "协议", "甲方", "乙方", "签订"},
	"policy":   {"制度", "办法", "规定", "细则", "条例", "规范"},
	"report":   {"报告", "总结", "分析", "统计"},
	"manual":   {"手册", "指南", "说明", "操作"},
	"notice":   {"通知", "公告", "通报", "决定"},
}

// RuleBasedAnalyze is the deterministic fallback used when the AI path fails
// or returns garbage. It mirrors the AI result shape so routing stays total.
func RuleBasedAnalyze(content, filename string) domain.AnalysisResult {
	res := domain.AnalysisResult{
		SuitableForKB:   true,
		ConfidenceScore: 60,
		Category:        "other",
		Reasons:         []string{},
		KeyTopics:       []string{},
		QualityScore:    50,
		Completeness:    "partial",
		AnalysisMethod:  domain.MethodRuleBased,
		ModelVersion:    ruleModelVersion,
	}

	lowerName := strings.ToLower(filename)
	base := strings.TrimSuffix(lowerName, filepath.Ext(lowerName))
	for _, kw := range filenameBlacklist {
		if strings.Contains(base, kw) {
			res.SuitableForKB = false
			res.ConfidenceScore = 20
			res.Reasons = append(res.Reasons, "文件名包含黑名单关键词: "+kw)
			break
		}
	}

	runes := []rune(content)
	switch {
	case len(runes) < 100:
		res.SuitableForKB = false
		res.ConfidenceScore = 15
		res.QualityScore = 20
		res.Reasons = append(res.Reasons, "内容过短，信息量不足")
	case len(runes) > 50000:
		res.ConfidenceScore -= 10
		res.Reasons = append(res.Reasons, "内容过长，可能包含冗余信息")
	}

	for _, kw := range sensitiveKeywords {
		if strings.Contains(content, kw) {
			res.SuitableForKB = false
			res.ConfidenceScore = 10
			res.Reasons = append(res.Reasons, "内容包含敏感信息关键词")
			break
		}
	}

	if cat, kw := matchCategory(filename + " " + truncateRunes(content, 500)); cat != "" {
		res.Category = cat
		res.ConfidenceScore += 10
		res.Reasons = append(res.Reasons, "根据关键词识别为"+cat+"类文档: "+kw)
	}

	lines := nonEmptyLines(content)
	switch {
	case len(runes) >= 2000 && lines >= 5:
		res.Completeness = "complete"
		res.QualityScore += 20
	case len(runes) >= 500:
		res.Completeness = "partial"
	default:
		res.Completeness = "fragment"
		res.QualityScore -= 10
		if lines < 5 {
			res.Reasons = append(res.Reasons, "文档结构简单，段落过少")
		}
	}

	res.KeyTopics = topWords(content, 5)
	res.Summary = truncateRunes(strings.Join(strings.Fields(content), " "), 50)
	if len(res.Reasons) == 0 {
		res.Reasons = append(res.Reasons, "通过基础规则检查")
	}

	res.ConfidenceScore = clampScore(float64(res.ConfidenceScore))
	res.QualityScore = clampScore(float64(res.QualityScore))
	return res
}

func matchCategory(text string) (string, string) {
	// Stable order so repeated runs classify identically.
	names := make([]string, 0, len(categoryKeywords))
	for name := range categoryKeywords {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, kw := range categoryKeywords[name] {
			if strings.Contains(text, kw) {
				return name, kw
			}
		}
	}
	return "", ""
}

func nonEmptyLines(content string) int {
	n := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// topWords picks the most frequent words of length >= 2, skipping pure
// punctuation and digits. Chinese text without spaces yields few tokens,
// which is acceptable for a fallback.
func topWords(content string, n int) []string {
	freq := map[string]int{}
	for _, w := range strings.FieldsFunc(content, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	}) {
		if len([]rune(w)) < 2 || isNumeric(w) {
			continue
		}
		freq[w]++
	}
	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}
