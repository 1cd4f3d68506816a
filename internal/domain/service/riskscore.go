// Package service 提供领域服务
package service

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// 各风险因子的分值
const (
	longPromptScore    = 10
	longResponseScore  = 10
	highTokenScore     = 15
	errorScore         = 25
	keywordScoreCap    = 40
	longPromptChars    = 5000
	longResponseChars  = 10000
	highTokenThreshold = 4000
)

// sensitiveKeywords 敏感词典：词 -> 分值。
// 匹配按词边界进行，"exploitation" 不会命中 "exploit"。
var sensitiveKeywords = map[string]int{
	"exploit":    8,
	"malware":    8,
	"bomb":       10,
	"fraud":      8,
	"phishing":   8,
	"ransomware": 10,
	"weapon":     6,
	"hack":       6,
	"jailbreak":  10,
	"backdoor":   8,
}

// modelAdjustments 模型风险修正：按前缀匹配（大小写不敏感），未知模型为 0
var modelAdjustments = []struct {
	prefix string
	delta  int
}{
	{"gpt-4", -2},
	{"gpt-3.5", 2},
	{"claude", -2},
	{"llama", 3},
	{"mistral", 2},
}

var keywordPatterns = buildKeywordPatterns()

func buildKeywordPatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(sensitiveKeywords))
	for kw := range sensitiveKeywords {
		patterns[kw] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	return patterns
}

// ScoreInput 风险评分输入
type ScoreInput struct {
	Prompt   string
	Response string
	Model    string
	Tokens   int
	HasError bool
}

// ScoreBreakdown 风险因子拆解
type ScoreBreakdown struct {
	PromptLength    int      `json:"prompt_length"`
	ResponseLength  int      `json:"response_length"`
	Keywords        int      `json:"keywords"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	TokenUsage      int      `json:"token_usage"`
	Error           int      `json:"error"`
	ModelAdjustment int      `json:"model_adjustment"`
}

// ScoreResult 风险评分结果
type ScoreResult struct {
	Breakdown  ScoreBreakdown `json:"breakdown"`
	FinalScore int            `json:"final_score"`
}

// ScoreRequest 对单次 LLM 调用计算 0-100 的风险评分。
// 纯函数：无状态、无 I/O，可在采集路径与离线分析中复用。
func ScoreRequest(in ScoreInput) ScoreResult {
	var b ScoreBreakdown

	// 长度阈值按字符数计，多字节文本不会提前越界
	if utf8.RuneCountInString(in.Prompt) > longPromptChars {
		b.PromptLength = longPromptScore
	}
	if utf8.RuneCountInString(in.Response) > longResponseChars {
		b.ResponseLength = longResponseScore
	}

	b.Keywords, b.MatchedKeywords = scoreKeywords(in.Prompt + " " + in.Response)

	if in.Tokens > highTokenThreshold {
		b.TokenUsage = highTokenScore
	}
	if in.HasError {
		b.Error = errorScore
	}

	b.ModelAdjustment = modelAdjustment(in.Model)

	total := b.PromptLength + b.ResponseLength + b.Keywords + b.TokenUsage + b.Error + b.ModelAdjustment
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	return ScoreResult{Breakdown: b, FinalScore: total}
}

// scoreKeywords 扫描文本中的敏感词，按去重后的命中词累加，总分封顶
func scoreKeywords(text string) (int, []string) {
	var score int
	var matched []string

	for kw, pattern := range keywordPatterns {
		if pattern.MatchString(text) {
			score += sensitiveKeywords[kw]
			matched = append(matched, kw)
		}
	}

	sort.Strings(matched)
	if score > keywordScoreCap {
		score = keywordScoreCap
	}
	return score, matched
}

// modelAdjustment 按前缀查表返回模型风险修正
func modelAdjustment(model string) int {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return 0
	}
	for _, adj := range modelAdjustments {
		if strings.HasPrefix(m, adj.prefix) {
			return adj.delta
		}
	}
	return 0
}
