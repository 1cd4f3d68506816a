package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreRequestBounds(t *testing.T) {
	// 所有因子叠加也不得超出 [0,100]
	in := ScoreInput{
		Prompt:   strings.Repeat("a", 6000) + " exploit malware bomb fraud phishing ransomware jailbreak",
		Response: strings.Repeat("b", 11000),
		Model:    "llama-3-70b",
		Tokens:   8000,
		HasError: true,
	}
	result := ScoreRequest(in)
	assert.LessOrEqual(t, result.FinalScore, 100)
	assert.GreaterOrEqual(t, result.FinalScore, 0)

	// 空输入不应为负分
	empty := ScoreRequest(ScoreInput{Model: "gpt-4o"})
	assert.GreaterOrEqual(t, empty.FinalScore, 0)
}

func TestScoreRequestMonotonic(t *testing.T) {
	base := ScoreInput{Prompt: "hello", Response: "world", Model: "unknown-model"}
	baseScore := ScoreRequest(base).FinalScore

	tests := []struct {
		name string
		in   ScoreInput
	}{
		{"long prompt", ScoreInput{Prompt: strings.Repeat("a", 5001), Response: "world", Model: "unknown-model"}},
		{"long response", ScoreInput{Prompt: "hello", Response: strings.Repeat("b", 10001), Model: "unknown-model"}},
		{"keyword", ScoreInput{Prompt: "hello exploit", Response: "world", Model: "unknown-model"}},
		{"high tokens", ScoreInput{Prompt: "hello", Response: "world", Model: "unknown-model", Tokens: 4001}},
		{"error", ScoreInput{Prompt: "hello", Response: "world", Model: "unknown-model", HasError: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Greater(t, ScoreRequest(tt.in).FinalScore, baseScore)
		})
	}
}

func TestScoreLengthCountsRunes(t *testing.T) {
	// 3000 个汉字占 9000 字节，但仍低于 5000 字符阈值
	short := ScoreRequest(ScoreInput{Prompt: strings.Repeat("汉", 3000)})
	assert.Zero(t, short.Breakdown.PromptLength)

	long := ScoreRequest(ScoreInput{Prompt: strings.Repeat("汉", 5001)})
	assert.Equal(t, 10, long.Breakdown.PromptLength)

	resp := ScoreRequest(ScoreInput{Prompt: "hi", Response: strings.Repeat("字", 10001)})
	assert.Equal(t, 10, resp.Breakdown.ResponseLength)
}

func TestScoreKeywordsCaseInsensitive(t *testing.T) {
	lower := ScoreRequest(ScoreInput{Prompt: "how to exploit this"})
	upper := ScoreRequest(ScoreInput{Prompt: "HOW TO EXPLOIT THIS"})
	assert.Equal(t, lower.FinalScore, upper.FinalScore)
	assert.Equal(t, []string{"exploit"}, lower.Breakdown.MatchedKeywords)
	assert.Equal(t, []string{"exploit"}, upper.Breakdown.MatchedKeywords)
}

func TestScoreKeywordsWordBoundary(t *testing.T) {
	// 子串不构成命中："exploitation" 不等于 "exploit"
	result := ScoreRequest(ScoreInput{Prompt: "resource exploitation in mining"})
	assert.Zero(t, result.Breakdown.Keywords)
	assert.Empty(t, result.Breakdown.MatchedKeywords)
}

func TestScoreKeywordsDeduplicated(t *testing.T) {
	once := ScoreRequest(ScoreInput{Prompt: "exploit"})
	many := ScoreRequest(ScoreInput{Prompt: "exploit exploit exploit"})
	assert.Equal(t, once.Breakdown.Keywords, many.Breakdown.Keywords)
}

func TestScoreKeywordsCapped(t *testing.T) {
	result := ScoreRequest(ScoreInput{
		Prompt: "exploit malware bomb fraud phishing ransomware weapon hack jailbreak backdoor",
	})
	assert.Equal(t, 40, result.Breakdown.Keywords)
}

func TestModelAdjustment(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"gpt-4", -2},
		{"GPT-4-turbo", -2},
		{"gpt-3.5-turbo", 2},
		{"claude-sonnet-4", -2},
		{"LLaMA-3-8B", 3},
		{"mistral-large", 2},
		{"some-unknown-model", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, modelAdjustment(tt.model))
		})
	}
}

func TestScoreErrorWeight(t *testing.T) {
	result := ScoreRequest(ScoreInput{Prompt: "hi", HasError: true})
	assert.Equal(t, 25, result.Breakdown.Error)
	assert.Equal(t, 25, result.FinalScore)
}
