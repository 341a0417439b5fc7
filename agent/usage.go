package agent

import (
	"sort"
	"unicode"
	"unicode/utf8"
)

// Usage is a best-effort token usage counter.
type Usage struct {
	PromptTokens   int `json:"prompt_tokens"`
	ResponseTokens int `json:"response_tokens"`
	TotalTokens    int `json:"total_tokens"`
}

// Add returns the element-wise sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:   u.PromptTokens + other.PromptTokens,
		ResponseTokens: u.ResponseTokens + other.ResponseTokens,
		TotalTokens:    u.TotalTokens + other.TotalTokens,
	}
}

// IsZero reports whether no tokens were counted.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// UsageSummary aggregates usage across agents.
type UsageSummary struct {
	Agents map[string]Usage `json:"agents"`
	Total  Usage            `json:"total"`
	// Untracked lists agents that do not report usage.
	Untracked []string `json:"untracked,omitempty"`
}

// AggregateUsage sums the usage of every agent implementing UsageReporter.
func AggregateUsage(agents map[string]Agent) UsageSummary {
	summary := UsageSummary{Agents: make(map[string]Usage, len(agents))}
	for name, a := range agents {
		r, ok := a.(UsageReporter)
		if !ok {
			summary.Untracked = append(summary.Untracked, name)
			continue
		}
		u := r.Usage()
		summary.Agents[name] = u
		summary.Total = summary.Total.Add(u)
	}
	sort.Strings(summary.Untracked)
	return summary
}

// EstimateTokens approximates the token count of text. CJK characters count
// as roughly 1.5 chars/token, everything else as 4 chars/token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	totalChars := utf8.RuneCountInString(text)
	cjkCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		}
	}

	estimated := int(float64(cjkCount)/1.5 + float64(totalChars-cjkCount)/4.0)
	if estimated == 0 {
		estimated = 1
	}
	return estimated
}

// EstimateUsage estimates the usage of a prompt/response pair.
func EstimateUsage(prompt, response string) Usage {
	p, r := EstimateTokens(prompt), EstimateTokens(response)
	return Usage{PromptTokens: p, ResponseTokens: r, TotalTokens: p + r}
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
