package analyzer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens the way the target model does.
type TokenCounter interface {
	CountTokens(text string) int
}

// TiktokenCounter counts tokens with the cl100k_base encoding.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a token counter using the cl100k_base encoding.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}
	return &TiktokenCounter{encoding: encoding}, nil
}

// CountTokens counts the tokens in text.
func (tc *TiktokenCounter) CountTokens(text string) int {
	if tc.encoding == nil {
		return 0
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// SplitIntoChunks splits text into paragraph-aligned chunks of at most
// tokenBudget tokens each. A single paragraph larger than the budget becomes
// its own chunk rather than being split mid-paragraph.
func SplitIntoChunks(text string, counter TokenCounter, tokenBudget int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if tokenBudget <= 0 || counter.CountTokens(text) <= tokenBudget {
		return []string{text}
	}

	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
			currentTokens = 0
		}
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tokens := counter.CountTokens(p)
		if currentTokens > 0 && currentTokens+tokens > tokenBudget {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
		currentTokens += tokens
	}
	flush()

	return chunks
}
