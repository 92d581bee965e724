package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordCounter approximates tokens as whitespace-separated words
type wordCounter struct{}

func (wordCounter) CountTokens(text string) int {
	return len(strings.Fields(text))
}

func TestSplitIntoChunksSmallText(t *testing.T) {
	chunks := SplitIntoChunks("one short paragraph", wordCounter{}, 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, "one short paragraph", chunks[0])
}

func TestSplitIntoChunksEmpty(t *testing.T) {
	assert.Nil(t, SplitIntoChunks("", wordCounter{}, 100))
	assert.Nil(t, SplitIntoChunks("   \n\n  ", wordCounter{}, 100))
}

func TestSplitIntoChunksRespectsBudget(t *testing.T) {
	paragraphs := []string{
		"alpha beta gamma delta",
		"epsilon zeta eta theta",
		"iota kappa lambda mu",
		"nu xi omicron pi",
	}
	text := strings.Join(paragraphs, "\n\n")

	chunks := SplitIntoChunks(text, wordCounter{}, 8)
	require.Len(t, chunks, 2)
	assert.Equal(t, paragraphs[0]+"\n\n"+paragraphs[1], chunks[0])
	assert.Equal(t, paragraphs[2]+"\n\n"+paragraphs[3], chunks[1])

	// no content lost
	joined := strings.Join(chunks, "\n\n")
	for _, p := range paragraphs {
		assert.Contains(t, joined, p)
	}
}

func TestSplitIntoChunksOversizedParagraph(t *testing.T) {
	big := strings.Repeat("word ", 50)
	text := "small one\n\n" + strings.TrimSpace(big) + "\n\nsmall two"

	chunks := SplitIntoChunks(text, wordCounter{}, 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, "small one", chunks[0])
	assert.Equal(t, "small two", chunks[2])
}

func TestParseAnalysisResponse(t *testing.T) {
	content := `{"analysis": [{
		"theme": "citizenship",
		"period": "1850-1918",
		"argument": "a trend",
		"proofs": [{"content": "a fact", "year": "1880", "is_nuance": false}],
		"flashcards": [{"front": "q", "back": "a"}]
	}]}`

	result, err := ParseAnalysisResponse(content)
	require.NoError(t, err)
	require.Len(t, result.Arguments, 1)

	arg := result.Arguments[0]
	assert.Equal(t, "citizenship", arg.Theme)
	assert.Equal(t, "1850-1918", arg.Period)
	require.Len(t, arg.Proofs, 1)
	assert.Equal(t, "1880", arg.Proofs[0].Year)
	require.Len(t, arg.Flashcards, 1)
}

func TestParseAnalysisResponseInvalid(t *testing.T) {
	_, err := ParseAnalysisResponse("not json at all")
	assert.Error(t, err)
}

func TestChunkPercent(t *testing.T) {
	assert.Equal(t, 2, chunkPercent(0, 10))
	assert.Equal(t, 0, chunkPercent(0, 0))
	assert.Less(t, chunkPercent(9, 10), 100, "completion is reported only after commit")

	last := 0
	for i := 0; i < 10; i++ {
		p := chunkPercent(i, 10)
		assert.GreaterOrEqual(t, p, last)
		last = p
	}
}
