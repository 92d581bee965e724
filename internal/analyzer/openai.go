package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/georgescold/epsbot1/pkg/pdf"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	// DefaultModel is the OpenAI model used when none is configured
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout is the per-chunk API call timeout
	DefaultTimeout = 120 * time.Second

	// MaxRetries is the maximum retry count on rate-limit errors
	MaxRetries = 3

	// BaseBackoff is the exponential backoff base duration
	BaseBackoff = 2 * time.Second

	// MaxBackoff is the maximum exponential backoff wait
	MaxBackoff = 32 * time.Second

	// DefaultChunkTokenBudget is the max token count per analysis chunk
	DefaultChunkTokenBudget = 6000
)

var (
	// ErrAPIKeyNotSet is returned when no OpenAI API key is configured
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

	// ErrMaxRetriesExceeded is returned when rate-limit retries are exhausted
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

const analysisPrompt = `You are an assistant extracting structured knowledge from a
history-of-physical-education study document. From the following text, identify the
general arguments (trends) with their theme and chronological period, the factual
proofs supporting each one (with year and citation complement where present, and
is_nuance true when the proof nuances the argument rather than supports it), and for
each argument generate 2-3 revision flashcards (front/back).

Respond with a JSON object of the form:
{"analysis": [{"theme": "...", "period": "...", "argument": "...",
"proofs": [{"content": "...", "year": "...", "complement": "...", "is_nuance": false}],
"flashcards": [{"front": "...", "back": "..."}]}]}

Text:
%s`

// OpenAIAnalyzer extracts arguments, proofs and flashcards from a PDF source
// by running a chunked chat-completion analysis.
type OpenAIAnalyzer struct {
	client      openai.Client
	model       string
	counter     TokenCounter
	tokenBudget int
	timeout     time.Duration
	extractText func(filePath string) (string, error)
}

// NewOpenAIAnalyzer creates an analyzer reading the API key from the
// OPENAI_API_KEY environment variable.
func NewOpenAIAnalyzer(model string, tokenBudget int) (*OpenAIAnalyzer, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	counter, err := NewTiktokenCounter()
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = DefaultModel
	}
	if tokenBudget <= 0 {
		tokenBudget = DefaultChunkTokenBudget
	}

	return &OpenAIAnalyzer{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		counter:     counter,
		tokenBudget: tokenBudget,
		timeout:     DefaultTimeout,
		extractText: pdf.ExtractText,
	}, nil
}

// Analyze extracts the document text, splits it into token-bounded chunks and
// analyzes them one by one, reporting progress per chunk and checking for
// cancellation between chunks.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, req Request, onProgress ProgressFunc, isCancelled func() bool) (*Result, error) {
	if isCancelled() {
		return nil, ErrCancelled
	}

	onProgress(2, "Extracting text...")
	text, err := a.extractText(req.FilePath)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("no text extracted from %s", req.Filename)
	}

	chunks := SplitIntoChunks(text, a.counter, a.tokenBudget)
	result := &Result{}

	for i, chunk := range chunks {
		if isCancelled() {
			return nil, ErrCancelled
		}

		percent := chunkPercent(i, len(chunks))
		onProgress(percent, fmt.Sprintf("Analyzing... %d%%", percent))

		partial, err := a.analyzeChunk(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		result.Arguments = append(result.Arguments, partial.Arguments...)
	}

	if isCancelled() {
		return nil, ErrCancelled
	}

	return result, nil
}

func (a *OpenAIAnalyzer) analyzeChunk(ctx context.Context, chunk string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	content, err := a.completeWithRetry(ctx, fmt.Sprintf(analysisPrompt, chunk))
	if err != nil {
		return nil, err
	}

	return ParseAnalysisResponse(content)
}

func (a *OpenAIAnalyzer) completeWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * BaseBackoff
			if backoff > MaxBackoff {
				backoff = MaxBackoff
			}

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: shared.ChatModel(a.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Temperature: openai.Float(0.2),
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{
					Type: "json_object",
				},
			},
		})
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("no completion choices returned")
		}

		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// ParseAnalysisResponse decodes one chunk's completion output.
func ParseAnalysisResponse(content string) (*Result, error) {
	var result Result
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("invalid analysis response: %w", err)
	}
	return &result, nil
}

// chunkPercent maps a chunk index to a 0-100 progress value, leaving headroom
// before 100 so completion is only reported once the result is committed.
func chunkPercent(index, total int) int {
	if total <= 0 {
		return 0
	}
	percent := int(float64(index) / float64(total) * 95)
	if percent < 2 {
		percent = 2
	}
	return percent
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}

	return false
}

var _ Analyzer = (*OpenAIAnalyzer)(nil)
