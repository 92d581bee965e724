package analyzer

import (
	"context"
	"errors"
)

// ErrCancelled is returned by an Analyzer when it observed a cancellation
// request at one of its checkpoints and aborted cleanly.
var ErrCancelled = errors.New("analysis cancelled")

// Request describes the source document an Analyzer should process.
type Request struct {
	SourceID int64
	Filename string
	FilePath string
}

// ProgressFunc reports an analysis progress increment. Percent is 0-100;
// message is a human-readable current-step description.
type ProgressFunc func(percent int, message string)

// Result is the structured knowledge extracted from one source document.
type Result struct {
	Arguments []Argument `json:"analysis"`
}

// Argument is one general trend extracted from a source, with its proofs
// and generated flashcards.
type Argument struct {
	Theme      string      `json:"theme"`
	Period     string      `json:"period"`
	Content    string      `json:"argument"`
	Proofs     []Proof     `json:"proofs"`
	Flashcards []Flashcard `json:"flashcards,omitempty"`
}

// Proof is one factual detail supporting (or nuancing) an argument.
type Proof struct {
	Content    string `json:"content"`
	Year       string `json:"year,omitempty"`
	Complement string `json:"complement,omitempty"`
	IsNuance   bool   `json:"is_nuance"`
}

// Flashcard is a question/answer pair generated from an argument.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// Analyzer turns a source document into structured knowledge. Implementations
// must call onProgress as they advance and check isCancelled at their own
// checkpoints, returning ErrCancelled when it reports true. Any other error
// is final for the attempt.
type Analyzer interface {
	Analyze(ctx context.Context, req Request, onProgress ProgressFunc, isCancelled func() bool) (*Result, error)
}
