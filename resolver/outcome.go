package resolver

import (
	"errors"

	"github.com/bbiangul/longdoc/structured"
)

var (
	// ErrContextTooSmall means the instruction plus the generation
	// allowance leave no room for input. It is a configuration error and
	// is never retried.
	ErrContextTooSmall = errors.New("resolver: context too small for instruction and generation")

	// ErrNoStructuredResult means a response carried no parseable object.
	ErrNoStructuredResult = errors.New("resolver: no structured result in response")

	// ErrGeneration wraps a failure of the generation backend.
	ErrGeneration = errors.New("resolver: generation failed")

	// ErrDepthExceeded means the recursion guard tripped before a result
	// fit the context window.
	ErrDepthExceeded = errors.New("resolver: maximum recursion depth exceeded")

	// ErrNoSummary means no chunk produced a usable summary.
	ErrNoSummary = errors.New("resolver: no summary produced")
)

// Outcome is the result of a question-answering resolution. It is one of
// Found, NoAnswer or Failure.
type Outcome interface {
	isOutcome()
}

// Found carries a resolved answer.
type Found struct {
	Result structured.Result
}

// NoAnswer means the text holds no answer to the question. It is valid
// domain output, not an error.
type NoAnswer struct{}

// Failure carries a terminal error.
type Failure struct {
	Err error
}

func (Found) isOutcome()    {}
func (NoAnswer) isOutcome() {}
func (Failure) isOutcome()  {}

// Stats describes the work one operation performed.
type Stats struct {
	Calls  int `json:"calls"`
	Depth  int `json:"depth"`
	Chunks int `json:"chunks"`
}
