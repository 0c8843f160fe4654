package longdoc

import "errors"

var (
	// ErrEmptyText is returned when no text context is provided.
	ErrEmptyText = errors.New("longdoc: no text context provided")

	// ErrEmptyQuestion is returned when a question is blank.
	ErrEmptyQuestion = errors.New("longdoc: no question provided")

	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("longdoc: unsupported document format")

	// ErrParsingFailed is returned when document parsing fails.
	ErrParsingFailed = errors.New("longdoc: parsing failed")

	// ErrAnswerFailed is returned when question answering fails.
	ErrAnswerFailed = errors.New("longdoc: question answering failed")

	// ErrSummaryFailed is returned when summarization fails.
	ErrSummaryFailed = errors.New("longdoc: failed to summarize the text")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("longdoc: invalid configuration")

	// ErrClosed is returned when operating on a closed engine.
	ErrClosed = errors.New("longdoc: engine is closed")

	// ErrTokenizerUnavailable is returned by New when the remote token
	// counter does not answer.
	ErrTokenizerUnavailable = errors.New("longdoc: tokenizer endpoint unavailable")

	// ErrStoreDisabled is returned by job queries when the job log is off.
	ErrStoreDisabled = errors.New("longdoc: job store disabled")

	// ErrJobNotFound is returned when a job ID does not exist.
	ErrJobNotFound = errors.New("longdoc: job not found")
)
