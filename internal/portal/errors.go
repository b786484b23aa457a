package portal

import "errors"

// Sentinel errors for portal client failures.
var (
	// ErrSubmission means the submit response carried no recognizable job ID.
	ErrSubmission = errors.New("portal submission rejected")
	// ErrTransport means a request failed or returned a non-success status.
	ErrTransport = errors.New("portal transport error")
	// ErrTimeout means polling ran past its maximum wait without a terminal status.
	ErrTimeout = errors.New("portal job timed out")
	// ErrExtraction means a tool-call payload could not be parsed.
	ErrExtraction = errors.New("portal result extraction failed")

	ErrNotSubmitted     = errors.New("portal job has no id")
	ErrAlreadySubmitted = errors.New("portal job already submitted")
)
