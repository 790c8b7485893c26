package scrape

import (
	"fmt"
	"strconv"
)

// FailureKind enumerates why a work item ended up in the error sink.
type FailureKind int

// Failure kinds recorded in the error sink.
const (
	FailureNone FailureKind = iota
	FailureMalformedURL
	FailureMissingScheme
	FailureRedirectLoopExceeded
	FailureConnectionFailed
	FailureRetriesExhausted
	FailureNonSuccessStatus
	FailureExtractionFailed
)

// Label returns the reason string written to the error sink. Status code
// failures are labeled by the code itself, see ErrorReason.
func (k FailureKind) Label() string {
	switch k {
	case FailureMalformedURL:
		return "InvalidSchema"
	case FailureMissingScheme:
		return "MissingSchema"
	case FailureRedirectLoopExceeded:
		return "TooManyRedirects"
	case FailureConnectionFailed:
		return "ConnectionError"
	case FailureRetriesExhausted:
		return "RetryError"
	case FailureNonSuccessStatus:
		return "HTTPError"
	case FailureExtractionFailed:
		return "ExtractionError"
	default:
		return "None"
	}
}

// String implements fmt.Stringer.
func (k FailureKind) String() string {
	return k.Label()
}

// OutcomeKind tags the FetchOutcome variant.
type OutcomeKind int

// Fetch outcome variants.
const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeTransientFailure
	OutcomeTerminalFailure
	OutcomeHTTPError
)

// String implements fmt.Stringer.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransientFailure:
		return "transient_failure"
	case OutcomeTerminalFailure:
		return "terminal_failure"
	case OutcomeHTTPError:
		return "http_error"
	default:
		return "unknown"
	}
}

// FetchOutcome is the result of fetching one work item. Only the fields that
// belong to Kind are populated.
type FetchOutcome struct {
	Kind       OutcomeKind
	Body       []byte
	FinalURL   string
	StatusCode int
	Reason     FailureKind
	Err        error
	Attempts   int
}

// Success builds a successful outcome.
func Success(body []byte, finalURL string, status int) FetchOutcome {
	return FetchOutcome{Kind: OutcomeSuccess, Body: body, FinalURL: finalURL, StatusCode: status}
}

// TransientFailure builds an outcome for a failure that was eligible for retry.
func TransientFailure(reason FailureKind, err error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeTransientFailure, Reason: reason, Err: err}
}

// TerminalFailure builds an outcome for a failure that is never retried.
func TerminalFailure(reason FailureKind, err error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeTerminalFailure, Reason: reason, Err: err}
}

// HTTPError builds an outcome for a non-success status code.
func HTTPError(code int) FetchOutcome {
	return FetchOutcome{Kind: OutcomeHTTPError, StatusCode: code, Reason: FailureNonSuccessStatus}
}

// Disposition describes where a classified outcome goes.
type Disposition struct {
	// Extract is true when the body should be handed to the extractor.
	Extract bool
	// Error is populated when Extract is false.
	Error ErrorRecord
	// Kind is the failure kind behind Error.
	Kind FailureKind
	// Diagnostic is the line printed for the failure.
	Diagnostic string
}

// Classify maps a fetch outcome to its destination. It has no side effects.
func Classify(item WorkItem, outcome FetchOutcome) Disposition {
	switch outcome.Kind {
	case OutcomeSuccess:
		return Disposition{Extract: true}
	case OutcomeHTTPError:
		code := strconv.Itoa(outcome.StatusCode)
		return Disposition{
			Error: ErrorRecord{URL: item.URL, Reason: code},
			Kind:  FailureNonSuccessStatus,
			Diagnostic: fmt.Sprintf(
				"#%d: Error with status code %s for URL: %s", item.Index, code, item.URL,
			),
		}
	default:
		return failureDisposition(item, outcome.Reason)
	}
}

// ExtractionFailure is the disposition of an item whose body could not be
// turned into a record.
func ExtractionFailure(item WorkItem) Disposition {
	return failureDisposition(item, FailureExtractionFailed)
}

func failureDisposition(item WorkItem, kind FailureKind) Disposition {
	if kind == FailureNone {
		kind = FailureConnectionFailed
	}
	label := kind.Label()
	return Disposition{
		Error:      ErrorRecord{URL: item.URL, Reason: label},
		Kind:       kind,
		Diagnostic: fmt.Sprintf("#%d: %s %s", item.Index, label, item.URL),
	}
}
