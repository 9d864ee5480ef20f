package presto

import "fmt"

// QueryError is the error a coordinator reports for a failed query.
type QueryError struct {
	Message   string `json:"message"`
	ErrorCode int    `json:"errorCode"`
	ErrorName string `json:"errorName"`
	// ErrorType is e.g. "USER_ERROR" or "INTERNAL_ERROR".
	ErrorType string `json:"errorType"`
	Retriable bool   `json:"retriable"`

	ErrorLocation *ErrorLocation `json:"errorLocation,omitempty"`
	FailureInfo   *FailureInfo   `json:"failureInfo,omitempty"`
}

// String formats the error as "ErrorName: Message".
func (q *QueryError) String() string {
	if q == nil {
		return "nil QueryError"
	}
	return fmt.Sprintf("%s: %s", q.ErrorName, q.Message)
}

func (q *QueryError) Error() string {
	return q.String()
}

// ErrorLocation is a 1-based position in the query text.
type ErrorLocation struct {
	LineNumber   int `json:"lineNumber"`
	ColumnNumber int `json:"columnNumber"`
}

func (e *ErrorLocation) String() string {
	return fmt.Sprintf("line %d:%d", e.LineNumber, e.ColumnNumber)
}

// FailureInfo is the server side exception chain behind a QueryError.
type FailureInfo struct {
	// Type is the exception class name.
	Type       string         `json:"type"`
	Message    string         `json:"message,omitempty"`
	Cause      *FailureInfo   `json:"cause,omitempty"`
	Suppressed []FailureInfo  `json:"suppressed"`
	Stack      []string       `json:"stack"`
	Location   *ErrorLocation `json:"errorLocation,omitempty"`
}

// RootCause follows Cause to the innermost failure.
func (f *FailureInfo) RootCause() *FailureInfo {
	for f != nil && f.Cause != nil {
		f = f.Cause
	}
	return f
}
