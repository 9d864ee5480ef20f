package presto

import (
	"fmt"
	"io"
	"net/http"
)

// ErrorResponse is a non-2xx HTTP response from the coordinator.
type ErrorResponse struct {
	Response *http.Response
	// Message is the response body.
	Message string
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%s (status code: %d)", e.Message, e.Response.StatusCode)
}

// NewErrorResponse reads and closes the body of resp.
func NewErrorResponse(resp *http.Response) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	return &ErrorResponse{Response: resp, Message: string(body)}
}
