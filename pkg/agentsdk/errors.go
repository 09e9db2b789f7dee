package agentsdk

import "fmt"

// ValidationError reports malformed input, such as markup with no request id
// or an unparseable URL.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// SecurityError reports a URL that failed SSRF validation.
type SecurityError struct {
	Message string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security error: %s", e.Message)
}

// NetworkError wraps a transport failure talking to the authorization
// server.
type NetworkError struct {
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s", e.Message)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError reports that WaitForAuthentication ran out of wall-clock
// time before the request reached a terminal state.
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s", e.Message)
}
