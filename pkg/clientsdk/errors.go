package clientsdk

import "fmt"

// ValidationError reports malformed input or lost local session data.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// SecurityError reports something that smells like an attack, such as a
// state mismatch on callback. Session data is left untouched when one is
// raised so the evidence survives.
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
