package mcp

import "fmt"

// ServerRegistryError represents a failure in a registry operation.
type ServerRegistryError struct {
	Operation string // operation that failed ("register", "activate", ...)
	ServerID  string // server ID if applicable
	Message   string // error message
	Err       error  // underlying error
}

// Error implements the error interface.
func (e *ServerRegistryError) Error() string {
	msg := fmt.Sprintf("[registry] %s: %s", e.Operation, e.Message)
	if e.ServerID != "" {
		msg += fmt.Sprintf(" (server: %s)", e.ServerID)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ServerRegistryError) Unwrap() error {
	return e.Err
}

// NewServerRegistryError creates a new ServerRegistryError.
func NewServerRegistryError(operation, serverID, message string, err error) *ServerRegistryError {
	return &ServerRegistryError{
		Operation: operation,
		ServerID:  serverID,
		Message:   message,
		Err:       err,
	}
}
