package errors

import "fmt"

// ErrorCode represents a mirror error code.
type ErrorCode string

const (
	ErrAuthentication  ErrorCode = "AUTHENTICATION"   // fatal, aborts the run before any writes
	ErrTransport       ErrorCode = "TRANSPORT"        // listing: fatal for the pass; download: per item
	ErrFilesystem      ErrorCode = "FILESYSTEM"       // fatal for the item only
	ErrNamingCollision ErrorCode = "NAMING_COLLISION" // only raised with strict collisions
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"
	ErrCancelled       ErrorCode = "CANCELLED"
	ErrInternal        ErrorCode = "INTERNAL"
)

// MirrorError represents a structured error with code, message, and details.
type MirrorError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *MirrorError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *MirrorError) Unwrap() error {
	return e.Err
}

// NewAuthentication creates an error for rejected credentials.
func NewAuthentication(endpoint, user string) *MirrorError {
	return &MirrorError{
		Code:    ErrAuthentication,
		Message: fmt.Sprintf("invalid credentials for user %q at %s", user, endpoint),
		Details: map[string]any{"endpoint": endpoint, "user": user},
	}
}

// NewTransport creates an error for a failed network call.
func NewTransport(op string, err error) *MirrorError {
	msg := op
	if err != nil {
		msg = fmt.Sprintf("%s: %v", op, err)
	}
	return &MirrorError{
		Code:    ErrTransport,
		Message: msg,
		Details: map[string]any{"op": op},
		Err:     err,
	}
}

// NewHTTPStatus creates a transport error for an unexpected HTTP status.
func NewHTTPStatus(op string, status int) *MirrorError {
	return &MirrorError{
		Code:    ErrTransport,
		Message: fmt.Sprintf("%s: unexpected HTTP status %d", op, status),
		Details: map[string]any{"op": op, "status": status},
	}
}

// NewFilesystem creates an error for a failed directory or file write.
func NewFilesystem(path string, err error) *MirrorError {
	msg := path
	if err != nil {
		msg = fmt.Sprintf("%s: %v", path, err)
	}
	return &MirrorError{
		Code:    ErrFilesystem,
		Message: msg,
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// NewNamingCollision creates an error for two items resolving to one path.
func NewNamingCollision(path, firstKey, secondKey string) *MirrorError {
	return &MirrorError{
		Code:    ErrNamingCollision,
		Message: fmt.Sprintf("%s already written by %s in this run", path, firstKey),
		Details: map[string]any{"path": path, "first": firstKey, "second": secondKey},
	}
}

// NewInvalidRequest creates an error for invalid parameters.
func NewInvalidRequest(msg string) *MirrorError {
	return &MirrorError{
		Code:    ErrInvalidRequest,
		Message: msg,
	}
}

// NewCancelled creates an error for an operation stopped by context cancellation.
func NewCancelled(op string) *MirrorError {
	return &MirrorError{
		Code:    ErrCancelled,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewInternal creates an error for unexpected internal errors.
func NewInternal(err error) *MirrorError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &MirrorError{
		Code:    ErrInternal,
		Message: msg,
		Err:     err,
	}
}

// Is checks if err, or any error it wraps, is a MirrorError with the given code.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	if mErr, ok := err.(*MirrorError); ok && mErr.Code == code {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return Is(u.Unwrap(), code)
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if Is(e, code) {
				return true
			}
		}
	}
	return false
}

// CodeOf returns the code of the first MirrorError in err's tree, or ErrInternal.
func CodeOf(err error) ErrorCode {
	if code, ok := codeOf(err); ok {
		return code
	}
	return ErrInternal
}

func codeOf(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	if mErr, ok := err.(*MirrorError); ok {
		return mErr.Code, true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return codeOf(u.Unwrap())
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if code, ok := codeOf(e); ok {
				return code, true
			}
		}
	}
	return "", false
}
