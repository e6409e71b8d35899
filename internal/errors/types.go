package errors

import "errors"

var (
	ErrConfigInvalid      = errors.New("configuration invalid")
	ErrProvisionFailed    = errors.New("image provisioning failed")
	ErrLaunchFailed       = errors.New("container launch failed")
	ErrStreamFailed       = errors.New("log streaming failed")
	ErrCleanupFailed      = errors.New("container cleanup failed")
	ErrFileSystemFailed   = errors.New("filesystem operation failed")
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")
)

// DazzleError carries operator-facing context for a failure. Type is one of
// the sentinels above and names the operation that failed.
type DazzleError struct {
	Type        error
	Context     string
	Cause       string
	Suggestion  string
	OriginalErr error
}

func (e *DazzleError) Error() string {
	return e.OriginalErr.Error()
}

func (e *DazzleError) Unwrap() error {
	return e.OriginalErr
}

// Is lets errors.Is match the category as well as the wrapped chain.
func (e *DazzleError) Is(target error) bool {
	return e.Type == target
}

func NewDazzleError(errorType error, context, cause, suggestion string, originalErr error) *DazzleError {
	return &DazzleError{
		Type:        errorType,
		Context:     context,
		Cause:       cause,
		Suggestion:  suggestion,
		OriginalErr: originalErr,
	}
}

func NewConfigError(context, cause, suggestion string, originalErr error) *DazzleError {
	return NewDazzleError(ErrConfigInvalid, context, cause, suggestion, originalErr)
}

func NewProvisionError(context, cause, suggestion string, originalErr error) *DazzleError {
	return NewDazzleError(ErrProvisionFailed, context, cause, suggestion, originalErr)
}

func NewLaunchError(context, cause, suggestion string, originalErr error) *DazzleError {
	return NewDazzleError(ErrLaunchFailed, context, cause, suggestion, originalErr)
}

func NewStreamError(context, cause, suggestion string, originalErr error) *DazzleError {
	return NewDazzleError(ErrStreamFailed, context, cause, suggestion, originalErr)
}

func NewCleanupError(context, cause, suggestion string, originalErr error) *DazzleError {
	return NewDazzleError(ErrCleanupFailed, context, cause, suggestion, originalErr)
}

func NewFileSystemError(context, cause, suggestion string, originalErr error) *DazzleError {
	return NewDazzleError(ErrFileSystemFailed, context, cause, suggestion, originalErr)
}

func NewRuntimeUnavailableError(context, cause, suggestion string, originalErr error) *DazzleError {
	return NewDazzleError(ErrRuntimeUnavailable, context, cause, suggestion, originalErr)
}
