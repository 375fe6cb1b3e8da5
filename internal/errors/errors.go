package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypePrecondition  ErrorType = "PRECONDITION"
	ErrorTypeAlreadyExists ErrorType = "ALREADY_EXISTS"
	ErrorTypeStructural    ErrorType = "STRUCTURAL"
	ErrorTypeValidation    ErrorType = "VALIDATION"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

func Precondition(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypePrecondition,
		Message: message,
		Details: details,
	}
}

func AlreadyExists(message string) *Error {
	return &Error{
		Type:    ErrorTypeAlreadyExists,
		Message: message,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: details,
	}
}

func Structural(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeStructural,
		Message: message,
		Err:     err,
	}
}

// Repository-level conditions. Callers compare with Is, not by message.

func RepositoryNotFound(start string) *Error {
	return NotFound(fmt.Sprintf("no .wit directory found upward from %s; run `wit init` first", start))
}

func RepositoryExists(root string) *Error {
	return AlreadyExists(fmt.Sprintf("cannot initialize a repository inside of another repository (%s)", root))
}

func CommitNotFound(indicator string) *Error {
	return NotFound(fmt.Sprintf("%q is not a branch name, nor a commit id", indicator))
}

func BranchExists(name string) *Error {
	return AlreadyExists(fmt.Sprintf("there is already a branch named %s", name))
}

func CommitRequired(op string) *Error {
	return Structural(fmt.Sprintf("must commit at least once before %s", op), nil)
}

func ImpossibleCheckout(report any) *Error {
	return Precondition("impossible checkout: 'changes to be committed' and 'changes not staged for commit' must be empty", report)
}

func ImpossibleMerge(reason string, report any) *Error {
	return Precondition("impossible merge: "+reason, report)
}

func UnrelatedHistories(a, b string) *Error {
	return Precondition(fmt.Sprintf("refusing to merge unrelated histories %s and %s", a, b), nil)
}

// Is reports whether err carries an *Error of the given type anywhere in its chain.
func Is(err error, t ErrorType) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// DetailsOf returns the Details of the first *Error in err's chain.
func DetailsOf(err error) any {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Details
	}
	return nil
}
