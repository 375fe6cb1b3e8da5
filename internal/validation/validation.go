package validation

import (
	"strings"
	"unicode"

	"wit/internal/errors"
)

// reserved names cannot be used for branches because indicators resolve them first.
var reserved = map[string]bool{"HEAD": true}

// BranchName checks that name can be stored as a `name=id` reference line.
func BranchName(name string) error {
	if name == "" {
		return errors.ValidationError("branch name cannot be empty", nil)
	}
	if reserved[name] {
		return errors.ValidationError("branch name is reserved", name)
	}
	if strings.Contains(name, "=") {
		return errors.ValidationError("branch name cannot contain '='", name)
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return errors.ValidationError("branch name cannot contain whitespace", name)
	}
	return nil
}

// CommitMessage rejects messages that would break the metadata record.
func CommitMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return errors.ValidationError("commit message is required", nil)
	}
	return nil
}
